package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidates(t *testing.T) {
	_, err := NewClient("https://example.supabase.co", "")
	assert.Error(t, err)

	_, err = NewClient("ftp://example.supabase.co", "key")
	assert.Error(t, err)

	c, err := NewClient("https://example.supabase.co/", "key")
	require.NoError(t, err)
	assert.Equal(t, "wss://example.supabase.co/realtime/v1/websocket?apikey=key&vsn=1.0.0", c.realtimeURL())
}

func TestSelectSendsAuthAndFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/registrations", r.URL.Path)
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
		assert.Equal(t, "course_id,courses(*)", r.URL.Query().Get("select"))
		assert.Equal(t, "eq.student123", r.URL.Query().Get("student_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"course_id":"CS101"}]`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "anon-key")
	require.NoError(t, err)

	var rows []struct {
		CourseID string `json:"course_id"`
	}
	err = Exec(context.Background(), func() error {
		_, err := c.From("registrations").
			Select("course_id,courses(*)", "", false).
			Eq("student_id", "student123").
			ExecuteTo(&rows)
		return err
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "CS101", rows[0].CourseID)
}

func TestInsertReportsPostgresCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Prefer"), "return=minimal")

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CS101", body["course_id"])

		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"code":"23505","message":"duplicate key value violates unique constraint"}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "anon-key")
	require.NoError(t, err)

	_, _, err = c.From("registrations").
		Insert(map[string]string{"course_id": "CS101"}, false, "", "minimal", "").
		Execute()
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeUniqueViolation))
	assert.False(t, HasCode(err, CodeForeignKeyViolation))
	assert.False(t, HasCode(nil, CodeUniqueViolation))
}

func TestErrorWithPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "anon-key")
	require.NoError(t, err)

	var out []json.RawMessage
	_, err = c.From("courses").Select("*", "", false).ExecuteTo(&out)
	require.Error(t, err)
	assert.False(t, HasCode(err, CodeUniqueViolation))
}

func TestUpdateAndDeleteReturnRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Prefer"), "return=representation")
		switch r.Method {
		case http.MethodPatch:
			assert.Equal(t, "eq.CS101", r.URL.Query().Get("id"))
			_, _ = io.WriteString(w, `[{"id":"CS101","enrolled":36}]`)
		case http.MethodDelete:
			assert.Equal(t, "eq.CS101", r.URL.Query().Get("course_id"))
			_, _ = io.WriteString(w, `[]`)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "anon-key")
	require.NoError(t, err)

	var updated []json.RawMessage
	_, err = c.From("courses").
		Update(map[string]int{"enrolled": 36}, "representation", "").
		Eq("id", "CS101").
		ExecuteTo(&updated)
	require.NoError(t, err)
	assert.Len(t, updated, 1)

	var deleted []json.RawMessage
	_, err = c.From("registrations").
		Delete("representation", "").
		Eq("course_id", "CS101").
		ExecuteTo(&deleted)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestExecStopsWaitingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := Exec(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called, "a done context skips the call")

	release := make(chan struct{})
	ctx, cancel = context.WithCancel(context.Background())
	go func() {
		cancel()
	}()
	err = Exec(ctx, func() error {
		<-release
		return nil
	})
	close(release)
	assert.ErrorIs(t, err, context.Canceled)

	boom := errors.New("boom")
	assert.Equal(t, boom, Exec(context.Background(), func() error { return boom }))
}
