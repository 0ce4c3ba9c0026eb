// Package supabase connects to the two Supabase surfaces the registration
// store needs: the PostgREST data API and the Realtime change feed.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/supabase-community/postgrest-go"
)

// PostgreSQL error codes surfaced by PostgREST.
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeUndefinedColumn     = "42703"
)

// HasCode reports whether err is a PostgREST error carrying the given
// PostgreSQL code. postgrest-go renders those as "(code) message".
func HasCode(err error, code string) bool {
	return err != nil && strings.HasPrefix(err.Error(), "("+code+")")
}

// Client talks to one Supabase project.
type Client struct {
	baseURL *url.URL
	key     string
	rest    *postgrest.Client
}

// NewClient creates a client for the project at rawURL using the anon or
// service key.
func NewClient(rawURL, key string) (*Client, error) {
	if key == "" {
		return nil, errors.New("supabase: key is required")
	}
	u, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("supabase: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("supabase: unsupported url scheme %q", u.Scheme)
	}

	rest := postgrest.NewClient(u.String()+"/rest/v1", "public", map[string]string{
		"apikey":        key,
		"Authorization": "Bearer " + key,
	})
	if rest.ClientError != nil {
		return nil, fmt.Errorf("supabase: failed to create rest client: %w", rest.ClientError)
	}
	return &Client{baseURL: u, key: key, rest: rest}, nil
}

// From starts a PostgREST query on table.
func (c *Client) From(table string) *postgrest.QueryBuilder {
	return c.rest.From(table)
}

// Exec runs a PostgREST call and returns early with ctx's error when ctx
// ends first. The request itself is not aborted.
func Exec(ctx context.Context, call func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- call() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// realtimeURL derives the websocket endpoint of the project.
func (c *Client) realtimeURL() string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = u.Path + "/realtime/v1/websocket"
	u.RawQuery = url.Values{"apikey": {c.key}, "vsn": {"1.0.0"}}.Encode()
	return u.String()
}
