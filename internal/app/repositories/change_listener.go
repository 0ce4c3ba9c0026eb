package repositories

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/yigit/coursereg/internal/app/models"
	"github.com/yigit/coursereg/internal/db"
	"github.com/yigit/coursereg/internal/pkg/helpers"
)

// ChangeChannel is the NOTIFY channel the table_change trigger publishes on.
const ChangeChannel = "table_changes"

// ChangeListener turns PostgreSQL NOTIFY payloads into change events. It holds
// one pooled connection in LISTEN mode while it has been started.
type ChangeListener struct {
	pool    *pgxpool.Pool
	logger  zerolog.Logger
	feed    *changeFanout
	backoff helpers.BackoffConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChangeListener creates a listener on pool. Nothing is acquired until the
// first Subscribe.
func NewChangeListener(pool *pgxpool.Pool, logger zerolog.Logger) *ChangeListener {
	return &ChangeListener{
		pool:    pool,
		logger:  logger.With().Str("component", "change_listener").Logger(),
		feed:    newChangeFanout(),
		backoff: helpers.DefaultBackoff,
	}
}

// Subscribe registers handler, starting the LISTEN loop if needed. The first
// subscription fails if the channel cannot be listened on.
func (l *ChangeListener) Subscribe(ctx context.Context, handler models.ChangeHandler) (func(), error) {
	if err := l.ensureRunning(ctx); err != nil {
		return nil, err
	}
	return l.feed.add(handler), nil
}

func (l *ChangeListener) ensureRunning(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return nil
	}

	conn, err := l.listen(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(runCtx, conn)
	return nil
}

func (l *ChangeListener) listen(ctx context.Context) (*pgxpool.Conn, error) {
	return db.Listen(ctx, l.pool, ChangeChannel)
}

func (l *ChangeListener) run(ctx context.Context, conn *pgxpool.Conn) {
	defer close(l.done)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0
	for {
		if conn == nil {
			attempt++
			delay := helpers.NextBackoffDelay(l.backoff, attempt, rng)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			c, err := l.listen(ctx)
			if err != nil {
				l.logger.Warn().Err(err).Int("attempt", attempt).Msg("Change listener reconnect failed")
				continue
			}
			conn, attempt = c, 0
			l.logger.Info().Msg("Change listener reconnected")
			// Notifications sent while disconnected are lost.
			l.feed.dispatchResync()
		}

		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			db.Discard(conn)
			conn = nil
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn().Err(err).Msg("Change listener connection lost")
			continue
		}

		var ev models.ChangeEvent
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil || ev.Table == "" {
			l.logger.Warn().Str("payload", n.Payload).Msg("Ignoring malformed change notification")
			continue
		}
		l.feed.dispatch(ev)
	}
}

// Close stops the LISTEN loop and drops its connection.
func (l *ChangeListener) Close() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
