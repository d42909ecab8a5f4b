// Package postgres is the PostgreSQL Store, for deployments that run more
// than one instance against shared storage.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/flowjournal/flowpush/internal/model"
	"github.com/flowjournal/flowpush/internal/storage"
	"github.com/flowjournal/flowpush/internal/storage/postgres/migrations"
)

var _ storage.Store = (*Store)(nil)

const subscriptionColumns = `id, user_id, endpoint, p256dh, auth, user_agent, created_at, updated_at`

// Store is a database/sql Store backed by the pgx driver.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// New opens dsn, applies pending migrations and returns the store.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an already-migrated connection pool.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate runs the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	query := `INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth, user_agent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (user_id, endpoint) DO UPDATE
		SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth, user_agent = EXCLUDED.user_agent, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	now := s.now()
	err := s.db.QueryRowContext(ctx, query,
		uuid.NewString(), sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth, sub.UserAgent, now,
	).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	sub.UpdatedAt = now
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM push_subscriptions WHERE id = $1`

	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM push_subscriptions WHERE user_id = $1 ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("list subscriptions: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *Store) CountSubscriptions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM push_subscriptions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

func (s *Store) DeleteSubscriptionByEndpoint(ctx context.Context, userID, endpoint string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`, userID, endpoint)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	return n > 0, nil
}

func (s *Store) AppendDeliveryLog(ctx context.Context, log *model.DeliveryLog) error {
	query := `INSERT INTO delivery_logs (user_id, subscription_id, origin, title, status, status_code, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	if log.CreatedAt.IsZero() {
		log.CreatedAt = s.now()
	}
	err := s.db.QueryRowContext(ctx, query,
		log.UserID, log.SubscriptionID, log.Origin, log.Title, log.Status, log.StatusCode, log.Message, log.CreatedAt,
	).Scan(&log.ID)
	if err != nil {
		return fmt.Errorf("append delivery log: %w", err)
	}
	return nil
}

func (s *Store) ListDeliveryLogs(ctx context.Context) ([]*model.DeliveryLog, error) {
	query := `SELECT id, user_id, subscription_id, origin, title, status, status_code, message, created_at
		FROM delivery_logs ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list delivery logs: %w", err)
	}
	defer rows.Close()

	var logs []*model.DeliveryLog
	for rows.Next() {
		var l model.DeliveryLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.SubscriptionID, &l.Origin, &l.Title,
			&l.Status, &l.StatusCode, &l.Message, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("list delivery logs: %w", err)
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list delivery logs: %w", err)
	}
	return logs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (*model.Subscription, error) {
	var sub model.Subscription
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth,
		&sub.UserAgent, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}
