package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"faixabet-api/internal/ledger"
	"faixabet-api/internal/models"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

//go:embed schema.sql
var schema string

type Config struct {
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
	QueryTimeout time.Duration
}

type PostgresDB struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

func NewPostgresDB(ctx context.Context, dsn string, cfg Config) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB connection string: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	if cfg.ConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnLifetime
	}
	poolConfig.MaxConnIdleTime = 15 * time.Minute

	// Connect with timeout
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{pool: pool, queryTimeout: cfg.QueryTimeout}, nil
}

func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()
	return db.pool.Ping(ctx)
}

// Migrate creates the tables and indexes when they do not exist yet.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, db.queryTimeout)
}

func (db *PostgresDB) EmailExists(ctx context.Context, email string) (bool, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, dbError("check email", err)
	}
	return exists, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	query := `
        INSERT INTO users (full_name, username, birthdate, email, phone, password_hash, plan_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (email) DO NOTHING
        RETURNING id, created_at
    `

	err := db.pool.QueryRow(ctx, query,
		user.FullName, user.Username, user.Birthdate, user.Email,
		user.Phone, user.PasswordHash, user.PlanID,
	).Scan(&user.ID, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrDuplicateEmail
	}
	if err != nil {
		return dbError("create user", err)
	}
	return nil
}

func (db *PostgresDB) AssignmentBySubscription(ctx context.Context, subscriptionID string) (*models.PlanAssignment, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	query := `
        SELECT user_id, plan_id, active, included_at, expires_at, external_subscription_id
        FROM plan_assignments
        WHERE external_subscription_id = $1
        ORDER BY updated_at DESC
        LIMIT 1
    `

	var a models.PlanAssignment
	var subID *string
	err := db.pool.QueryRow(ctx, query, subscriptionID).Scan(
		&a.UserID, &a.PlanID, &a.Active, &a.IncludedAt, &a.ExpiresAt, &subID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: subscription %s", models.ErrNotFound, subscriptionID)
	}
	if err != nil {
		return nil, dbError("get assignment by subscription", err)
	}
	if subID != nil {
		a.SubscriptionID = *subID
	}
	return &a, nil
}

// RecordWebhookEvent stores an authenticated delivery. It reports false
// when the event id was seen before.
func (db *PostgresDB) RecordWebhookEvent(ctx context.Context, id, eventType string) (bool, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	tag, err := db.pool.Exec(ctx, `
        INSERT INTO webhook_events (event_id, type)
        VALUES ($1, $2)
        ON CONFLICT (event_id) DO NOTHING
    `, id, eventType)
	if err != nil {
		return false, dbError("record webhook event", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (db *PostgresDB) MarkWebhookEvent(ctx context.Context, id string, procErr error) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	var msg *string
	if procErr != nil {
		s := procErr.Error()
		msg = &s
	}
	_, err := db.pool.Exec(ctx, `
        UPDATE webhook_events
        SET processed_at = NOW(), error = $2
        WHERE event_id = $1
    `, id, msg)
	if err != nil {
		return dbError("mark webhook event", err)
	}
	return nil
}

// InLedgerTx runs fn in one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (db *PostgresDB) InLedgerTx(ctx context.Context, fn func(ledger.Tx) error) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	return db.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		return fn(&pgLedgerTx{tx: tx})
	})
}

type pgLedgerTx struct {
	tx pgx.Tx
}

func (t *pgLedgerTx) InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) (bool, error) {
	query := `
        INSERT INTO ledger_entries (user_id, plan_id, paid_at, method, amount, expires_at, external_ref)
        VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
        ON CONFLICT (external_ref) DO NOTHING
        RETURNING id
    `

	err := t.tx.QueryRow(ctx, query,
		e.UserID, e.PlanID, e.PaidAt, e.Method,
		e.Amount.StringFixed(2), e.ExpiresAt, e.ExternalRef,
	).Scan(&e.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, dbError("insert ledger entry", err)
	}
	return true, nil
}

func (t *pgLedgerTx) UpsertPlanAssignment(ctx context.Context, a *models.PlanAssignment) error {
	query := `
        INSERT INTO plan_assignments (user_id, plan_id, active, included_at, expires_at, external_subscription_id)
        VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
        ON CONFLICT (user_id) DO UPDATE
        SET included_at = CASE
                WHEN plan_assignments.plan_id = EXCLUDED.plan_id AND plan_assignments.active
                THEN plan_assignments.included_at
                ELSE EXCLUDED.included_at
            END,
            plan_id = EXCLUDED.plan_id,
            active = EXCLUDED.active,
            expires_at = EXCLUDED.expires_at,
            external_subscription_id = COALESCE(EXCLUDED.external_subscription_id, plan_assignments.external_subscription_id),
            updated_at = NOW()
    `

	_, err := t.tx.Exec(ctx, query,
		a.UserID, a.PlanID, a.Active, a.IncludedAt, a.ExpiresAt, a.SubscriptionID,
	)
	if err != nil {
		return dbError("upsert plan assignment", err)
	}
	return nil
}

func (t *pgLedgerTx) SetUserPlan(ctx context.Context, userID, planID int64) error {
	tag, err := t.tx.Exec(ctx, `
        UPDATE users
        SET plan_id = $2, active = TRUE
        WHERE id = $1
    `, userID, planID)
	if err != nil {
		return dbError("update user plan", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %d", models.ErrNotFound, userID)
	}
	return nil
}

func (t *pgLedgerTx) DeactivateSubscription(ctx context.Context, subscriptionID string) (int64, error) {
	var userID int64
	err := t.tx.QueryRow(ctx, `
        UPDATE plan_assignments
        SET active = FALSE, updated_at = NOW()
        WHERE external_subscription_id = $1
        RETURNING user_id
    `, subscriptionID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: subscription %s", models.ErrNotFound, subscriptionID)
	}
	if err != nil {
		return 0, dbError("deactivate assignment", err)
	}

	if _, err := t.tx.Exec(ctx, `UPDATE users SET active = FALSE WHERE id = $1`, userID); err != nil {
		return 0, dbError("deactivate user", err)
	}
	return userID, nil
}

func dbError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrPersistence, op, err)
}
