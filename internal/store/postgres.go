package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/avisolabs/aviso/internal/notification"
)

// PostgresConfig holds database connection parameters.
type PostgresConfig struct {
	Host     string
	Password string
	User     string
	Database string
	SSLMode  string
	Port     int
}

// Postgres stores notifications in a notifications table. Per-user
// lookups go through a GIN index on target_user_ids instead of a scan,
// and saves are guarded by a version column so concurrent open attempts
// serialize.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a connection pool and verifies connectivity.
func NewPostgres(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	var dsn string
	if cfg.Password != "" {
		dsn = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
		)
	} else {
		dsn = fmt.Sprintf(
			"host=%s port=%d user=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Database, cfg.SSLMode,
		)
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
	)

	return &Postgres{pool: pool, logger: logger}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Health checks if the database is reachable.
func (p *Postgres) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

const notificationColumns = `
	id, target_user_ids, target_mails, type, status,
	multimedia_id, viewer_id, version, created_at, updated_at
`

func (p *Postgres) Create(ctx context.Context, n *notification.Notification) error {
	query := `
		INSERT INTO notifications (
			id, target_user_ids, target_mails, type, status, multimedia_id
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING version, created_at, updated_at
	`

	err := p.pool.QueryRow(ctx, query,
		n.ID,
		n.TargetUserIDs,
		n.TargetMails,
		n.Type,
		n.Status,
		n.MultimediaID,
	).Scan(&n.Version, &n.CreatedAt, &n.UpdatedAt)

	if err != nil {
		p.logger.Error("failed to insert notification",
			zap.Error(err),
			zap.String("notification_id", n.ID.String()),
		)
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (p *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE id = $1 AND deleted_at IS NULL
	`

	n, err := scanNotification(p.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notification.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query notification: %w", err)
	}
	return n, nil
}

func (p *Postgres) FindAllNotDeleted(ctx context.Context) ([]*notification.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

func (p *Postgres) FindByTargetUser(ctx context.Context, userID string) ([]*notification.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE deleted_at IS NULL AND target_user_ids @> ARRAY[$1]::text[]
		ORDER BY created_at DESC
	`

	rows, err := p.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query notifications by user: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

// Save persists a modified record. The version predicate makes the
// write conditional: a stale in-memory copy loses with
// ErrVersionConflict instead of clobbering a concurrent update.
func (p *Postgres) Save(ctx context.Context, n *notification.Notification) error {
	query := `
		UPDATE notifications
		SET target_user_ids = $2,
		    target_mails = $3,
		    type = $4,
		    status = $5,
		    multimedia_id = $6,
		    viewer_id = $7,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND version = $8 AND deleted_at IS NULL
		RETURNING version, updated_at
	`

	err := p.pool.QueryRow(ctx, query,
		n.ID,
		n.TargetUserIDs,
		n.TargetMails,
		n.Type,
		n.Status,
		n.MultimediaID,
		n.ViewerID,
		n.Version,
	).Scan(&n.Version, &n.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// Either the row is gone (deleted) or the version moved on.
		if _, findErr := p.FindByID(ctx, n.ID); findErr != nil {
			return findErr
		}
		return notification.ErrVersionConflict
	}
	if err != nil {
		p.logger.Error("failed to save notification",
			zap.Error(err),
			zap.String("notification_id", n.ID.String()),
		)
		return fmt.Errorf("save notification: %w", err)
	}
	return nil
}

func (p *Postgres) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notifications
		SET deleted_at = NOW(), updated_at = NOW(), version = version + 1
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := p.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("soft-delete notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var n notification.Notification
	err := row.Scan(
		&n.ID,
		&n.TargetUserIDs,
		&n.TargetMails,
		&n.Type,
		&n.Status,
		&n.MultimediaID,
		&n.ViewerID,
		&n.Version,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func collectNotifications(rows pgx.Rows) ([]*notification.Notification, error) {
	var out []*notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
