package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertShareSampleSQL = `INSERT INTO share_price_samples (
        bucket_ts,
        vault,
        share_price,
        block_number,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (vault, bucket_ts) DO UPDATE
    SET
        share_price  = EXCLUDED.share_price,
        block_number = EXCLUDED.block_number,
        status       = EXCLUDED.status,
        error        = EXCLUDED.error;`

	listSamplesBetweenSQL = `SELECT
        bucket_ts,
        vault,
        share_price,
        block_number,
        status,
        error,
        created_at
    FROM share_price_samples
    WHERE vault = $1
      AND bucket_ts >= $2
      AND bucket_ts < $3
    ORDER BY bucket_ts;`

	listRecentSamplesSQL = `SELECT
        bucket_ts,
        vault,
        share_price,
        block_number,
        status,
        error,
        created_at
    FROM share_price_samples
    ORDER BY bucket_ts DESC
    LIMIT $1;`

	insertOracleEventSQL = `INSERT INTO oracle_events (
        kind,
        asset,
        value,
        actor,
        occurred_at
    ) VALUES (
        $1,$2,$3,$4,$5
    ) RETURNING id;`

	listRecentEventsSQL = `SELECT
        id,
        kind,
        asset,
        value,
        actor,
        occurred_at
    FROM oracle_events
    ORDER BY occurred_at DESC
    LIMIT $1;`

	insertAlertSQL = `INSERT INTO alerts (
        vault,
        sample_ts,
        reason,
        detail,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (vault, sample_ts) DO UPDATE
    SET reason   = EXCLUDED.reason,
        detail   = EXCLUDED.detail,
        channels = EXCLUDED.channels
    RETURNING id, vault, sample_ts, reason, detail, channels, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        vault,
        sample_ts,
        reason,
        detail,
        channels,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ShareSampleStore defines operations for share price sample persistence.
type ShareSampleStore interface {
	UpsertShareSample(ctx context.Context, sample ShareSample) error
	ListSamplesBetween(ctx context.Context, vault string, from, to time.Time) ([]ShareSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]ShareSample, error)
}

// EventStore defines operations for the oracle config audit trail.
type EventStore interface {
	InsertOracleEvent(ctx context.Context, ev OracleEvent) (int64, error)
	ListRecentEvents(ctx context.Context, limit int) ([]OracleEvent, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to samples, events, and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertShareSample persists or updates a valuation sample.
func (s *Store) UpsertShareSample(ctx context.Context, sample ShareSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var block interface{}
	if sample.BlockNumber != nil {
		block = *sample.BlockNumber
	}
	var errMsg interface{}
	if sample.Error != nil {
		errMsg = *sample.Error
	}

	_, execErr := pool.Exec(ctx, upsertShareSampleSQL,
		sample.Bucket,
		sample.Vault,
		sample.SharePrice.String(),
		block,
		sample.Status,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("upsert share sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists one vault's samples within a time window.
func (s *Store) ListSamplesBetween(ctx context.Context, vault string, from, to time.Time) ([]ShareSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, vault, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows)
}

// ListRecentSamples lists the most recent samples across all vaults.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]ShareSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows)
}

func collectSamples(rows pgx.Rows) ([]ShareSample, error) {
	samples := make([]ShareSample, 0)
	for rows.Next() {
		sample, err := scanShareSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanShareSample(row pgx.Row) (ShareSample, error) {
	var (
		sample ShareSample
		price  string
		block  sql.NullInt64
		errMsg sql.NullString
	)
	if err := row.Scan(&sample.Bucket, &sample.Vault, &price, &block, &sample.Status, &errMsg, &sample.CreatedAt); err != nil {
		return ShareSample{}, fmt.Errorf("scan share sample: %w", err)
	}

	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return ShareSample{}, fmt.Errorf("parse share price: %w", err)
	}
	sample.SharePrice = parsed

	if block.Valid {
		v := block.Int64
		sample.BlockNumber = &v
	}
	if errMsg.Valid {
		v := errMsg.String
		sample.Error = &v
	}
	return sample, nil
}

// InsertOracleEvent appends one config change event to the audit trail.
func (s *Store) InsertOracleEvent(ctx context.Context, ev OracleEvent) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var id int64
	err = pool.QueryRow(ctx, insertOracleEventSQL,
		ev.Kind,
		ev.Asset,
		ev.Value,
		ev.Actor,
		ev.OccurredAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert oracle event: %w", err)
	}
	return id, nil
}

// ListRecentEvents lists the newest audit trail entries.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]OracleEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentEventsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent events: %w", queryErr)
	}
	defer rows.Close()

	events := make([]OracleEvent, 0)
	for rows.Next() {
		var ev OracleEvent
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Asset, &ev.Value, &ev.Actor, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan oracle event: %w", err)
		}
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// InsertAlert persists an alert record, replacing an earlier alert for the
// same vault and bucket.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	var stored AlertRecord
	err = pool.QueryRow(ctx, insertAlertSQL,
		alert.Vault,
		alert.SampleTS,
		alert.Reason,
		alert.Detail,
		alert.Channels,
	).Scan(&stored.ID, &stored.Vault, &stored.SampleTS, &stored.Reason, &stored.Detail, &stored.Channels, &stored.CreatedAt)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	return stored, nil
}

// ListRecentAlerts lists the newest alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0)
	for rows.Next() {
		var alert AlertRecord
		if err := rows.Scan(&alert.ID, &alert.Vault, &alert.SampleTS, &alert.Reason, &alert.Detail, &alert.Channels, &alert.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore prunes alerts older than the cutoff.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); err != nil {
		return fmt.Errorf("delete alerts before: %w", err)
	}
	return nil
}

var (
	_ ShareSampleStore = (*Store)(nil)
	_ EventStore       = (*Store)(nil)
	_ AlertStore       = (*Store)(nil)
	_ AdvisoryLocker   = (*Store)(nil)
)
