package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS drip_records (
	drip_key          TEXT PRIMARY KEY,
	network_id        TEXT NOT NULL,
	recipient_address TEXT NOT NULL,
	last_drip_at      INTEGER NOT NULL DEFAULT 0,
	cooldown_seconds  INTEGER NOT NULL DEFAULT 0,
	pending           INTEGER NOT NULL DEFAULT 0,
	lease_id          TEXT NOT NULL DEFAULT '',
	lease_acquired_at INTEGER NOT NULL DEFAULT 0,
	version           INTEGER NOT NULL,
	transactions      TEXT NOT NULL DEFAULT '[]',
	updated_at        INTEGER NOT NULL
)`

// SQLiteStore keeps drip records in a local SQLite file. It serves local
// development where DynamoDB is not available.
type SQLiteStore struct {
	sqlDB   *sql.DB
	nowFunc func() time.Time
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens or creates the ledger database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps compare-and-set free of SQLITE_BUSY between pooled connections.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB, nowFunc: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get reads the record for k.
func (s *SQLiteStore) Get(ctx context.Context, k Key) (*DripRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT
		   drip_key, network_id, recipient_address, last_drip_at, cooldown_seconds,
		   pending, lease_id, lease_acquired_at, version, transactions, updated_at
		 FROM drip_records WHERE drip_key = ?`, k.String())

	var (
		rec                                 DripRecord
		lastDrip, leaseAt, updated, pending int64
		txJSON                              string
	)
	err := row.Scan(&rec.DripKey, &rec.NetworkID, &rec.Recipient, &lastDrip, &rec.CooldownSeconds,
		&pending, &rec.LeaseID, &leaseAt, &rec.Version, &txJSON, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select record: %w", ErrUnavailable, err)
	}
	rec.LastDripAt = fromMillis(lastDrip)
	rec.LeaseAcquiredAt = fromMillis(leaseAt)
	rec.UpdatedAt = fromMillis(updated)
	rec.Pending = pending != 0
	if err := json.Unmarshal([]byte(txJSON), &rec.Transactions); err != nil {
		return nil, fmt.Errorf("%w: decode transactions: %w", ErrUnavailable, err)
	}
	if len(rec.Transactions) == 0 {
		rec.Transactions = nil
	}
	return &rec, nil
}

// Put writes rec as version expected+1 when the stored version matches.
func (s *SQLiteStore) Put(ctx context.Context, rec DripRecord, expected int64) error {
	txJSON, err := json.Marshal(rec.Transactions)
	if err != nil {
		return fmt.Errorf("encode transactions: %w", err)
	}
	if rec.Transactions == nil {
		txJSON = []byte("[]")
	}
	pending := 0
	if rec.Pending {
		pending = 1
	}
	args := []any{
		rec.Key().String(), rec.NetworkID, rec.Recipient, toMillis(rec.LastDripAt), rec.CooldownSeconds,
		pending, rec.LeaseID, toMillis(rec.LeaseAcquiredAt), expected + 1, string(txJSON), toMillis(s.nowFunc()),
	}

	var res sql.Result
	if expected == 0 {
		res, err = s.sqlDB.ExecContext(ctx, `INSERT INTO drip_records (
			   drip_key, network_id, recipient_address, last_drip_at, cooldown_seconds,
			   pending, lease_id, lease_acquired_at, version, transactions, updated_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(drip_key) DO NOTHING`, args...)
	} else {
		res, err = s.sqlDB.ExecContext(ctx, `UPDATE drip_records SET
			   network_id = ?2, recipient_address = ?3, last_drip_at = ?4, cooldown_seconds = ?5,
			   pending = ?6, lease_id = ?7, lease_acquired_at = ?8, version = ?9,
			   transactions = ?10, updated_at = ?11
			 WHERE drip_key = ?1 AND version = ?12`, append(args, expected)...)
	}
	if err != nil {
		return fmt.Errorf("%w: write record: %w", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %w", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}
