// Package storage keeps the transmission history in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dougsko/pagerd/pkg/logging"
	"github.com/dougsko/pagerd/pkg/session"
)

// DefaultDatabasePath is used when no path is configured
const DefaultDatabasePath = "./pagerd.db"

// TransmissionStore handles persistent storage of finished sessions
type TransmissionStore struct {
	db         *sql.DB
	dbPath     string
	maxRecords int
}

// NewTransmissionStore creates a store with a SQLite backend. maxRecords
// of zero or less keeps everything.
func NewTransmissionStore(dbPath string, maxRecords int) (*TransmissionStore, error) {
	store := &TransmissionStore{
		dbPath:     dbPath,
		maxRecords: maxRecords,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize transmission store: %w", err)
	}

	return store, nil
}

func (ts *TransmissionStore) initialize() error {
	if ts.dbPath == "" {
		ts.dbPath = DefaultDatabasePath
	}

	if err := os.MkdirAll(filepath.Dir(ts.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	connectionString := ts.dbPath + "?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on"

	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	ts.db = db

	if err := ts.createTables(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if err := ts.createIndexes(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logging.Infof("storage", "Transmission store initialized: %s (max %d records)", ts.dbPath, ts.maxRecords)
	return nil
}

func (ts *TransmissionStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transmissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		capcode INTEGER NOT NULL,
		message_type TEXT NOT NULL,
		bitrate INTEGER NOT NULL,
		charset TEXT NOT NULL,
		function_code TEXT NOT NULL,
		datetime_position TEXT NOT NULL DEFAULT 'None',
		body TEXT NOT NULL DEFAULT '',
		frequency_hz INTEGER NOT NULL,
		gain_rf INTEGER NOT NULL DEFAULT 0,
		bandwidth_khz REAL NOT NULL DEFAULT 0,
		amplifier BOOLEAN NOT NULL DEFAULT FALSE,
		success BOOLEAN NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		error_text TEXT NOT NULL DEFAULT '',
		samples INTEGER NOT NULL DEFAULT 0,
		air_time_ms INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS capcodes (
		capcode INTEGER PRIMARY KEY,
		last_transmission_id INTEGER,
		last_time DATETIME,
		total INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (last_transmission_id) REFERENCES transmissions(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS transmission_stats (
		id INTEGER PRIMARY KEY,
		total INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		air_time_ms INTEGER NOT NULL DEFAULT 0,
		last_cleanup DATETIME,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO transmission_stats (id, total, succeeded, failed, air_time_ms)
	VALUES (1, 0, 0, 0, 0);
	`

	_, err := ts.db.Exec(schema)
	return err
}

func (ts *TransmissionStore) createIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_transmissions_timestamp ON transmissions(timestamp DESC)",
		"CREATE INDEX IF NOT EXISTS idx_transmissions_capcode ON transmissions(capcode)",
		"CREATE INDEX IF NOT EXISTS idx_transmissions_success ON transmissions(success)",
		"CREATE INDEX IF NOT EXISTS idx_capcodes_last_time ON capcodes(last_time DESC)",
	}

	for _, indexSQL := range indexes {
		if _, err := ts.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Record stores one finished session. It implements session.Recorder.
func (ts *TransmissionStore) Record(rec session.Record) error {
	tx, err := ts.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	msg := rec.Message
	timestamp := rec.Time.UTC()

	result, err := tx.Exec(`
		INSERT INTO transmissions (
			timestamp, capcode, message_type, bitrate, charset, function_code,
			datetime_position, body, frequency_hz, gain_rf, bandwidth_khz,
			amplifier, success, error_kind, error_text, samples, air_time_ms,
			duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		timestamp, msg.Capcode, msg.Type.String(), int(msg.Bitrate), msg.Charset.String(),
		msg.Function.String(), msg.DateTime.String(), msg.Body, rec.Frequency, rec.GainRF,
		rec.Bandwidth, rec.Amplifier, rec.Success, rec.ErrorKind, rec.Error, rec.Samples,
		rec.AirTime.Milliseconds(), rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transmission: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get transmission ID: %w", err)
	}

	if err := ts.updateCapcode(tx, msg.Capcode, id, rec); err != nil {
		return fmt.Errorf("failed to update capcode: %w", err)
	}

	if err := ts.updateStats(tx, rec); err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}

	if err := ts.cleanupOldRecords(tx); err != nil {
		logging.Warnf("storage", "failed to cleanup old transmissions: %v", err)
	}

	return tx.Commit()
}

func (ts *TransmissionStore) updateCapcode(tx *sql.Tx, capcode int, id int64, rec session.Record) error {
	failed := 0
	if !rec.Success {
		failed = 1
	}

	_, err := tx.Exec(`
		INSERT INTO capcodes (capcode, last_transmission_id, last_time, total, failed)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(capcode) DO UPDATE SET
			last_transmission_id = excluded.last_transmission_id,
			last_time = excluded.last_time,
			total = total + 1,
			failed = failed + excluded.failed,
			updated_at = CURRENT_TIMESTAMP
	`, capcode, id, rec.Time.UTC(), failed)
	return err
}

func (ts *TransmissionStore) updateStats(tx *sql.Tx, rec session.Record) error {
	_, err := tx.Exec(`
		UPDATE transmission_stats SET
			total = total + 1,
			succeeded = CASE WHEN ? THEN succeeded + 1 ELSE succeeded END,
			failed = CASE WHEN ? THEN failed ELSE failed + 1 END,
			air_time_ms = CASE WHEN ? THEN air_time_ms + ? ELSE air_time_ms END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`, rec.Success, rec.Success, rec.Success, rec.AirTime.Milliseconds())
	return err
}

// CleanupOldRecords trims the history down to the configured maximum
func (ts *TransmissionStore) CleanupOldRecords() error {
	tx, err := ts.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := ts.cleanupOldRecords(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (ts *TransmissionStore) cleanupOldRecords(tx *sql.Tx) error {
	if ts.maxRecords <= 0 {
		return nil
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM transmissions").Scan(&count); err != nil {
		return err
	}

	if count <= ts.maxRecords {
		return nil
	}

	_, err := tx.Exec(`
		DELETE FROM transmissions
		WHERE id IN (
			SELECT id FROM transmissions
			ORDER BY timestamp ASC, id ASC
			LIMIT ?
		)
	`, count-ts.maxRecords)
	if err != nil {
		return err
	}

	_, err = tx.Exec("UPDATE transmission_stats SET last_cleanup = CURRENT_TIMESTAMP WHERE id = 1")
	return err
}

// Close closes the database connection
func (ts *TransmissionStore) Close() error {
	if ts.db != nil {
		return ts.db.Close()
	}
	return nil
}
