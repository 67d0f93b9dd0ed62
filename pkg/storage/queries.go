package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Transmission is one stored session
type Transmission struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Capcode      int       `json:"capcode"`
	Type         string    `json:"type"`
	Bitrate      int       `json:"bitrate"`
	Charset      string    `json:"charset"`
	Function     string    `json:"function"`
	DateTime     string    `json:"datetime"`
	Body         string    `json:"body"`
	FrequencyHz  int64     `json:"frequency_hz"`
	GainRF       int       `json:"gain_rf"`
	BandwidthKHz float64   `json:"bandwidth_khz"`
	Amplifier    bool      `json:"amplifier"`
	Success      bool      `json:"success"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Error        string    `json:"error,omitempty"`
	Samples      int       `json:"samples"`
	AirTimeMs    int64     `json:"air_time_ms"`
	DurationMs   int64     `json:"duration_ms"`
}

// Outcome filters by result
type Outcome string

const (
	OutcomeAny     Outcome = ""
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// TransmissionQuery represents query parameters for retrieving history
type TransmissionQuery struct {
	Limit   int
	Offset  int
	Since   *time.Time
	Until   *time.Time
	Capcode *int
	Outcome Outcome
	Search  string
}

// CapcodeSummary aggregates the sessions sent to one capcode
type CapcodeSummary struct {
	Capcode  int       `json:"capcode"`
	LastID   int64     `json:"last_id"`
	LastTime time.Time `json:"last_time"`
	LastBody string    `json:"last_body"`
	Total    int       `json:"total"`
	Failed   int       `json:"failed"`
}

// TransmissionStats are the lifetime counters
type TransmissionStats struct {
	Total       int           `json:"total"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	AirTime     time.Duration `json:"air_time"`
	Stored      int           `json:"stored"`
	LastCleanup time.Time     `json:"last_cleanup"`
}

const transmissionColumns = `
	id, timestamp, capcode, message_type, bitrate, charset, function_code,
	datetime_position, body, frequency_hz, gain_rf, bandwidth_khz, amplifier,
	success, error_kind, error_text, samples, air_time_ms, duration_ms
`

func scanTransmission(scanner interface{ Scan(...interface{}) error }) (Transmission, error) {
	var t Transmission
	err := scanner.Scan(
		&t.ID, &t.Timestamp, &t.Capcode, &t.Type, &t.Bitrate, &t.Charset, &t.Function,
		&t.DateTime, &t.Body, &t.FrequencyHz, &t.GainRF, &t.BandwidthKHz, &t.Amplifier,
		&t.Success, &t.ErrorKind, &t.Error, &t.Samples, &t.AirTimeMs, &t.DurationMs,
	)
	return t, err
}

// GetTransmissions retrieves history newest first
func (ts *TransmissionStore) GetTransmissions(query TransmissionQuery) ([]Transmission, error) {
	var args []interface{}
	var conditions []string

	sqlQuery := "SELECT " + transmissionColumns + " FROM transmissions WHERE 1=1"

	if query.Since != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, query.Since.UTC())
	}

	if query.Until != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, query.Until.UTC())
	}

	if query.Capcode != nil {
		conditions = append(conditions, "capcode = ?")
		args = append(args, *query.Capcode)
	}

	switch query.Outcome {
	case OutcomeSuccess:
		conditions = append(conditions, "success = TRUE")
	case OutcomeFailed:
		conditions = append(conditions, "success = FALSE")
	case OutcomeAny:
	default:
		return nil, fmt.Errorf("unknown outcome %q", query.Outcome)
	}

	if query.Search != "" {
		conditions = append(conditions, "body LIKE ?")
		args = append(args, "%"+query.Search+"%")
	}

	for _, condition := range conditions {
		sqlQuery += " AND " + condition
	}

	sqlQuery += " ORDER BY timestamp DESC, id DESC"

	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)

		if query.Offset > 0 {
			sqlQuery += " OFFSET ?"
			args = append(args, query.Offset)
		}
	}

	rows, err := ts.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transmissions: %w", err)
	}
	defer rows.Close()

	var transmissions []Transmission
	for rows.Next() {
		t, err := scanTransmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transmission: %w", err)
		}
		transmissions = append(transmissions, t)
	}

	return transmissions, rows.Err()
}

// GetRecentTransmissions retrieves the most recent sessions
func (ts *TransmissionStore) GetRecentTransmissions(limit int) ([]Transmission, error) {
	return ts.GetTransmissions(TransmissionQuery{Limit: limit})
}

// GetTransmission retrieves one session by ID
func (ts *TransmissionStore) GetTransmission(id int64) (*Transmission, error) {
	row := ts.db.QueryRow("SELECT "+transmissionColumns+" FROM transmissions WHERE id = ?", id)
	t, err := scanTransmission(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transmission %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transmission: %w", err)
	}
	return &t, nil
}

// GetCapcodes retrieves per capcode summaries, most recently paged first
func (ts *TransmissionStore) GetCapcodes(limit int) ([]CapcodeSummary, error) {
	query := `
		SELECT c.capcode, c.last_transmission_id, c.last_time, c.total, c.failed, t.body
		FROM capcodes c
		LEFT JOIN transmissions t ON c.last_transmission_id = t.id
		ORDER BY c.last_time DESC
	`

	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := ts.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query capcodes: %w", err)
	}
	defer rows.Close()

	var summaries []CapcodeSummary
	for rows.Next() {
		var s CapcodeSummary
		var lastID sql.NullInt64
		var lastBody sql.NullString

		if err := rows.Scan(&s.Capcode, &lastID, &s.LastTime, &s.Total, &s.Failed, &lastBody); err != nil {
			return nil, fmt.Errorf("failed to scan capcode: %w", err)
		}
		if lastID.Valid {
			s.LastID = lastID.Int64
		}
		if lastBody.Valid {
			s.LastBody = lastBody.String
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// GetStats retrieves lifetime statistics
func (ts *TransmissionStore) GetStats() (*TransmissionStats, error) {
	var stats TransmissionStats
	var airTimeMs int64
	var lastCleanup sql.NullTime

	err := ts.db.QueryRow(`
		SELECT total, succeeded, failed, air_time_ms, last_cleanup
		FROM transmission_stats WHERE id = 1
	`).Scan(&stats.Total, &stats.Succeeded, &stats.Failed, &airTimeMs, &lastCleanup)
	if err != nil {
		return nil, fmt.Errorf("failed to get transmission stats: %w", err)
	}

	stats.AirTime = time.Duration(airTimeMs) * time.Millisecond
	if lastCleanup.Valid {
		stats.LastCleanup = lastCleanup.Time
	}

	if stats.Stored, err = ts.GetTransmissionCount(); err != nil {
		return nil, fmt.Errorf("failed to count transmissions: %w", err)
	}

	return &stats, nil
}

// GetTransmissionCount returns the number of stored sessions
func (ts *TransmissionStore) GetTransmissionCount() (int, error) {
	var count int
	err := ts.db.QueryRow("SELECT COUNT(*) FROM transmissions").Scan(&count)
	return count, err
}
