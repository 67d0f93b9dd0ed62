package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dougsko/pagerd/pkg/pocsag"
	"github.com/dougsko/pagerd/pkg/session"
)

func newTestStore(t *testing.T, maxRecords int) *TransmissionStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := NewTransmissionStore(dbPath, maxRecords)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(capcode int, body string, at time.Time, failure error) session.Record {
	rec := session.Record{
		Time: at,
		Message: session.MessageSpec{
			Capcode:  capcode,
			Type:     pocsag.Alphanumeric,
			Bitrate:  pocsag.BPS1200,
			Charset:  pocsag.Latin,
			Function: pocsag.FunctionD,
			Body:     body,
		},
		Frequency: 439987500,
		GainRF:    47,
		Bandwidth: 25,
		Amplifier: true,
		Success:   failure == nil,
		Samples:   48000,
		AirTime:   time.Second,
		Duration:  1500 * time.Millisecond,
	}
	if failure != nil {
		rec.ErrorKind = session.AcquireFailed.String()
		rec.Error = failure.Error()
		rec.Samples = 0
		rec.AirTime = 0
	}
	return rec
}

func TestNewTransmissionStore(t *testing.T) {
	t.Run("Creates Nested Directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
		store, err := NewTransmissionStore(dbPath, 100)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		defer store.Close()

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("Expected database file to be created")
		}
	})

	t.Run("Tables Created", func(t *testing.T) {
		store := newTestStore(t, 100)
		for _, table := range []string{"transmissions", "capcodes", "transmission_stats"} {
			var name string
			err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
			if err != nil {
				t.Errorf("Expected table %s to exist: %v", table, err)
			}
		}
	})

	t.Run("Stats Row Initialized", func(t *testing.T) {
		store := newTestStore(t, 100)
		stats, err := store.GetStats()
		if err != nil {
			t.Fatalf("Failed to get stats: %v", err)
		}
		if stats.Total != 0 || stats.Stored != 0 {
			t.Errorf("Expected empty stats, got %+v", stats)
		}
	})
}

func TestRecordAndGetTransmissions(t *testing.T) {
	store := newTestStore(t, 100)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []session.Record{
		testRecord(1234567, "first", base, nil),
		testRecord(8, "second", base.Add(time.Minute), nil),
		testRecord(1234567, "third", base.Add(2*time.Minute), errors.New("usb busy")),
	}
	for _, rec := range records {
		if err := store.Record(rec); err != nil {
			t.Fatalf("Failed to record: %v", err)
		}
	}

	all, err := store.GetRecentTransmissions(10)
	if err != nil {
		t.Fatalf("Failed to get transmissions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 transmissions, got %d", len(all))
	}
	if all[0].Body != "third" || all[2].Body != "first" {
		t.Errorf("Expected newest first, got %q .. %q", all[0].Body, all[2].Body)
	}

	first := all[2]
	if first.Capcode != 1234567 || first.Type != "Alphanumeric" || first.Bitrate != 1200 {
		t.Errorf("Unexpected message fields: %+v", first)
	}
	if first.Charset != "Latin" || first.Function != "D" || first.DateTime != "None" {
		t.Errorf("Unexpected option fields: %+v", first)
	}
	if first.FrequencyHz != 439987500 || first.GainRF != 47 || first.BandwidthKHz != 25 || !first.Amplifier {
		t.Errorf("Unexpected tuning fields: %+v", first)
	}
	if !first.Success || first.AirTimeMs != 1000 || first.DurationMs != 1500 {
		t.Errorf("Unexpected outcome fields: %+v", first)
	}
	if !first.Timestamp.Equal(base) {
		t.Errorf("Expected timestamp %v, got %v", base, first.Timestamp)
	}

	failed := all[0]
	if failed.Success || failed.ErrorKind != "acquire_failed" || failed.Error != "usb busy" {
		t.Errorf("Unexpected failure fields: %+v", failed)
	}

	got, err := store.GetTransmission(first.ID)
	if err != nil {
		t.Fatalf("Failed to get transmission by ID: %v", err)
	}
	if got.Body != "first" {
		t.Errorf("Expected body first, got %q", got.Body)
	}

	if _, err := store.GetTransmission(9999); err == nil {
		t.Error("Expected error for missing transmission")
	}
}

func TestTransmissionQueries(t *testing.T) {
	store := newTestStore(t, 100)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, body := range []string{"alpha", "bravo", "charlie", "delta"} {
		var failure error
		if i == 3 {
			failure = errors.New("no device")
		}
		capcode := 100
		if i%2 == 1 {
			capcode = 200
		}
		if err := store.Record(testRecord(capcode, body, base.Add(time.Duration(i)*time.Hour), failure)); err != nil {
			t.Fatalf("Failed to record: %v", err)
		}
	}

	capcode := 200
	since := base.Add(90 * time.Minute)

	tests := []struct {
		name  string
		query TransmissionQuery
		want  []string
	}{
		{"By Capcode", TransmissionQuery{Capcode: &capcode}, []string{"delta", "bravo"}},
		{"Successful", TransmissionQuery{Outcome: OutcomeSuccess}, []string{"charlie", "bravo", "alpha"}},
		{"Failed", TransmissionQuery{Outcome: OutcomeFailed}, []string{"delta"}},
		{"Since", TransmissionQuery{Since: &since}, []string{"delta", "charlie"}},
		{"Search", TransmissionQuery{Search: "rav"}, []string{"bravo"}},
		{"Paged", TransmissionQuery{Limit: 2, Offset: 1}, []string{"charlie", "bravo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.GetTransmissions(tt.query)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			var bodies []string
			for _, tr := range got {
				bodies = append(bodies, tr.Body)
			}
			if len(bodies) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, bodies)
			}
			for i := range bodies {
				if bodies[i] != tt.want[i] {
					t.Errorf("Expected %v, got %v", tt.want, bodies)
					break
				}
			}
		})
	}

	if _, err := store.GetTransmissions(TransmissionQuery{Outcome: "maybe"}); err == nil {
		t.Error("Expected error for unknown outcome")
	}
}

func TestCapcodesAndStats(t *testing.T) {
	store := newTestStore(t, 100)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.Record(testRecord(100, "one", base, nil))
	store.Record(testRecord(100, "two", base.Add(time.Minute), errors.New("boom")))
	store.Record(testRecord(200, "three", base.Add(2*time.Minute), nil))

	capcodes, err := store.GetCapcodes(0)
	if err != nil {
		t.Fatalf("Failed to get capcodes: %v", err)
	}
	if len(capcodes) != 2 {
		t.Fatalf("Expected 2 capcodes, got %d", len(capcodes))
	}
	if capcodes[0].Capcode != 200 {
		t.Errorf("Expected most recent capcode 200 first, got %d", capcodes[0].Capcode)
	}
	if capcodes[1].Total != 2 || capcodes[1].Failed != 1 || capcodes[1].LastBody != "two" {
		t.Errorf("Unexpected summary for capcode 100: %+v", capcodes[1])
	}

	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.Total != 3 || stats.Succeeded != 2 || stats.Failed != 1 || stats.Stored != 3 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.AirTime != 2*time.Second {
		t.Errorf("Expected 2s air time, got %v", stats.AirTime)
	}
}

func TestCleanupKeepsNewest(t *testing.T) {
	store := newTestStore(t, 3)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := store.Record(testRecord(100, string(rune('a'+i)), base.Add(time.Duration(i)*time.Second), nil)); err != nil {
			t.Fatalf("Failed to record: %v", err)
		}
	}

	count, err := store.GetTransmissionCount()
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 stored transmissions, got %d", count)
	}

	oldest, err := store.GetTransmissions(TransmissionQuery{Limit: 1, Offset: 2})
	if err != nil || len(oldest) != 1 {
		t.Fatalf("Failed to get oldest: %v", err)
	}
	if oldest[0].Body != "c" {
		t.Errorf("Expected oldest kept body c, got %q", oldest[0].Body)
	}

	stats, _ := store.GetStats()
	if stats.Total != 5 {
		t.Errorf("Expected lifetime total 5, got %d", stats.Total)
	}
	if stats.LastCleanup.IsZero() {
		t.Error("Expected last cleanup to be set")
	}

	if err := store.CleanupOldRecords(); err != nil {
		t.Errorf("Manual cleanup failed: %v", err)
	}
}
