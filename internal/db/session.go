package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/speckle/internal/telemetry"
)

// Session is one recording run.
type Session struct {
	ID           string     `json:"id"`
	Source       string     `json:"source"` // serial port path or replay file
	Note         string     `json:"note,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	LinesRead    int64      `json:"lines_read"`
	LinesSkipped int64      `json:"lines_skipped"`
	Samples      int64      `json:"samples"`
}

// Sample is one stored telemetry record.
type Sample struct {
	Seq        int64     `json:"seq"`
	T          float64   `json:"time_s"`
	KFilt      float64   `json:"k_filt"`
	ReceivedAt time.Time `json:"received_at"`
}

// Record converts s back to a telemetry record.
func (s Sample) Record() telemetry.Record {
	return telemetry.Record{T: s.T, KFilt: s.KFilt}
}

// Records converts stored samples back into telemetry records, in order.
func Records(samples []Sample) []telemetry.Record {
	recs := make([]telemetry.Record, len(samples))
	for i, smp := range samples {
		recs[i] = smp.Record()
	}
	return recs
}

// CreateSession starts a new session with a fresh ID.
func (db *DB) CreateSession(source, note string, startedAt time.Time) (Session, error) {
	s := Session{
		ID:        uuid.NewString(),
		Source:    source,
		Note:      note,
		StartedAt: startedAt.UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, source, note, started_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.Source, s.Note, s.StartedAt.UnixNano(),
	)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// EndSession stamps the end time and the final line counters.
func (db *DB) EndSession(id string, endedAt time.Time, linesRead, linesSkipped int64) error {
	res, err := db.Exec(
		`UPDATE sessions SET ended_at = ?, lines_read = ?, lines_skipped = ? WHERE session_id = ?`,
		endedAt.UTC().UnixNano(), linesRead, linesSkipped, id,
	)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrNotFound)
	}
	return nil
}

// InsertSamples appends records to a session in one transaction. Sequence
// numbers continue from firstSeq.
func (db *DB) InsertSamples(id string, firstSeq int64, recs []telemetry.Record, receivedAt time.Time) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO samples (session_id, seq, time_s, k_filt, received_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	at := receivedAt.UTC().UnixNano()
	for i, r := range recs {
		if _, err := stmt.Exec(id, firstSeq+int64(i), r.T, r.KFilt, at); err != nil {
			return fmt.Errorf("insert sample %d: %w", firstSeq+int64(i), err)
		}
	}
	return tx.Commit()
}

const sessionColumns = `s.session_id, s.source, s.note, s.started_at, s.ended_at, s.lines_read, s.lines_skipped,
	(SELECT COUNT(*) FROM samples WHERE samples.session_id = s.session_id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		s       Session
		started int64
		ended   sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Source, &s.Note, &started, &ended, &s.LinesRead, &s.LinesSkipped, &s.Samples); err != nil {
		return Session{}, err
	}
	s.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		s.EndedAt = &t
	}
	return s, nil
}

// Sessions lists sessions, newest first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(`SELECT ` + sessionColumns + ` FROM sessions s ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Session returns one session by ID.
func (db *DB) Session(id string) (Session, error) {
	s, err := scanSession(db.QueryRow(`SELECT `+sessionColumns+` FROM sessions s WHERE s.session_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("session %s: %w", id, err)
	}
	return s, nil
}

// Samples returns a session's samples in sequence order. A limit of zero
// returns all of them.
func (db *DB) Samples(id string, limit int) ([]Sample, error) {
	q := `SELECT seq, time_s, k_filt, received_at FROM samples WHERE session_id = ? ORDER BY seq`
	args := []any{id}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("samples %s: %w", id, err)
	}
	defer rows.Close()

	samples := []Sample{}
	for rows.Next() {
		var (
			s  Sample
			at int64
		)
		if err := rows.Scan(&s.Seq, &s.T, &s.KFilt, &at); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		s.ReceivedAt = time.Unix(0, at).UTC()
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// DeleteSession removes a session and its samples.
func (db *DB) DeleteSession(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM samples WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete samples: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}
