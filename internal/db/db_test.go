package db

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/speckle/internal/telemetry"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestNewDB_AppliesMigrations(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
	assert.Equal(t, ":memory:", db.Path())
}

func TestNewDB_FileReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speckle.db")

	db, err := NewDB(path)
	require.NoError(t, err)
	s, err := db.CreateSession("/dev/ttyACM0", "", time.Unix(100, 0))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Session(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", got.Source)
}

func TestMigrateDown(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.MigrateDown())
	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, db.MigrateUp())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s, err := db.CreateSession("replay.log", "finger on sensor", start)
	require.NoError(t, err)
	assert.Len(t, s.ID, 36)

	recs := []telemetry.Record{{T: 0, KFilt: 0.01}, {T: 0.04, KFilt: -0.02}, {T: 0.08, KFilt: 0.005}}
	require.NoError(t, db.InsertSamples(s.ID, 0, recs, start.Add(time.Second)))
	require.NoError(t, db.InsertSamples(s.ID, 3, []telemetry.Record{{T: 0.12, KFilt: 0.0}}, start.Add(2*time.Second)))
	require.NoError(t, db.InsertSamples(s.ID, 4, nil, start))

	require.NoError(t, db.EndSession(s.ID, start.Add(time.Minute), 10, 2))

	got, err := db.Session(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "finger on sensor", got.Note)
	assert.Equal(t, start, got.StartedAt)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, start.Add(time.Minute), *got.EndedAt)
	assert.Equal(t, int64(10), got.LinesRead)
	assert.Equal(t, int64(2), got.LinesSkipped)
	assert.Equal(t, int64(4), got.Samples)

	samples, err := db.Samples(s.ID, 0)
	require.NoError(t, err)
	require.Len(t, samples, 4)
	assert.Equal(t, int64(0), samples[0].Seq)
	assert.Equal(t, telemetry.Record{T: 0.04, KFilt: -0.02}, samples[1].Record())
	assert.Equal(t, start.Add(2*time.Second), samples[3].ReceivedAt)
	assert.Equal(t, append(recs, telemetry.Record{T: 0.12, KFilt: 0.0}), Records(samples))

	limited, err := db.Samples(s.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestInsertSamples_DuplicateSeqRollsBack(t *testing.T) {
	db := newTestDB(t)
	s, err := db.CreateSession("a", "", time.Now())
	require.NoError(t, err)

	require.NoError(t, db.InsertSamples(s.ID, 0, []telemetry.Record{{T: 0, KFilt: 1}}, time.Now()))
	err = db.InsertSamples(s.ID, 1, []telemetry.Record{{T: 1, KFilt: 1}, {T: 2, KFilt: 2}}, time.Now())
	require.NoError(t, err)

	// seq 2 already exists, so the whole batch is rejected
	err = db.InsertSamples(s.ID, 2, []telemetry.Record{{T: 3, KFilt: 3}, {T: 4, KFilt: 4}}, time.Now())
	require.Error(t, err)

	samples, err := db.Samples(s.ID, 0)
	require.NoError(t, err)
	assert.Len(t, samples, 3)
}

func TestInsertSamples_UnknownSession(t *testing.T) {
	db := newTestDB(t)
	err := db.InsertSamples("missing", 0, []telemetry.Record{{T: 0, KFilt: 0}}, time.Now())
	assert.Error(t, err, "foreign key must reject samples without a session")
}

func TestSessions_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	base := time.Unix(1000, 0)

	older, err := db.CreateSession("a", "", base)
	require.NoError(t, err)
	newer, err := db.CreateSession("b", "", base.Add(time.Hour))
	require.NoError(t, err)

	list, err := db.Sessions()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)
	assert.Nil(t, list[0].EndedAt)
}

func TestSessions_Empty(t *testing.T) {
	db := newTestDB(t)
	list, err := db.Sessions()
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Session("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.EndSession("nope", time.Now(), 0, 0), ErrNotFound)
	assert.ErrorIs(t, db.DeleteSession("nope"), ErrNotFound)
}

func TestDeleteSession(t *testing.T) {
	db := newTestDB(t)
	s, err := db.CreateSession("a", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, db.InsertSamples(s.ID, 0, []telemetry.Record{{T: 0, KFilt: 0}}, time.Now()))

	require.NoError(t, db.DeleteSession(s.ID))

	_, err = db.Session(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	samples, err := db.Samples(s.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestBackup(t *testing.T) {
	db := newTestDB(t)
	_, err := db.CreateSession("a", "", time.Now())
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "copy.db")
	require.NoError(t, db.Backup(dst))

	copyDB, err := NewDB(dst)
	require.NoError(t, err)
	defer copyDB.Close()
	list, err := copyDB.Sessions()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.Error(t, db.Backup(dst), "VACUUM INTO refuses an existing file")
}

func TestAttachAdminRoutes_Backup(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/backup", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/gzip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "speckle-backup-")

	gz, err := gzip.NewReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("SQLite format 3\x00")))
}

func TestAttachAdminRoutes_Index(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "backup")
	assert.Contains(t, w.Body.String(), "sessions")
}
