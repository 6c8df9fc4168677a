package archive

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evboard/internal/event"
	"evboard/internal/model"
)

func rec(id, name string) model.Event {
	return model.Event{ID: id, Name: name, StartedAt: 1700000000, EndedAt: 1700086400}
}

func TestMergeArchiveNewOverridesOld(t *testing.T) {
	old := []model.Event{rec("2", "old"), rec("3", "three")}
	fresh := []model.Event{rec("1", "one"), rec("2.0", "new")}

	got := event.Index(MergeArchive(old, fresh))
	require.Len(t, got, 3)
	assert.Equal(t, "new", got["2"].Name)
	assert.Equal(t, "three", got["3"].Name)
	assert.Equal(t, "one", got["1"].Name)
}

func TestMergeArchiveDropsInvalidIDs(t *testing.T) {
	got := MergeArchive([]model.Event{rec(" ", "blank")}, []model.Event{rec("5", "five")})
	require.Len(t, got, 1)
	assert.Equal(t, "5", got[0].ID)
}

func newMemStore(t *testing.T) (*FileStore, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return NewFileStore(fs, "/archive/events.csv", "/archive/log.txt"), fs
}

func TestUpdaterWritesSnapshotAndLog(t *testing.T) {
	store, fs := newMemStore(t)
	ctx := context.Background()

	seed, err := MarshalCSV([]model.Event{rec("2", "old"), rec("3", "three")})
	require.NoError(t, err)
	require.NoError(t, store.WriteArchive(ctx, seed))

	u := NewUpdater(store, time.UTC)
	u.now = func() time.Time { return time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC) }

	res, err := u.Update(ctx, []model.Event{rec("1", "one"), rec("2", "new")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.OldTotal)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Added)
	assert.NotEmpty(t, res.RunID)

	data, err := store.ReadArchive(ctx)
	require.NoError(t, err)
	events, _, err := ParseCSV(data)
	require.NoError(t, err)
	assert.Equal(t, "new", event.Index(events)["2"].Name)

	logData, err := afero.ReadFile(fs, "/archive/log.txt")
	require.NoError(t, err)
	assert.Equal(t, "2026/10/01 09:30:00 added=1 total=3 run="+res.RunID+"\n", string(logData))
}

func TestUpdaterStartsFromMissingArchiveAndAppendsLog(t *testing.T) {
	store, fs := newMemStore(t)
	u := NewUpdater(store, time.UTC)

	_, err := u.Update(context.Background(), []model.Event{rec("1", "one")})
	require.NoError(t, err)
	res, err := u.Update(context.Background(), []model.Event{rec("1", "one again")})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Added)

	logData, err := afero.ReadFile(fs, "/archive/log.txt")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(logData)), "\n"), 2)
}

func TestUpdaterReportsNegativeAddedAsIs(t *testing.T) {
	// The stored archive has a duplicate row and a row without an id, so the
	// merged snapshot is smaller than the old row count.
	stub := &stubStore{read: []byte("event_id,started_at,ended_at\n7,1,2\n7,1,2\n8,1,2\n,1,2\n")}
	u := NewUpdater(stub, time.UTC)
	u.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	res, err := u.Update(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.OldTotal)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, -2, res.Added)
	require.Len(t, stub.lines, 1)
	assert.Equal(t, "2026/01/02 03:04:05 added=-2 total=2 run="+res.RunID+"\n", stub.lines[0])
}

func TestUpdaterLogFailureLeavesArchiveWritten(t *testing.T) {
	stub := &stubStore{readErr: ErrNotFound, logErr: errors.New("disk full")}
	u := NewUpdater(stub, time.UTC)

	_, err := u.Update(context.Background(), []model.Event{rec("1", "one")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit log")
	assert.NotEmpty(t, stub.written)
}

func TestUpdaterWriteFailureIsSurfaced(t *testing.T) {
	stub := &stubStore{readErr: ErrNotFound, writeErr: errors.New("permission denied")}
	u := NewUpdater(stub, time.UTC)

	_, err := u.Update(context.Background(), []model.Event{rec("1", "one")})
	require.Error(t, err)
	assert.Empty(t, stub.lines)
}

type stubStore struct {
	read     []byte
	readErr  error
	writeErr error
	logErr   error
	written  []byte
	lines    []string
}

func (s *stubStore) Name() string { return "stub" }

func (s *stubStore) ReadArchive(context.Context) ([]byte, error) { return s.read, s.readErr }

func (s *stubStore) WriteArchive(_ context.Context, data []byte) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written = data
	return nil
}

func (s *stubStore) AppendLog(_ context.Context, line string) error {
	if s.logErr != nil {
		return s.logErr
	}
	s.lines = append(s.lines, line)
	return nil
}
