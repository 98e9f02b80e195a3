package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presenza-app/backend/config"
)

type fakeSessionStore struct {
	expiredFlipped int64
	expireErr      error
	seenNow        time.Time

	purgeable  []uuid.UUID
	seenCutoff time.Time
	seenLimit  int
	listErr    error

	deletedIDs []uuid.UUID
	deleteErr  error
}

func (f *fakeSessionStore) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	f.seenNow = now
	if f.expireErr != nil {
		return 0, f.expireErr
	}
	return f.expiredFlipped, nil
}

func (f *fakeSessionStore) ListPurgeable(_ context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	f.seenCutoff = cutoff
	f.seenLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	if limit < len(f.purgeable) {
		return f.purgeable[:limit], nil
	}
	return f.purgeable, nil
}

func (f *fakeSessionStore) DeleteByIDs(_ context.Context, ids []uuid.UUID) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deletedIDs = append(f.deletedIDs, ids...)
	return int64(len(ids)), nil
}

type fakeRecordStore struct {
	deletedSessions []uuid.UUID
	err             error
}

func (f *fakeRecordStore) DeleteBySessions(_ context.Context, sessionIDs []uuid.UUID) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.deletedSessions = append(f.deletedSessions, sessionIDs...)
	return int64(len(sessionIDs)), nil
}

func retentionCfg() config.RetentionConfig {
	return config.RetentionConfig{
		Horizon:        90 * 24 * time.Hour,
		PurgeBatchSize: 500,
		KeepAttendance: true,
	}
}

func newTestSweeper(sessions *fakeSessionStore, records *fakeRecordStore, cfg config.RetentionConfig, now time.Time) *Sweeper {
	s := New(sessions, records, cfg, time.Second, nil)
	s.now = func() time.Time { return now }
	return s
}

func TestRunExpiryPass(t *testing.T) {
	now := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
	sessions := &fakeSessionStore{expiredFlipped: 3}
	s := newTestSweeper(sessions, &fakeRecordStore{}, retentionCfg(), now)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, now, sessions.seenNow)
}

func TestRunPurgeCutoff(t *testing.T) {
	now := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
	sessions := &fakeSessionStore{}
	s := newTestSweeper(sessions, &fakeRecordStore{}, retentionCfg(), now)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, now.Add(-90*24*time.Hour), sessions.seenCutoff)
	assert.Equal(t, 500, sessions.seenLimit)
}

func TestRunNothingToPurge(t *testing.T) {
	sessions := &fakeSessionStore{}
	records := &fakeRecordStore{}
	s := newTestSweeper(sessions, records, retentionCfg(), time.Now())

	require.NoError(t, s.Run(context.Background()))
	assert.Empty(t, sessions.deletedIDs)
	assert.Empty(t, records.deletedSessions)
}

func TestRunPurgeKeepsAttendance(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	sessions := &fakeSessionStore{purgeable: ids}
	records := &fakeRecordStore{}
	s := newTestSweeper(sessions, records, retentionCfg(), time.Now())

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, ids, sessions.deletedIDs)
	assert.Empty(t, records.deletedSessions, "records survive the session purge")
}

func TestRunPurgeDeletesAttendance(t *testing.T) {
	cfg := retentionCfg()
	cfg.KeepAttendance = false
	ids := []uuid.UUID{uuid.New()}
	sessions := &fakeSessionStore{purgeable: ids}
	records := &fakeRecordStore{}
	s := newTestSweeper(sessions, records, cfg, time.Now())

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, ids, records.deletedSessions)
	assert.Equal(t, ids, sessions.deletedIDs)
}

func TestRunPurgeBatchCap(t *testing.T) {
	cfg := retentionCfg()
	cfg.PurgeBatchSize = 2
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	sessions := &fakeSessionStore{purgeable: ids}
	s := newTestSweeper(sessions, &fakeRecordStore{}, cfg, time.Now())

	require.NoError(t, s.Run(context.Background()))
	assert.Len(t, sessions.deletedIDs, 2, "one run deletes at most one batch")
}

func TestRunExpiryErrorStopsPurge(t *testing.T) {
	sessions := &fakeSessionStore{
		expireErr: errors.New("timeout"),
		purgeable: []uuid.UUID{uuid.New()},
	}
	s := newTestSweeper(sessions, &fakeRecordStore{}, retentionCfg(), time.Now())

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, sessions.deletedIDs)
}

// Sessions are not deleted when the record delete fails; the next run retries
// both.
func TestRunRecordDeleteFailureKeepsSessions(t *testing.T) {
	cfg := retentionCfg()
	cfg.KeepAttendance = false
	sessions := &fakeSessionStore{purgeable: []uuid.UUID{uuid.New()}}
	records := &fakeRecordStore{err: errors.New("timeout")}
	s := newTestSweeper(sessions, records, cfg, time.Now())

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, sessions.deletedIDs)
}
