package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presenza-app/backend/internal/models"
	"github.com/presenza-app/backend/pkg/queue"
)

type fakeRoster struct {
	students map[string]*models.Student
	err      error
}

func (f *fakeRoster) FindByStudentID(_ context.Context, studentID string) (*models.Student, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.students[studentID], nil
}

type fakeSessions struct {
	byToken   map[string]*models.TokenSession
	attendees map[string]bool // sessionID|studentID
	lookupErr error
	addErr    error
	added     []string
}

func attendeeKey(sessionID uuid.UUID, studentID string) string {
	return sessionID.String() + "|" + studentID
}

func (f *fakeSessions) GetByToken(_ context.Context, token string) (*models.TokenSession, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.byToken[token], nil
}

func (f *fakeSessions) HasAttendee(_ context.Context, sessionID uuid.UUID, studentID string) (bool, error) {
	return f.attendees[attendeeKey(sessionID, studentID)], nil
}

func (f *fakeSessions) AddAttendee(_ context.Context, sessionID uuid.UUID, studentID string) error {
	if f.addErr != nil {
		return f.addErr
	}
	if f.attendees == nil {
		f.attendees = make(map[string]bool)
	}
	key := attendeeKey(sessionID, studentID)
	f.attendees[key] = true
	f.added = append(f.added, key)
	return nil
}

type fakeRecords struct {
	byStudentDay map[string]*models.AttendanceRecord // studentID|day
	createErr    error
	created      []*models.AttendanceRecord
}

func recordKey(studentID string, day time.Time) string {
	return studentID + "|" + day.Format("2006-01-02")
}

func (f *fakeRecords) Create(_ context.Context, rec *models.AttendanceRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	rec.ID = uuid.New()
	if f.byStudentDay == nil {
		f.byStudentDay = make(map[string]*models.AttendanceRecord)
	}
	f.byStudentDay[recordKey(rec.StudentID, rec.SessionDate)] = rec
	f.created = append(f.created, rec)
	return nil
}

func (f *fakeRecords) GetByStudentAndDay(_ context.Context, studentID string, day time.Time) (*models.AttendanceRecord, error) {
	return f.byStudentDay[recordKey(studentID, day)], nil
}

type fakeRepairs struct {
	enqueued []queue.ConsumerSetRepairPayload
	err      error
}

func (f *fakeRepairs) EnqueueConsumerSetRepair(_ context.Context, payload queue.ConsumerSetRepairPayload) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, payload)
	return nil
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 12, 10, 30, 0, 0, time.Local)
}

func activeSession(token string) *models.TokenSession {
	now := fixedNow()
	return &models.TokenSession{
		ID:        uuid.New(),
		Token:     token,
		Active:    true,
		Origin:    models.OriginScheduler,
		CreatedAt: now.Add(-10 * time.Second),
		ExpiresAt: now.Add(20 * time.Second),
	}
}

func newTestValidator(roster *fakeRoster, sessions *fakeSessions, records *fakeRecords, repairs *fakeRepairs, acceptRotated bool) *Validator {
	var rp RepairEnqueuer
	if repairs != nil {
		rp = repairs
	}
	v := NewValidator(roster, sessions, records, rp, acceptRotated, nil)
	v.now = fixedNow
	return v
}

func rosterWith(ids ...string) *fakeRoster {
	m := make(map[string]*models.Student, len(ids))
	for _, id := range ids {
		m[id] = &models.Student{StudentID: id, Name: "Student " + id}
	}
	return &fakeRoster{students: m}
}

func TestValidateAccepts(t *testing.T) {
	session := activeSession("Tok123XYZ0")
	sessions := &fakeSessions{byToken: map[string]*models.TokenSession{session.Token: session}}
	records := &fakeRecords{}
	v := newTestValidator(rosterWith("2410080001"), sessions, records, nil, false)

	res := v.Validate(context.Background(), Input{
		Token:     "Tok123XYZ0",
		StudentID: "2410080001",
		IPAddress: "10.0.0.7",
		UserAgent: "test-agent",
	})

	require.True(t, res.Accepted)
	assert.Equal(t, "Student 2410080001", res.StudentName)
	assert.NotEqual(t, uuid.Nil, res.AttendanceID)
	assert.Equal(t, fixedNow(), res.MarkedAt)

	require.Len(t, records.created, 1)
	rec := records.created[0]
	assert.Equal(t, session.ID, rec.SessionID)
	assert.Equal(t, session.Token, rec.Token)
	assert.Equal(t, models.DayBucket(fixedNow()), rec.SessionDate)
	assert.Equal(t, "10.0.0.7", rec.IPAddress)
	assert.Equal(t, "test-agent", rec.UserAgent)
	assert.True(t, sessions.attendees[attendeeKey(session.ID, "2410080001")])
}

func TestValidateEmptyInput(t *testing.T) {
	v := newTestValidator(rosterWith(), &fakeSessions{}, &fakeRecords{}, nil, false)

	res := v.Validate(context.Background(), Input{Token: "  ", StudentID: "2410080001"})
	assert.False(t, res.Accepted)
	assert.Equal(t, KindInvalidInput, res.Kind)

	res = v.Validate(context.Background(), Input{Token: "Tok123XYZ0", StudentID: ""})
	assert.False(t, res.Accepted)
	assert.Equal(t, KindInvalidInput, res.Kind)
}

func TestValidateUnknownStudent(t *testing.T) {
	session := activeSession("Tok123XYZ0")
	sessions := &fakeSessions{byToken: map[string]*models.TokenSession{session.Token: session}}
	v := newTestValidator(rosterWith("2410080001"), sessions, &fakeRecords{}, nil, false)

	res := v.Validate(context.Background(), Input{Token: "Tok123XYZ0", StudentID: "9999999999"})
	assert.False(t, res.Accepted)
	assert.Equal(t, KindUnknownConsumer, res.Kind)
}

func TestValidateUnknownToken(t *testing.T) {
	v := newTestValidator(rosterWith("2410080001"), &fakeSessions{}, &fakeRecords{}, nil, false)

	res := v.Validate(context.Background(), Input{Token: "NoSuchTokn", StudentID: "2410080001"})
	assert.False(t, res.Accepted)
	assert.Equal(t, KindInvalidToken, res.Kind)
}

func TestValidateExpiredToken(t *testing.T) {
	session := activeSession("Tok123XYZ0")
	session.ExpiresAt = fixedNow().Add(-1 * time.Second)
	sessions := &fakeSessions{byToken: map[string]*models.TokenSession{session.Token: session}}
	v := newTestValidator(rosterWith("2410080001"), sessions, &fakeRecords{}, nil, false)

	res := v.Validate(context.Background(), Input{Token: "Tok123XYZ0", StudentID: "2410080001"})
	assert.False(t, res.Accepted)
	assert.Equal(t, KindTokenExpired, res.Kind)
}

// A session exactly at its expiry instant counts as expired.
func TestValidateExpiryBoundary(t *testing.T) {
	session := activeSession("Tok123XYZ0")
	session.ExpiresAt = fixedNow()
	sessions := &fakeSessions{byToken: map[string]*models.TokenSession{session.Token: session}}
	v := newTestValidator(rosterWith("2410080001"), sessions, &fakeRecords{}, nil, false)

	res := v.Validate(context.Background(), Input{Token: "Tok123XYZ0", StudentID: "2410080001"})
	assert.Equal(t, KindTokenExpired, res.Kind)
}

// Expiry is checked before the rotation policy: an expired-and-rotated token
// reports expired even when rotated tokens are accepted.
func TestValidateExpiryWinsOverRotation(t *testing.T) {
	session := activeSession("Tok123XYZ0")
	session.Active = false
	session.ExpiresAt = fixedNow().Add(-5 * time.Second)
	sessions := &fakeSessions{byToken: map[string]*models.TokenSession{session.Token: session}}
	v := newTestValidator(rosterWith("2410080001"), sessions, &fakeRecords{}, nil, true)

	res := v.Validate(context.Background(), Input{Token: "Tok123XYZ0", StudentID: "2410080001"})
	assert.Equal(t, KindTokenExpired, res.Kind)
}

func TestValidateRotatedToken(t *testing.T) {
	session := activeSession("Tok123XYZ0")
	session.Active = false

	t.Run("rejected by default", func(t *testing.T) {
		sessions := &fakeSessions{byToken: map[string]*models.TokenSession{session.Token: session}}
		v := newTestValidator(rosterWith("2410080001"), sessions, &fakeRecords{}, nil, false)

		res := v.Validate(context.Background(), Input{Token: "Tok123XYZ0", StudentID: "2410080001"})
		assert.False(t, res.Accepted)
		assert.Equal(t, KindTokenRotated, res.Kind)
	})

	t.Run("accepted with policy enabled", func(t *testing.T) {
		sessions := &fakeSessions{byToken: map[string]*models.TokenSession{session.Token: session}}
		v := newTestValidator(rosterWith("2410080001"), sessions, &fakeRecords{}, nil, true)

		res := v.Validate(context.Background(), Input{Token: "Tok123XYZ0", StudentID: "2410080001"})
		assert.True(t, res.Accepted)
	})
}

func TestValidateDuplicateForToken(t *testing.T) {
	session := activeSession("Tok123XYZ0")
	sessions := &fakeSessions{
		byToken:   map[string]*models.TokenSession{session.Token: session},
		attendees: map[string]bool{attendeeKey(session.ID, "2410080001"): true},
	}
	v := newTestValidator(rosterWith("2410080001"), sessions, &fakeRecords{}, nil, false)

	res := v.Validate(context.Background(), Input{Token: "Tok123XYZ0", StudentID: "2410080001"})
	assert.False(t, res.Accepted)
	assert.Equal(t, KindDuplicateForToken, res.Kind)
}

func TestValidateDuplicateForDay(t *testing.T) {
	session := activeSession("Tok123XYZ0")
	sessions := &fakeSessions{byToken: map[string]*models.TokenSession{session.Token: session}}
	earlier := fixedNow().Add(-2 * time.Hour)
	records := &fakeRecords{byStudentDay: map[string]*models.AttendanceRecord{
		recordKey("2410080001", models.DayBucket(fixedNow())): {
			StudentID: "2410080001",
			MarkedAt:  earlier,
		},
	}}
	v := newTestValidator(rosterWith("2410080001"), sessions, records, nil, false)

	res := v.Validate(context.Background(), Input{Token: "Tok123XYZ0", StudentID: "2410080001"})
	assert.False(t, res.Accepted)
	assert.Equal(t, KindDuplicateForDay, res.Kind)
	require.NotNil(t, res.ExistingMarkedAt)
	assert.Equal(t, earlier, *res.ExistingMarkedAt)
	assert.Contains(t, res.Message, earlier.Format("15:04:05"))
}

// Two submissions race past the pre-check; the store constraint decides the
// winner and the loser sees the winner's record.
func TestValidateDuplicateDayRace(t *testing.T) {
	session := activeSession("Tok123XYZ0")
	sessions := &fakeSessions{byToken: map[string]*models.TokenSession{session.Token: session}}
	winnerTime := fixedNow().Add(-30 * time.Millisecond)
	records := &fakeRecords{createErr: ErrDuplicateDay}
	// The winner's row is visible by the time the loser re-reads.
	records.byStudentDay = map[string]*models.AttendanceRecord{
		recordKey("2410080001", models.DayBucket(fixedNow())): {
			StudentID: "2410080001",
			MarkedAt:  winnerTime,
		},
	}
	v := newTestValidator(rosterWith("2410080001"), sessions, records, nil, false)
	// Pre-check must miss for the race to reach the insert.
	v.records = &racingRecords{inner: records}

	res := v.Validate(context.Background(), Input{Token: "Tok123XYZ0", StudentID: "2410080001"})
	assert.False(t, res.Accepted)
	assert.Equal(t, KindDuplicateForDay, res.Kind)
	require.NotNil(t, res.ExistingMarkedAt)
	assert.Equal(t, winnerTime, *res.ExistingMarkedAt)
}

// racingRecords reports no existing record on the first lookup, then defers to
// the wrapped store. Simulates the window between pre-check and insert.
type racingRecords struct {
	inner   *fakeRecords
	lookups int
}

func (r *racingRecords) Create(ctx context.Context, rec *models.AttendanceRecord) error {
	return r.inner.Create(ctx, rec)
}

func (r *racingRecords) GetByStudentAndDay(ctx context.Context, studentID string, day time.Time) (*models.AttendanceRecord, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, nil
	}
	return r.inner.GetByStudentAndDay(ctx, studentID, day)
}

func TestValidateRosterUnavailable(t *testing.T) {
	v := newTestValidator(&fakeRoster{err: errors.New("connection refused")}, &fakeSessions{}, &fakeRecords{}, nil, false)

	res := v.Validate(context.Background(), Input{Token: "Tok123XYZ0", StudentID: "2410080001"})
	assert.False(t, res.Accepted)
	assert.Equal(t, KindStoreUnavailable, res.Kind)
}

func TestValidateInsertFailure(t *testing.T) {
	session := activeSession("Tok123XYZ0")
	sessions := &fakeSessions{byToken: map[string]*models.TokenSession{session.Token: session}}
	records := &fakeRecords{createErr: errors.New("connection reset")}
	v := newTestValidator(rosterWith("2410080001"), sessions, records, nil, false)

	res := v.Validate(context.Background(), Input{Token: "Tok123XYZ0", StudentID: "2410080001"})
	assert.False(t, res.Accepted)
	assert.Equal(t, KindStoreUnavailable, res.Kind)
}

// A failed consumer-set append never fails the submission; it schedules a
// repair instead.
func TestValidateConsumerSetRepair(t *testing.T) {
	session := activeSession("Tok123XYZ0")
	sessions := &fakeSessions{
		byToken: map[string]*models.TokenSession{session.Token: session},
		addErr:  errors.New("connection reset"),
	}
	records := &fakeRecords{}
	repairs := &fakeRepairs{}
	v := newTestValidator(rosterWith("2410080001"), sessions, records, repairs, false)

	res := v.Validate(context.Background(), Input{Token: "Tok123XYZ0", StudentID: "2410080001"})
	require.True(t, res.Accepted)
	require.Len(t, records.created, 1)
	require.Len(t, repairs.enqueued, 1)
	assert.Equal(t, session.ID, repairs.enqueued[0].SessionID)
	assert.Equal(t, "2410080001", repairs.enqueued[0].StudentID)
}

// Fallback name from the submission is used only when the roster has none.
func TestValidateNameFallback(t *testing.T) {
	session := activeSession("Tok123XYZ0")
	sessions := &fakeSessions{byToken: map[string]*models.TokenSession{session.Token: session}}
	roster := &fakeRoster{students: map[string]*models.Student{
		"2410080001": {StudentID: "2410080001"},
	}}
	records := &fakeRecords{}
	v := newTestValidator(roster, sessions, records, nil, false)

	res := v.Validate(context.Background(), Input{
		Token:       "Tok123XYZ0",
		StudentID:   "2410080001",
		StudentName: "  Alex Doe ",
	})
	require.True(t, res.Accepted)
	assert.Equal(t, "Alex Doe", res.StudentName)
}
