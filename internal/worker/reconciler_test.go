package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presenza-app/backend/pkg/queue"
)

type fakeAttendeeWriter struct {
	added []string
	err   error
}

func (f *fakeAttendeeWriter) AddAttendee(_ context.Context, sessionID uuid.UUID, studentID string) error {
	if f.err != nil {
		return f.err
	}
	f.added = append(f.added, sessionID.String()+"|"+studentID)
	return nil
}

func repairJob(t *testing.T, sessionID uuid.UUID, studentID string) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(queue.ConsumerSetRepairPayload{SessionID: sessionID, StudentID: studentID})
	require.NoError(t, err)
	return &queue.Job{
		ID:      uuid.NewString(),
		Type:    queue.JobTypeConsumerSetRepair,
		Payload: payload,
	}
}

func TestProcessRepairsConsumerSet(t *testing.T) {
	sessionID := uuid.New()
	writer := &fakeAttendeeWriter{}
	r := NewReconciler(writer, nil, nil)

	err := r.Process(context.Background(), repairJob(t, sessionID, "2410080001"))
	require.NoError(t, err)
	assert.Equal(t, []string{sessionID.String() + "|2410080001"}, writer.added)
}

func TestProcessUnknownJobType(t *testing.T) {
	r := NewReconciler(&fakeAttendeeWriter{}, nil, nil)

	err := r.Process(context.Background(), &queue.Job{ID: uuid.NewString(), Type: "no_such_type"})
	assert.Error(t, err)
}

func TestProcessBadPayload(t *testing.T) {
	r := NewReconciler(&fakeAttendeeWriter{}, nil, nil)

	err := r.Process(context.Background(), &queue.Job{
		ID:      uuid.NewString(),
		Type:    queue.JobTypeConsumerSetRepair,
		Payload: []byte("{not json"),
	})
	assert.Error(t, err)
}

func TestProcessWriteFailure(t *testing.T) {
	writer := &fakeAttendeeWriter{err: assert.AnError}
	r := NewReconciler(writer, nil, nil)

	err := r.Process(context.Background(), repairJob(t, uuid.New(), "2410080001"))
	assert.Error(t, err)
}
