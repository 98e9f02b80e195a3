package attendance

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presenza-app/backend/internal/models"
)

func submitRouter(v *Validator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/validate", NewHandler(v, nil).Submit)
	return r
}

func doSubmit(t *testing.T, r *gin.Engine, body any) (*httptest.ResponseRecorder, Result) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var res Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return w, res
}

func TestSubmitAccepted(t *testing.T) {
	session := activeSession("Tok123XYZ0")
	sessions := &fakeSessions{byToken: map[string]*models.TokenSession{session.Token: session}}
	v := newTestValidator(rosterWith("2410080001"), sessions, &fakeRecords{}, nil, false)
	r := submitRouter(v)

	w, res := doSubmit(t, r, gin.H{"token": "Tok123XYZ0", "student_id": "2410080001"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, res.Accepted)
	assert.Equal(t, "Student 2410080001", res.StudentName)
}

func TestSubmitRejectionIsBadRequest(t *testing.T) {
	v := newTestValidator(rosterWith("2410080001"), &fakeSessions{}, &fakeRecords{}, nil, false)
	r := submitRouter(v)

	w, res := doSubmit(t, r, gin.H{"token": "NoSuchTokn", "student_id": "2410080001"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, res.Accepted)
	assert.Equal(t, KindInvalidToken, res.Kind)
}

func TestSubmitMissingFields(t *testing.T) {
	v := newTestValidator(rosterWith(), &fakeSessions{}, &fakeRecords{}, nil, false)
	r := submitRouter(v)

	w, res := doSubmit(t, r, gin.H{"student_id": "2410080001"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, KindInvalidInput, res.Kind)
}

func TestSubmitStoreOutageIs503(t *testing.T) {
	roster := &fakeRoster{err: assert.AnError}
	v := newTestValidator(roster, &fakeSessions{}, &fakeRecords{}, nil, false)
	r := submitRouter(v)

	w, res := doSubmit(t, r, gin.H{"token": "Tok123XYZ0", "student_id": "2410080001"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, KindStoreUnavailable, res.Kind)
}

// The handler passes request metadata through to the stored record.
func TestSubmitCapturesRequestMetadata(t *testing.T) {
	session := activeSession("Tok123XYZ0")
	sessions := &fakeSessions{byToken: map[string]*models.TokenSession{session.Token: session}}
	records := &fakeRecords{}
	v := newTestValidator(rosterWith("2410080001"), sessions, records, nil, false)
	r := submitRouter(v)

	_, res := doSubmit(t, r, gin.H{"token": "Tok123XYZ0", "student_id": "2410080001"})
	require.True(t, res.Accepted)
	require.Len(t, records.created, 1)
	assert.Equal(t, "test-agent", records.created[0].UserAgent)
	assert.NotEmpty(t, records.created[0].IPAddress)
}
