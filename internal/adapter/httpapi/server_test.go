package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportd/internal/shared"
	"reportd/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStore struct {
	runs      []store.Run
	listErr   error
	lastLimit int
}

func (f *fakeStore) Latest(ctx context.Context) (store.Run, error) {
	if f.listErr != nil {
		return store.Run{}, f.listErr
	}
	if len(f.runs) == 0 {
		return store.Run{}, fmt.Errorf("%w: no runs recorded", shared.ErrNotFound)
	}
	return f.runs[0], nil
}

func (f *fakeStore) List(ctx context.Context, limit int) ([]store.Run, error) {
	f.lastLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	if limit > len(f.runs) {
		limit = len(f.runs)
	}
	return f.runs[:limit], nil
}

func staticSchedule(info ScheduleInfo) ScheduleFunc {
	return func() (ScheduleInfo, error) { return info, nil }
}

func newTestServer(st ReadStore, schedule ScheduleFunc) *Server {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	return New(st, schedule, log)
}

func doRequest(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func sampleRun(status string) store.Run {
	run := store.NewRun("weekly-report", "native", store.TriggerSchedule,
		time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	run.Status = status
	return run
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&fakeStore{}, staticSchedule(ScheduleInfo{}))

	w := doRequest(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRuns(t *testing.T) {
	st := &fakeStore{runs: []store.Run{sampleRun(store.StatusSuccess), sampleRun(store.StatusFailure)}}
	s := newTestServer(st, staticSchedule(ScheduleInfo{}))

	w := doRequest(t, s, "/api/runs")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Runs []runResponse `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Runs, 2)
	assert.Equal(t, "weekly-report", body.Runs[0].Job)
	assert.Equal(t, defaultListLimit, st.lastLimit)
}

func TestRuns_LimitParam(t *testing.T) {
	st := &fakeStore{runs: []store.Run{sampleRun(store.StatusSuccess)}}
	s := newTestServer(st, staticSchedule(ScheduleInfo{}))

	w := doRequest(t, s, "/api/runs?limit=5")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, st.lastLimit)

	w = doRequest(t, s, "/api/runs?limit=100000")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxListLimit, st.lastLimit, "limit is capped")

	w = doRequest(t, s, "/api/runs?limit=bogus")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, s, "/api/runs?limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRuns_StoreError(t *testing.T) {
	s := newTestServer(&fakeStore{listErr: errors.New("db gone")}, staticSchedule(ScheduleInfo{}))

	w := doRequest(t, s, "/api/runs")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db gone", "internal details stay out of responses")
}

func TestLatestRun(t *testing.T) {
	failedStep := "install-deps"
	run := sampleRun(store.StatusFailure)
	run.FailedStep = &failedStep

	s := newTestServer(&fakeStore{runs: []store.Run{run}}, staticSchedule(ScheduleInfo{}))

	w := doRequest(t, s, "/api/runs/latest")
	require.Equal(t, http.StatusOK, w.Code)

	var got runResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, run.ID, got.ID)
	require.NotNil(t, got.FailedStep)
	assert.Equal(t, "install-deps", *got.FailedStep)
}

func TestLatestRun_Empty(t *testing.T) {
	s := newTestServer(&fakeStore{}, staticSchedule(ScheduleInfo{}))

	w := doRequest(t, s, "/api/runs/latest")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSchedule(t *testing.T) {
	next := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	s := newTestServer(&fakeStore{}, staticSchedule(ScheduleInfo{
		Spec:     "0 8 * * 1",
		Timezone: "UTC",
		Mode:     "native",
		NextFire: next,
	}))

	w := doRequest(t, s, "/api/schedule")
	require.Equal(t, http.StatusOK, w.Code)

	var got ScheduleInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "0 8 * * 1", got.Spec)
	assert.Equal(t, "native", got.Mode)
	assert.True(t, got.NextFire.Equal(next))
}

func TestSchedule_Error(t *testing.T) {
	s := newTestServer(&fakeStore{}, func() (ScheduleInfo, error) {
		return ScheduleInfo{}, errors.New("not started")
	})

	w := doRequest(t, s, "/api/schedule")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
