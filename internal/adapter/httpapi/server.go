// Package httpapi exposes a small read-only status API over the run
// history and the active schedule.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"reportd/internal/shared"
	"reportd/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ReadStore is the slice of the run store the API needs.
type ReadStore interface {
	Latest(ctx context.Context) (store.Run, error)
	List(ctx context.Context, limit int) ([]store.Run, error)
}

// ScheduleInfo describes the active job schedule.
type ScheduleInfo struct {
	Spec     string    `json:"spec"`
	Timezone string    `json:"timezone"`
	Mode     string    `json:"mode"`
	NextFire time.Time `json:"next_fire"`
}

// ScheduleFunc reports the current schedule state.
type ScheduleFunc func() (ScheduleInfo, error)

// Server serves the status API.
type Server struct {
	store    ReadStore
	schedule ScheduleFunc
	log      *slog.Logger
}

// New creates a status API server.
func New(st ReadStore, schedule ScheduleFunc, log *slog.Logger) *Server {
	return &Server{store: st, schedule: schedule, log: log}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)
	api := r.Group("/api")
	{
		api.GET("/runs", s.handleRuns)
		api.GET("/runs/latest", s.handleLatestRun)
		api.GET("/schedule", s.handleSchedule)
	}
	return r
}

// Run serves the API on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.log.Info("status api listening", slog.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleRuns(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	runs, err := s.store.List(c.Request.Context(), limit)
	if err != nil {
		s.log.Error("list runs", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func (s *Server) handleLatestRun(c *gin.Context) {
	run, err := s.store.Latest(c.Request.Context())
	if err != nil {
		if shared.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no runs recorded"})
			return
		}
		s.log.Error("latest run", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, toRunResponse(run))
}

func (s *Server) handleSchedule(c *gin.Context) {
	info, err := s.schedule()
	if err != nil {
		s.log.Error("schedule info", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, info)
}

type runResponse struct {
	ID         string     `json:"id"`
	Job        string     `json:"job"`
	Mode       string     `json:"mode"`
	Trigger    string     `json:"trigger"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	FailedStep *string    `json:"failed_step,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Error      *string    `json:"error,omitempty"`
}

func toRunResponse(run store.Run) runResponse {
	return runResponse{
		ID:         run.ID,
		Job:        run.Job,
		Mode:       run.Mode,
		Trigger:    run.Trigger,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Status:     run.Status,
		FailedStep: run.FailedStep,
		ExitCode:   run.ExitCode,
		Error:      run.Error,
	}
}
