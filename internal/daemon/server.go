package daemon

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"cabinet/internal/model"
	"cabinet/internal/repository"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Server struct {
	echo     *echo.Echo
	manager  *JobManager
	jobRepo  *repository.JobRepository
	histRepo *repository.HistoryRepository
	port     int
	stopCh   chan struct{}
}

func NewServer(manager *JobManager, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		manager:  manager,
		jobRepo:  repository.NewJobRepository(),
		histRepo: repository.NewHistoryRepository(),
		port:     port,
		stopCh:   make(chan struct{}, 1),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.HTTPErrorHandler = replyError

	s.echo.GET("/status", s.handleStatus)
	s.echo.POST("/stop", s.handleStop)
	s.echo.GET("/history", s.handleHistory)

	jobs := s.echo.Group("/jobs")
	jobs.GET("", s.handleListJobs)
	jobs.POST("", s.handleAddJob)
	jobs.DELETE("/:id", s.handleRemoveJob)
	jobs.POST("/:id/pause", s.jobAction(s.manager.PauseJob, "paused"))
	jobs.POST("/:id/resume", s.jobAction(s.manager.ResumeJob, "resumed"))
}

// replyError renders every handler error as {"error": msg}.
func replyError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, msg := http.StatusInternalServerError, err.Error()
	if he, ok := errors.AsType[*echo.HTTPError](err); ok {
		code, msg = he.Code, fmt.Sprint(he.Message)
	}
	if err := c.JSON(code, map[string]string{"error": msg}); err != nil {
		c.Logger().Error(err)
	}
}

func jobID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

// jobAction adapts a manager control call on one job to a route.
func (s *Server) jobAction(act func(uint) error, status string) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := jobID(c)
		if err != nil {
			return err
		}

		if err := act(id); err != nil {
			if errors.Is(err, ErrJobNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, err.Error())
			}
			return err
		}
		return c.JSON(http.StatusOK, map[string]string{"status": status})
	}
}

// Handler exposes the routes without a listener.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() {
	go func() {
		addr := "127.0.0.1:" + strconv.Itoa(s.port)
		s.manager.log.Info("daemon server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.manager.log.Error("daemon server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	s.manager.StopAll()
	return s.echo.Shutdown(ctx)
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"jobs": s.manager.Snapshots(),
	})
}

func (s *Server) handleStop(c echo.Context) error {
	signal(s.stopCh)
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleListJobs(c echo.Context) error {
	jobs, err := s.jobRepo.GetAll()
	if err != nil {
		return err
	}

	running := make(map[uint]model.JobSnapshot)
	for _, snap := range s.manager.Snapshots() {
		running[snap.JobID] = snap
	}

	return c.JSON(http.StatusOK, map[string]any{
		"jobs":    jobs,
		"running": running,
	})
}

type addJobRequest struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Preset string `json:"preset"`
}

// handleAddJob saves a job and starts it. A job that fails to start is not
// kept.
func (s *Server) handleAddJob(c echo.Context) error {
	var req addJobRequest
	if err := c.Bind(&req); err != nil || req.Src == "" || req.Dst == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "src and dst required")
	}
	req.Preset = cmp.Or(req.Preset, "default")
	if _, err := s.manager.cfg.SyncPreset(req.Preset); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	paths := [2]string{req.Src, req.Dst}
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		paths[i] = abs
	}

	job, err := s.jobRepo.Add(paths[0], paths[1], req.Preset)
	if err != nil {
		return err
	}
	if err := s.manager.StartJob(job); err != nil {
		_ = s.jobRepo.Delete(job.ID)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusCreated, job)
}

func (s *Server) handleRemoveJob(c echo.Context) error {
	id, err := jobID(c)
	if err != nil {
		return err
	}

	// A stored job that is not running is still deleted.
	_ = s.manager.StopJob(id)
	if err := s.jobRepo.Delete(id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleHistory(c echo.Context) error {
	n := 20
	_ = echo.QueryParamsBinder(c).Int("n", &n).BindError()

	histories, err := s.histRepo.GetRecent(max(n, 1))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, histories)
}
