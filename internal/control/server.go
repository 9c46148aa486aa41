package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/samarkanov/airflow-smolagents/internal/config"
	"github.com/samarkanov/airflow-smolagents/internal/model"
)

// Server is the HTTP face of a Controller.
type Server struct {
	Controller *Controller
	Log        zerolog.Logger

	// ctx bounds runs started through the API; requests only start them.
	ctx    context.Context
	engine *gin.Engine
}

// NewServer builds the gin engine. ctx bounds runs started through the API.
func NewServer(ctx context.Context, ctrl *Controller, log zerolog.Logger) *Server {
	s := &Server{
		Controller: ctrl,
		Log:        log,
		ctx:        ctx,
		engine:     gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")
	api.POST("/runs", s.postRun)
	api.GET("/runs/latest", s.getLatestRun)
	api.POST("/validate", s.postValidate)
	api.POST("/rescan", s.postRescan)
	api.GET("/health", s.getHealth)

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.Log.Info().Str("addr", addr).Msg("control server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runRequest is the body of POST /api/runs and POST /api/validate. Every field
// is optional and overrides the configured value.
type runRequest struct {
	Tickers    []string `json:"tickers"`
	Window     *int     `json:"window"`
	SourceURL  string   `json:"source_url"`
	OutputPath string   `json:"output_path"`
	Wait       bool     `json:"wait"`
}

func (r runRequest) proposal() config.Pipeline {
	p := config.Pipeline{Tickers: r.Tickers, SourceURL: r.SourceURL, OutputPath: r.OutputPath}
	if r.Window != nil {
		p.Window = *r.Window
		p.WindowSet = true
	}
	return p
}

func bindRequest(c *gin.Context) (runRequest, bool) {
	var req runRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	return req, true
}

func (s *Server) postRun(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}

	var (
		st  model.RunStatus
		err error
	)
	if req.Wait {
		st, err = s.Controller.Trigger(c.Request.Context(), model.TriggerAPI, req.proposal())
	} else {
		st, err = s.Controller.Start(s.ctx, model.TriggerAPI, req.proposal())
	}

	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid configuration", "problems": verr.Problems})
	case errors.Is(err, ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case req.Wait:
		c.JSON(http.StatusOK, st)
	default:
		c.JSON(http.StatusAccepted, st)
	}
}

func (s *Server) getLatestRun(c *gin.Context) {
	st, ok, err := s.Controller.Status()
	switch {
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case !ok:
		c.JSON(http.StatusNotFound, gin.H{"error": "no runs yet"})
	default:
		c.JSON(http.StatusOK, st)
	}
}

func (s *Server) postValidate(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}
	problems := s.Controller.Validate(req.proposal())
	if problems == nil {
		problems = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"valid": len(problems) == 0, "problems": problems})
}

func (s *Server) postRescan(c *gin.Context) {
	res, err := s.Controller.Rescan(s.ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "fingerprint": res.Fingerprint})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, res)
	}
}

func (s *Server) getHealth(c *gin.Context) {
	st, ok, _ := s.Controller.Status()
	resp := gin.H{"status": "ok"}
	if ok {
		resp["last_run"] = st.ID
		resp["last_state"] = st.State
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}
