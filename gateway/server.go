// Package gateway exposes the flow engine over HTTP: conversation start and
// step endpoints for channel adapters, and CRUD for flow definitions.
package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/convoflow/convoflow/actions/buttons"
	"github.com/convoflow/convoflow/actions/httpaction"
	"github.com/convoflow/convoflow/actions/notify"
	"github.com/convoflow/convoflow/actions/schedule"
	"github.com/convoflow/convoflow/actions/sheets"
	"github.com/convoflow/convoflow/actions/transform"
	"github.com/convoflow/convoflow/history"
	"github.com/convoflow/convoflow/hooks"
	"github.com/convoflow/convoflow/runtime"
	"github.com/convoflow/convoflow/store"
)

// Server wires the engine together and serves it over HTTP.
type Server struct {
	cfg       *Config
	l         *slog.Logger
	flows     runtime.FlowStore
	sessions  *runtime.SessionStore
	registry  *runtime.Registry
	orch      *runtime.Orchestrator
	loader    *hooks.Loader
	scheduler *schedule.Scheduler
	closers   []func() error
}

// New builds a Server from configuration: flow store, session store,
// built-in action registry, hook loader, history sink and orchestrator.
func New(cfg *Config, l *slog.Logger) (*Server, error) {
	if l == nil {
		l = slog.Default()
	}

	flows, err := store.NewFileStore(cfg.FlowsDir)
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, l: l, flows: flows}

	s.sessions = runtime.NewSessionStore(cfg.Engine.SessionTTL, cfg.Engine.SweepInterval, l)
	s.closers = append(s.closers, func() error { s.sessions.Close(); return nil })

	registry, err := s.buildRegistry()
	if err != nil {
		return nil, err
	}
	s.registry = registry

	sink, err := s.buildHistory()
	if err != nil {
		return nil, err
	}

	s.loader = hooks.NewLoader(cfg.HooksDir, l)

	executor := runtime.NewActionExecutor(registry, cfg.Engine.ActionTimeout, l)
	opts := []runtime.OrchestratorOption{
		runtime.WithHookSource(s.loader.Source()),
		runtime.WithServices(&runtime.Services{Notifier: &notify.LogNotifier{L: l}}),
	}
	if sink != nil {
		opts = append(opts, runtime.WithHistorySink(sink))
	}
	s.orch = runtime.NewOrchestrator(s.sessions, registry, executor, l, opts...)

	return s, nil
}

func (s *Server) buildRegistry() (*runtime.Registry, error) {
	registry := runtime.NewRegistry(s.l)

	httpActions, err := httpaction.New(s.cfg.HTTP)
	if err != nil {
		return nil, err
	}
	registry.MustRegister(httpActions.Definitions()...)
	registry.MustRegister(transform.Definitions()...)
	registry.MustRegister(notify.Definitions()...)
	registry.MustRegister(buttons.Definitions()...)

	s.scheduler = schedule.NewScheduler(s.l)
	s.closers = append(s.closers, func() error { s.scheduler.Close(); return nil })
	registry.MustRegister(schedule.New(s.scheduler).Definitions()...)

	if s.cfg.Sheets.Enabled {
		sheetActions, err := sheets.New(s.cfg.Sheets.Options)
		if err != nil {
			return nil, err
		}
		registry.MustRegister(sheetActions.Definitions()...)
	}

	s.l.Info("action registry ready", "actions", registry.Names())
	return registry, nil
}

func (s *Server) buildHistory() (runtime.HistorySink, error) {
	switch s.cfg.History.Backend {
	case "file":
		sink, err := history.NewFileSink(s.cfg.History.Path)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, sink.Close)
		return sink, nil
	case "postgres":
		sink, err := history.NewPostgresSink(s.cfg.History.Postgres)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, sink.Close)
		return sink, nil
	default:
		return nil, nil
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	g := gin.New()
	g.Use(gin.Recovery())

	g.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	g.POST("/flows/:name/start", s.startFlow)
	g.POST("/flows/:name/step", s.processStep)

	g.GET("/flows", s.listFlows)
	g.GET("/flows/:name", s.getFlow)
	g.PUT("/flows/:name", s.putFlow)
	g.DELETE("/flows/:name", s.deleteFlow)

	return g
}

// Run serves until the listener fails.
func (s *Server) Run() error {
	s.l.Info("listening", "addr", s.cfg.Listen, "flows_dir", s.cfg.FlowsDir)
	return s.Router().Run(s.cfg.Listen)
}

// Close releases background resources: the session sweeper, pending timers
// and the history sink.
func (s *Server) Close() {
	for _, closer := range s.closers {
		if err := closer(); err != nil {
			s.l.Warn("shutdown", "error", err)
		}
	}
}

type startRequest struct {
	SenderID string `json:"sender_id" binding:"required"`
	Channel  string `json:"channel"`
}

type stepRequest struct {
	SenderID string `json:"sender_id" binding:"required"`
	StepID   string `json:"step_id" binding:"required"`
	Value    string `json:"value"`
}

func (s *Server) startFlow(c *gin.Context) {
	name := c.Param("name")

	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body: " + err.Error()})
		return
	}

	def, ok := s.loadFlow(c, name)
	if !ok {
		return
	}

	reply, err := s.orch.StartFlow(c.Request.Context(), def, runtime.StartParams{
		SenderID: req.SenderID,
		Channel:  req.Channel,
	})
	if err != nil {
		s.l.Error("flow start failed", "flow", name, "sender", req.SenderID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not start flow"})
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (s *Server) processStep(c *gin.Context) {
	name := c.Param("name")

	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body: " + err.Error()})
		return
	}

	def, ok := s.loadFlow(c, name)
	if !ok {
		return
	}

	res, err := s.orch.ProcessStep(c.Request.Context(), def, req.SenderID, req.StepID, req.Value)
	switch {
	case errors.Is(err, runtime.ErrSessionExpired):
		c.JSON(http.StatusGone, gin.H{"message": "This conversation has expired. Please start again."})
		return
	case err != nil:
		var notFound *runtime.StepNotFoundError
		if errors.As(err, &notFound) && res != nil {
			c.JSON(http.StatusConflict, res.Reply)
			return
		}
		s.l.Error("step processing failed",
			"flow", name, "sender", req.SenderID, "step", req.StepID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not process step"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) listFlows(c *gin.Context) {
	defs, err := s.flows.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(defs))
	for _, def := range defs {
		out = append(out, gin.H{"name": def.Name, "version": def.Version, "steps": len(def.Steps)})
	}
	c.JSON(http.StatusOK, gin.H{"flows": out})
}

func (s *Server) getFlow(c *gin.Context) {
	def, ok := s.loadFlow(c, c.Param("name"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) putFlow(c *gin.Context) {
	name := c.Param("name")

	var def runtime.FlowDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid flow definition: " + err.Error()})
		return
	}
	if def.Name == "" {
		def.Name = name
	}
	if def.Name != name {
		c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("definition name %q does not match path %q", def.Name, name)})
		return
	}

	if err := runtime.CheckDefinition(&def); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": err.Error()})
		return
	}
	if err := s.registry.CheckImports(&def); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": err.Error()})
		return
	}

	if err := s.flows.Save(&def); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	s.loader.Invalidate(name)
	c.JSON(http.StatusOK, gin.H{"name": def.Name, "steps": len(def.Steps)})
}

func (s *Server) deleteFlow(c *gin.Context) {
	name := c.Param("name")
	if err := s.flows.Delete(name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "flow not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	s.loader.Invalidate(name)
	c.Status(http.StatusNoContent)
}

func (s *Server) loadFlow(c *gin.Context, name string) (*runtime.FlowDefinition, bool) {
	def, err := s.flows.Load(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "flow not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return nil, false
	}
	return def, true
}
