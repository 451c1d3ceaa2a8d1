// Package server wires the planweaver components into one process: the
// instance store, the dispatcher worker pool, the workflow registry, the
// recurring generation triggers, and the HTTP API.
//
// # Endpoints
//
//   - GET  /health - Simple health check, returns "ok"
//   - GET  /api/status - Consolidated status (runnable instances, next scheduled runs)
//   - GET  /config - Returns current configuration as YAML (secrets redacted)
//   - POST /api/plans - Starts plan generation for a user-week
//   - GET  /api/plans/{id} - Status of one orchestration instance
//   - GET  /api/plans/{id}/history - Append-only event history
//   - GET  /api/plans/{id}/logs - Captured activity logs
//   - POST /api/plans/{id}/terminate - Terminates a running instance
//   - GET  /metrics - Prometheus metrics (scrape mode only)
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/planweaver/planweaver/buildinfo"
	"github.com/planweaver/planweaver/client"
	"github.com/planweaver/planweaver/config"
	"github.com/planweaver/planweaver/engine"
	"github.com/planweaver/planweaver/logging"
	"github.com/planweaver/planweaver/mealplan"
	"github.com/planweaver/planweaver/mealplan/activities"
	"github.com/planweaver/planweaver/mealplan/catalog"
	"github.com/planweaver/planweaver/mealplan/planstore"
	"github.com/planweaver/planweaver/metrics"
	"github.com/planweaver/planweaver/server/cron"
	"github.com/planweaver/planweaver/server/handlers"
	"github.com/planweaver/planweaver/store"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// scheduleTrigger pairs a recurring generation schedule with its cron
// trigger.
type scheduleTrigger struct {
	userID  string
	trigger *cron.CronTrigger
}

// Server is the planweaver process.
type Server struct {
	cfg    config.Config
	logger *slog.Logger

	instances engine.InstanceStore
	plans     planstore.Store
	registry  *engine.Registry
	collector *logging.LogCollector

	dispatcher *engine.Dispatcher
	client     *client.Client
	triggers   []scheduleTrigger

	metricsHandler http.Handler
	httpServer     *http.Server

	closers []func() error
}

// New builds a Server from the config file at configPath.
func New(configPath string) (*Server, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return NewFromConfig(cfg)
}

// NewFromConfig builds a Server from an already-validated configuration.
func NewFromConfig(cfg config.Config) (*Server, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, logger: logger.Logger}

	if err := s.buildStores(); err != nil {
		return nil, err
	}

	metricsBundle, err := s.buildMetrics()
	if err != nil {
		return nil, err
	}

	cat, err := s.buildCatalog()
	if err != nil {
		return nil, err
	}

	s.registry = engine.NewRegistry()
	if err := s.registry.RegisterOrchestrator(mealplan.GenerateWeeklyPlan{}); err != nil {
		return nil, err
	}
	if err := activities.RegisterAll(s.registry, activities.Deps{
		Plans:     s.plans,
		Catalog:   cat,
		Chat:      s.buildChatClient(),
		Model:     s.cfg.OpenAI.Model,
		Reminders: s.cfg.Reminders,
		Network:   s.cfg.NetworkPolicy(),
		Compute:   s.cfg.ComputePolicy(),
	}); err != nil {
		return nil, err
	}

	s.collector = logging.NewLogCollector()
	s.dispatcher = engine.NewDispatcher(s.instances, s.registry, s.logger,
		engine.WithWorkers(s.cfg.Dispatcher.Workers),
		engine.WithPollInterval(s.cfg.Dispatcher.PollInterval),
		engine.WithMetrics(metricsBundle),
		engine.WithLogCollector(s.collector),
	)

	s.client = client.New(s.instances, s.logger,
		client.WithGuard(mealplan.WorkflowType, mealplan.RegenerateGuard{Plans: s.plans}),
		client.WithNotifier(s.dispatcher.Notify),
		client.WithMetrics(metricsBundle),
	)

	if err := s.buildTriggers(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Server) buildStores() error {
	if s.cfg.Database.InstancePath == "" {
		s.logger.Warn("no instance database configured, history is not durable")
		s.instances = store.NewMemoryStore()
	} else {
		sqlite, err := store.NewSQLiteStore(s.cfg.Database.InstancePath)
		if err != nil {
			return fmt.Errorf("opening instance store: %w", err)
		}
		s.instances = sqlite
		s.closers = append(s.closers, sqlite.Close)
	}

	if s.cfg.Database.PlanPath == "" {
		s.logger.Warn("no plan database configured, plans are not durable")
		s.plans = planstore.NewMemoryStore()
	} else {
		sqlite, err := planstore.NewSQLiteStore(s.cfg.Database.PlanPath)
		if err != nil {
			return fmt.Errorf("opening plan store: %w", err)
		}
		s.plans = sqlite
		s.closers = append(s.closers, sqlite.Close)
	}
	return nil
}

func (s *Server) buildMetrics() (*engine.Metrics, error) {
	var reg metrics.Registry
	switch s.cfg.Monitoring.Mode {
	case "push":
		hostname, _ := os.Hostname()
		reg = metrics.NewPushRegistry(metrics.PushConfig{
			URL:      s.cfg.Monitoring.PushURL,
			Prefix:   s.cfg.Monitoring.MetricsPrefix,
			Job:      s.cfg.Monitoring.JobName,
			Instance: hostname,
			Timeout:  s.cfg.Monitoring.PushTimeout,
		})
	default:
		scrape, err := metrics.NewScrapeRegistry()
		if err != nil {
			return nil, fmt.Errorf("creating metrics registry: %w", err)
		}
		s.metricsHandler = scrape.Handler()
		reg = scrape
	}

	bundle, err := engine.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("creating metrics: %w", err)
	}
	return bundle, nil
}

func (s *Server) buildCatalog() (*catalog.Catalog, error) {
	if s.cfg.Recipes.CatalogPath == "" {
		return nil, fmt.Errorf("recipes catalog_path is required")
	}
	cat, err := catalog.Load(s.cfg.Recipes.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("loading recipe catalog: %w", err)
	}
	s.logger.Info("recipe catalog loaded",
		"path", s.cfg.Recipes.CatalogPath, "recipes", cat.Len())
	return cat, nil
}

// buildChatClient constructs the LLM client, or nil when no API key is
// configured. Composition then always uses the rule-based fallback.
func (s *Server) buildChatClient() activities.ChatClient {
	if s.cfg.OpenAI.APIKey == "" {
		s.logger.Warn("no OpenAI API key configured, plan composition uses the rule-based fallback")
		return nil
	}
	clientCfg := openai.DefaultConfig(s.cfg.OpenAI.APIKey)
	if s.cfg.OpenAI.BaseURL != "" {
		clientCfg.BaseURL = s.cfg.OpenAI.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

func (s *Server) buildTriggers() error {
	for _, sched := range s.cfg.Schedules {
		sched := sched
		run := cron.RunnableFunc(func() error {
			return s.startScheduled(sched)
		})
		trigger, err := cron.NewCronTrigger(sched.Cron, run, s.logger)
		if err != nil {
			return fmt.Errorf("schedule for user %s: %w", sched.UserID, err)
		}
		s.triggers = append(s.triggers, scheduleTrigger{userID: sched.UserID, trigger: trigger})
	}
	return nil
}

// startScheduled starts generation for the current ISO week.
func (s *Server) startScheduled(sched config.ScheduleConfig) error {
	year, week := time.Now().UTC().ISOWeek()
	input := mealplan.GenerateInput{
		UserID:     sched.UserID,
		Week:       fmt.Sprintf("%04d-W%02d", year, week),
		Regenerate: sched.Regenerate,
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := s.client.Start(ctx, mealplan.WorkflowType, raw)
	if err != nil {
		return err
	}
	s.logger.Info("scheduled generation started",
		"instance_id", id, "user_id", input.UserID, "week", input.Week)
	return nil
}

// Client returns the orchestration client facade.
func (s *Server) Client() *client.Client {
	return s.client
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	return &s.cfg
}

// Logs returns the captured log entries for an instance.
func (s *Server) Logs(instanceID string) []logging.LogEntry {
	return s.collector.GetLogs(instanceID)
}

// Summary builds the consolidated status served by /api/status.
func (s *Server) Summary(ctx context.Context) (handlers.StatusSummary, error) {
	runnable, err := s.instances.ListRunnable(ctx)
	if err != nil {
		return handlers.StatusSummary{}, err
	}

	summary := handlers.StatusSummary{
		Version:   buildinfo.Get().Version,
		Runnable:  len(runnable),
		Workflows: []string{mealplan.WorkflowType},
	}
	for _, st := range s.triggers {
		summary.NextRuns = append(summary.NextRuns, handlers.NextRun{
			UserID: st.userID,
			Cron:   st.trigger.Spec(),
			At:     st.trigger.NextRun(),
		})
	}
	return summary, nil
}

// Run starts the dispatcher, the cron triggers, and the HTTP server, and
// blocks until the context is cancelled. It performs a graceful shutdown
// when the context is done.
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      mux,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	dispatcherDone := make(chan error, 1)
	go func() {
		dispatcherDone <- s.dispatcher.Run(ctx)
	}()

	for _, st := range s.triggers {
		s.logger.Info("starting schedule",
			"user_id", st.userID, "next_run", st.trigger.NextRun())
		st.trigger.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.cfg.Server.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		// Let in-flight dispatch work finish recording.
		<-dispatcherDone
		return nil
	}
}

func (s *Server) close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			s.logger.Warn("error closing resource", "error", err)
		}
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	startHandler := handlers.NewStartHandler(s.logger, s.client)
	statusHandler := handlers.NewStatusHandler(s.logger, s.client)
	historyHandler := handlers.NewHistoryHandler(s.logger, s.client)
	logsHandler := handlers.NewLogsHandler(s)
	terminateHandler := handlers.NewTerminateHandler(s.logger, s.client)
	apiStatusHandler := handlers.NewAPIStatusHandler(s.logger, s)
	configHandler := handlers.NewConfigHandler(s)

	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.Handle("GET /api/status", apiStatusHandler)
	mux.Handle("GET /config", configHandler)
	mux.Handle("POST /api/plans", startHandler)
	mux.Handle("GET /api/plans/{id}", statusHandler)
	mux.Handle("GET /api/plans/{id}/history", historyHandler)
	mux.Handle("GET /api/plans/{id}/logs", logsHandler)
	mux.Handle("POST /api/plans/{id}/terminate", terminateHandler)

	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
}
