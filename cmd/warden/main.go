package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"datawarden/internal/audit"
	"datawarden/internal/config"
	"datawarden/internal/db"
	"datawarden/internal/governance"
	"datawarden/internal/healing"
	"datawarden/internal/llm"
	"datawarden/internal/logging"
	"datawarden/internal/masking"
	"datawarden/internal/metrics"
	"datawarden/internal/policy"
	"datawarden/internal/server"
	"datawarden/internal/tools"
)

func main() {
	logging.Init("warden", nil)
	if err := run(os.Args[1:], serveHTTP); err != nil {
		fatalf("warden: %v", err)
	}
}

var serveHTTP = func(srv *http.Server) error { return srv.ListenAndServe() }
var fatalf = func(format string, args ...any) {
	slog.Error("fatal", "error", fmt.Sprintf(format, args...))
	os.Exit(1)
}
var loadConfig = config.LoadConfig
var newDB = db.NewDB

func run(args []string, serve func(*http.Server) error) error {
	fs := flag.NewFlagSet("warden", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return errors.New("config required")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	addr := cfg.Server.HTTPAddr
	if addr == "" {
		addr = ":8090"
	}

	database, err := newDB(cfg.Storage.PostgresDSN)
	if err != nil {
		return err
	}
	defer database.Close()

	engine := policy.NewEngine(policyConfig(cfg.Policy))
	sweeper := policy.NewSweeper(engine)
	sweeper.Schedule = cfg.Policy.SweepSchedule
	go func() {
		if err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("policy sweeper stopped", "error", err)
		}
	}()

	ontology := healing.DefaultOntology()
	if cfg.Healing.OntologyPath != "" {
		ontology, err = healing.LoadOntology(cfg.Healing.OntologyPath)
		if err != nil {
			return fmt.Errorf("load ontology: %w", err)
		}
	}

	var oracle healing.Oracle
	if cfg.LLM.Provider != "" {
		client, err := llm.NewOracleClient(cfg.LLM.Provider, cfg.LLM.APIBase, cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			return err
		}
		oracle = &llm.Oracle{
			Client:         client,
			MaxTokens:      cfg.LLM.MaxOutputTokens,
			RedactPatterns: cfg.LLM.RedactPatterns,
		}
	}

	exec := healing.NewExecutor(db.NewQueryBackend(database), ontology, &db.Mappings{DB: database}, oracle)
	exec.MaxRetries = cfg.Healing.MaxRetries
	exec.OracleTimeout = time.Duration(cfg.Healing.OracleTimeoutSecs) * time.Second

	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewQueryTool(exec), governance.Options{
		RequiresPII: true,
		Sensitivity: masking.ParseSensitivity(cfg.Masking.Sensitivity),
		InputSchema: tools.QuerySchema,
	}); err != nil {
		return err
	}

	sink := audit.NewStore(database)
	mw := governance.NewMiddleware(engine, sink)
	srv := server.NewServer(mw, registry, engine, sink)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", srv)

	httpSrv := &http.Server{Addr: addr, Handler: metrics.Middleware(mux)}
	errCh := make(chan error, 1)
	go func() { errCh <- serve(httpSrv) }()

	slog.Info("warden listening", "addr", addr)
	select {
	case err := <-errCh:
		if err == nil {
			return nil
		}
		if errors.Is(err, http.ErrServerClosed) && ctx.Err() != nil {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	forceExit := time.AfterFunc(30*time.Second, func() { os.Exit(1) })
	defer forceExit.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	err = <-errCh
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func policyConfig(cfg config.PolicyConfig) policy.Config {
	out := policy.DefaultConfig()
	if cfg.MaxCallsPerHour > 0 {
		out.MaxCallsPerHour = cfg.MaxCallsPerHour
	}
	if cfg.MaxComplexityScore > 0 {
		out.MaxComplexityScore = cfg.MaxComplexityScore
	}
	if cfg.CacheTTLSecs > 0 {
		out.CacheTTL = time.Duration(cfg.CacheTTLSecs) * time.Second
	}
	return out
}
