package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yahalom/internal/config"
	"yahalom/internal/domain"
	"yahalom/internal/handler"
	"yahalom/internal/hub"
	"yahalom/internal/metrics"
	"yahalom/internal/replica"
	"yahalom/internal/repository"
	"yahalom/internal/service"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Config file path (default: search standard locations)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dataDir := flag.String("data", "", "Directory holding the collection files (overrides config)")
	initFiles := flag.Bool("init", false, "Create missing collection files before starting")
	envFile := flag.String("env", ".env", "Dotenv file loaded outside production")
	seedFile := flag.String("seed", "", "YAML seed file imported into empty collections (overrides config)")
	writeCfg := flag.Bool("write-config", false, "Write the effective config to -config or the default location and exit")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting yahalom server...")

	config.LoadDotenvIfPresent(*envFile)

	cfg, cfgFile, err := loadConfig(*configPath, *writeCfg)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfgFile != "" {
		log.Printf("Config loaded: %s", cfgFile)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *seedFile != "" {
		cfg.Storage.SeedFile = *seedFile
	}
	log.Print(cfg.Summary())

	if *writeCfg {
		path, err := writeConfig(cfg, *configPath)
		if err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		log.Printf("Config written: %s", path)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(nil)

	// Replica sinks
	sinks, fetcher, closeSinks, err := openSinks(ctx, cfg.Replica)
	if err != nil {
		log.Fatalf("Failed to open replica: %v", err)
	}
	defer closeSinks()

	// Collection files
	paths := cfg.CollectionPaths()
	if cfg.Storage.CreateMissing || *initFiles {
		if err := provision(ctx, paths, fetcher); err != nil {
			log.Fatalf("Failed to provision collection files: %v", err)
		}
	}

	// Event bus
	eventBus := service.NewEventBus()

	// Repositories and services
	questionRepo, err := repository.Open[domain.Question](paths["questions"], "question",
		repository.WithValidator(domain.Question.Validate))
	if err != nil {
		log.Fatalf("Failed to open questions: %v", err)
	}
	testRepo, err := repository.Open[domain.Test](paths["tests"], "test",
		repository.WithValidator(domain.Test.Validate))
	if err != nil {
		log.Fatalf("Failed to open tests: %v", err)
	}
	fieldRepo, err := repository.Open[domain.StudyField](paths["fields"], "study field",
		repository.WithValidator(domain.StudyField.Validate))
	if err != nil {
		log.Fatalf("Failed to open fields: %v", err)
	}

	questionSvc := service.NewCollectionService[domain.Question]("questions", questionRepo, eventBus)
	testSvc := service.NewCollectionService[domain.Test]("tests", testRepo, eventBus)
	fieldSvc := service.NewCollectionService[domain.StudyField]("fields", fieldRepo, eventBus)
	questionSvc.SetMetrics(m)
	testSvc.SetMetrics(m)
	fieldSvc.SetMetrics(m)

	// Seed empty collections
	if cfg.Storage.SeedFile != "" {
		err := seed(ctx, cfg.Storage.SeedFile, map[string]seedTarget{
			"questions": questionSvc,
			"tests":     testSvc,
			"fields":    fieldSvc,
		})
		if err != nil {
			log.Fatalf("Failed to seed collections: %v", err)
		}
	}

	// SSE hub
	sseHub := hub.New(hub.WithAllowOrigin(corsOrigin(cfg)), hub.WithMetrics(m))
	go sseHub.Run(ctx)

	// Connect event bus to SSE hub
	hubEvents := make(chan service.Event, 100)
	eventBus.Subscribe(hubEvents)
	go func() {
		for {
			select {
			case event := <-hubEvents:
				sseHub.Broadcast(string(event.Type), event)
			case <-ctx.Done():
				return
			}
		}
	}()

	// Connect event bus to the replicator
	if len(sinks) > 0 {
		replicator := replica.New([]replica.Source{questionSvc, testSvc, fieldSvc}, sinks)
		replicator.SetMetrics(m)

		replicaEvents := make(chan service.Event, 100)
		eventBus.Subscribe(replicaEvents)
		go replicator.Run(ctx, replicaEvents)
		go func() {
			if err := replicator.SyncAll(ctx); err != nil {
				log.Printf("Initial replica sync failed: %v", err)
			}
		}()
	}

	// Setup routes
	mux := http.NewServeMux()

	handler.NewCollectionHandler[domain.Question](questionSvc).Register(mux, "/api/questions")
	handler.NewCollectionHandler[domain.Test](testSvc).Register(mux, "/api/tests")
	handler.NewCollectionHandler[domain.StudyField](fieldSvc).Register(mux, "/api/fields")

	mux.HandleFunc("GET /healthz", handler.Health(map[string]handler.Probe{
		"questions": snapshotProbe(questionSvc),
		"tests":     snapshotProbe(testSvc),
		"fields":    snapshotProbe(fieldSvc),
	}))
	mux.Handle("GET /metrics", m.Handler())

	// SSE events endpoint
	mux.Handle("GET /events", sseHub)

	// JSON reply for unknown routes
	mux.HandleFunc("/", handler.NotFound)

	// Apply middleware
	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS(corsOrigin(cfg)),
		handler.Logger,
		handler.Metrics(m),
		handler.Compress,
		handler.Auth(cfg.Auth.TokenHashes, "/healthz", "/metrics"),
	)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      finalHandler,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop the hub first so open event streams end and Shutdown can finish
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// loadConfig reads the config at path, or searches the standard locations
// when path is empty. With allowMissing a path that does not exist yet yields
// the defaults.
func loadConfig(path string, allowMissing bool) (*config.Config, string, error) {
	if path == "" {
		return config.Load()
	}
	cfg, file, err := config.LoadFromPath(path)
	if err != nil && allowMissing && errors.Is(err, os.ErrNotExist) {
		return config.DefaultConfig(), "", nil
	}
	return cfg, file, err
}

// writeConfig saves cfg to path, or to the default config location when path
// is empty, and returns where it went
func writeConfig(cfg *config.Config, path string) (string, error) {
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := cfg.Save(path); err != nil {
		return path, err
	}
	return path, nil
}

func corsOrigin(cfg *config.Config) string {
	if cfg.Server.CORSOrigin == "" {
		return "*"
	}
	return cfg.Server.CORSOrigin
}

// snapshotProbe reports whether a collection file can still be loaded
func snapshotProbe(src replica.Source) handler.Probe {
	return func(ctx context.Context) error {
		_, err := src.Snapshot(ctx)
		return err
	}
}
