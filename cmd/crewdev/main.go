// Crewdev is the workflow activation orchestrator for agentic sessions:
// it tracks session lifecycle phases, resolves workflow selections
// against a catalog, queues workflows for sessions that are not yet
// ready, and drives the remote activation call with bounded retry.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crewdev/crewdev/internal/common/config"
	"github.com/crewdev/crewdev/internal/common/errors"
	"github.com/crewdev/crewdev/internal/common/httpmw"
	"github.com/crewdev/crewdev/internal/common/logger"
	"github.com/crewdev/crewdev/internal/events"
	"github.com/crewdev/crewdev/internal/events/bus"
	"github.com/crewdev/crewdev/internal/session/activation"
	"github.com/crewdev/crewdev/internal/session/api"
	"github.com/crewdev/crewdev/internal/session/queue"
	"github.com/crewdev/crewdev/internal/session/repository"
	"github.com/crewdev/crewdev/internal/session/service"
	"github.com/crewdev/crewdev/internal/session/streaming"
	"github.com/crewdev/crewdev/internal/workflow/catalog"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Crewdev orchestrator...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Connect the event bus: NATS when configured, in-memory otherwise
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsBus
		log.Info("Connected to NATS event bus", zap.String("url", cfg.NATS.URL))
	} else {
		eventBus = bus.NewMemoryEventBus(log)
		log.Info("Using in-memory event bus")
	}
	defer eventBus.Close()

	// Trace all session and workflow events at debug level
	if cfg.Logging.Level == "debug" {
		for _, subject := range []string{
			events.BuildSessionWildcardSubject(),
			events.BuildWorkflowWildcardSubject(),
		} {
			if _, err := eventBus.Subscribe(subject, func(ctx context.Context, event *bus.Event) error {
				log.Debug("event", zap.String("type", event.Type), zap.Any("data", event.Data))
				return nil
			}); err != nil {
				log.Warn("Failed to start event tracing", zap.String("subject", subject), zap.Error(err))
			}
		}
	}

	// 5. Open storage: SQLite when a path is configured, in-memory otherwise
	var (
		repo       repository.Repository
		queueStore queue.Store
	)
	if cfg.Database.Path != "" {
		sqliteRepo, err := repository.NewSQLiteRepository(cfg.Database.Path)
		if err != nil {
			log.Fatal("Failed to open database", zap.Error(err))
		}
		sqliteQueue, err := queue.NewSQLiteStore(sqliteRepo.DB())
		if err != nil {
			log.Fatal("Failed to initialize session queue", zap.Error(err))
		}
		repo = sqliteRepo
		queueStore = sqliteQueue
		log.Info("Using SQLite storage", zap.String("path", cfg.Database.Path))
	} else {
		repo = repository.NewMemoryRepository()
		queueStore = queue.NewMemoryStore()
		log.Info("Using in-memory storage")
	}
	defer repo.Close()

	// 6. Seed the workflow catalog
	cat := catalog.NewCatalog(log)
	cat.LoadFromConfig(cfg.Catalog)
	log.Info("Loaded workflow catalog", zap.Int("workflows", cat.Len()))

	// 7. Initialize session service
	svc := service.NewService(repo, eventBus, log)

	// 8. Initialize WebSocket hub for status streaming
	hub := streaming.NewHub(log)
	go hub.Run(ctx)

	// 9. Initialize the activation orchestrator
	client := activation.NewHTTPClient(cfg.Activation.EndpointBaseURL, &http.Client{
		Timeout: cfg.Activation.RequestTimeoutDuration(),
	}, log)
	orch := activation.NewOrchestrator(cfg.Activation, client, queueStore, cat, svc, hub, eventBus, log)
	orch.OnStatusChanged(hub.BroadcastStatus)

	// 10. Start the readiness watcher
	watcher := activation.NewWatcher(eventBus, orch, queueStore, log)
	if err := watcher.Start(ctx); err != nil {
		log.Fatal("Failed to start activation watcher", zap.Error(err))
	}
	defer watcher.Stop()

	// 11. Setup HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(httpmw.Recovery(log))
	router.Use(httpmw.RequestLogger(log))
	router.Use(httpmw.ErrorHandler(log))
	router.Use(httpmw.CORS())

	// 12. Register API routes
	v1grp := router.Group("/api/v1")
	v1grp.Use(httpmw.RateLimit(100))
	api.SetupRoutes(v1grp, svc, orch, cat, log)
	streaming.SetupWebSocketRoutes(v1grp, streaming.NewWSHandler(hub, orch, log))

	router.GET("/health", func(c *gin.Context) {
		if !eventBus.IsConnected() {
			appErr := errors.Unavailable("event bus")
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 13. Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// 14. Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 15. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Crewdev orchestrator...")

	// 16. Graceful shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := watcher.Stop(); err != nil {
		log.Error("Watcher stop error", zap.Error(err))
	}

	log.Info("Crewdev orchestrator stopped")
}
