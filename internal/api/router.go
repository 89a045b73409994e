package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/clausebank/clausebank/internal/api/handlers"
	mw "github.com/clausebank/clausebank/internal/api/middleware"
	"github.com/clausebank/clausebank/internal/config"
	"github.com/clausebank/clausebank/internal/domain"
	"github.com/clausebank/clausebank/internal/embedding"
	"github.com/clausebank/clausebank/internal/service"
	"github.com/clausebank/clausebank/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router *chi.Mux
	Decay  *service.DecayEngine
	Ingest *service.IngestService

	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	clauseStore := store.NewClauseStore(db)
	sourceStore := store.NewSourceStore(db)
	conflictStore := store.NewConflictStore(db)
	auditStore := store.NewAuditStore(db)
	textIndex := store.NewTextIndex(db)

	// Semantic retrieval is optional: without an embedding service the
	// retrieval engine runs keyword-only.
	var similarity domain.EmbeddingSimilarity
	var vectors *store.PgvectorSimilarity
	if url := config.EmbeddingURL(); url != "" {
		client := embedding.NewOllamaClient(url, config.EmbeddingModel())
		vectors = store.NewPgvectorSimilarity(db, client)
		similarity = vectors
		logger.Info("embedding client initialized",
			zap.String("url", url),
			zap.String("model", config.EmbeddingModel()))
	} else {
		logger.Info("no embedding service configured, retrieval runs keyword-only")
	}

	// Services
	clauseSvc := service.NewClauseService(clauseStore, auditStore, textIndex, logger)
	if vectors != nil {
		clauseSvc.SetEmbeddingIndexer(vectors, config.EmbeddingModel())
	}

	dedupCfg := service.DefaultDedupConfig()
	dedupCfg.FuzzyThreshold = config.DedupThreshold()
	dedupCfg.OnDuplicate = service.DedupPolicy(config.DedupPolicy())
	dedup := service.NewDeduplicator(clauseStore, dedupCfg)

	conflictCfg := service.DefaultConflictConfig()
	conflictCfg.Strategy = domain.ResolutionStrategy(config.ConflictStrategy())
	resolver := service.NewConflictResolver(clauseStore, conflictStore, auditStore,
		domain.DefaultPredicatePolicy(), conflictCfg, logger)

	ingestSvc := service.NewIngestService(clauseSvc, dedup, resolver, sourceStore, conflictStore, logger)

	decayCfg := service.DefaultDecayConfig()
	decayCfg.MinConfidence = config.DecayFloor()
	decayCfg.Interval = config.DecayInterval()
	decayEngine := service.NewDecayEngine(clauseStore, auditStore, decayCfg, logger)

	retrievalEngine := service.NewRetrievalEngine(clauseStore, textIndex, similarity,
		auditStore, service.DefaultRetrievalConfig(), logger)

	// Handlers
	clauseHandler := handlers.NewClauseHandler(clauseSvc)
	ingestHandler := handlers.NewIngestHandler(ingestSvc)
	conflictHandler := handlers.NewConflictHandler(resolver)
	decayHandler := handlers.NewDecayHandler(decayEngine)
	retrievalHandler := handlers.NewRetrievalHandler(retrievalEngine)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Decay:     decayEngine,
		Ingest:    ingestSvc,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", healthHandler(db))
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		// Clauses
		r.Route("/clauses", func(r chi.Router) {
			r.Get("/", clauseHandler.Search)
			r.Post("/", clauseHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", clauseHandler.GetByID)
				r.Patch("/", clauseHandler.Update)
				r.Post("/invalidate", clauseHandler.Invalidate)
				r.Post("/reinforce", clauseHandler.Reinforce)
				r.Post("/confidence", decayHandler.Adjust)
				r.Get("/decay-history", decayHandler.History)
				r.Get("/expiration-estimate", decayHandler.Estimate)
			})
		})

		// Ingestion
		r.Route("/ingest", func(r chi.Router) {
			r.Post("/", ingestHandler.Ingest)
			r.Post("/batch", ingestHandler.Batch)
			r.Post("/extract", ingestHandler.Extract)
		})

		// Conflicts
		r.Route("/conflicts", func(r chi.Router) {
			r.Get("/", conflictHandler.ListPending)
			r.Post("/resolve-all", conflictHandler.ResolveAll)
			r.Put("/strategy", conflictHandler.SetStrategy)
			r.Post("/{id}/resolve", conflictHandler.Resolve)
		})

		// Decay
		r.Post("/decay/run", decayHandler.Run)

		// Retrieval
		r.Route("/retrieve", func(r chi.Router) {
			r.Post("/", retrievalHandler.Retrieve)
			r.Post("/progressive", retrievalHandler.Progressive)
			r.Post("/task", retrievalHandler.Task)
		})
	})

	return app
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}
