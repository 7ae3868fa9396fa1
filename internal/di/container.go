package di

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meilisearch/meilisearch-go"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"hybrid-retrieval/internal/adapter/hydration"
	"hybrid-retrieval/internal/adapter/inference"
	"hybrid-retrieval/internal/adapter/lexical"
	"hybrid-retrieval/internal/adapter/repository"
	"hybrid-retrieval/internal/adapter/retrieval_http"
	"hybrid-retrieval/internal/domain"
	"hybrid-retrieval/internal/infra/config"
	"hybrid-retrieval/internal/infra/httpclient"
	"hybrid-retrieval/internal/infra/metrics"
	"hybrid-retrieval/internal/infra/tenantconfig"
	"hybrid-retrieval/internal/usecase"
	"hybrid-retrieval/internal/usecase/retrieval"
	"hybrid-retrieval/internal/worker"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	// Stores
	TenantConfigs *tenantconfig.Store
	ChunkStore    *repository.ChunkStore

	// Usecases
	SearchUsecase usecase.SearchUsecase
	AnswerUsecase usecase.AnswerUsecase

	// HTTP
	Handler     *retrieval_http.Handler
	RateLimiter *retrieval_http.TenantRateLimiter

	// Worker
	ConfigReloader *worker.ConfigReloader

	Metrics *metrics.Metrics

	hydrationPool *ants.Pool
}

// NewApplicationComponents wires all dependencies from config, the database pool
// and the hydration cache client.
func NewApplicationComponents(
	cfg *config.Config,
	pool *pgxpool.Pool,
	redisClient *redis.Client,
	reg prometheus.Registerer,
	log *slog.Logger,
) (*ApplicationComponents, error) {
	tenantConfigs, err := tenantconfig.NewStore(cfg.TenantConfigPath, log)
	if err != nil {
		return nil, fmt.Errorf("loading tenant config: %w", err)
	}
	m := metrics.New(reg)

	// Shared HTTP clients with connection pooling
	embedderHTTP := httpclient.NewPooledClient(cfg.EmbedTimeout)
	rerankHTTP := httpclient.NewPooledClient(cfg.RerankTimeout)
	generationHTTP := httpclient.NewStreamingClient()

	// External clients
	embedder := inference.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbeddingModel, cfg.EmbedTimeout, log, embedderHTTP)
	generator := inference.NewOllamaGenerator(cfg.GenerationURL, cfg.GenerationModel, cfg.GenerationNumCtx, log, generationHTTP)

	var lexicalSearcher domain.LexicalSearcher
	switch cfg.LexicalBackend {
	case "meilisearch":
		client := meilisearch.New(cfg.MeilisearchURL, meilisearch.WithAPIKey(cfg.MeilisearchKey))
		lexicalSearcher = lexical.NewMeilisearchSearcher(client, cfg.MeilisearchIndex)
	default:
		// Deadlines come from the per-source fusion timeout.
		lexicalSearcher = lexical.NewSearchIndexerClient(cfg.SearchIndexerURL, httpclient.NewPooledClient(0))
	}
	log.Info("lexical_backend_selected", slog.String("backend", cfg.LexicalBackend))

	// Repositories
	vectorRepo := repository.NewChunkVectorRepository(pool, embedder)
	graphRepo := repository.NewGraphRepository(pool, cfg.AliasCacheSize, cfg.AliasCacheTTL)
	chunkStore := repository.NewChunkStore(pool)

	// Hydration: redis in front of postgres, fanned out on a bounded pool
	var hydrationStore domain.HydrationStore = chunkStore
	if redisClient != nil {
		cache := hydration.NewRedisCache(redisClient, "hydration", cfg.HydrationTTL)
		hydrationStore = hydration.NewCachedStore(cache, chunkStore, log)
	}
	hydrationPool, err := ants.NewPool(cfg.HydrationPool, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("creating hydration pool: %w", err)
	}
	hydrator := usecase.NewHydrator(hydrationStore, hydrationPool, log)

	// Ranking stages
	fusion := retrieval.NewFusionEngine(lexicalSearcher, vectorRepo, log, retrieval.WithFusionRecorder(m))
	searchOpts := []usecase.SearchOption{
		usecase.WithRecorder(m),
		usecase.WithGraphBias(retrieval.NewGraphBiasStage(graphRepo, log, m)),
	}
	if cfg.RerankerURL != "" {
		reranker := inference.NewRerankerClient(cfg.RerankerURL, cfg.RerankerModel, cfg.RerankTimeout, log, rerankHTTP)
		searchOpts = append(searchOpts, usecase.WithRerankStage(retrieval.NewRerankStage(reranker, hydrator, log, m)))
		log.Info("reranker_enabled",
			slog.String("url", cfg.RerankerURL),
			slog.String("model", cfg.RerankerModel))
	}

	planner := usecase.NewQueryPlanner(tenantConfigs)
	searchUsecase := usecase.NewSearchUsecase(planner, tenantConfigs, fusion, log, searchOpts...)
	answerUsecase := usecase.NewAnswerUsecase(
		planner, searchUsecase, hydrator, usecase.NewXMLPromptBuilder(), generator, tenantConfigs, log,
		usecase.WithAnswerRecorder(m),
		usecase.WithDefaultLocale(cfg.DefaultLocale),
	)

	return &ApplicationComponents{
		TenantConfigs:  tenantConfigs,
		ChunkStore:     chunkStore,
		SearchUsecase:  searchUsecase,
		AnswerUsecase:  answerUsecase,
		Handler:        retrieval_http.NewHandler(searchUsecase, answerUsecase, log),
		RateLimiter:    retrieval_http.NewTenantRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, log),
		ConfigReloader: worker.NewConfigReloader(tenantConfigs, cfg.TenantConfigReload, log),
		Metrics:        m,
		hydrationPool:  hydrationPool,
	}, nil
}

// Close releases the hydration worker pool.
func (c *ApplicationComponents) Close() {
	c.hydrationPool.Release()
}
