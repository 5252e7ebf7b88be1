package di

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"yojana-orchestrator/internal/adapter/ollama"
	"yojana-orchestrator/internal/adapter/repository"
	"yojana-orchestrator/internal/domain"
	"yojana-orchestrator/internal/infra/config"
	"yojana-orchestrator/internal/infra/httpclient"
	"yojana-orchestrator/internal/usecase"
	"yojana-orchestrator/internal/usecase/retrieval"
	"yojana-orchestrator/internal/worker"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	// Repositories
	ChunkRepo  *repository.SchemeChunkRepository
	SourceRepo domain.SchemeSourceRepository
	JobRepo    *repository.IngestJobRepository

	// Usecases
	RetrieveUsecase usecase.RetrieveContextUsecase
	AnswerUsecase   usecase.AnswerWithRAGUsecase
	IngestUsecase   usecase.IngestSchemeUsecase

	// Worker
	Worker *worker.IngestWorker

	// Adapters exposed for handler wiring
	Embedder  domain.VectorEncoder
	Generator domain.LLMClient
}

// NewApplicationComponents wires all dependencies from config and database pool.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) (*ApplicationComponents, error) {
	// Repositories
	chunkRepo := repository.NewSchemeChunkRepository(pool)
	sourceRepo := repository.NewSchemeSourceRepository(pool)
	jobRepo := repository.NewIngestJobRepository(pool)
	txManager := repository.NewPostgresTransactionManager(pool)

	// Shared HTTP clients with connection pooling
	embedderHTTP := httpclient.NewPooledClient(time.Duration(cfg.Embedder.Timeout) * time.Second)
	generatorHTTP := httpclient.NewPooledClient(time.Duration(cfg.Generator.Timeout) * time.Second)

	// Ollama clients. Retrieval goes through the caching encoder because the
	// same query text recurs across refinement rounds; ingest embeds each
	// chunk once, so it takes the plain embedder.
	embedder := ollama.NewEmbedder(cfg.Embedder.URL, cfg.Embedder.Model, embedderHTTP)
	queryEncoder, err := ollama.NewCachingEncoder(embedder, cfg.Cache.EmbeddingSize)
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding cache: %w", err)
	}
	generator := ollama.NewGenerator(cfg.Generator.URL, cfg.Generator.Model, generatorHTTP)

	// Domain services
	hasher := domain.NewSourceHashPolicy()
	chunker := domain.NewChunker()

	// Ingest usecase
	ingestUsecase := usecase.NewIngestSchemeUsecase(
		sourceRepo, chunkRepo, txManager, hasher, chunker, embedder, log,
	)

	// Retrieval config
	retrievalConfig := usecase.DefaultRetrievalConfig()
	if cfg.RAG.DefaultTopK > 0 {
		retrievalConfig.DefaultTopK = cfg.RAG.DefaultTopK
	}
	if err := retrievalConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retrieval config: %w", err)
	}

	// Retrieve usecase
	decomposer := retrieval.NewDecomposer(chunkRepo, generator, log)
	lexical := retrieval.NewLexicalIndex(retrievalConfig.Lexical, log)
	retrieveUsecase := usecase.NewRetrieveContextUsecase(
		chunkRepo, queryEncoder, decomposer, lexical, retrievalConfig, log,
	)

	// Answer usecase
	var promptBuilder usecase.PromptBuilder
	if cfg.RAG.Instructions != "" {
		promptBuilder = usecase.NewXMLPromptBuilder(cfg.RAG.Instructions)
	} else {
		promptBuilder = usecase.NewXMLPromptBuilder()
	}
	answerUsecase := usecase.NewAnswerWithRAGUsecase(
		retrieveUsecase, promptBuilder, generator, usecase.NewOutputValidator(), log,
		usecase.WithCacheConfig(cfg.Cache.AnswerSize, time.Duration(cfg.Cache.AnswerTTL)*time.Minute),
		usecase.WithLoopLimits(cfg.RAG.MaxReflections, cfg.RAG.MaxCorrections),
		usecase.WithAnswerTokens(cfg.RAG.MaxTokens),
		usecase.WithIntentClassifier(usecase.NewIntentClassifier(generator, log)),
	)

	// Worker
	ingestWorker := worker.NewIngestWorker(jobRepo, ingestUsecase, worker.Config{
		PollInterval: time.Duration(cfg.Ingest.PollInterval) * time.Second,
		EmbedRate:    cfg.Ingest.EmbedRate,
		EmbedBurst:   cfg.Ingest.EmbedBurst,
	}, log)

	return &ApplicationComponents{
		ChunkRepo:       chunkRepo,
		SourceRepo:      sourceRepo,
		JobRepo:         jobRepo,
		RetrieveUsecase: retrieveUsecase,
		AnswerUsecase:   answerUsecase,
		IngestUsecase:   ingestUsecase,
		Worker:          ingestWorker,
		Embedder:        queryEncoder,
		Generator:       generator,
	}, nil
}
