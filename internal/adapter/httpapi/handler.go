package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"yojana-orchestrator/internal/domain"
	"yojana-orchestrator/internal/usecase"
)

// Pinger reports whether the backing store is reachable. *pgxpool.Pool
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler exposes the retrieval core over HTTP.
type Handler struct {
	retrieveUsecase usecase.RetrieveContextUsecase
	answerUsecase   usecase.AnswerWithRAGUsecase
	jobRepo         domain.IngestJobRepository
	corpus          domain.VectorIndex
	pinger          Pinger
	logger          *slog.Logger
}

// NewHandler wires the HTTP surface. pinger may be nil; readiness then only
// reports that the process is up.
func NewHandler(
	retrieveUsecase usecase.RetrieveContextUsecase,
	answerUsecase usecase.AnswerWithRAGUsecase,
	jobRepo domain.IngestJobRepository,
	corpus domain.VectorIndex,
	pinger Pinger,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		retrieveUsecase: retrieveUsecase,
		answerUsecase:   answerUsecase,
		jobRepo:         jobRepo,
		corpus:          corpus,
		pinger:          pinger,
		logger:          logger,
	}
}

// Register attaches all routes to the echo instance.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/readyz", h.Ready)
	e.GET("/v1/schemes", h.ListSchemes)
	e.POST("/v1/rag/retrieve", h.RetrieveContext)
	e.POST("/v1/rag/answer", h.AnswerWithRAG)
	e.POST("/internal/rag/ingest", h.EnqueueIngest)
}

type retrieveRequest struct {
	Query  string `json:"query"`
	Intent string `json:"intent"`
	TopK   int    `json:"top_k"`
	Theme  string `json:"theme"`
}

type answerRequest struct {
	retrieveRequest
	MaxTokens int `json:"max_tokens"`
}

type documentPayload struct {
	SchemeName string  `json:"scheme_name"`
	Theme      string  `json:"theme"`
	Ministry   string  `json:"ministry,omitempty"`
	URL        string  `json:"url,omitempty"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Lexical    bool    `json:"lexical"`
	Semantic   bool    `json:"semantic"`
}

type retrieveMetadataPayload struct {
	RetrievalID     string   `json:"retrieval_id"`
	Stage           string   `json:"stage"`
	Mode            string   `json:"mode"`
	DetectedSchemes []string `json:"detected_schemes,omitempty"`
	Threshold       float64  `json:"threshold"`
	ThresholdMethod string   `json:"threshold_method"`
	CandidateCount  int      `json:"candidate_count"`
}

type retrieveResponse struct {
	Documents []documentPayload       `json:"documents"`
	Metadata  retrieveMetadataPayload `json:"metadata"`
}

type citationPayload struct {
	SchemeName string  `json:"scheme_name"`
	Theme      string  `json:"theme"`
	Ministry   string  `json:"ministry,omitempty"`
	URL        string  `json:"url,omitempty"`
	Score      float64 `json:"score"`
}

type answerDebugPayload struct {
	AnswerSetID      string `json:"answer_set_id"`
	Intent           string `json:"intent"`
	RetrievalID      string `json:"retrieval_id"`
	Stage            string `json:"stage"`
	ThresholdMethod  string `json:"threshold_method"`
	ReflectionRounds int    `json:"reflection_rounds"`
	CorrectionRounds int    `json:"correction_rounds"`
	FinalQuery       string `json:"final_query"`
	CacheHit         bool   `json:"cache_hit"`
	ModelVersion     string `json:"model_version"`
}

type answerResponse struct {
	Answer    string             `json:"answer"`
	Citations []citationPayload  `json:"citations"`
	Fallback  bool               `json:"fallback"`
	Reason    string             `json:"reason,omitempty"`
	Debug     answerDebugPayload `json:"debug"`
}

type ingestRequest struct {
	SchemeName string `json:"scheme_name"`
	Theme      string `json:"theme"`
	Ministry   string `json:"ministry"`
	URL        string `json:"url"`
	Text       string `json:"text"`
}

// Health reports liveness.
// (GET /healthz)
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the store behind the index answers.
// (GET /readyz)
func (h *Handler) Ready(c echo.Context) error {
	if h.pinger != nil {
		if err := h.pinger.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// ListSchemes returns the distinct scheme names in the index.
// (GET /v1/schemes)
func (h *Handler) ListSchemes(c echo.Context) error {
	ctx := c.Request().Context()
	names, err := h.corpus.SchemeNames(ctx)
	if err != nil {
		return h.mapError(c, err)
	}
	count, err := h.corpus.Count(ctx)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"schemes":      names,
		"scheme_count": len(names),
		"chunk_count":  count,
	})
}

// RetrieveContext runs retrieval only and returns scored documents.
// (POST /v1/rag/retrieve)
func (h *Handler) RetrieveContext(c echo.Context) error {
	var req retrieveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	input := usecase.RetrieveContextInput{
		Query: req.Query,
		TopK:  req.TopK,
		Theme: req.Theme,
	}
	if req.Intent != "" {
		input.Intent = domain.ParseIntent(req.Intent)
	}

	output, err := h.retrieveUsecase.Execute(c.Request().Context(), input)
	if err != nil {
		return h.mapError(c, err)
	}

	return c.JSON(http.StatusOK, newRetrieveResponse(output))
}

// AnswerWithRAG runs the full retrieve-generate-reflect loop.
// (POST /v1/rag/answer)
func (h *Handler) AnswerWithRAG(c echo.Context) error {
	var req answerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	input := usecase.AnswerWithRAGInput{
		Query:     req.Query,
		TopK:      req.TopK,
		Theme:     req.Theme,
		MaxTokens: req.MaxTokens,
	}
	if req.Intent != "" {
		input.Intent = domain.ParseIntent(req.Intent)
	}

	output, err := h.answerUsecase.Execute(c.Request().Context(), input)
	if err != nil {
		return h.mapError(c, err)
	}

	citations := make([]citationPayload, 0, len(output.Citations))
	for _, cite := range output.Citations {
		citations = append(citations, citationPayload{
			SchemeName: cite.SchemeName,
			Theme:      cite.Theme,
			Ministry:   cite.Ministry,
			URL:        cite.URL,
			Score:      cite.Score,
		})
	}

	return c.JSON(http.StatusOK, answerResponse{
		Answer:    output.Answer,
		Citations: citations,
		Fallback:  output.Fallback,
		Reason:    output.Reason,
		Debug: answerDebugPayload{
			AnswerSetID:      output.Debug.AnswerSetID,
			Intent:           string(output.Debug.Intent),
			RetrievalID:      output.Debug.Retrieval.RetrievalID,
			Stage:            output.Debug.Retrieval.Stage,
			ThresholdMethod:  output.Debug.Retrieval.Threshold.Method,
			ReflectionRounds: output.Debug.ReflectionRounds,
			CorrectionRounds: output.Debug.CorrectionRounds,
			FinalQuery:       output.Debug.FinalQuery,
			CacheHit:         output.Debug.CacheHit,
			ModelVersion:     output.Debug.ModelVersion,
		},
	})
}

// EnqueueIngest queues a scheme source text for background indexing.
// (POST /internal/rag/ingest)
func (h *Handler) EnqueueIngest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	if strings.TrimSpace(req.SchemeName) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing scheme_name"})
	}
	if strings.TrimSpace(req.Theme) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing theme"})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing text"})
	}

	now := time.Now()
	job := &domain.IngestJob{
		ID:         uuid.New(),
		SchemeName: req.SchemeName,
		Theme:      req.Theme,
		Ministry:   req.Ministry,
		URL:        req.URL,
		Text:       req.Text,
		Status:     domain.IngestJobStatusNew,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.jobRepo.Enqueue(c.Request().Context(), job); err != nil {
		return h.mapError(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"job_id": job.ID.String(),
		"status": "queued",
	})
}

func newRetrieveResponse(output *usecase.RetrieveContextOutput) retrieveResponse {
	docs := make([]documentPayload, 0, len(output.Documents))
	for _, d := range output.Documents {
		docs = append(docs, documentPayload{
			SchemeName: d.Document.SchemeName,
			Theme:      d.Document.Theme,
			Ministry:   d.Document.Ministry,
			URL:        d.Document.URL,
			Text:       d.Document.Text,
			Score:      d.Score,
			Lexical:    d.Lexical,
			Semantic:   d.Semantic,
		})
	}
	meta := output.Metadata
	return retrieveResponse{
		Documents: docs,
		Metadata: retrieveMetadataPayload{
			RetrievalID:     meta.RetrievalID,
			Stage:           meta.Stage,
			Mode:            string(meta.Decomposition.Mode),
			DetectedSchemes: meta.Decomposition.DetectedSchemes,
			Threshold:       meta.Threshold.Threshold,
			ThresholdMethod: meta.Threshold.Method,
			CandidateCount:  meta.CandidateCount,
		},
	}
}

func (h *Handler) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrEmptyQuery):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrRetrievalUnavailable):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case domain.IsUpstream(err):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("request_failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
