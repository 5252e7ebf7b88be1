package repository

import (
	"context"
	"fmt"
	"strings"

	"yojana-orchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// scrollPageSize bounds one Scroll round trip.
const scrollPageSize = 256

// SchemeChunkRepository persists scheme chunks and serves as the corpus
// read side: it implements both domain.SchemeChunkRepository and
// domain.VectorIndex.
type SchemeChunkRepository struct {
	pool *pgxpool.Pool
}

// NewSchemeChunkRepository creates a SchemeChunkRepository on the pool.
func NewSchemeChunkRepository(pool *pgxpool.Pool) *SchemeChunkRepository {
	return &SchemeChunkRepository{pool: pool}
}

type dbExecutor interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *SchemeChunkRepository) getExecutor(ctx context.Context) dbExecutor {
	tx := ExtractTx(ctx)
	if tx != nil {
		return tx
	}
	return r.pool
}

// BulkInsert inserts chunks via COPY in one round trip.
func (r *SchemeChunkRepository) BulkInsert(ctx context.Context, chunks []domain.SchemeChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(chunks))
	for i, chunk := range chunks {
		rows[i] = []interface{}{
			chunk.ID,
			chunk.SourceID,
			chunk.Ordinal,
			chunk.SchemeName,
			chunk.Theme,
			chunk.Content,
			chunk.Ministry,
			chunk.URL,
			chunk.Embedding,
			chunk.CreatedAt,
		}
	}

	_, err := r.getExecutor(ctx).CopyFrom(
		ctx,
		pgx.Identifier{"scheme_chunks"},
		[]string{"id", "source_id", "ordinal", "scheme_name", "theme", "content", "ministry", "url", "embedding", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk insert chunks: %w", err)
	}

	return nil
}

// DeleteBySource removes all chunks of a source, returning the count.
func (r *SchemeChunkRepository) DeleteBySource(ctx context.Context, sourceID uuid.UUID) (int64, error) {
	tag, err := r.getExecutor(ctx).Exec(ctx, `DELETE FROM scheme_chunks WHERE source_id = $1`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Search returns the chunks nearest to the query vector by cosine distance,
// restricted by filter. Scores are clamped to the [0, 1] contract of
// domain.VectorHit.
func (r *SchemeChunkRepository) Search(ctx context.Context, queryVector []float32, filter domain.SearchFilter, limit int) ([]domain.VectorHit, error) {
	if limit <= 0 {
		return nil, nil
	}

	args := []interface{}{pgvector.NewVector(queryVector)}
	conditions := []string{"embedding IS NOT NULL"}
	if len(filter.SchemeNames) > 0 {
		args = append(args, filter.SchemeNames)
		conditions = append(conditions, fmt.Sprintf("scheme_name = ANY($%d)", len(args)))
	}
	if filter.Theme != "" {
		args = append(args, filter.Theme)
		conditions = append(conditions, fmt.Sprintf("theme = $%d", len(args)))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, scheme_name, theme, content, ministry, url,
		       1 - (embedding <=> $1) AS score
		FROM scheme_chunks
		WHERE %s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, strings.Join(conditions, " AND "), len(args))

	rows, err := r.getExecutor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var hits []domain.VectorHit
	for rows.Next() {
		var (
			id    uuid.UUID
			doc   domain.SchemeDocument
			score float64
		)
		if err := rows.Scan(&id, &doc.SchemeName, &doc.Theme, &doc.Text, &doc.Ministry, &doc.URL, &score); err != nil {
			return nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		doc.ID = id.String()
		hits = append(hits, domain.VectorHit{Document: doc, Score: clampScore(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return hits, nil
}

// Scroll returns every chunk matching filter, paging by id internally so
// the order is stable for an unchanged corpus.
func (r *SchemeChunkRepository) Scroll(ctx context.Context, filter domain.SearchFilter) ([]domain.SchemeDocument, error) {
	var (
		docs   []domain.SchemeDocument
		lastID uuid.UUID
	)
	for {
		batch, nextID, err := r.scrollPage(ctx, filter, lastID)
		if err != nil {
			return nil, err
		}
		docs = append(docs, batch...)
		if len(batch) < scrollPageSize {
			return docs, nil
		}
		lastID = nextID
	}
}

func (r *SchemeChunkRepository) scrollPage(ctx context.Context, filter domain.SearchFilter, afterID uuid.UUID) ([]domain.SchemeDocument, uuid.UUID, error) {
	args := []interface{}{afterID}
	conditions := []string{"id > $1"}
	if len(filter.SchemeNames) > 0 {
		args = append(args, filter.SchemeNames)
		conditions = append(conditions, fmt.Sprintf("scheme_name = ANY($%d)", len(args)))
	}
	if filter.Theme != "" {
		args = append(args, filter.Theme)
		conditions = append(conditions, fmt.Sprintf("theme = $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT id, scheme_name, theme, content, ministry, url
		FROM scheme_chunks
		WHERE %s
		ORDER BY id ASC
		LIMIT %d
	`, strings.Join(conditions, " AND "), scrollPageSize)

	rows, err := r.getExecutor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to scroll chunks: %w", err)
	}
	defer rows.Close()

	var (
		docs   []domain.SchemeDocument
		lastID uuid.UUID
	)
	for rows.Next() {
		var (
			id  uuid.UUID
			doc domain.SchemeDocument
		)
		if err := rows.Scan(&id, &doc.SchemeName, &doc.Theme, &doc.Text, &doc.Ministry, &doc.URL); err != nil {
			return nil, uuid.Nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		doc.ID = id.String()
		docs = append(docs, doc)
		lastID = id
	}
	if err := rows.Err(); err != nil {
		return nil, uuid.Nil, fmt.Errorf("rows error: %w", err)
	}
	return docs, lastID, nil
}

// Count returns the number of indexed chunks.
func (r *SchemeChunkRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.getExecutor(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM scheme_chunks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// SchemeNames returns the distinct scheme names in the corpus.
func (r *SchemeChunkRepository) SchemeNames(ctx context.Context) ([]string, error) {
	rows, err := r.getExecutor(ctx).Query(ctx, `SELECT DISTINCT scheme_name FROM scheme_chunks ORDER BY scheme_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheme names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan scheme name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return names, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
