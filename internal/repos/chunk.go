package repos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/technova/corpusd/internal/logger"
)

// RetrievedChunk is a chunk row joined with its document and source, as the
// retrieval pipeline consumes it. Distance is populated only by the vector
// path; Score is assigned later by reranking.
type RetrievedChunk struct {
	ChunkID     uuid.UUID `gorm:"column:chunk_id"`
	DocumentID  uuid.UUID `gorm:"column:document_id"`
	Title       string    `gorm:"column:title"`
	URL         string    `gorm:"column:url"`
	HeadingPath *string   `gorm:"column:heading_path"`
	SourceName  string    `gorm:"column:source_name"`
	Text        string    `gorm:"column:text"`
	Distance    float64   `gorm:"column:distance"`
	Score       float64   `gorm:"-"`
}

type SimilaritySearchParams struct {
	WorkspaceID uuid.UUID
	Scope       ACLScope
	Vector      pgvector.Vector
	SourceIDs   []uuid.UUID
	Limit       int
}

type KeywordSearchParams struct {
	WorkspaceID uuid.UUID
	Scope       ACLScope
	Terms       []string
	SourceIDs   []uuid.UUID
	Limit       int
}

type ChunkRepo interface {
	SearchBySimilarity(ctx context.Context, tx *gorm.DB, params SimilaritySearchParams) ([]*RetrievedChunk, error)
	SearchByKeywords(ctx context.Context, tx *gorm.DB, params KeywordSearchParams) ([]*RetrievedChunk, error)
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	repoLog := baseLog.With("repo", "ChunkRepo")
	return &chunkRepo{db: db, log: repoLog}
}

const retrievedChunkSelect = `
	SELECT c.id AS chunk_id, c.document_id, c.heading_path, c.text,
	       d.title, d.canonical_url AS url, s.name AS source_name`

const retrievedChunkJoins = `
	FROM chunk c
	JOIN document d ON d.id = c.document_id
	JOIN source s ON s.id = d.source_id`

func (r *chunkRepo) SearchBySimilarity(ctx context.Context, tx *gorm.DB, params SimilaritySearchParams) ([]*RetrievedChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if params.Limit <= 0 {
		return []*RetrievedChunk{}, nil
	}

	acl, aclArgs := aclPredicate(params.Scope)

	query := retrievedChunkSelect + `,
	       (e.vector <=> ?) AS distance` + retrievedChunkJoins + `
	JOIN embedding e ON e.chunk_id = c.id
	WHERE s.workspace_id = ? AND s.status = 'active' AND ` + acl
	args := []any{params.Vector, params.WorkspaceID}
	args = append(args, aclArgs...)

	if len(params.SourceIDs) > 0 {
		query += `
	  AND d.source_id IN ?`
		args = append(args, params.SourceIDs)
	}

	query += `
	ORDER BY e.vector <=> ?
	LIMIT ?`
	args = append(args, params.Vector, params.Limit)

	var results []*RetrievedChunk
	if err := transaction.WithContext(ctx).Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chunkRepo) SearchByKeywords(ctx context.Context, tx *gorm.DB, params KeywordSearchParams) ([]*RetrievedChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if params.Limit <= 0 || len(params.Terms) == 0 {
		return []*RetrievedChunk{}, nil
	}

	acl, aclArgs := aclPredicate(params.Scope)

	query := retrievedChunkSelect + retrievedChunkJoins + `
	WHERE s.workspace_id = ? AND s.status = 'active' AND ` + acl
	args := []any{params.WorkspaceID}
	args = append(args, aclArgs...)

	if len(params.SourceIDs) > 0 {
		query += `
	  AND d.source_id IN ?`
		args = append(args, params.SourceIDs)
	}

	matches := make([]string, 0, len(params.Terms))
	for _, term := range params.Terms {
		matches = append(matches, "c.text ILIKE ?")
		args = append(args, "%"+escapeLike(term)+"%")
	}
	query += `
	  AND (` + strings.Join(matches, " OR ") + `)
	LIMIT ?`
	args = append(args, params.Limit)

	var results []*RetrievedChunk
	if err := transaction.WithContext(ctx).Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}
