package identity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// pgvectorCandidates are fetched by the vector operator and re-ranked exactly.
const pgvectorCandidates = 8

// PgxPool is the subset of pgxpool.Pool used here (compatible with pgxmock)
type PgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PGVectorIndex searches the identity_embeddings table with pgvector's L2
// operator. The float4 vector column drives the search; the float8 copy
// decides the winner.
type PGVectorIndex struct {
	pool PgxPool
}

func NewPGVectorIndex(pool PgxPool) *PGVectorIndex {
	return &PGVectorIndex{pool: pool}
}

func (p *PGVectorIndex) Nearest(ctx context.Context, embedding []float64) (Match, bool, error) {
	query := `
		SELECT identity_id, embedding_exact
		FROM identity_embeddings
		WHERE vector_dims(embedding) = $2
		ORDER BY embedding <-> $1, identity_id
		LIMIT $3
	`

	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(toFloat32(embedding)), len(embedding), pgvectorCandidates)
	if err != nil {
		return Match{}, false, fmt.Errorf("search embeddings: %w", err)
	}
	defer rows.Close()

	candidates := make(map[string][]float64, pgvectorCandidates)
	for rows.Next() {
		var id string
		var exact []float64
		if err := rows.Scan(&id, &exact); err != nil {
			return Match{}, false, fmt.Errorf("scan embedding: %w", err)
		}
		candidates[id] = exact
	}
	if err := rows.Err(); err != nil {
		return Match{}, false, fmt.Errorf("iterate embeddings: %w", err)
	}

	m, ok := rerank(embedding, candidates)
	return m, ok, nil
}

func (p *PGVectorIndex) Upsert(ctx context.Context, id string, embedding []float64) error {
	query := `
		INSERT INTO identity_embeddings (identity_id, embedding, embedding_exact, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (identity_id) DO UPDATE
		SET embedding = EXCLUDED.embedding,
		    embedding_exact = EXCLUDED.embedding_exact,
		    updated_at = NOW()
	`

	if _, err := p.pool.Exec(ctx, query, id, pgvector.NewVector(toFloat32(embedding)), embedding); err != nil {
		return fmt.Errorf("upsert embedding %s: %w", id, err)
	}
	return nil
}

func (p *PGVectorIndex) Reset(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM identity_embeddings`); err != nil {
		return fmt.Errorf("reset embeddings: %w", err)
	}
	return nil
}
