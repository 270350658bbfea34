package corpus

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/pkg/logger"
)

// PostgresStore reads and writes passages in a pgvector-backed table.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	logger.Info("PostgreSQL corpus store connected")
	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) Name() string {
	return "postgres"
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) InitSchema(ctx context.Context, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS legal_passages (
			id BIGSERIAL PRIMARY KEY,
			corpus TEXT NOT NULL,
			citation TEXT NOT NULL,
			chunk_text TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			UNIQUE (corpus, citation)
		)`, dim),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create corpus schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Passages(ctx context.Context) ([]domain.LegalPassage, error) {
	rows, err := s.db.Query(ctx,
		`SELECT corpus, citation, chunk_text, embedding::text FROM legal_passages ORDER BY corpus, citation`)
	if err != nil {
		return nil, fmt.Errorf("failed to query legal passages: %w", err)
	}
	defer rows.Close()

	var out []domain.LegalPassage
	for rows.Next() {
		var (
			corpus, vec string
			p           domain.LegalPassage
		)
		if err := rows.Scan(&corpus, &p.Citation, &p.Text, &vec); err != nil {
			return nil, fmt.Errorf("failed to scan legal passage: %w", err)
		}
		p.Corpus = domain.CorpusID(corpus)
		p.Embedding, err = parseVector(vec)
		if err != nil {
			return nil, fmt.Errorf("passage %s %s: %w", corpus, p.Citation, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating legal passages: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, passages []domain.LegalPassage) error {
	for _, p := range passages {
		_, err := s.db.Exec(ctx, `
			INSERT INTO legal_passages (corpus, citation, chunk_text, embedding)
			VALUES ($1, $2, $3, $4::vector)
			ON CONFLICT (corpus, citation) DO UPDATE
			SET chunk_text = EXCLUDED.chunk_text, embedding = EXCLUDED.embedding`,
			string(p.Corpus), p.Citation, p.Text, formatVector(p.Embedding))
		if err != nil {
			return fmt.Errorf("failed to upsert %s %s: %w", p.Corpus, p.Citation, err)
		}
	}
	logger.Debug("Passages upserted into postgres", zap.Int("count", len(passages)))
	return nil
}

// formatVector renders an embedding in pgvector text form.
func formatVector(v []float32) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(float64(x), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("malformed vector literal %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []float32{}, nil
	}
	fields := strings.Split(body, ",")
	out := make([]float32, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector component %q: %w", f, err)
		}
		out[i] = float32(x)
	}
	return out, nil
}
