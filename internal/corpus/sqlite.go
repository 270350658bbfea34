package corpus

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/pkg/logger"
)

// SQLiteStore keeps passages in a single table with embeddings encoded as
// little-endian float32 BLOBs.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLiteStore opens an existing corpus file read-only. A missing file
// is an error rather than an empty corpus.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("corpus file %s: %w", path, err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open corpus database: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// CreateSQLiteStore opens or creates a writable corpus file and ensures
// the schema exists.
func CreateSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus database: %w", err)
	}
	s := &SQLiteStore{db: db, path: path}
	if err := s.InitSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite corpus store initialized", zap.String("path", path))
	return s, nil
}

func (s *SQLiteStore) Name() string {
	return "sqlite:" + s.path
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS legal_passages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		corpus TEXT NOT NULL,
		citation TEXT NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		UNIQUE (corpus, citation)
	);
	CREATE INDEX IF NOT EXISTS idx_passages_corpus ON legal_passages(corpus);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create corpus schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Passages(ctx context.Context) ([]domain.LegalPassage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT corpus, citation, text, embedding FROM legal_passages ORDER BY corpus, citation`)
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer rows.Close()

	var out []domain.LegalPassage
	for rows.Next() {
		var (
			corpus string
			p      domain.LegalPassage
			blob   []byte
		)
		if err := rows.Scan(&corpus, &p.Citation, &p.Text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		p.Corpus = domain.CorpusID(corpus)
		p.Embedding, err = DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("passage %s %s: %w", corpus, p.Citation, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Upsert(ctx context.Context, passages []domain.LegalPassage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO legal_passages (corpus, citation, text, embedding)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (corpus, citation) DO UPDATE SET text = excluded.text, embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range passages {
		if _, err := stmt.ExecContext(ctx, string(p.Corpus), p.Citation, p.Text, EncodeEmbedding(p.Embedding)); err != nil {
			return fmt.Errorf("failed to upsert %s %s: %w", p.Corpus, p.Citation, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit passages: %w", err)
	}
	return nil
}

func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.New("embedding blob length is not a multiple of 4")
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}
