package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/termscon/backend/internal/storage/models"
	"github.com/termscon/backend/pkg/logger"
)

var ErrNotFound = errors.New("analysis not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// PRAGMAs are per connection.
	db.SetMaxOpenConns(1)

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analysis_sessions (
		id TEXT PRIMARY KEY,
		filename TEXT,
		document_text TEXT NOT NULL,
		overall_risk TEXT NOT NULL,
		total_clauses INTEGER NOT NULL,
		low_count INTEGER NOT NULL,
		medium_count INTEGER NOT NULL,
		high_count INTEGER NOT NULL,
		critical_count INTEGER NOT NULL,
		overview TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON analysis_sessions(created_at);

	CREATE TABLE IF NOT EXISTS clause_analyses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		analysis_id TEXT NOT NULL,
		clause_index INTEGER NOT NULL,
		clause_text TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		summary TEXT NOT NULL,
		conflicts TEXT NOT NULL,
		explanation TEXT NOT NULL,
		relevant_laws TEXT NOT NULL,
		source TEXT NOT NULL,
		FOREIGN KEY (analysis_id) REFERENCES analysis_sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_clauses_analysis ON clause_analyses(analysis_id, clause_index);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// InsertAnalysis stores a session and its clauses in one transaction.
func (c *Client) InsertAnalysis(ctx context.Context, session *models.AnalysisSession, clauses []models.ClauseRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analysis_sessions (id, filename, document_text, overall_risk, total_clauses,
			low_count, medium_count, high_count, critical_count, overview, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.Filename,
		session.DocumentText,
		session.OverallRisk,
		session.TotalClauses,
		session.LowCount,
		session.MediumCount,
		session.HighCount,
		session.CriticalCount,
		session.Overview,
		session.DurationMS,
		session.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO clause_analyses (analysis_id, clause_index, clause_text, risk_level, summary,
			conflicts, explanation, relevant_laws, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare clause insert: %w", err)
	}
	defer stmt.Close()

	for _, cl := range clauses {
		conflicts, _ := json.Marshal(nonNil(cl.Conflicts))
		laws, _ := json.Marshal(nonNil(cl.RelevantLaws))
		_, err := stmt.ExecContext(ctx,
			session.ID,
			cl.ClauseIndex,
			cl.ClauseText,
			cl.RiskLevel,
			cl.Summary,
			string(conflicts),
			cl.Explanation,
			string(laws),
			cl.Source,
		)
		if err != nil {
			return fmt.Errorf("failed to insert clause %d: %w", cl.ClauseIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit analysis: %w", err)
	}

	logger.Debug("Analysis stored", zap.String("analysis_id", session.ID), zap.Int("clauses", len(clauses)))
	return nil
}

// ListAnalyses returns the newest sessions first, without document text.
func (c *Client) ListAnalyses(ctx context.Context, limit int) ([]models.AnalysisSession, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, filename, overall_risk, total_clauses, low_count, medium_count, high_count,
			critical_count, overview, duration_ms, created_at
		FROM analysis_sessions
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	sessions := []models.AnalysisSession{}
	for rows.Next() {
		var s models.AnalysisSession
		var filename sql.NullString
		var createdAt int64
		err := rows.Scan(&s.ID, &filename, &s.OverallRisk, &s.TotalClauses, &s.LowCount, &s.MediumCount,
			&s.HighCount, &s.CriticalCount, &s.Overview, &s.DurationMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		s.Filename = filename.String
		s.CreatedAt = time.UnixMilli(createdAt).UTC()
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (c *Client) GetAnalysis(ctx context.Context, id string) (*models.AnalysisDetail, error) {
	var s models.AnalysisSession
	var filename sql.NullString
	var createdAt int64

	err := c.db.QueryRowContext(ctx, `
		SELECT id, filename, document_text, overall_risk, total_clauses, low_count, medium_count,
			high_count, critical_count, overview, duration_ms, created_at
		FROM analysis_sessions WHERE id = ?`, id).Scan(
		&s.ID, &filename, &s.DocumentText, &s.OverallRisk, &s.TotalClauses, &s.LowCount, &s.MediumCount,
		&s.HighCount, &s.CriticalCount, &s.Overview, &s.DurationMS, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	s.Filename = filename.String
	s.CreatedAt = time.UnixMilli(createdAt).UTC()

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, clause_index, clause_text, risk_level, summary, conflicts, explanation, relevant_laws, source
		FROM clause_analyses WHERE analysis_id = ? ORDER BY clause_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get clauses: %w", err)
	}
	defer rows.Close()

	clauses := []models.ClauseRecord{}
	for rows.Next() {
		cl := models.ClauseRecord{AnalysisID: id}
		var conflicts, laws string
		err := rows.Scan(&cl.ID, &cl.ClauseIndex, &cl.ClauseText, &cl.RiskLevel, &cl.Summary,
			&conflicts, &cl.Explanation, &laws, &cl.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to scan clause: %w", err)
		}
		if err := json.Unmarshal([]byte(conflicts), &cl.Conflicts); err != nil {
			return nil, fmt.Errorf("failed to decode conflicts: %w", err)
		}
		if err := json.Unmarshal([]byte(laws), &cl.RelevantLaws); err != nil {
			return nil, fmt.Errorf("failed to decode laws: %w", err)
		}
		clauses = append(clauses, cl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.AnalysisDetail{Session: s, Clauses: clauses}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
