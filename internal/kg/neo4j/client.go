package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/termscon/backend/internal/analysis"
	"github.com/termscon/backend/pkg/circuitbreaker"
	"github.com/termscon/backend/pkg/logger"
	"github.com/termscon/backend/pkg/retry"
)

// Client exports completed analyses as (:Document)-[:HAS_CLAUSE]->
// (:Clause)-[:CITES]->(:Law) graphs.
type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	log := logger.Named("neo4j")
	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           log,
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         log,
	}

	if database == "" {
		database = "neo4j"
	}

	log.Info("Neo4j client initialized", zap.String("uri", uri), zap.String("database", database))

	return &Client{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) executeWrite(ctx context.Context, work neo4j.ManagedTransactionWork) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, c.retryConfig, func(ctx context.Context) error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)
			_, err := session.ExecuteWrite(ctx, work)
			return err
		})
	})
}

// ExportCitations writes the document, its clauses and every cited law.
// Law nodes are shared across documents so repeated citations accumulate.
func (c *Client) ExportCitations(ctx context.Context, report *analysis.Report) error {
	doc, clauses := citationRows(report)

	err := c.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (d:Document {id: $id})
			SET d.filename = $filename,
			    d.overall_risk = $overall_risk,
			    d.total_clauses = $total_clauses,
			    d.created_at = $created_at
		`, doc)
		if err != nil {
			return nil, fmt.Errorf("failed to merge document: %w", err)
		}

		_, err = tx.Run(ctx, `
			MATCH (d:Document {id: $id})
			UNWIND $clauses AS cl
			MERGE (c:Clause {id: cl.id})
			SET c.index = cl.index,
			    c.risk_level = cl.risk_level,
			    c.source = cl.source,
			    c.summary = cl.summary
			MERGE (d)-[:HAS_CLAUSE]->(c)
			WITH c, cl
			UNWIND cl.laws AS citation
			MERGE (l:Law {citation: citation})
			MERGE (c)-[:CITES]->(l)
		`, map[string]any{"id": doc["id"], "clauses": clauses})
		if err != nil {
			return nil, fmt.Errorf("failed to merge clauses: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	logger.Debug("Citation graph exported",
		zap.String("analysis_id", report.ID.String()),
		zap.Int("clauses", len(clauses)),
	)
	return nil
}

func citationRows(report *analysis.Report) (map[string]any, []map[string]any) {
	id := report.ID.String()
	doc := map[string]any{
		"id":            id,
		"filename":      report.Filename,
		"overall_risk":  report.Summary.OverallRisk.String(),
		"total_clauses": report.Summary.TotalClauses,
		"created_at":    report.CreatedAt.UnixMilli(),
	}

	clauses := make([]map[string]any, 0, len(report.Results))
	for _, r := range report.Results {
		laws := make([]any, 0, len(r.RelevantLaws))
		for _, l := range r.RelevantLaws {
			laws = append(laws, l)
		}
		clauses = append(clauses, map[string]any{
			"id":         fmt.Sprintf("%s:%d", id, r.ClauseIndex),
			"index":      r.ClauseIndex,
			"risk_level": r.RiskLevel.String(),
			"source":     string(r.Source),
			"summary":    r.Summary,
			"laws":       laws,
		})
	}
	return doc, clauses
}
