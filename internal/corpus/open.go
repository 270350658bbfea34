package corpus

import (
	"context"
	"fmt"

	"github.com/termscon/backend/pkg/config"
)

// OpenSource builds the configured corpus source. The returned close func
// releases any connection the source holds.
func OpenSource(ctx context.Context, cfg config.CorpusConfig, dim int) (Source, func(), error) {
	switch cfg.Source {
	case "sqlite":
		s, err := OpenSQLiteStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "milvus":
		s, err := NewMilvusStore(ctx, cfg.MilvusEndpoint, cfg.MilvusCollection, dim)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "snapshot":
		s := NewSnapshotSource(cfg.SnapshotURI, S3Options{
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		return s, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown corpus source %q", cfg.Source)
	}
}
