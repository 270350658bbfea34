package main

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/termscon/backend/internal/cache/redis"
	"github.com/termscon/backend/internal/corpus"
	"github.com/termscon/backend/internal/llm"
	"github.com/termscon/backend/pkg/config"
	"github.com/termscon/backend/pkg/logger"
)

type globalFlags struct {
	configPath string
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:           "corpus-import",
		Short:         "Manage the embedded legal corpora used by termscon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to config.yaml (default: search ./, ./config, /etc/termscon)")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Minute, "Overall time limit")

	root.AddCommand(
		loadCmd(&g),
		exportCmd(&g),
		flushCacheCmd(&g),
	)
	return root
}

func setup(g *globalFlags) (*config.Config, context.Context, context.CancelFunc, error) {
	cfg, err := config.LoadFile(g.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := logger.Init(cfg.Logging.Level, "console", "stderr"); err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	return cfg, ctx, cancel, nil
}

func loadCmd(g *globalFlags) *cobra.Command {
	var (
		input     string
		target    string
		out       string
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Import JSONL passages into a corpus store, embedding any without a vector",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, cancel, err := setup(g)
			if err != nil {
				return err
			}
			defer cancel()
			defer logger.Sync()

			s3opts := s3Options(cfg.Corpus)
			rc, err := corpus.OpenURI(ctx, input, s3opts)
			if err != nil {
				return err
			}
			records, err := corpus.DecodeJSONL(rc)
			rc.Close()
			if err != nil {
				return err
			}

			embedder, err := llm.NewEmbedder(ctx, cfg.Embedding, embeddingBaseURL(cfg))
			if err != nil {
				return err
			}
			var batch corpus.BatchEmbedder
			if embedder != nil {
				batch = embedder
			}

			passages, err := corpus.Prepare(ctx, records, batch, cfg.Embedding.Dimension)
			if err != nil {
				return err
			}

			if target == "" {
				target = cfg.Corpus.Source
			}
			sink, closeSink, err := openSink(ctx, cfg, target, out)
			if err != nil {
				return err
			}
			defer closeSink()

			if err := corpus.UpsertBatches(ctx, sink, passages, batchSize); err != nil {
				return err
			}

			logger.Info("Corpus import completed",
				zap.String("sink", sink.Name()),
				zap.Int("records", len(records)),
				zap.Int("passages", len(passages)),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d passages into %s\n", len(passages), sink.Name())
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "JSONL file or s3://bucket/key")
	cmd.Flags().StringVar(&target, "target", "", "sqlite, postgres or milvus (default: corpus.source)")
	cmd.Flags().StringVar(&out, "out", "", "SQLite file for target sqlite (default: corpus.path)")
	cmd.Flags().IntVar(&batchSize, "batch", 500, "Passages per write")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func openSink(ctx context.Context, cfg *config.Config, target, out string) (corpus.Sink, func(), error) {
	switch target {
	case "sqlite":
		path := out
		if path == "" {
			path = cfg.Corpus.Path
		}
		s, err := corpus.CreateSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "postgres":
		s, err := corpus.NewPostgresStore(ctx, cfg.Corpus.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := s.InitSchema(ctx, cfg.Embedding.Dimension); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	case "milvus":
		s, err := corpus.NewMilvusStore(ctx, cfg.Corpus.MilvusEndpoint, cfg.Corpus.MilvusCollection, cfg.Embedding.Dimension)
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureCollection(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported import target %q", target)
	}
}

func exportCmd(g *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the configured corpus source as a JSONL snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, cancel, err := setup(g)
			if err != nil {
				return err
			}
			defer cancel()
			defer logger.Sync()

			src, closeSrc, err := corpus.OpenSource(ctx, cfg.Corpus, cfg.Embedding.Dimension)
			if err != nil {
				return err
			}
			defer closeSrc()

			passages, err := src.Passages(ctx)
			if err != nil {
				return err
			}
			if _, err := corpus.NewIndex(cfg.Embedding.Dimension, passages); err != nil {
				return fmt.Errorf("refusing to export an invalid corpus: %w", err)
			}

			var buf bytes.Buffer
			if err := corpus.EncodeJSONL(&buf, passages); err != nil {
				return err
			}
			if err := corpus.PutURI(ctx, output, s3Options(cfg.Corpus), &buf); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "exported %d passages from %s to %s\n", len(passages), src.Name(), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "Destination file or s3://bucket/key")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func flushCacheCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "flush-cache",
		Short: "Drop cached model replies, e.g. after changing the corpus or prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, cancel, err := setup(g)
			if err != nil {
				return err
			}
			defer cancel()

			client, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return err
			}
			defer client.Close()

			n, err := client.InvalidateCompletions(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached replies\n", n)
			return nil
		},
	}
}

func s3Options(c config.CorpusConfig) corpus.S3Options {
	return corpus.S3Options{Region: c.S3Region, AccessKey: c.S3AccessKey, SecretKey: c.S3SecretKey}
}

func embeddingBaseURL(cfg *config.Config) string {
	if cfg.Embedding.Provider == cfg.LLM.Provider {
		return cfg.LLM.BaseURL
	}
	return ""
}
