package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/termscon/backend/internal/domain"
)

// Record is one line of a JSONL corpus snapshot. Embedding may be absent
// in import input, in which case the import tool computes it.
type Record struct {
	Corpus    string    `json:"corpus"`
	Citation  string    `json:"citation"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
}

type S3Options struct {
	Region    string
	AccessKey string
	SecretKey string
}

// SnapshotSource reads a JSONL snapshot from a local path or an
// s3://bucket/key URI.
type SnapshotSource struct {
	uri string
	s3  S3Options
}

func NewSnapshotSource(uri string, opts S3Options) *SnapshotSource {
	return &SnapshotSource{uri: uri, s3: opts}
}

func (s *SnapshotSource) Name() string {
	return "snapshot:" + s.uri
}

func (s *SnapshotSource) Passages(ctx context.Context) ([]domain.LegalPassage, error) {
	rc, err := OpenURI(ctx, s.uri, s.s3)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	records, err := DecodeJSONL(rc)
	if err != nil {
		return nil, err
	}

	out := make([]domain.LegalPassage, len(records))
	for i, r := range records {
		if len(r.Embedding) == 0 {
			return nil, fmt.Errorf("snapshot record %s %s has no embedding", r.Corpus, r.Citation)
		}
		out[i] = r.Passage()
	}
	return out, nil
}

func (r Record) Passage() domain.LegalPassage {
	return domain.LegalPassage{
		Corpus:    domain.CorpusID(strings.ToLower(strings.TrimSpace(r.Corpus))),
		Citation:  strings.TrimSpace(r.Citation),
		Text:      strings.TrimSpace(r.Text),
		Embedding: r.Embedding,
	}
}

// OpenURI opens a local file or an S3 object.
func OpenURI(ctx context.Context, uri string, opts S3Options) (io.ReadCloser, error) {
	bucket, key, ok := parseS3URI(uri)
	if !ok {
		f, err := os.Open(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot: %w", err)
		}
		return f, nil
	}

	client, err := newS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download snapshot from S3: %w", err)
	}
	return result.Body, nil
}

// PutURI writes body to a local file or an S3 object.
func PutURI(ctx context.Context, uri string, opts S3Options, body io.Reader) error {
	bucket, key, ok := parseS3URI(uri)
	if !ok {
		f, err := os.Create(uri)
		if err != nil {
			return fmt.Errorf("failed to create snapshot: %w", err)
		}
		defer f.Close()
		if _, err := io.Copy(f, body); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
		return f.Sync()
	}

	client, err := newS3Client(ctx, opts)
	if err != nil {
		return err
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot to S3: %w", err)
	}
	return nil
}

func newS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

func parseS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// DecodeJSONL reads one Record per non-blank line.
func DecodeJSONL(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []Record
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("snapshot line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return out, nil
}

func EncodeJSONL(w io.Writer, passages []domain.LegalPassage) error {
	enc := json.NewEncoder(w)
	for _, p := range passages {
		rec := Record{Corpus: string(p.Corpus), Citation: p.Citation, Text: p.Text, Embedding: p.Embedding}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", p.Corpus, p.Citation, err)
		}
	}
	return nil
}
