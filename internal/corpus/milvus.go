package corpus

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/termscon/backend/internal/domain"
	"github.com/termscon/backend/pkg/logger"
)

const milvusPageSize = 4096

// MilvusStore keeps passages in a Milvus collection. Similarity search
// still runs in memory; Milvus only serves as the durable store.
type MilvusStore struct {
	client     client.Client
	collection string
	dim        int
}

func NewMilvusStore(ctx context.Context, endpoint, collection string, dim int) (*MilvusStore, error) {
	c, err := client.NewGrpcClient(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus corpus store initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collection),
	)

	return &MilvusStore{client: c, collection: collection, dim: dim}, nil
}

func (m *MilvusStore) Name() string {
	return "milvus:" + m.collection
}

func (m *MilvusStore) Close() error {
	return m.client.Close()
}

// EnsureCollection creates and loads the collection when it is missing.
func (m *MilvusStore) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		return m.client.LoadCollection(ctx, m.collection, false)
	}

	schema := &entity.Schema{
		CollectionName: m.collection,
		Description:    "Legal corpus passages",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     true,
			},
			{
				Name:       "corpus",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "16"},
			},
			{
				Name:       "citation",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "8192"},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.dim)},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexFlat(entity.COSINE)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collection, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := m.client.LoadCollection(ctx, m.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collection))
	return nil
}

func (m *MilvusStore) Upsert(ctx context.Context, passages []domain.LegalPassage) error {
	if len(passages) == 0 {
		return nil
	}

	corpora := make([]string, len(passages))
	citations := make([]string, len(passages))
	texts := make([]string, len(passages))
	embeddings := make([][]float32, len(passages))
	for i, p := range passages {
		corpora[i] = string(p.Corpus)
		citations[i] = p.Citation
		texts[i] = p.Text
		embeddings[i] = p.Embedding
	}

	if err := m.deleteExisting(ctx, passages); err != nil {
		return err
	}

	_, err := m.client.Insert(
		ctx,
		m.collection,
		"",
		entity.NewColumnVarChar("corpus", corpora),
		entity.NewColumnVarChar("citation", citations),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("embedding", m.dim, embeddings),
	)
	if err != nil {
		return fmt.Errorf("failed to insert passages: %w", err)
	}

	if err := m.client.Flush(ctx, m.collection, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Passages inserted into milvus", zap.Int("count", len(passages)))
	return nil
}

// deleteExisting removes rows whose (corpus, citation) is about to be
// re-inserted; Milvus has no unique constraint on them.
func (m *MilvusStore) deleteExisting(ctx context.Context, passages []domain.LegalPassage) error {
	for _, expr := range deleteExprs(passages) {
		if err := m.client.Delete(ctx, m.collection, "", expr); err != nil {
			return fmt.Errorf("failed to delete existing passages: %w", err)
		}
	}
	return nil
}

func deleteExprs(passages []domain.LegalPassage) []string {
	byCorpus := make(map[domain.CorpusID][]string)
	for _, p := range passages {
		byCorpus[p.Corpus] = append(byCorpus[p.Corpus], strconv.Quote(p.Citation))
	}
	var exprs []string
	for _, id := range domain.Corpora {
		if cites := byCorpus[id]; len(cites) > 0 {
			exprs = append(exprs, fmt.Sprintf("corpus == %q && citation in [%s]", string(id), strings.Join(cites, ", ")))
		}
	}
	return exprs
}

func (m *MilvusStore) Passages(ctx context.Context) ([]domain.LegalPassage, error) {
	if err := m.client.LoadCollection(ctx, m.collection, false); err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}

	var out []domain.LegalPassage
	for offset := int64(0); ; offset += milvusPageSize {
		rs, err := m.client.Query(
			ctx,
			m.collection,
			[]string{},
			`citation != ""`,
			[]string{"corpus", "citation", "text", "embedding"},
			client.WithOffset(offset),
			client.WithLimit(milvusPageSize),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query passages: %w", err)
		}

		page, err := passagesFromColumns(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < milvusPageSize {
			break
		}
	}
	return out, nil
}

func passagesFromColumns(cols []entity.Column) ([]domain.LegalPassage, error) {
	byName := make(map[string]entity.Column, len(cols))
	for _, c := range cols {
		byName[c.Name()] = c
	}
	for _, name := range []string{"corpus", "citation", "text", "embedding"} {
		if byName[name] == nil {
			return nil, fmt.Errorf("milvus result is missing column %q", name)
		}
	}

	n := byName["citation"].Len()
	out := make([]domain.LegalPassage, 0, n)
	for i := 0; i < n; i++ {
		corpus, _ := byName["corpus"].Get(i)
		citation, _ := byName["citation"].Get(i)
		text, _ := byName["text"].Get(i)
		vec, _ := byName["embedding"].Get(i)

		p := domain.LegalPassage{
			Corpus:   domain.CorpusID(fmt.Sprint(corpus)),
			Citation: fmt.Sprint(citation),
			Text:     fmt.Sprint(text),
		}
		switch v := vec.(type) {
		case []float32:
			p.Embedding = v
		case entity.FloatVector:
			p.Embedding = []float32(v)
		default:
			return nil, fmt.Errorf("unexpected embedding type %T for %s", vec, p.Citation)
		}
		out = append(out, p)
	}
	return out, nil
}
