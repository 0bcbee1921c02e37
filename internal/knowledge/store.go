// Package knowledge is the retrieval collaborator: an embedded vector store
// holding chunked knowledge-base documents, queried by similarity.
package knowledge

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/support-agent/server/internal/agent/model"
	logx "github.com/support-agent/server/pkg/logger"
)

// Store wraps a persistent chromem database. It is safe for concurrent use
// by multiple in-flight turns.
type Store struct {
	db        *chromem.DB
	embedFunc chromem.EmbeddingFunc
	cfg       model.KnowledgeConfig
}

// NewStore opens (or creates) the vector database under cfg.DataDir and
// ensures the configured collection exists.
func NewStore(embedder Embedder, cfg model.KnowledgeConfig) (*Store, error) {
	db, err := chromem.NewPersistentDB(cfg.DataDir, true)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	ef := toChromemFunc(embedder)
	if _, err := db.GetOrCreateCollection(cfg.Collection, nil, ef); err != nil {
		return nil, fmt.Errorf("create collection %q: %w", cfg.Collection, err)
	}

	return &Store{db: db, embedFunc: ef, cfg: cfg}, nil
}

// Retrieve returns the k most similar chunks from the named collection. An
// empty result is a valid success.
func (s *Store) Retrieve(ctx context.Context, query, collection string, k int) ([]model.Chunk, error) {
	col, err := s.db.GetOrCreateCollection(collection, nil, s.embedFunc)
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", collection, err)
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	// chromem requires nResults <= collection size.
	if k > count {
		k = count
	}

	results, err := col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	chunks := make([]model.Chunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, model.Chunk{
			Content: r.Content,
			Source:  r.Metadata["source"],
		})
	}
	return chunks, nil
}

// Ingest chunks a document and adds it to the named collection. Returns the
// number of chunks written.
func (s *Store) Ingest(ctx context.Context, collection, source, content string) (int, error) {
	col, err := s.db.GetOrCreateCollection(collection, nil, s.embedFunc)
	if err != nil {
		return 0, fmt.Errorf("collection %q: %w", collection, err)
	}

	pieces := SplitText(content, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if len(pieces) == 0 {
		return 0, nil
	}

	docs := make([]chromem.Document, 0, len(pieces))
	for i, piece := range pieces {
		docs = append(docs, chromem.Document{
			ID:      uuid.New().String(),
			Content: piece,
			Metadata: map[string]string{
				"source":       source,
				"chunk_index":  strconv.Itoa(i),
				"total_chunks": strconv.Itoa(len(pieces)),
			},
		})
	}

	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return 0, fmt.Errorf("add documents: %w", err)
	}

	logx.Info().
		Str("source", source).
		Str("collection", collection).
		Int("chunks", len(docs)).
		Msg("document ingested")
	return len(docs), nil
}

// Count reports the number of chunks in the named collection; used by the
// health probe.
func (s *Store) Count(collection string) (int, error) {
	col, err := s.db.GetOrCreateCollection(collection, nil, s.embedFunc)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

var _ model.Retriever = (*Store)(nil)
