package model

import (
	"context"
)

// Classifier maps recent history plus the current message to an intent label.
// Implementations must fail closed: any provider failure resolves to
// IntentOutOfScope rather than an error.
type Classifier interface {
	Classify(ctx context.Context, history []Message, message string) Intent
}

// Completer is the black-box completion provider behind classification and
// answer generation. CompleteStream invokes onChunk for each incremental
// piece of text and returns the full concatenated output.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	CompleteStream(ctx context.Context, system, user string, onChunk func(string) error) (string, error)
}

// Chunk is one retrieved knowledge-base fragment.
type Chunk struct {
	Content string
	Source  string
}

// Retriever is the knowledge retrieval collaborator. An empty result slice is
// a valid success.
type Retriever interface {
	Retrieve(ctx context.Context, query, collection string, k int) ([]Chunk, error)
}

// CheckpointStore persists conversation state across turns keyed by session
// identifier. Load returns (nil, nil) when no checkpoint exists.
type CheckpointStore interface {
	Load(ctx context.Context, sessionID string) (*Conversation, error)
	Save(ctx context.Context, sessionID string, conv *Conversation) error
}

// HistoryStore logs turn transcripts for audit purposes, separate from
// checkpoints. Append failures must not fail the turn.
type HistoryStore interface {
	Append(ctx context.Context, sessionID string, role Role, content string, intent Intent) error
}
