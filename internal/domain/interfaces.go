package domain

import "context"

// Document represents the single source text loaded into the system.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is an ordered, possibly overlapping fragment of a document used for retrieval.
// SourceOffset is the byte offset of the chunk's first word in Document.Content.
type Chunk struct {
	Index        int
	Text         string
	SourceOffset int
}

// Embedding is the vector for the chunk with the same index.
type Embedding struct {
	ChunkIndex int
	Vector     []float64
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the conversation history.
type Turn struct {
	Role Role
	Text string
}

// CompletionRequest carries everything the completion step needs for one turn.
type CompletionRequest struct {
	Preamble string
	Context  string
	History  []Turn
	Prompt   string
}

// EmbeddingProvider maps text to fixed-dimension vectors.
// EmbedBatch preserves input order.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Preparer is implemented by embedding providers that must see the corpus before embedding.
type Preparer interface {
	Prepare(corpus []string) error
}

// CompletionProvider generates the assistant reply for a turn.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// DocumentSource turns a path into raw document text.
type DocumentSource interface {
	Load(ctx context.Context, path string) (Document, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
