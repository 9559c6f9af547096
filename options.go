package docqa

import (
	"go.uber.org/zap"
)

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	driver   string
	addrs    []string
	password string
	dataDir  string

	collection string

	apiKey  string
	baseURL string

	embedModel       string
	dimensions       int
	embedInstruction string
	genModel         string
	temperature      float32

	chunkSize    int
	chunkOverlap int
	batchSize    int
	sources      []string

	expansionN      int
	perVariantK     int
	maxContextChars int

	embedder  Embedder
	generator Generator
	logger    *zap.Logger
}

// WithRedis stores the index in Redis Stack (FT.SEARCH based KNN).
func WithRedis(addrs []string, password string) Option {
	return func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = addrs
		c.password = password
	}
}

// WithSQLite stores the index in an embedded SQLite database under dataDir.
// Suits single-node corpora without a Redis deployment.
func WithSQLite(dataDir string) Option {
	return func(c *clientConfig) {
		c.driver = "sqlite"
		c.dataDir = dataDir
	}
}

// WithCollection sets the collection name. Defaults to "corpus".
func WithCollection(name string) Option {
	return func(c *clientConfig) {
		c.collection = name
	}
}

// WithOpenAI configures the OpenAI-compatible provider used for both
// embeddings and generation. baseURL may point at any compatible API.
func WithOpenAI(apiKey, baseURL string) Option {
	return func(c *clientConfig) {
		c.apiKey = apiKey
		c.baseURL = baseURL
	}
}

// WithEmbeddingModel sets the embedding model and its vector width.
func WithEmbeddingModel(model string, dimensions int) Option {
	return func(c *clientConfig) {
		c.embedModel = model
		c.dimensions = dimensions
	}
}

// WithEmbeddingInstruction prepends an instruction prefix to every text
// before embedding, for models trained with instruction-style inputs
// (e.g. "passage: " / "query: " prefixes).
func WithEmbeddingInstruction(instruction string) Option {
	return func(c *clientConfig) {
		c.embedInstruction = instruction
	}
}

// WithGenerationModel sets the chat model used for query expansion and
// answer synthesis.
func WithGenerationModel(model string, temperature float32) Option {
	return func(c *clientConfig) {
		c.genModel = model
		c.temperature = temperature
	}
}

// WithChunking overrides the chunk size and overlap in characters.
func WithChunking(size, overlap int) Option {
	return func(c *clientConfig) {
		c.chunkSize = size
		c.chunkOverlap = overlap
	}
}

// WithSources sets the corpus files and directories to ingest.
func WithSources(paths ...string) Option {
	return func(c *clientConfig) {
		c.sources = paths
	}
}

// WithBatchSize sets how many chunks are embedded per provider call.
func WithBatchSize(n int) Option {
	return func(c *clientConfig) {
		c.batchSize = n
	}
}

// WithRetrieval tunes the query-time pipeline: the number of paraphrases,
// the KNN depth per variant, and the context character budget.
func WithRetrieval(expansionN, perVariantK, maxContextChars int) Option {
	return func(c *clientConfig) {
		c.expansionN = expansionN
		c.perVariantK = perVariantK
		c.maxContextChars = maxContextChars
	}
}

// WithEmbedder plugs in a custom embedding provider instead of OpenAI.
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithGenerator plugs in a custom generative model instead of OpenAI.
func WithGenerator(g Generator) Option {
	return func(c *clientConfig) {
		c.generator = g
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}
