package model

import "time"

// Config holds the complete TruthGraph configuration. It is immutable after
// construction; each component receives the section it needs at build time.
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline" json:"pipeline"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	NLI       NLIConfig       `yaml:"nli" json:"nli"`
	Worker    WorkerConfig    `yaml:"worker" json:"worker"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Corpus    CorpusConfig    `yaml:"corpus" json:"corpus"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Log       LogConfig       `yaml:"log" json:"log"`
}

// PipelineConfig controls a single verification run
type PipelineConfig struct {
	MaxEvidence           int           `yaml:"max_evidence" json:"max_evidence"`                     // Top-k evidence items retrieved per claim
	ConfidenceThreshold   float64       `yaml:"confidence_threshold" json:"confidence_threshold"`     // Minimum confidence to report without warning
	SignificanceThreshold float64       `yaml:"significance_threshold" json:"significance_threshold"` // Minimum probability for a result to count as significant
	TruncationDiscount    float64       `yaml:"truncation_discount" json:"truncation_discount"`       // Weight multiplier for truncated evidence
	Deadline              time.Duration `yaml:"deadline" json:"deadline"`                             // Soft deadline; past it the run returns a partial verdict
	ScoringConcurrency    int           `yaml:"scoring_concurrency" json:"scoring_concurrency"`       // Concurrent scoring batches inside one run
}

// IndexConfig tunes the hybrid evidence index
type IndexConfig struct {
	Partitions    int     `yaml:"partitions" json:"partitions"`         // Coarse clusters for the IVF vector index
	Probes        int     `yaml:"probes" json:"probes"`                 // Clusters scanned per query
	VectorWeight  float64 `yaml:"vector_weight" json:"vector_weight"`   // Hybrid merge weight for vector similarity
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"` // Hybrid merge weight for lexical score
}

// EmbeddingConfig configures the embedding model client
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider" json:"provider"` // "openai" or any OpenAI-compatible server
	Model       string        `yaml:"model" json:"model"`
	BaseURL     string        `yaml:"base_url" json:"base_url,omitempty"`
	APIKey      string        `yaml:"-" json:"-"` // From env only, never persisted
	BatchSize   int           `yaml:"batch_size" json:"batch_size"`
	Dimension   int           `yaml:"dimension" json:"dimension"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	RateLimit   float64       `yaml:"rate_limit" json:"rate_limit"` // Requests per second to the model server
	CacheVector bool          `yaml:"cache_vectors" json:"cache_vectors"`
}

// NLIConfig configures the entailment classifier client
type NLIConfig struct {
	Provider    string        `yaml:"provider" json:"provider"`
	Model       string        `yaml:"model" json:"model"`
	BaseURL     string        `yaml:"base_url" json:"base_url,omitempty"`
	APIKey      string        `yaml:"-" json:"-"`
	BatchSize   int           `yaml:"batch_size" json:"batch_size"`
	TokenBudget int           `yaml:"token_budget" json:"token_budget"` // Per-pair input budget; evidence is truncated first
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	RateLimit   float64       `yaml:"rate_limit" json:"rate_limit"`
}

// WorkerConfig controls the task coordinator
type WorkerConfig struct {
	PoolSize      int           `yaml:"pool_size" json:"pool_size"`
	QueueCapacity int           `yaml:"queue_capacity" json:"queue_capacity"`
	MaxAttempts   int           `yaml:"max_attempts" json:"max_attempts"`
	TaskTimeout   time.Duration `yaml:"task_timeout" json:"task_timeout"`   // Hard timeout, longer than the pipeline deadline
	LeaseInterval time.Duration `yaml:"lease_interval" json:"lease_interval"` // Heartbeat period for running tasks
	ResultTTL     time.Duration `yaml:"result_ttl" json:"result_ttl"`       // Terminal tasks are garbage-collected after this
	BackoffBase   time.Duration `yaml:"backoff_base" json:"backoff_base"`   // First retry delay, doubled per attempt
}

// ServerConfig controls the HTTP ingress
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// CorpusConfig controls corpus loading
type CorpusConfig struct {
	Path         string        `yaml:"path" json:"path"` // JSONL evidence file
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
	UserAgent    string        `yaml:"user_agent" json:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
	FetchRate    float64       `yaml:"fetch_rate" json:"fetch_rate"` // Requests per second per host
}

// CacheConfig controls the embedding cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	Dir       string        `yaml:"dir" json:"dir"` // Disk layer location; empty disables the disk layer
	MemoryTTL time.Duration `yaml:"memory_ttl" json:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" json:"disk_ttl"`
}

// LogConfig controls process logging
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // "console" or "json"
}

// DefaultConfig returns the built-in defaults. They target a small local
// deployment: one inference server, a corpus that fits in memory, and a
// conservative worker pool.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			MaxEvidence:           10,
			ConfidenceThreshold:   0.5,
			SignificanceThreshold: 0.6,
			TruncationDiscount:    0.5,
			Deadline:              45 * time.Second,
			ScoringConcurrency:    4,
		},
		Index: IndexConfig{
			Partitions:    16,
			Probes:        4,
			VectorWeight:  0.5,
			LexicalWeight: 0.5,
		},
		Embedding: EmbeddingConfig{
			Provider:    "openai",
			Model:       "text-embedding-3-small",
			BatchSize:   64,
			Dimension:   1536,
			Timeout:     30 * time.Second,
			RateLimit:   10,
			CacheVector: true,
		},
		NLI: NLIConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			BatchSize:   8,
			TokenBudget: 1024,
			Timeout:     30 * time.Second,
			RateLimit:   5,
		},
		Worker: WorkerConfig{
			PoolSize:      5,
			QueueCapacity: 100,
			MaxAttempts:   3,
			TaskTimeout:   2 * time.Minute,
			LeaseInterval: 10 * time.Second,
			ResultTTL:     24 * time.Hour,
			BackoffBase:   500 * time.Millisecond,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Corpus: CorpusConfig{
			FetchTimeout: 20 * time.Second,
			UserAgent:    "TruthGraph/0.1 (+https://github.com/truthgraph/truthgraph)",
			MaxBodyBytes: 2_000_000,
			FetchRate:    1,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
