package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Documents    DocumentsConfig    `yaml:"documents"`
	Chunking     ChunkingConfig     `yaml:"chunking,omitempty"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Generation   GenerationConfig   `yaml:"generation"`
	Index        IndexConfig        `yaml:"index,omitempty"`
	Conversation ConversationConfig `yaml:"conversation,omitempty"`
	Search       SearchConfig       `yaml:"search,omitempty"`
	Server       ServerConfig       `yaml:"server,omitempty"`
}

// DocumentsConfig holds document discovery configuration
type DocumentsConfig struct {
	// Directory scanned recursively for source documents
	Dir string `yaml:"dir"`

	// File extensions considered documents (default: .pdf, .txt, .md)
	Extensions []string `yaml:"extensions,omitempty"`

	// Exclude patterns (doublestar globs, matched against relative paths)
	Exclude []string `yaml:"exclude,omitempty"`

	// Per-file extraction timeout in seconds
	ExtractTimeoutSecs int `yaml:"extract_timeout_secs,omitempty"`
}

// ChunkingConfig controls how document text is split before embedding
type ChunkingConfig struct {
	Size    int `yaml:"size,omitempty"`    // Chunk size in characters
	Overlap int `yaml:"overlap,omitempty"` // Overlap between adjacent chunks
}

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "ollama" | "openai"

	// Ollama specific
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`

	// OpenAI specific
	OpenAIAPIKey string `yaml:"openai_api_key,omitempty"`
	OpenAIModel  string `yaml:"openai_model,omitempty"`

	// Embedding parameters
	Dimensions  int `yaml:"dimensions"`             // Vector dimension produced by the model
	BatchSize   int `yaml:"batch_size"`             // Batch size for embedding calls
	TimeoutSecs int `yaml:"timeout_secs,omitempty"` // Per-call timeout
}

// GenerationConfig holds generation (LLM) service configuration
type GenerationConfig struct {
	Provider string `yaml:"provider"` // "ollama" | "openai"

	// Ollama specific
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`

	// OpenAI specific
	OpenAIAPIKey string `yaml:"openai_api_key,omitempty"`
	OpenAIModel  string `yaml:"openai_model,omitempty"`

	TimeoutSecs int     `yaml:"timeout_secs,omitempty"` // Per-call timeout
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
}

// IndexConfig holds vector index configuration
type IndexConfig struct {
	// Directory holding the index database and the keyword index
	// If empty, uses ~/.pdfchat/index
	Dir string `yaml:"dir,omitempty"`
}

// ConversationConfig holds conversation store configuration
type ConversationConfig struct {
	// Path to the conversations SQLite database
	// If empty, uses ~/.pdfchat/conversations.db
	Path string `yaml:"path,omitempty"`

	// HistoryTurns bounds how many recent turns are fed back into prompts
	HistoryTurns int `yaml:"history_turns,omitempty"`
}

// SearchConfig holds retrieval configuration
type SearchConfig struct {
	TopK          int     `yaml:"top_k,omitempty"`          // Number of chunks retrieved per query
	MinScore      float32 `yaml:"min_score,omitempty"`      // Results below this similarity are dropped
	Hybrid        bool    `yaml:"hybrid"`                   // Blend keyword hits into vector results
	VectorWeight  float32 `yaml:"vector_weight,omitempty"`  // Vector score weight (0-1)
	KeywordWeight float32 `yaml:"keyword_weight,omitempty"` // Keyword score weight (0-1)
	ContextChars  int     `yaml:"context_chars,omitempty"`  // Prompt budget for retrieved context
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// Load loads configuration from the default config file
// Default location: ~/.pdfchat/config.yaml
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".pdfchat", "config.yaml")
	return LoadFromFile(configPath)
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			homeDir, _ := os.UserHomeDir()
			defaultPath := filepath.Join(homeDir, ".pdfchat", "config.yaml")
			return nil, &ConfigNotFoundError{
				RequestedPath: path,
				DefaultPath:   defaultPath,
			}
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ConfigNotFoundError is returned when config file is not found
type ConfigNotFoundError struct {
	RequestedPath string
	DefaultPath   string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found at: %s\n\nDefault location: %s\n\nYou can:\n"+
		"  1. Create the config file at the default location\n"+
		"  2. Specify a custom path with -config flag\n"+
		"  3. Run 'pdfchat index' once to create a template config",
		e.RequestedPath, e.DefaultPath)
}

// IsConfigNotFound checks if error is config not found
func IsConfigNotFound(err error) bool {
	_, ok := err.(*ConfigNotFoundError)
	return ok
}

// expandPath expands ~ and $HOME to the user's home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "$HOME/") || path == "$HOME" {
		homeDir := os.Getenv("HOME")
		if homeDir == "" {
			var err error
			homeDir, err = os.UserHomeDir()
			if err != nil {
				return path
			}
		}
		if path == "$HOME" {
			return homeDir
		}
		return filepath.Join(homeDir, path[6:])
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return homeDir
		}
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// expandEnv resolves ${VAR} references so secrets can live in the environment
// (or a .env file) instead of the config file
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if len(c.Documents.Extensions) == 0 {
		c.Documents.Extensions = []string{".pdf", ".txt", ".md"}
	}
	if c.Documents.ExtractTimeoutSecs == 0 {
		c.Documents.ExtractTimeoutSecs = 60
	}
	c.Documents.Dir = expandPath(c.Documents.Dir)

	if c.Chunking.Size == 0 {
		c.Chunking.Size = 1024
	}
	if c.Chunking.Overlap == 0 {
		c.Chunking.Overlap = 200
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "ollama"
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "http://localhost:11434"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "nomic-embed-text"
	}
	if c.Embedding.OpenAIModel == "" {
		c.Embedding.OpenAIModel = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions == 0 {
		c.Embedding.Dimensions = 768
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 10
	}
	if c.Embedding.TimeoutSecs == 0 {
		c.Embedding.TimeoutSecs = 30
	}
	c.Embedding.OpenAIAPIKey = expandEnv(c.Embedding.OpenAIAPIKey)

	if c.Generation.Provider == "" {
		c.Generation.Provider = "ollama"
	}
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = "http://localhost:11434"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "llama3.1"
	}
	if c.Generation.OpenAIModel == "" {
		c.Generation.OpenAIModel = "gpt-4o-mini"
	}
	if c.Generation.TimeoutSecs == 0 {
		c.Generation.TimeoutSecs = 120
	}
	if c.Generation.Temperature == 0 {
		c.Generation.Temperature = 0.2
	}
	c.Generation.OpenAIAPIKey = expandEnv(c.Generation.OpenAIAPIKey)

	if c.Index.Dir != "" {
		c.Index.Dir = expandPath(c.Index.Dir)
	}
	if c.Conversation.Path != "" {
		c.Conversation.Path = expandPath(c.Conversation.Path)
	}
	if c.Conversation.HistoryTurns == 0 {
		c.Conversation.HistoryTurns = 6
	}

	if c.Search.TopK == 0 {
		c.Search.TopK = 5
	}
	if c.Search.VectorWeight == 0 && c.Search.KeywordWeight == 0 {
		c.Search.VectorWeight = 0.7
		c.Search.KeywordWeight = 0.3
	}
	if c.Search.ContextChars == 0 {
		c.Search.ContextChars = 6000
	}

	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Documents.Dir == "" {
		return fmt.Errorf("documents.dir is required")
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got: %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking.overlap must not be negative, got: %d", c.Chunking.Overlap)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap (%d) must be smaller than chunking.size (%d)",
			c.Chunking.Overlap, c.Chunking.Size)
	}

	switch c.Embedding.Provider {
	case "ollama":
		// base_url has a local default, nothing mandatory
	case "openai":
		if c.Embedding.OpenAIAPIKey == "" {
			return fmt.Errorf("openai embedding provider requires openai_api_key")
		}
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}

	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got: %d", c.Embedding.Dimensions)
	}
	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 100 {
		return fmt.Errorf("embedding.batch_size must be between 1 and 100, got: %d", c.Embedding.BatchSize)
	}

	switch c.Generation.Provider {
	case "ollama":
	case "openai":
		if c.Generation.OpenAIAPIKey == "" {
			return fmt.Errorf("openai generation provider requires openai_api_key")
		}
	default:
		return fmt.Errorf("unsupported generation provider: %s", c.Generation.Provider)
	}

	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got: %d", c.Search.TopK)
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be between 0 and 1, got: %v", c.Search.MinScore)
	}

	return nil
}

// SaveToFile saves the configuration to a specific file
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

const defaultConfigTemplate = `# PDFChat Configuration
#
# Copy and edit this file for your environment.
# Default location: $HOME/.pdfchat/config.yaml

documents:
  # Directory scanned recursively for PDFs and text documents
  dir: ~/Documents/pdfs
  extensions: [".pdf", ".txt", ".md"]
  # exclude:
  #   - "**/drafts/**"

chunking:
  size: 1024
  overlap: 200

embedding:
  # Provider: "ollama" or "openai"
  provider: ollama
  base_url: http://localhost:11434
  model: nomic-embed-text
  dimensions: 768
  batch_size: 10

  # OpenAI configuration (alternative)
  # provider: openai
  # openai_api_key: ${OPENAI_API_KEY}
  # openai_model: text-embedding-3-small
  # dimensions: 1536

generation:
  provider: ollama
  base_url: http://localhost:11434
  model: llama3.1
  timeout_secs: 120

search:
  top_k: 5
  hybrid: true

server:
  host: 127.0.0.1
  port: 8080
`

// WriteDefaultTemplate creates a default configuration file if it does not exist.
// It returns true if a file was created, false if it already existed.
func WriteDefaultTemplate(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return false, fmt.Errorf("failed to write config template: %w", err)
	}

	return true, nil
}
