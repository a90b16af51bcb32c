// Package config provides the configuration schema, loader, and provider
// registry for the tracegraph server.
package config

// Config is the root configuration structure for tracegraphd.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	GraphStore  GraphStoreConfig  `yaml:"graph_store"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings"`
	Schema      SchemaConfig      `yaml:"schema"`
}

// LogLevel controls log verbosity. Valid values: "debug", "info", "warn", "error".
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the recognized log levels (or empty).
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, "":
		return true
	default:
		return false
	}
}

// ServerConfig holds network and logging settings for the tracegraph server.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// GraphStoreConfig configures the connection to the SurrealDB-backed Graph
// Store Adapter (spec.md §4.4).
type GraphStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Namespace string `yaml:"namespace"`
	Database  string `yaml:"database"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// VectorStoreConfig configures the connection to the Qdrant-backed Vector
// Store Adapter (spec.md §4.5).
type VectorStoreConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	APIKey           string `yaml:"api_key"`
	UseTLS           bool   `yaml:"use_tls"`
	CollectionPrefix string `yaml:"collection_prefix"`
}

// ProviderEntry is the common configuration block for an embeddings
// provider. The Name field is used to look up the constructor in the
// [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific embedding model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// EmbeddingsConfig selects the active embedding provider and an optional
// fallback, per the Embedding Service's primary/fallback contract (spec.md
// §4.6).
type EmbeddingsConfig struct {
	Primary  ProviderEntry  `yaml:"primary"`
	Fallback *ProviderEntry `yaml:"fallback"`
}

// SchemaFormat names the on-disk encoding of a schema file.
type SchemaFormat string

const (
	SchemaFormatYAML SchemaFormat = "yaml"
	SchemaFormatJSON SchemaFormat = "json"
)

// IsValid reports whether f is a recognized schema format (or empty).
func (f SchemaFormat) IsValid() bool {
	switch f {
	case SchemaFormatYAML, SchemaFormatJSON, "":
		return true
	default:
		return false
	}
}

// SchemaConfig names the ontology schema file loaded at startup (spec.md
// §4.1, §4.9 "Schema" state machine).
type SchemaConfig struct {
	Path   string       `yaml:"path"`
	Format SchemaFormat `yaml:"format"`
}
