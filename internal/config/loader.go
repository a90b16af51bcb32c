package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known embedding provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"embeddings": {"openai", "ollama", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.GraphStore.Endpoint == "" {
		errs = append(errs, errors.New("graph_store.endpoint is required"))
	}
	if cfg.GraphStore.Namespace == "" {
		errs = append(errs, errors.New("graph_store.namespace is required"))
	}
	if cfg.GraphStore.Database == "" {
		errs = append(errs, errors.New("graph_store.database is required"))
	}

	if cfg.VectorStore.Host == "" {
		errs = append(errs, errors.New("vector_store.host is required"))
	}

	validateProviderName("embeddings", cfg.Embeddings.Primary.Name)
	if cfg.Embeddings.Primary.Name == "" {
		errs = append(errs, errors.New("embeddings.primary.name is required"))
	}
	if cfg.Embeddings.Fallback != nil {
		validateProviderName("embeddings", cfg.Embeddings.Fallback.Name)
		if cfg.Embeddings.Fallback.Name == cfg.Embeddings.Primary.Name {
			slog.Warn("embeddings.fallback has the same provider name as embeddings.primary",
				"name", cfg.Embeddings.Fallback.Name)
		}
	}

	if cfg.Schema.Path == "" {
		errs = append(errs, errors.New("schema.path is required"))
	}
	if !cfg.Schema.Format.IsValid() {
		errs = append(errs, fmt.Errorf("schema.format %q is invalid; valid values: yaml, json", cfg.Schema.Format))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
