// Package config provides configuration loading and structs for the contentdb server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field kinds.
const (
	KindBoolean     = "boolean"
	KindNumerical   = "numerical"
	KindMultinomial = "multinomial"
	KindText        = "text"
	KindEmbedding   = "embedding"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Matrix    MatrixConfig    `yaml:"matrix"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the entity database and indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	IndexPath       string `yaml:"index_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// MatrixConfig describes the rows and column segments of the content matrix.
type MatrixConfig struct {
	// MaxRows is the row capacity; entity ids must be below it.
	MaxRows int `yaml:"max_rows"`
	// TopTerms is the default number of columns for multinomial and text fields.
	TopTerms     int           `yaml:"top_terms"`
	IDField      string        `yaml:"id_field"`
	SpatialField string        `yaml:"spatial_field"`
	Fields       []FieldConfig `yaml:"fields"`
}

// FieldConfig declares one entity attribute as a column segment.
type FieldConfig struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Multivalued bool   `yaml:"multivalued"`
	// Source is the entity attribute read; defaults to Name.
	Source string `yaml:"source"`
	// TopTerms overrides MatrixConfig.TopTerms for this field.
	TopTerms int `yaml:"top_terms"`
}

// EmbeddingConfig holds embedder settings for embedding fields.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	// UseMock selects the deterministic hash embedder; no model file is needed.
	UseMock bool `yaml:"use_mock"`
}

// RetrievalConfig holds candidate and similarity retrieval settings.
type RetrievalConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	// SimilarTerms is how many of an entity's top terms feed a more-like-this query.
	SimilarTerms int `yaml:"similar_terms"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, applies defaults and
// validates the field declarations.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate checks the matrix declaration.
func (c *Config) Validate() error {
	if c.Matrix.MaxRows <= 0 {
		return fmt.Errorf("matrix.max_rows must be positive")
	}
	if len(c.Matrix.Fields) == 0 {
		return fmt.Errorf("matrix.fields must declare at least one field")
	}
	seen := make(map[string]bool, len(c.Matrix.Fields))
	for _, f := range c.Matrix.Fields {
		if f.Name == "" {
			return fmt.Errorf("field name is required")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case KindBoolean, KindNumerical, KindText, KindEmbedding:
			if f.Multivalued {
				return fmt.Errorf("field %q: only multinomial fields may be multivalued", f.Name)
			}
		case KindMultinomial:
		default:
			return fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
		}
	}
	if c.Retrieval.DefaultLimit > c.Retrieval.MaxLimit {
		return fmt.Errorf("retrieval.default_limit exceeds max_limit")
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
