// Package config loads and saves the per-project kgraph.yaml configuration
// file, loaded and saved the way a small daemon's local config usually is:
// read YAML into a zero-value struct (missing file is not an error), fold
// in defaults, and write back with gopkg.in/yaml.v3.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Weights controls how ContextBuilder blends lexical and vector scores.
type Weights struct {
	FTS    float64 `yaml:"fts,omitempty"`
	Vector float64 `yaml:"vector,omitempty"`
	// DualMatchBonus is added to the blend when a slug matched both scorers.
	DualMatchBonus float64 `yaml:"dual_match_bonus,omitempty"`
}

// Reranker controls cross-encoder reranking in ContextBuilder.
type Reranker struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// Embedding selects the embedding provider and model (see internal/embedding).
type Embedding struct {
	Provider string `yaml:"provider,omitempty"` // "auto", "ollama", "openai", "stub"
	Model    string `yaml:"model,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// Config is the persisted project-root configuration (kgraph.yaml).
type Config struct {
	Name             string    `yaml:"name"`
	NodesDir         string    `yaml:"nodes_dir,omitempty"`
	IndexDir         string    `yaml:"index_dir,omitempty"`
	Embedding        Embedding `yaml:"embedding,omitempty"`
	ReviewThreshold  int       `yaml:"review_budget_threshold,omitempty"`
	Weights          Weights   `yaml:"weights,omitempty"`
	Reranker         Reranker  `yaml:"reranker,omitempty"`
	VectorServicePort int      `yaml:"vectorservice_port,omitempty"`

	// Dir is the resolved project root. Not persisted.
	Dir string `yaml:"-"`
}

const (
	defaultNodesDir         = "nodes"
	defaultIndexDir         = ".kgraph/index"
	defaultReviewThreshold  = 500
	defaultFTSWeight        = 0.5
	defaultVectorWeight     = 0.5
	defaultDualMatchBonus   = 0.1
	defaultVectorServicePort = 8099
)

// applyDefaults fills zero-valued fields, mirroring mergeConfigs' fallback
// chain.
func (c *Config) applyDefaults() {
	if c.NodesDir == "" {
		c.NodesDir = defaultNodesDir
	}
	if c.IndexDir == "" {
		c.IndexDir = defaultIndexDir
	}
	if c.ReviewThreshold == 0 {
		c.ReviewThreshold = defaultReviewThreshold
	}
	if c.Weights.FTS == 0 && c.Weights.Vector == 0 {
		c.Weights.FTS = defaultFTSWeight
		c.Weights.Vector = defaultVectorWeight
	}
	if c.Weights.DualMatchBonus == 0 {
		c.Weights.DualMatchBonus = defaultDualMatchBonus
	}
	if c.VectorServicePort == 0 {
		c.VectorServicePort = defaultVectorServicePort
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "auto"
	}
}

// Load reads kgraph.yaml from dir. A missing file returns a default config
// (no error), matching LoadWingConfig's behavior for a missing wing.yaml.
func Load(dir string) (*Config, error) {
	cfg := &Config{Dir: dir}
	path := filepath.Join(dir, ConfigFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.Name = filepath.Base(dir)
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Dir = dir
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config back to kgraph.yaml, creating dir if needed.
func Save(cfg *Config) error {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cfg.Dir, ConfigFileName), data, 0o644)
}

// NodesPath returns the absolute nodes directory.
func (c *Config) NodesPath() string {
	return filepath.Join(c.Dir, c.NodesDir)
}

// IndexPath returns the absolute index directory.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Dir, c.IndexDir)
}

// DBPath returns the path to the derived relational index database.
func (c *Config) DBPath() string {
	return filepath.Join(c.IndexPath(), "graph.db")
}

// EmbeddingCacheDir returns the path to the embedder's on-disk cache.
func (c *Config) EmbeddingCacheDir() string {
	return filepath.Join(c.IndexPath(), "embedding_cache")
}

// LogsDir returns the path to supervisor/daemon logs.
func (c *Config) LogsDir() string {
	return filepath.Join(c.IndexPath(), "logs")
}

// PIDPath returns the PID file path for a named daemon (e.g. "watcher",
// "vectorservice").
func (c *Config) PIDPath(name string) string {
	return filepath.Join(c.IndexPath(), name+".pid")
}

// VectorServiceAddr returns the loopback address the VectorService listens on.
func (c *Config) VectorServiceAddr() string {
	return "127.0.0.1:" + itoa(c.VectorServicePort)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// EnsureVCSIgnore appends an ignore entry for index_dir, idempotently, so
// the derived index never lands in version control.
func (c *Config) EnsureVCSIgnore() error {
	path := filepath.Join(c.Dir, ".gitignore")
	entry := "/" + c.IndexDir + "\n"

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if err == nil {
		for _, line := range splitLines(string(data)) {
			if line == "/"+c.IndexDir || line == c.IndexDir {
				return nil // already ignored
			}
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(entry)
	return err
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
