// Package config loads and validates the GovernmentReporter configuration.
//
// One Config value is built at CLI startup and threaded through every
// component. Values are resolved in order of increasing precedence:
//
//  1. Hardcoded defaults
//  2. Optional YAML file (--config PATH, else ./govreporter.yaml if present)
//  3. Environment variables
//
// Secrets normally arrive through the environment (the CLI loads .env before
// this package runs); the YAML file may carry them for local setups.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/govreporter/govreporter/internal/chunk"
	"github.com/govreporter/govreporter/internal/embed"
	gverrors "github.com/govreporter/govreporter/internal/errors"
	"github.com/govreporter/govreporter/internal/extract"
	"github.com/govreporter/govreporter/internal/logging"
)

// DefaultFileName is the config file picked up from the working directory
// when --config is not given.
const DefaultFileName = "govreporter.yaml"

// DefaultGRPCPort is the Qdrant gRPC port the client dials when neither the
// URL nor QDRANT_GRPC_PORT names one.
const DefaultGRPCPort = 6334

// DefaultRESTPort is the Qdrant HTTP port. The client never dials it; info
// output uses it to print the dashboard address.
const DefaultRESTPort = 6333

// Config is the complete GovernmentReporter configuration.
type Config struct {
	APIs     APIConfig      `yaml:"apis" json:"apis"`
	OpenAI   OpenAIConfig   `yaml:"openai" json:"openai"`
	Chunking ChunkingConfig `yaml:"chunking" json:"chunking"`
	Qdrant   QdrantConfig   `yaml:"qdrant" json:"qdrant"`
	Progress ProgressConfig `yaml:"progress" json:"progress"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// APIConfig holds credentials for the upstream government APIs.
type APIConfig struct {
	// CourtListenerToken authenticates against CourtListener. SCOTUS
	// ingestion is rejected upstream without one.
	CourtListenerToken string `yaml:"court_listener_token" json:"court_listener_token"`

	// FederalRegisterToken is accepted for forward compatibility. The
	// Federal Register API currently requires no authentication, so
	// nothing sends it.
	FederalRegisterToken string `yaml:"federal_register_token" json:"federal_register_token"`

	// GeminiKey is a legacy key kept so older .env files still load.
	// Nothing reads it; extraction runs on OpenAI.
	GeminiKey string `yaml:"gemini_api_key" json:"gemini_api_key"`
}

// OpenAIConfig configures the metadata extraction and embedding clients.
type OpenAIConfig struct {
	APIKey             string `yaml:"api_key" json:"api_key"`
	ExtractionModel    string `yaml:"extraction_model" json:"extraction_model"`
	EmbeddingModel     string `yaml:"embedding_model" json:"embedding_model"`
	EmbeddingBatchSize int    `yaml:"embedding_batch_size" json:"embedding_batch_size"`

	// BaseURL overrides the API endpoint, mostly for tests and proxies.
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// ChunkingConfig carries the per-document-type token budgets.
type ChunkingConfig struct {
	Scotus chunk.Config `yaml:"scotus" json:"scotus"`
	EO     chunk.Config `yaml:"eo" json:"eo"`
}

// QdrantConfig locates the Qdrant server. URL, when set, wins over Host,
// Port, and UseTLS; Load parses it into those fields. A URL without an
// explicit port dials the default gRPC port.
type QdrantConfig struct {
	// URL is a full endpoint such as "https://qdrant.example.com:6334".
	// An https scheme turns TLS on.
	URL string `yaml:"url" json:"url"`

	Host string `yaml:"host" json:"host"`

	// Port is the gRPC port the client dials.
	Port int `yaml:"port" json:"port"`

	// RESTPort is where the Qdrant dashboard lives, for info output only.
	RESTPort int `yaml:"rest_port" json:"rest_port"`

	APIKey string `yaml:"api_key" json:"api_key"`
	UseTLS bool   `yaml:"use_tls" json:"use_tls"`
}

// DashboardURL returns the address of the Qdrant web dashboard.
func (q QdrantConfig) DashboardURL() string {
	scheme := "http"
	if q.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d/dashboard", scheme, q.Host, q.RESTPort)
}

// ProgressConfig locates the per-document-type SQLite progress databases.
type ProgressConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// ServerConfig configures the MCP server surface.
type ServerConfig struct {
	Name               string `yaml:"name" json:"name"`
	Version            string `yaml:"version" json:"version"`
	DefaultSearchLimit int    `yaml:"default_search_limit" json:"default_search_limit"`
	MaxSearchLimit     int    `yaml:"max_search_limit" json:"max_search_limit"`
	EnableCache        bool   `yaml:"enable_cache" json:"enable_cache"`
	LogLevel           string `yaml:"log_level" json:"log_level"`
}

// LoggingConfig configures the rotating file logger.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	FilePath  string `yaml:"file_path" json:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	logDefaults := logging.DefaultConfig()
	return &Config{
		OpenAI: OpenAIConfig{
			ExtractionModel:    extract.DefaultModel,
			EmbeddingModel:     embed.DefaultModel,
			EmbeddingBatchSize: embed.DefaultBatchSize,
		},
		Chunking: ChunkingConfig{
			Scotus: chunk.ScotusDefaults(),
			EO:     chunk.EODefaults(),
		},
		Qdrant: QdrantConfig{
			Host:     "localhost",
			Port:     DefaultGRPCPort,
			RESTPort: DefaultRESTPort,
		},
		Progress: ProgressConfig{
			Dir: filepath.Join("data", "progress"),
		},
		Server: ServerConfig{
			Name:               "GovernmentReporter MCP Server",
			Version:            "1.0.0",
			DefaultSearchLimit: 10,
			MaxSearchLimit:     50,
			EnableCache:        true,
			LogLevel:           "info",
		},
		Logging: LoggingConfig{
			Level:     logDefaults.Level,
			FilePath:  logDefaults.FilePath,
			MaxSizeMB: logDefaults.MaxSizeMB,
			MaxFiles:  logDefaults.MaxFiles,
		},
	}
}

// Load builds the configuration. An explicit path must point at an existing
// file; with an empty path, ./govreporter.yaml is picked up when present.
// Environment variables override anything the file set.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	switch {
	case path != "":
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	case fileExists(DefaultFileName):
		if err := cfg.loadYAML(DefaultFileName); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.resolveQdrantURL(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML overlays the file on top of c. Keys absent from the file keep
// their current values.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return gverrors.ConfigError(fmt.Sprintf("cannot read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return gverrors.ConfigError(fmt.Sprintf("cannot parse config file %s: %s", path, err), err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides, the highest
// precedence layer.
func (c *Config) applyEnvOverrides() {
	// API credentials
	if v := os.Getenv("COURT_LISTENER_API_TOKEN"); v != "" {
		c.APIs.CourtListenerToken = v
	}
	if v := os.Getenv("FEDERAL_REGISTER_API_TOKEN"); v != "" {
		c.APIs.FederalRegisterToken = v
	}
	if v := os.Getenv("GOOGLE_GEMINI_API_KEY"); v != "" {
		c.APIs.GeminiKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}

	// Chunking budgets (RAG_SCOTUS_*, RAG_EO_*)
	c.Chunking.Scotus = c.Chunking.Scotus.ApplyEnv("SCOTUS")
	c.Chunking.EO = c.Chunking.EO.ApplyEnv("EO")

	// Qdrant endpoint
	if v := os.Getenv("QDRANT_URL"); v != "" {
		c.Qdrant.URL = v
	}
	if v := os.Getenv("QDRANT_HOST"); v != "" {
		c.Qdrant.Host = v
	}
	if v := os.Getenv("QDRANT_GRPC_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Qdrant.Port = p
		}
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Qdrant.RESTPort = p
		}
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		c.Qdrant.APIKey = v
	}

	// MCP server surface
	if v := os.Getenv("MCP_SERVER_NAME"); v != "" {
		c.Server.Name = v
	}
	if v := os.Getenv("MCP_SERVER_VERSION"); v != "" {
		c.Server.Version = v
	}
	if v := os.Getenv("MCP_DEFAULT_SEARCH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Server.DefaultSearchLimit = n
		}
	}
	if v := os.Getenv("MCP_MAX_SEARCH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Server.MaxSearchLimit = n
		}
	}
	if v := os.Getenv("MCP_ENABLE_CACHE"); v != "" {
		c.Server.EnableCache = parseBool(v)
	}
	if v := os.Getenv("MCP_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// resolveQdrantURL parses Qdrant.URL into Host, Port, and UseTLS. A bare
// host[:port] without a scheme is treated as http.
func (c *Config) resolveQdrantURL() error {
	raw := strings.TrimSpace(c.Qdrant.URL)
	if raw == "" {
		return nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return gverrors.ConfigError(fmt.Sprintf("invalid qdrant url %q: %s", c.Qdrant.URL, err), err)
	}
	switch u.Scheme {
	case "http":
		c.Qdrant.UseTLS = false
	case "https":
		c.Qdrant.UseTLS = true
	default:
		return gverrors.ConfigError(fmt.Sprintf("qdrant url scheme must be http or https, got %q", u.Scheme), nil)
	}
	if u.Hostname() == "" {
		return gverrors.ConfigError(fmt.Sprintf("qdrant url %q has no host", c.Qdrant.URL), nil)
	}

	c.Qdrant.Host = u.Hostname()
	if p := u.Port(); p != "" {
		// url.Parse already rejected non-numeric ports.
		n, _ := strconv.Atoi(p)
		c.Qdrant.Port = n
	} else {
		c.Qdrant.Port = DefaultGRPCPort
	}
	return nil
}

// SetQdrantURL applies an endpoint override, such as a --qdrant-url
// flag, on top of the loaded configuration.
func (c *Config) SetQdrantURL(raw string) error {
	c.Qdrant.URL = raw
	return c.resolveQdrantURL()
}

// Validate checks ranges and cross-field invariants. Secrets are checked
// separately because each is only required for specific commands.
func (c *Config) Validate() error {
	if err := c.Chunking.Scotus.Validate(); err != nil {
		return gverrors.ConfigError(fmt.Sprintf("chunking.scotus: %s", err), err)
	}
	if err := c.Chunking.EO.Validate(); err != nil {
		return gverrors.ConfigError(fmt.Sprintf("chunking.eo: %s", err), err)
	}

	if c.OpenAI.EmbeddingBatchSize < 1 {
		return gverrors.ConfigError(fmt.Sprintf("openai.embedding_batch_size must be at least 1, got %d", c.OpenAI.EmbeddingBatchSize), nil)
	}

	if c.Qdrant.Host == "" {
		return gverrors.ConfigError("qdrant.host must not be empty", nil)
	}
	if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
		return gverrors.ConfigError(fmt.Sprintf("qdrant.port must be between 1 and 65535, got %d", c.Qdrant.Port), nil)
	}
	if c.Qdrant.RESTPort < 1 || c.Qdrant.RESTPort > 65535 {
		return gverrors.ConfigError(fmt.Sprintf("qdrant.rest_port must be between 1 and 65535, got %d", c.Qdrant.RESTPort), nil)
	}

	if c.Progress.Dir == "" {
		return gverrors.ConfigError("progress.dir must not be empty", nil)
	}

	if c.Server.Name == "" {
		return gverrors.ConfigError("server.name must not be empty", nil)
	}
	if c.Server.DefaultSearchLimit < 1 {
		return gverrors.ConfigError(fmt.Sprintf("server.default_search_limit must be at least 1, got %d", c.Server.DefaultSearchLimit), nil)
	}
	if c.Server.MaxSearchLimit < c.Server.DefaultSearchLimit {
		return gverrors.ConfigError(fmt.Sprintf("server.max_search_limit must be >= default_search_limit, got %d < %d",
			c.Server.MaxSearchLimit, c.Server.DefaultSearchLimit), nil)
	}
	if !validLogLevel(c.Server.LogLevel) {
		return gverrors.ConfigError(fmt.Sprintf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %q", c.Server.LogLevel), nil)
	}
	if !validLogLevel(c.Logging.Level) {
		return gverrors.ConfigError(fmt.Sprintf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level), nil)
	}

	return nil
}

// RequireOpenAIKey returns an error when no OpenAI key is configured.
// Extraction and embeddings cannot run without one.
func (c *Config) RequireOpenAIKey() error {
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return gverrors.New(gverrors.ErrCodeMissingSecret, "OPENAI_API_KEY is not set", nil).
			WithSuggestion("Export OPENAI_API_KEY or add it to .env.")
	}
	return nil
}

// RequireCourtListenerToken returns an error when no CourtListener token is
// configured. SCOTUS ingestion is rejected upstream without one.
func (c *Config) RequireCourtListenerToken() error {
	if strings.TrimSpace(c.APIs.CourtListenerToken) == "" {
		return gverrors.New(gverrors.ErrCodeMissingSecret, "COURT_LISTENER_API_TOKEN is not set", nil).
			WithSuggestion("Export COURT_LISTENER_API_TOKEN or add it to .env.")
	}
	return nil
}

// ProgressDBPath returns the SQLite progress database path for a document
// type, e.g. data/progress/scotus_ingestion.db.
func (c *Config) ProgressDBPath(documentType string) string {
	return filepath.Join(c.Progress.Dir, documentType+"_ingestion.db")
}

// LogConfig maps the logging section onto the logging package's Config.
func (c *Config) LogConfig() logging.Config {
	return logging.Config{
		Level:         c.Logging.Level,
		FilePath:      c.Logging.FilePath,
		MaxSizeMB:     c.Logging.MaxSizeMB,
		MaxFiles:      c.Logging.MaxFiles,
		WriteToStderr: true,
	}
}

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes"
}

func validLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
