package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// NodeConfig identifies this node within the federation.
type NodeConfig struct {
	Name     string `yaml:"name"`
	BaseURL  string `yaml:"base_url"`
	StateDir string `yaml:"state_dir"`
}

// StoreConfig holds the Postgres connection parameters for the shared
// relational store (C11).
type StoreConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// FederationConfig holds the security policy switches and background
// intervals spec.md §6.3 requires every node to expose.
type FederationConfig struct {
	StrictMode                 bool          `yaml:"strict_mode"`
	RequireSignedEnvelopes     bool          `yaml:"require_signed_envelopes"`
	EnforceTargetMatch         bool          `yaml:"enforce_target_match"`
	EnforceSourceKeyRIDBinding bool          `yaml:"enforce_source_key_rid_binding"`
	AllowLegacy16NodeRID       bool          `yaml:"allow_legacy16_node_rid"`
	AllowDER64NodeRID          bool          `yaml:"allow_der64_node_rid"`
	PollInterval               time.Duration `yaml:"poll_interval"`
	GitHubScanInterval         time.Duration `yaml:"github_scan_interval"`
	WebSensorInterval          time.Duration `yaml:"web_sensor_interval"`
	CrossrefMode               string        `yaml:"crossref_mode"`
}

// CodeIndexConfig controls the code indexer (C7).
type CodeIndexConfig struct {
	CloneDir string `yaml:"clone_dir"`
}

// WebMonitorConfig controls the web monitor (C8): its rate limits and the
// word-count threshold below which it falls back to a headless fetch.
type WebMonitorConfig struct {
	UserRateLimitPerHour   int           `yaml:"user_rate_limit_per_hour"`
	GlobalRateLimitPerHour int           `yaml:"global_rate_limit_per_hour"`
	HeadlessWordThreshold  int           `yaml:"headless_word_threshold"`
	FetchTimeout           time.Duration `yaml:"fetch_timeout"`
	CheckInterval          time.Duration `yaml:"check_interval"`
}

// MetricsConfig controls the Prometheus registry exposed by internal/metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Addr      string `yaml:"addr"`
}

// HealthConfig controls the /koi-net/health surface.
type HealthConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Config is the root configuration for a koi-node instance.
type Config struct {
	Node       NodeConfig       `yaml:"node"`
	Store      StoreConfig      `yaml:"store"`
	Federation FederationConfig `yaml:"federation"`
	CodeIndex  CodeIndexConfig  `yaml:"codeindex"`
	WebMonitor WebMonitorConfig `yaml:"webmonitor"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Health     HealthConfig     `yaml:"health"`
}

// Default returns a Config populated with the defaults spec.md §6.3 names
// for every KOI_* environment variable.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			Name:     "koi-node",
			StateDir: "./state",
		},
		Store: StoreConfig{
			MaxConns:        10,
			ConnMaxLifetime: time.Hour,
		},
		Federation: FederationConfig{
			StrictMode:                 false,
			RequireSignedEnvelopes:     false,
			EnforceTargetMatch:         false,
			EnforceSourceKeyRIDBinding: false,
			AllowLegacy16NodeRID:       true,
			AllowDER64NodeRID:          true,
			PollInterval:               60 * time.Second,
			GitHubScanInterval:         21600 * time.Second,
			WebSensorInterval:          86400 * time.Second,
			CrossrefMode:               "exact_alias",
		},
		CodeIndex: CodeIndexConfig{
			CloneDir: "/tmp/github_sensor",
		},
		WebMonitor: WebMonitorConfig{
			UserRateLimitPerHour:   5,
			GlobalRateLimitPerHour: 20,
			HeadlessWordThreshold:  50,
			FetchTimeout:           30 * time.Second,
			CheckInterval:          24 * time.Hour,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "koi_node",
			Addr:      ":9090",
		},
		Health: HealthConfig{
			CacheTTL: 5 * time.Second,
		},
	}
}

// Load reads a YAML config file (applying ${VAR:default} substitution),
// loads a .env file if present, then overrides the result with the KOI_*
// environment variables documented in spec.md §6.3. path may be empty, in
// which case only environment variables and defaults apply.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else {
			substituted := SubstituteEnvVars(string(raw))
			if err := yaml.Unmarshal([]byte(substituted), cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("KOI_NODE_NAME"); ok {
		cfg.Node.Name = v
	}
	if v, ok := os.LookupEnv("KOI_BASE_URL"); ok {
		cfg.Node.BaseURL = v
	}
	if v, ok := os.LookupEnv("KOI_STATE_DIR"); ok {
		cfg.Node.StateDir = v
	}
	if v, ok := os.LookupEnv("KOI_STORE_DSN"); ok {
		cfg.Store.DSN = v
	}

	if v, ok := lookupBool("KOI_STRICT_MODE"); ok {
		cfg.Federation.StrictMode = v
	}
	if v, ok := lookupBool("KOI_REQUIRE_SIGNED_ENVELOPES"); ok {
		cfg.Federation.RequireSignedEnvelopes = v
	}
	if v, ok := lookupBool("KOI_ENFORCE_TARGET_MATCH"); ok {
		cfg.Federation.EnforceTargetMatch = v
	}
	if v, ok := lookupBool("KOI_ENFORCE_SOURCE_KEY_RID_BINDING"); ok {
		cfg.Federation.EnforceSourceKeyRIDBinding = v
	}
	if v, ok := lookupBool("KOI_ALLOW_LEGACY16_NODE_RID"); ok {
		cfg.Federation.AllowLegacy16NodeRID = v
	}
	if v, ok := lookupBool("KOI_ALLOW_DER64_NODE_RID"); ok {
		cfg.Federation.AllowDER64NodeRID = v
	}
	if v, ok := lookupSeconds("KOI_POLL_INTERVAL"); ok {
		cfg.Federation.PollInterval = v
	}
	if v, ok := lookupSeconds("GITHUB_SCAN_INTERVAL"); ok {
		cfg.Federation.GitHubScanInterval = v
	}
	if v, ok := lookupSeconds("WEB_SENSOR_INTERVAL"); ok {
		cfg.Federation.WebSensorInterval = v
	}
	if v, ok := os.LookupEnv("KOI_CROSSREF_MODE"); ok && v != "" {
		cfg.Federation.CrossrefMode = v
	}
	if v, ok := os.LookupEnv("GITHUB_CLONE_DIR"); ok && v != "" {
		cfg.CodeIndex.CloneDir = v
	}
	if v, ok := lookupInt("WEB_RATE_LIMIT_PER_USER_HOUR"); ok {
		cfg.WebMonitor.UserRateLimitPerHour = v
	}
	if v, ok := lookupInt("WEB_RATE_LIMIT_GLOBAL_HOUR"); ok {
		cfg.WebMonitor.GlobalRateLimitPerHour = v
	}
	if v, ok := lookupInt("WEB_HEADLESS_WORD_THRESHOLD"); ok {
		cfg.WebMonitor.HeadlessWordThreshold = v
	}
	if v, ok := lookupSeconds("WEB_FETCH_TIMEOUT"); ok {
		cfg.WebMonitor.FetchTimeout = v
	}
}

func lookupInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupBool(name string) (bool, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func lookupSeconds(name string) (time.Duration, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
