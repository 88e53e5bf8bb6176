// Package config loads service configuration from an optional YAML file
// and the environment. Environment variables always win over the file.
//
// The YAML file is config/config-<CONFIG_PHASE>.yaml (phase defaults to
// "local") or the path in CONFIG_FILE. Nested keys are flattened into
// UPPER_SNAKE names, so
//
//	scoring:
//	  roi_weight: 0.5
//
// is read as SCORING_ROI_WEIGHT.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/atmx/ranking-engine/internal/provider"
	"github.com/atmx/ranking-engine/internal/scoring"
)

type LogConfig struct {
	Level    string
	Format   string
	Output   string
	FilePath string
}

type ServerConfig struct {
	ListenAddr     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	AllowedOrigins []string
	Concurrency    int
}

// ProviderConfig selects where raw records come from: the venue HTTP
// APIs ("http"), ingested PostgreSQL tables ("postgres") or a JSON
// snapshot file ("snapshot").
type ProviderConfig struct {
	Kind         string
	HTTP         provider.HTTPConfig
	DatabaseURL  string
	SnapshotPath string
}

// StorageConfig selects where computed metrics are persisted: "memory",
// "postgres" or "sqlite". A Redis URL adds a read-through cache.
type StorageConfig struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string
	CacheTTL    time.Duration
}

type RefreshConfig struct {
	Enabled  bool
	Schedule string
	Timeout  time.Duration
	Wallets  []string
}

type ExportConfig struct {
	S3Bucket string
	S3Prefix string
	Region   string
}

type Config struct {
	Server   ServerConfig
	Provider ProviderConfig
	Storage  StorageConfig
	Scoring  scoring.Config
	Refresh  RefreshConfig
	Export   ExportConfig
	Log      LogConfig
}

type ConfigSource struct {
	Phase  string
	Path   string
	Loaded bool
}

// Loader resolves keys against the environment and the flattened YAML file.
type Loader struct {
	getenv func(string) string
	values map[string]string
	source ConfigSource
}

// Load reads the configuration from the process environment, after
// loading a .env file from the working directory when one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	l, err := NewLoader(os.Getenv)
	if err != nil {
		return Config{}, err
	}
	return l.Load()
}

// NewLoader reads the YAML file named by the environment. A missing
// default file is not an error; a missing CONFIG_FILE is.
func NewLoader(getenv func(string) string) (*Loader, error) {
	l := &Loader{getenv: getenv, values: make(map[string]string)}

	phase := strings.TrimSpace(getenv("CONFIG_PHASE"))
	if phase == "" {
		phase = "local"
	}
	l.source.Phase = phase

	configPath := strings.TrimSpace(getenv("CONFIG_FILE"))
	explicitPath := configPath != ""
	if configPath == "" {
		configPath = filepath.Join("config", "config-"+phase+".yaml")
	}

	body, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicitPath {
			return l, nil
		}
		return nil, fmt.Errorf("read config file %q: %w", configPath, err)
	}

	raw := make(map[string]any)
	if err := yaml.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", configPath, err)
	}
	flattened, err := flattenConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("flatten config file %q: %w", configPath, err)
	}

	l.values = flattened
	l.source.Loaded = true
	if absPath, err := filepath.Abs(configPath); err == nil {
		l.source.Path = absPath
	} else {
		l.source.Path = configPath
	}
	return l, nil
}

// Source describes which file, if any, the loader read.
func (l *Loader) Source() ConfigSource { return l.source }

// Load builds the full configuration.
func (l *Loader) Load() (Config, error) {
	server, err := l.loadServer()
	if err != nil {
		return Config{}, err
	}
	prov, err := l.loadProvider()
	if err != nil {
		return Config{}, err
	}
	storage, err := l.loadStorage()
	if err != nil {
		return Config{}, err
	}
	sc, err := l.loadScoring()
	if err != nil {
		return Config{}, err
	}
	refresh, err := l.loadRefresh()
	if err != nil {
		return Config{}, err
	}

	return Config{
		Server:   server,
		Provider: prov,
		Storage:  storage,
		Scoring:  sc,
		Refresh:  refresh,
		Export: ExportConfig{
			S3Bucket: l.envOrDefault("EXPORT_S3_BUCKET", ""),
			S3Prefix: l.envOrDefault("EXPORT_S3_PREFIX", "leaderboards"),
			Region:   l.envOrDefault("EXPORT_S3_REGION", l.envOrDefault("AWS_REGION", "us-east-1")),
		},
		Log: l.buildLogConfig("RANKING", "ranking-engine"),
	}, nil
}

func (l *Loader) loadServer() (ServerConfig, error) {
	readTimeout, err := l.envDuration("SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}
	writeTimeout, err := l.envDuration("SERVER_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}
	idleTimeout, err := l.envDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}
	requestTimeout, err := l.envDuration("SERVER_REQUEST_TIMEOUT", 45*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}
	concurrency, err := l.envInt("ENGINE_CONCURRENCY", 8)
	if err != nil {
		return ServerConfig{}, err
	}

	listen := l.envOrDefault("SERVER_LISTEN_ADDR", "")
	if listen == "" {
		listen = ":" + l.envOrDefault("PORT", "8080")
	}

	return ServerConfig{
		ListenAddr:     listen,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		RequestTimeout: requestTimeout,
		AllowedOrigins: parseCSVEnv(l.envOrDefault("SERVER_ALLOWED_ORIGINS", "*"), []string{"*"}),
		Concurrency:    concurrency,
	}, nil
}

func (l *Loader) loadProvider() (ProviderConfig, error) {
	kind := strings.ToLower(l.envOrDefault("PROVIDER_KIND", "http"))
	switch kind {
	case "http", "postgres", "snapshot":
	default:
		return ProviderConfig{}, fmt.Errorf("invalid PROVIDER_KIND: %q (expected http|postgres|snapshot)", kind)
	}

	def := provider.DefaultHTTPConfig()
	timeout, err := l.envDuration("PROVIDER_TIMEOUT", def.Timeout)
	if err != nil {
		return ProviderConfig{}, err
	}
	rps, err := l.envFloat("PROVIDER_REQUESTS_PER_SECOND", def.RequestsPerSecond)
	if err != nil {
		return ProviderConfig{}, err
	}
	if rps <= 0 {
		return ProviderConfig{}, fmt.Errorf("invalid PROVIDER_REQUESTS_PER_SECOND: must be > 0")
	}
	burst, err := l.envInt("PROVIDER_BURST", def.Burst)
	if err != nil {
		return ProviderConfig{}, err
	}
	pageSize, err := l.envInt("PROVIDER_PAGE_SIZE", def.PageSize)
	if err != nil {
		return ProviderConfig{}, err
	}
	maxPages, err := l.envInt("PROVIDER_MAX_PAGES", def.MaxPages)
	if err != nil {
		return ProviderConfig{}, err
	}
	breakerFailures, err := l.envInt("PROVIDER_BREAKER_FAILURES", int(def.BreakerFailures))
	if err != nil {
		return ProviderConfig{}, err
	}
	breakerTimeout, err := l.envDuration("PROVIDER_BREAKER_TIMEOUT", def.BreakerTimeout)
	if err != nil {
		return ProviderConfig{}, err
	}

	cfg := ProviderConfig{
		Kind: kind,
		HTTP: provider.HTTPConfig{
			DataAPIURL:        l.envOrDefault("PROVIDER_DATA_API_URL", def.DataAPIURL),
			GammaAPIURL:       l.envOrDefault("PROVIDER_GAMMA_API_URL", def.GammaAPIURL),
			Timeout:           timeout,
			RequestsPerSecond: rps,
			Burst:             burst,
			PageSize:          pageSize,
			MaxPages:          maxPages,
			BreakerFailures:   uint32(breakerFailures),
			BreakerTimeout:    breakerTimeout,
		},
		DatabaseURL:  l.envOrDefault("PROVIDER_DATABASE_URL", l.envOrDefault("DATABASE_URL", "")),
		SnapshotPath: l.envOrDefault("PROVIDER_SNAPSHOT_PATH", ""),
	}
	if cfg.Kind == "postgres" && cfg.DatabaseURL == "" {
		return ProviderConfig{}, fmt.Errorf("invalid PROVIDER_DATABASE_URL: required when PROVIDER_KIND=postgres")
	}
	if cfg.Kind == "snapshot" && cfg.SnapshotPath == "" {
		return ProviderConfig{}, fmt.Errorf("invalid PROVIDER_SNAPSHOT_PATH: required when PROVIDER_KIND=snapshot")
	}
	return cfg, nil
}

func (l *Loader) loadStorage() (StorageConfig, error) {
	dbURL := l.envOrDefault("DATABASE_URL", "")
	driver := "memory"
	if dbURL != "" {
		driver = "postgres"
	}
	driver = strings.ToLower(l.envOrDefault("STORAGE_DRIVER", driver))
	switch driver {
	case "memory", "postgres", "sqlite":
	default:
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_DRIVER: %q (expected memory|postgres|sqlite)", driver)
	}
	if driver == "postgres" && dbURL == "" {
		return StorageConfig{}, fmt.Errorf("invalid DATABASE_URL: required when STORAGE_DRIVER=postgres")
	}

	ttl, err := l.envDuration("STORAGE_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return StorageConfig{}, err
	}
	return StorageConfig{
		Driver:      driver,
		DatabaseURL: dbURL,
		SQLitePath:  l.envOrDefault("STORAGE_SQLITE_PATH", filepath.Join("data", "ranking.db")),
		RedisURL:    l.envOrDefault("REDIS_URL", ""),
		CacheTTL:    ttl,
	}, nil
}

func (l *Loader) loadScoring() (scoring.Config, error) {
	def := scoring.DefaultConfig()
	var err error
	cfg := def

	if cfg.Weights.ROI, err = l.envFloat("SCORING_ROI_WEIGHT", def.Weights.ROI); err != nil {
		return scoring.Config{}, err
	}
	if cfg.Weights.WinRate, err = l.envFloat("SCORING_WIN_RATE_WEIGHT", def.Weights.WinRate); err != nil {
		return scoring.Config{}, err
	}
	if cfg.Weights.Consistency, err = l.envFloat("SCORING_CONSISTENCY_WEIGHT", def.Weights.Consistency); err != nil {
		return scoring.Config{}, err
	}
	if cfg.Weights.Recency, err = l.envFloat("SCORING_RECENCY_WEIGHT", def.Weights.Recency); err != nil {
		return scoring.Config{}, err
	}
	trades, err := l.envInt("SCORING_CONSISTENCY_TRADES", scoring.DefaultConsistencyTrades)
	if err != nil {
		return scoring.Config{}, err
	}
	cfg.ConsistencyDecay = scoring.LinearDecay(trades)
	if cfg.RecencyWindow, err = l.envDuration("SCORING_RECENCY_WINDOW", def.RecencyWindow); err != nil {
		return scoring.Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return scoring.Config{}, err
	}
	return cfg, nil
}

func (l *Loader) loadRefresh() (RefreshConfig, error) {
	enabled, err := l.envBool("REFRESH_ENABLED", true)
	if err != nil {
		return RefreshConfig{}, err
	}
	timeout, err := l.envDuration("REFRESH_TIMEOUT", 10*time.Minute)
	if err != nil {
		return RefreshConfig{}, err
	}
	return RefreshConfig{
		Enabled:  enabled,
		Schedule: l.envOrDefault("REFRESH_SCHEDULE", "@every 15m"),
		Timeout:  timeout,
		Wallets:  parseCSVEnv(l.envOrDefault("REFRESH_WALLETS", ""), nil),
	}, nil
}

func (l *Loader) buildLogConfig(prefix string, serviceName string) LogConfig {
	return LogConfig{
		Level:    l.envOrDefault(prefix+"_LOG_LEVEL", l.envOrDefault("LOG_LEVEL", "info")),
		Format:   l.envOrDefault(prefix+"_LOG_FORMAT", l.envOrDefault("LOG_FORMAT", "json")),
		Output:   l.envOrDefault(prefix+"_LOG_OUTPUT", l.envOrDefault("LOG_OUTPUT", "console")),
		FilePath: l.envOrDefault(prefix+"_LOG_FILE", l.envOrDefault("LOG_FILE", filepath.Join("logs", serviceName+".log"))),
	}
}

// --- Typed lookups ---

func (l *Loader) envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := l.valueForKey(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be > 0", key)
	}
	return d, nil
}

func (l *Loader) envInt(key string, fallback int) (int, error) {
	raw := l.valueForKey(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be > 0", key)
	}
	return v, nil
}

func (l *Loader) envFloat(key string, fallback float64) (float64, error) {
	raw := l.valueForKey(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func (l *Loader) envBool(key string, fallback bool) (bool, error) {
	raw := l.valueForKey(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func (l *Loader) envOrDefault(key, fallback string) string {
	if value := l.valueForKey(key); value != "" {
		return value
	}
	return fallback
}

func (l *Loader) valueForKey(key string) string {
	if value := strings.TrimSpace(l.getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(l.values[key])
}

func parseCSVEnv(raw string, fallback []string) []string {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// --- YAML flattening ---

func flattenConfig(raw map[string]any) (map[string]string, error) {
	out := make(map[string]string)
	for key, value := range raw {
		segment := normalizeKeySegment(key)
		if segment == "" {
			continue
		}
		if err := flattenConfigValue(segment, value, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func flattenConfigValue(prefix string, value any, out map[string]string) error {
	switch typed := value.(type) {
	case map[string]any:
		for key, child := range typed {
			segment := normalizeKeySegment(key)
			if segment == "" {
				continue
			}
			if err := flattenConfigValue(prefix+"_"+segment, child, out); err != nil {
				return err
			}
		}
		return nil
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			switch scalar := item.(type) {
			case string:
				if strings.TrimSpace(scalar) == "" {
					continue
				}
				parts = append(parts, strings.TrimSpace(scalar))
			case bool, int, int64, uint64, float64:
				parts = append(parts, fmt.Sprint(scalar))
			default:
				return fmt.Errorf("unsupported list item type %T under %q", item, prefix)
			}
		}
		out[prefix] = strings.Join(parts, ",")
		return nil
	case nil:
		return nil
	default:
		out[prefix] = fmt.Sprint(typed)
		return nil
	}
}

func normalizeKeySegment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	lastUnderscore := false

	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
