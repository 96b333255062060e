package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreBolt     = "bolt"
	StoreMemory   = "memory"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds service configuration.
type Config struct {
	ServerAddr    string
	PublicBaseURL string
	AdminToken    string
	LogLevel      string

	StoreDriver   string
	DatabaseURL   string
	BoltPath      string
	MigrationsDir string
	PersonaDBPath string
	ArtifactsDir  string

	Evolution EvolutionConfig
	Telegram  TelegramConfig
	OpenAI    OpenAIConfig
	Suno      SunoConfig
	Gemini    GeminiConfig

	FFmpegPath      string
	AllowedNumbers  []string
	DuplicateWindow time.Duration
	MaxRetries      int
	RunLease        time.Duration

	// Cron specs of the background jobs.
	RecoverySchedule string
	SweepSchedule    string
	PruneSchedule    string
	EffectRetention  time.Duration
}

type EvolutionConfig struct {
	BaseURL  string
	APIKey   string
	Instance string
}

type TelegramConfig struct {
	Token         string
	WebhookSecret string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Repairs int
}

type SunoConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	CallbackURL  string
	PollInterval time.Duration
	MaxWait      time.Duration
}

type GeminiConfig struct {
	APIKey     string
	ImageModel string
}

// Load reads configuration from the environment. When CONFIG_FILE names a
// YAML file of the same keys, its values are used for keys the environment
// leaves unset.
func Load() (*Config, error) {
	file := map[string]string{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		var err error
		if file, err = readFile(path); err != nil {
			return nil, err
		}
	}
	getenv := func(key, def string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		if val := file[key]; val != "" {
			return val
		}
		return def
	}

	dsn := getenv("DATABASE_URL", "")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "musicbot")
		pass := getenv("POSTGRES_PASSWORD", "musicbot_pass")
		db := getenv("POSTGRES_DB", "musicbot")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}
	host := getenv("SERVER_HOST", "localhost")
	port := getenv("SERVER_PORT", "8000")

	cfg := &Config{
		ServerAddr:    getenv("SERVER_ADDR", "0.0.0.0:"+port),
		PublicBaseURL: strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://"+host+":"+port), "/"),
		AdminToken:    getenv("ADMIN_TOKEN", ""),
		LogLevel:      getenv("LOG_LEVEL", "info"),

		StoreDriver:   strings.ToLower(getenv("STORE_DRIVER", StoreMemory)),
		DatabaseURL:   dsn,
		BoltPath:      getenv("BOLT_PATH", "data/conversations.bolt"),
		MigrationsDir: getenv("MIGRATIONS_DIR", "internal/migrations"),
		PersonaDBPath: getenv("PERSONA_DB_PATH", "data/personas.db"),
		ArtifactsDir:  getenv("ARTIFACTS_DIR", "."),

		Evolution: EvolutionConfig{
			BaseURL:  getenv("EVOLUTION_API_URL", "http://localhost:8080"),
			APIKey:   getenv("EVOLUTION_API_KEY", ""),
			Instance: getenv("INSTANCE_NAME", "music-agent"),
		},
		Telegram: TelegramConfig{
			Token:         getenv("TELEGRAM_BOT_TOKEN", ""),
			WebhookSecret: getenv("TELEGRAM_WEBHOOK_SECRET", ""),
		},
		OpenAI: OpenAIConfig{
			APIKey:  getenv("OPENAI_API_KEY", ""),
			BaseURL: getenv("OPENAI_BASE_URL", ""),
			Model:   getenv("OPENAI_MODEL", "gpt-4o"),
			Repairs: parseInt(getenv("OPENAI_REPAIRS", "1"), 1),
		},
		Suno: SunoConfig{
			APIKey:       getenv("SUNO_API_KEY", ""),
			BaseURL:      getenv("SUNO_BASE_URL", "https://api.sunoapi.org/api/v1"),
			Model:        getenv("SUNO_MODEL", "V4"),
			CallbackURL:  getenv("SUNO_CALLBACK_URL", ""),
			PollInterval: parseDuration(getenv("SUNO_POLL_INTERVAL", "20s"), 20*time.Second),
			MaxWait:      parseDuration(getenv("SUNO_MAX_WAIT", "400s"), 400*time.Second),
		},
		Gemini: GeminiConfig{
			APIKey:     getenv("GEMINI_API_KEY", ""),
			ImageModel: getenv("GEMINI_IMAGE_MODEL", ""),
		},

		FFmpegPath:      getenv("FFMPEG_PATH", "ffmpeg"),
		AllowedNumbers:  splitList(getenv("ALLOWED_NUMBERS", "")),
		DuplicateWindow: parseDuration(getenv("DUPLICATE_WINDOW", "30s"), 30*time.Second),
		MaxRetries:      parseInt(getenv("MAX_RETRIES", "2"), 2),
		RunLease:        parseDuration(getenv("RUN_LEASE", "15m"), 15*time.Minute),

		RecoverySchedule: getenv("RECOVERY_SCHEDULE", "@every 1m"),
		SweepSchedule:    getenv("SWEEP_SCHEDULE", "@every 30s"),
		PruneSchedule:    getenv("PRUNE_SCHEDULE", "@hourly"),
		EffectRetention:  parseDuration(getenv("EFFECT_RETENTION", "168h"), 7*24*time.Hour),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StorePostgres, StoreBolt, StoreMemory:
	default:
		return fmt.Errorf("%w: unknown STORE_DRIVER %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.DuplicateWindow <= 0 {
		return fmt.Errorf("%w: DUPLICATE_WINDOW must be positive", ErrInvalidConfig)
	}
	if c.RunLease <= 0 {
		return fmt.Errorf("%w: RUN_LEASE must be positive", ErrInvalidConfig)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("%w: MAX_RETRIES must be positive", ErrInvalidConfig)
	}
	if c.Suno.PollInterval <= 0 || c.Suno.MaxWait < c.Suno.PollInterval {
		return fmt.Errorf("%w: SUNO_MAX_WAIT must be at least SUNO_POLL_INTERVAL", ErrInvalidConfig)
	}
	return nil
}

// readFile loads a flat YAML map of configuration keys.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case []interface{}:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			out[strings.ToUpper(k)] = strings.Join(parts, ",")
		default:
			out[strings.ToUpper(k)] = fmt.Sprint(val)
		}
	}
	return out, nil
}

func splitList(val string) []string {
	var out []string
	for _, p := range strings.Split(val, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
