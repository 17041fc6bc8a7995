package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Search backends supported by the reference indexer.
const (
	SearchBackendNone     = "none"
	SearchBackendWeaviate = "weaviate"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	WhatsApp   WhatsAppConfig
	Search     SearchConfig
	Pipeline   PipelineConfig
	Tracing    TracingConfig
	References ReferencesConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// WhatsAppConfig holds messaging gateway credentials and message defaults.
// It is passed explicitly to the notification dispatcher.
type WhatsAppConfig struct {
	BaseURL          string
	APIVersion       string
	PhoneNumberID    string
	AccessToken      string
	TemplateName     string
	TemplateLanguage string
	Timeout          time.Duration
}

// Configured reports whether enough credentials exist to reach the gateway.
func (c WhatsAppConfig) Configured() bool {
	return strings.TrimSpace(c.AccessToken) != "" && strings.TrimSpace(c.PhoneNumberID) != ""
}

// SearchConfig selects the secondary read index for references.
type SearchConfig struct {
	Backend   string
	URL       string
	ClassName string
}

// PipelineConfig tunes the reference intake side effects.
type PipelineConfig struct {
	SideEffectWorkers int
	SideEffectBuffer  int
	IndexRetries      int
	RetryDelay        time.Duration
	// DeliveryWait bounds how long a submission waits for notification
	// outcomes before responding. Zero responds immediately.
	DeliveryWait    time.Duration
	NotifyTimeout   time.Duration
	ShutdownTimeout time.Duration

	EnforceForwardTransitions bool
	EnforceTotalCap           bool
	MaxReferences             int
}

// TracingConfig toggles the stdout span exporter.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
}

// ReferencesConfig governs caching of reference listings.
type ReferencesConfig struct {
	CacheTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.WhatsApp = WhatsAppConfig{
		BaseURL:          strings.TrimRight(v.GetString("WHATSAPP_BASE_URL"), "/"),
		APIVersion:       v.GetString("WHATSAPP_API_VERSION"),
		PhoneNumberID:    v.GetString("WHATSAPP_PHONE_NUMBER_ID"),
		AccessToken:      v.GetString("WHATSAPP_ACCESS_TOKEN"),
		TemplateName:     v.GetString("WHATSAPP_TEMPLATE_NAME"),
		TemplateLanguage: v.GetString("WHATSAPP_TEMPLATE_LANGUAGE"),
		Timeout:          parseDuration(v.GetString("WHATSAPP_TIMEOUT"), 10*time.Second),
	}

	cfg.Search = SearchConfig{
		Backend:   strings.ToLower(v.GetString("SEARCH_BACKEND")),
		URL:       v.GetString("SEARCH_URL"),
		ClassName: v.GetString("SEARCH_CLASS_NAME"),
	}

	maxRefs := v.GetInt("REFERENCES_MAX_PER_VOTER")
	if maxRefs <= 0 {
		maxRefs = 10
	}
	cfg.Pipeline = PipelineConfig{
		SideEffectWorkers:         v.GetInt("PIPELINE_WORKERS"),
		SideEffectBuffer:          v.GetInt("PIPELINE_BUFFER"),
		IndexRetries:              v.GetInt("PIPELINE_INDEX_RETRIES"),
		RetryDelay:                parseDuration(v.GetString("PIPELINE_RETRY_DELAY"), 2*time.Second),
		DeliveryWait:              parseDuration(v.GetString("PIPELINE_DELIVERY_WAIT"), 0),
		NotifyTimeout:             parseDuration(v.GetString("PIPELINE_NOTIFY_TIMEOUT"), 30*time.Second),
		ShutdownTimeout:           parseDuration(v.GetString("PIPELINE_SHUTDOWN_TIMEOUT"), 15*time.Second),
		EnforceForwardTransitions: v.GetBool("REFERENCES_FORWARD_ONLY"),
		EnforceTotalCap:           v.GetBool("REFERENCES_ENFORCE_TOTAL_CAP"),
		MaxReferences:             maxRefs,
	}

	cfg.Tracing = TracingConfig{
		Enabled:     v.GetBool("TRACING_ENABLED"),
		ServiceName: v.GetString("TRACING_SERVICE_NAME"),
	}

	cfg.References = ReferencesConfig{
		CacheTTL: parseDuration(v.GetString("REFERENCES_CACHE_TTL"), 5*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "graduate_voters")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com")
	v.SetDefault("WHATSAPP_API_VERSION", "v21.0")
	v.SetDefault("WHATSAPP_PHONE_NUMBER_ID", "")
	v.SetDefault("WHATSAPP_ACCESS_TOKEN", "")
	v.SetDefault("WHATSAPP_TEMPLATE_NAME", "reference_notification")
	v.SetDefault("WHATSAPP_TEMPLATE_LANGUAGE", "en")
	v.SetDefault("WHATSAPP_TIMEOUT", "10s")

	v.SetDefault("SEARCH_BACKEND", SearchBackendNone)
	v.SetDefault("SEARCH_URL", "http://localhost:8081")
	v.SetDefault("SEARCH_CLASS_NAME", "VoterReference")

	v.SetDefault("PIPELINE_WORKERS", 4)
	v.SetDefault("PIPELINE_BUFFER", 256)
	v.SetDefault("PIPELINE_INDEX_RETRIES", 2)
	v.SetDefault("PIPELINE_RETRY_DELAY", "2s")
	v.SetDefault("PIPELINE_DELIVERY_WAIT", "0s")
	v.SetDefault("PIPELINE_NOTIFY_TIMEOUT", "30s")
	v.SetDefault("PIPELINE_SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("REFERENCES_FORWARD_ONLY", false)
	v.SetDefault("REFERENCES_ENFORCE_TOTAL_CAP", false)
	v.SetDefault("REFERENCES_MAX_PER_VOTER", 10)
	v.SetDefault("REFERENCES_CACHE_TTL", "5m")

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_SERVICE_NAME", "voter-api")
}

// isMissingFile tolerates an absent .env when SetConfigFile is used, since
// viper reports that case as a plain fs error rather than ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
