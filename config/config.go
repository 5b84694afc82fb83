package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HOOL_UPSTREAM_GUILD_URL.
const EnvPrefix = "HOOL"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Editor   EditorConfig   `mapstructure:"editor"`
	Log      LogConfig      `mapstructure:"log"`
	Status   StatusConfig   `mapstructure:"status"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
}

// UpstreamConfig locates the three backend services.
type UpstreamConfig struct {
	GuildURL       string        `mapstructure:"guild_url"`
	ProgressURL    string        `mapstructure:"progress_url"`
	RecruitmentURL string        `mapstructure:"recruitment_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
	// IdentityTTL bounds how long a resolved identity is reused. Zero disables
	// the identity cache.
	IdentityTTL time.Duration `mapstructure:"identity_ttl"`
}

type SecurityConfig struct {
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the browser origins allowed to call the gateway
	// with credentials.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	InternalIPs    []string `mapstructure:"internal_ips"`
	AccessCookies  []string `mapstructure:"access_cookies"`
	RefreshCookies []string `mapstructure:"refresh_cookies"`
	// LoginURL is where unauthenticated browsers are sent.
	LoginURL string `mapstructure:"login_url"`
}

// EditorConfig tunes the debounced field editors.
type EditorConfig struct {
	DebounceWindow time.Duration `mapstructure:"debounce_window"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	CrestCap       int           `mapstructure:"crest_cap"`
	StateTTL       time.Duration `mapstructure:"state_ttl"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type StatusConfig struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

// Load reads config from the given YAML file path. A missing file is not an
// error: defaults and HOOL_* environment variables (optionally from .env)
// still apply.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_key", "")
	v.SetDefault("upstream.guild_url", "http://localhost:5000")
	v.SetDefault("upstream.progress_url", "http://localhost:5001")
	v.SetDefault("upstream.recruitment_url", "http://localhost:5002")
	v.SetDefault("upstream.timeout", "10s")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("cache.identity_ttl", "5m")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("security.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("security.internal_ips", []string{"127.0.0.1", "::1"})
	v.SetDefault("security.access_cookies", []string{"access_token", "access_token_cookie", "jwt", "session"})
	v.SetDefault("security.refresh_cookies", []string{"refresh_token", "refresh_token_cookie"})
	v.SetDefault("security.login_url", "/login")
	v.SetDefault("editor.debounce_window", "500ms")
	v.SetDefault("editor.write_timeout", "10s")
	v.SetDefault("editor.crest_cap", 100)
	v.SetDefault("editor.state_ttl", "24h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("status.probe_interval", "30s")
	v.SetDefault("status.probe_timeout", "3s")

	if err := v.ReadInConfig(); err != nil && !isMissing(err) {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isMissing(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}
