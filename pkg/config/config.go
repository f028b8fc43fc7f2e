package config

import (
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all the configuration for our application
// The structure tags (mapstructure) tell Viper which YAML field maps to which Go struct field.
type Config struct {
	Server     ServerConfig         `mapstructure:"server"`
	Vision     VisionConfig         `mapstructure:"vision"`
	Retry      RetryConfig          `mapstructure:"retry"`
	RateLimit  RateLimitConfig      `mapstructure:"ratelimit"`
	Redis      RedisConfig          `mapstructure:"redis"`
	Cache      CacheConfig          `mapstructure:"cache"`
	Extraction ExtractionConfig     `mapstructure:"extraction"`
	Models     map[string]ModelRate `mapstructure:"models"`
	Admin      AdminConfig          `mapstructure:"admin"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// VisionConfig points at the remote vision-model service.
type VisionConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// Outbound calls per second against the remote service, shared across requests.
	CallsPerSecond float64 `mapstructure:"calls_per_second"`
	CallBurst      int     `mapstructure:"call_burst"`
}

type RetryConfig struct {
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"requests_per_second"`
	Burst   int     `mapstructure:"burst"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
	// MaxEntries bounds the in-memory store used when Redis is disabled.
	MaxEntries int `mapstructure:"max_entries"`
}

type ExtractionConfig struct {
	ConfidenceThreshold int `mapstructure:"confidence_threshold"`
}

// ModelRate is the static price-table entry for one model, in USD.
type ModelRate struct {
	Tier        string  `mapstructure:"tier"`
	PerImage    float64 `mapstructure:"per_image"`
	Per1kTokens float64 `mapstructure:"per_1k_tokens"`
}

type AdminConfig struct {
	Key string `mapstructure:"key"`
}

// Store wraps configuration with thread-safe access and hot-reload updates.
type Store struct {
	mu  sync.RWMutex
	cfg *Config
}

func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return nil
	}
	cpy := *s.cfg
	return &cpy
}

func (s *Store) set(cfg *Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// LoadAndWatch loads the config and watches for on-disk changes.
func LoadAndWatch() (*Store, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.AddConfigPath("./configs")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	store := &Store{}
	if err := refresh(v, store); err != nil {
		return nil, err
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		if err := refresh(v, store); err != nil {
			log.Printf("[CONFIG] reload failed: %v", err)
		} else {
			log.Printf("[CONFIG] reloaded from %s", e.Name)
		}
	})

	return store, nil
}

// Load preserves the old API: it loads once and does not watch.
func Load() (*Config, error) {
	store, err := LoadAndWatch()
	if err != nil {
		return nil, err
	}
	return store.Get(), nil
}

func refresh(v *viper.Viper, store *Store) error {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return err
	}
	ApplyDefaults(&cfg)
	store.set(&cfg)
	return nil
}

// ApplyDefaults fills zero values with workable defaults so a sparse
// YAML file still produces a runnable service.
func ApplyDefaults(cfg *Config) {
	if cfg.Vision.RequestTimeout == 0 {
		cfg.Vision.RequestTimeout = 30 * time.Second
	}
	if cfg.Vision.CallsPerSecond == 0 {
		cfg.Vision.CallsPerSecond = 10
	}
	if cfg.Vision.CallBurst == 0 {
		cfg.Vision.CallBurst = 20
	}
	if cfg.Retry.BackoffBase == 0 {
		cfg.Retry.BackoffBase = 500 * time.Millisecond
	}
	if cfg.Retry.BackoffCap == 0 {
		cfg.Retry.BackoffCap = 8 * time.Second
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 24 * time.Hour
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 10_000
	}
	if cfg.Extraction.ConfidenceThreshold == 0 {
		cfg.Extraction.ConfidenceThreshold = 70
	}
}
