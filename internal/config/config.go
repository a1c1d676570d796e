package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var validDetectors = map[string]bool{
	"all":             true,
	"email":           true,
	"phone":           true,
	"ssn":             true,
	"url":             true,
	"credit_card":     true,
	"ip_address":      true,
	"currency_amount": true,
	"company":         true,
	"person_name":     true,
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	config := GetDefaults()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/piifilter/")
	v.AddConfigPath("$HOME/.piifilter/")

	// Environment variable overrides, e.g. PIIFILTER_SERVER_PORT
	v.SetEnvPrefix("PIIFILTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindDefaults(v, GetDefaults())

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

// bindDefaults registers every key so AutomaticEnv can override keys that the
// config file does not mention.
func bindDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("privacy.detectors", d.Privacy.Detectors)
	v.SetDefault("privacy.ner.enabled", d.Privacy.NER.Enabled)
	v.SetDefault("privacy.ner.backend", d.Privacy.NER.Backend)
	v.SetDefault("privacy.ner.timeout", d.Privacy.NER.Timeout)
	v.SetDefault("privacy.ner.dictionary_path", d.Privacy.NER.DictionaryPath)
	v.SetDefault("privacy.ner.model_path", d.Privacy.NER.ModelPath)
	v.SetDefault("privacy.ner.endpoint", d.Privacy.NER.Endpoint)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.redis_url", d.Cache.RedisURL)
	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.database_url", d.Audit.DatabaseURL)
	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_min", d.RateLimit.RequestsPerMin)
	v.SetDefault("websocket.username", d.WebSocket.Username)
	v.SetDefault("websocket.password", d.WebSocket.Password)
	v.SetDefault("drafts.api_base", d.Drafts.APIBase)
	v.SetDefault("auth.domain", d.Auth.Domain)
	v.SetDefault("auth.client_id", d.Auth.ClientID)
	v.SetDefault("auth.access_token", d.Auth.AccessToken)
	v.SetDefault("auth.refresh_token", d.Auth.RefreshToken)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	return validateConfig(c)
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if len(config.Privacy.Detectors) == 0 {
		return fmt.Errorf("privacy.detectors must not be empty")
	}
	for _, d := range config.Privacy.Detectors {
		if !validDetectors[d] {
			return fmt.Errorf("unknown detector: %s", d)
		}
	}

	if config.Privacy.NER.Enabled {
		switch config.Privacy.NER.Backend {
		case "dictionary":
			if config.Privacy.NER.DictionaryPath == "" {
				return fmt.Errorf("privacy.ner.dictionary_path is required for the dictionary backend")
			}
		case "onnx":
			if config.Privacy.NER.ModelPath == "" {
				return fmt.Errorf("privacy.ner.model_path is required for the onnx backend")
			}
		case "http":
			if config.Privacy.NER.Endpoint == "" {
				return fmt.Errorf("privacy.ner.endpoint is required for the http backend")
			}
		default:
			return fmt.Errorf("invalid ner backend: %s (must be dictionary, onnx, or http)", config.Privacy.NER.Backend)
		}
		if config.Privacy.NER.Timeout <= 0 {
			return fmt.Errorf("privacy.ner.timeout must be positive")
		}
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url is required when the cache is enabled")
	}

	if config.Audit.Enabled && config.Audit.DatabaseURL == "" {
		return fmt.Errorf("audit.database_url is required when the audit store is enabled")
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.RateLimit.RequestsPerMin)
	}

	if config.Tracing.SampleRate < 0 || config.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}

	if config.Batch.BatchSize <= 0 || config.Batch.WorkerCount <= 0 {
		return fmt.Errorf("batch.batch_size and batch.worker_count must be positive")
	}

	return nil
}

// Watch starts watching the configuration file for changes. Only settings that
// are safe to change at runtime are handed to the callback; a config that no
// longer validates is ignored.
func Watch(configPath string, callback func(*Config)) error {
	v, err := newViper(configPath)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no config file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			return
		}
		if err := validateConfig(newConfig); err != nil {
			return
		}
		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}
