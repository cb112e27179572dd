package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration bytes, applying defaults and validating
func Parse(data []byte) (*Config, error) {
	// retryEnabled defaults to true, so its presence has to be detected
	// separately from the zero value
	var probe struct {
		RetryEnabled *bool `json:"retryEnabled"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if probe.RetryEnabled == nil {
		cfg.RetryEnabled = DefaultRetryEnabled
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = DefaultRetryMaxAttempts
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = DefaultCacheSize
	}
	if cfg.Cache.CacheTime == 0 {
		cfg.Cache.CacheTime = DefaultCacheTime
	}
	// Cache.StaleTime default of 0 (always stale) is valid as-is
	if cfg.Watcher.DedupSize == 0 {
		cfg.Watcher.DedupSize = DefaultDedupSize
	}
	if cfg.Watcher.PollInterval == 0 {
		cfg.Watcher.PollInterval = DefaultPollInterval
	}
	if cfg.Watcher.MessageTimeout == 0 {
		cfg.Watcher.MessageTimeout = DefaultMessageTimeout
	}
	if cfg.Watcher.ReconnectInterval == 0 {
		cfg.Watcher.ReconnectInterval = DefaultReconnectInterval
	}

	for i := range cfg.Endpoints {
		if cfg.Endpoints[i].Role == "" {
			cfg.Endpoints[i].Role = DefaultEndpointRole
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if len(cfg.Endpoints) == 0 {
		return errors.New("at least one endpoint is required")
	}

	endpointNames := make(map[string]bool)
	for i, e := range cfg.Endpoints {
		if e.Name == "" {
			return fmt.Errorf("endpoint[%d]: name is required", i)
		}
		if endpointNames[e.Name] {
			return fmt.Errorf("endpoint[%d]: duplicate endpoint name '%s'", i, e.Name)
		}
		endpointNames[e.Name] = true

		if e.RPCURL == "" {
			return fmt.Errorf("endpoint '%s': rpcUrl is required", e.Name)
		}
		if e.Role != RoleMain && e.Role != RoleFallback {
			return fmt.Errorf("endpoint '%s': role must be 'main' or 'fallback'", e.Name)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}
	if cfg.RetryMaxAttempts < 0 {
		return fmt.Errorf("retryMaxAttempts must be non-negative")
	}
	if cfg.Cache.Size <= 0 {
		return fmt.Errorf("cache.size must be positive")
	}
	if cfg.Cache.CacheTime < 0 {
		return fmt.Errorf("cache.cacheTime must be non-negative")
	}
	if cfg.Cache.StaleTime < -1 {
		return fmt.Errorf("cache.staleTime must be -1, 0, or positive")
	}

	readerNames := make(map[string]bool)
	for i, r := range cfg.Readers {
		if r.Name == "" {
			return fmt.Errorf("reader[%d]: name is required", i)
		}
		if readerNames[r.Name] {
			return fmt.Errorf("reader[%d]: duplicate reader name '%s'", i, r.Name)
		}
		readerNames[r.Name] = true

		if len(r.Calls) == 0 {
			return fmt.Errorf("reader '%s': at least one call is required", r.Name)
		}
		for j, call := range r.Calls {
			if call.Address == "" {
				return fmt.Errorf("reader '%s', call[%d]: address is required", r.Name, j)
			}
			if call.ABI == "" {
				return fmt.Errorf("reader '%s', call[%d]: abi is required", r.Name, j)
			}
			if call.Method == "" {
				return fmt.Errorf("reader '%s', call[%d]: method is required", r.Name, j)
			}
		}
		if r.Select != "" && !cfg.IsTransformsEnabled() {
			return fmt.Errorf("reader '%s': select requires transforms to be enabled", r.Name)
		}
		if r.Interval < 0 {
			return fmt.Errorf("reader '%s': interval must be non-negative", r.Name)
		}
		if r.CacheTime != nil && *r.CacheTime < 0 {
			return fmt.Errorf("reader '%s': cacheTime must be non-negative", r.Name)
		}
		if r.StaleTime != nil && *r.StaleTime < -1 {
			return fmt.Errorf("reader '%s': staleTime must be >= -1", r.Name)
		}
	}

	return nil
}
