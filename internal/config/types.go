package config

import "time"

// Role defines the endpoint role type
type Role string

const (
	RoleMain     Role = "main"
	RoleFallback Role = "fallback"
)

// Config represents the main configuration structure
type Config struct {
	LogLevel         string           `json:"logLevel"`
	MetricsAddr      string           `json:"metricsAddr"` // empty disables the /metrics listener
	ChainID          uint64           `json:"chainId"`     // 0 adopts the first endpoint's chain
	RequestTimeout   int              `json:"requestTimeout"` // ms
	RetryEnabled     bool             `json:"retryEnabled"`
	RetryMaxAttempts int              `json:"retryMaxAttempts"`
	Breaker          *BreakerConfig   `json:"breaker,omitempty"`
	Endpoints        []EndpointConfig `json:"endpoints"`
	Cache            CacheConfig      `json:"cache"`
	Watcher          WatcherConfig    `json:"watcher"`
	Transforms       *TransformConfig `json:"transforms,omitempty"`
	Readers          []ReaderConfig   `json:"readers"`
}

// BreakerConfig represents circuit breaker configuration
type BreakerConfig struct {
	Enabled          bool `json:"enabled"`
	FailureThreshold int  `json:"failureThreshold"`
	RecoveryTimeout  int  `json:"recoveryTimeout"` // ms
	ProbeRequests    int  `json:"probeRequests"`
}

// EndpointConfig represents a single endpoint configuration
type EndpointConfig struct {
	Name   string `json:"name"`
	RPCURL string `json:"rpcUrl"`
	WSURL  string `json:"wsUrl"`
	Role   Role   `json:"role"`
}

// CacheConfig represents result cache configuration
type CacheConfig struct {
	Size      int `json:"size"`      // number of entries
	CacheTime int `json:"cacheTime"` // ms retention after last access, 0 = none
	StaleTime int `json:"staleTime"` // ms until stale, -1 = never stale
}

// WatcherConfig represents block watcher configuration
type WatcherConfig struct {
	DedupSize         int `json:"dedupSize"`
	PollInterval      int `json:"pollInterval"`      // ms - HTTP fallback polling
	MessageTimeout    int `json:"messageTimeout"`    // ms - WebSocket read timeout
	ReconnectInterval int `json:"reconnectInterval"` // ms - WebSocket reconnect backoff
}

// TransformConfig represents JS transform configuration
type TransformConfig struct {
	Enabled   bool   `json:"enabled"`
	Directory string `json:"directory"`
	Timeout   int    `json:"timeout"` // ms
}

// ReaderConfig represents one configured reader
type ReaderConfig struct {
	Name         string       `json:"name"`
	AllowFailure bool         `json:"allowFailure"`
	CacheOnBlock bool         `json:"cacheOnBlock"`
	Watch        bool         `json:"watch"`
	Disabled     bool         `json:"disabled"`
	Interval     int          `json:"interval"`            // ms between periodic reads, 0 = read once
	CacheTime    *int         `json:"cacheTime,omitempty"` // ms, overrides cache.cacheTime when set
	StaleTime    *int         `json:"staleTime,omitempty"` // ms, overrides cache.staleTime when set
	Select       string       `json:"select"`              // transform name, empty = raw
	Calls        []CallConfig `json:"calls"`
}

// CallConfig represents one contract call inside a reader
type CallConfig struct {
	Address string        `json:"address"`
	ABI     string        `json:"abi"` // JSON ABI fragment
	Method  string        `json:"method"`
	Args    []interface{} `json:"args"`
	ChainID uint64        `json:"chainId"`
}

// Default values
const (
	DefaultLogLevel          = "info"
	DefaultRequestTimeout    = 5000 // ms
	DefaultRetryEnabled      = true
	DefaultRetryMaxAttempts  = 3
	DefaultCacheSize         = 1024
	DefaultCacheTime         = 300000 // ms - 5 minutes of retention
	DefaultStaleTime         = 0      // always stale: serve cached, refetch in background
	DefaultDedupSize         = 1024
	DefaultPollInterval      = 4000  // ms
	DefaultMessageTimeout    = 60000 // ms
	DefaultReconnectInterval = 5000  // ms
	DefaultTransformTimeout  = 5000  // ms
	DefaultEndpointRole      = RoleMain
)

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// GetCacheTimeDuration returns cache retention as time.Duration
func (c *CacheConfig) GetCacheTimeDuration() time.Duration {
	return time.Duration(c.CacheTime) * time.Millisecond
}

// GetStaleTimeDuration returns staleness age as time.Duration;
// the -1 sentinel maps to "never stale"
func (c *CacheConfig) GetStaleTimeDuration() (time.Duration, bool) {
	if c.StaleTime < 0 {
		return 0, false
	}
	return time.Duration(c.StaleTime) * time.Millisecond, true
}

// GetPollIntervalDuration returns the poll interval as time.Duration
func (c *WatcherConfig) GetPollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Millisecond
}

// GetMessageTimeoutDuration returns the WS read timeout as time.Duration
func (c *WatcherConfig) GetMessageTimeoutDuration() time.Duration {
	return time.Duration(c.MessageTimeout) * time.Millisecond
}

// GetReconnectIntervalDuration returns the WS reconnect backoff as time.Duration
func (c *WatcherConfig) GetReconnectIntervalDuration() time.Duration {
	return time.Duration(c.ReconnectInterval) * time.Millisecond
}

// GetIntervalDuration returns the periodic read interval as
// time.Duration; 0 means the reader reads once
func (c *ReaderConfig) GetIntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Millisecond
}

// GetCacheTimeDuration returns the reader's retention override, or nil
// to inherit the cache-level default
func (c *ReaderConfig) GetCacheTimeDuration() *time.Duration {
	if c.CacheTime == nil {
		return nil
	}
	d := time.Duration(*c.CacheTime) * time.Millisecond
	return &d
}

// GetStaleTimeDuration returns the reader's staleness override, or nil
// to inherit from the cache-level setting. The -1 sentinel comes back
// as a negative duration; callers map it to "never stale".
func (c *ReaderConfig) GetStaleTimeDuration() *time.Duration {
	if c.StaleTime == nil {
		return nil
	}
	d := time.Duration(*c.StaleTime) * time.Millisecond
	return &d
}

// IsTransformsEnabled returns true if transforms are configured and enabled
func (c *Config) IsTransformsEnabled() bool {
	return c.Transforms != nil && c.Transforms.Enabled
}

// GetTransformTimeoutDuration returns the transform timeout as time.Duration
func (c *Config) GetTransformTimeoutDuration() time.Duration {
	if c.Transforms == nil || c.Transforms.Timeout == 0 {
		return time.Duration(DefaultTransformTimeout) * time.Millisecond
	}
	return time.Duration(c.Transforms.Timeout) * time.Millisecond
}
