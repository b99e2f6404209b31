// Package config loads server configuration from an optional YAML file,
// with every field overridable by a CERTSTREAM_* environment variable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// CustomLog is an operator-defined CT log not carried by the published log
// list.
type CustomLog struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Protocols toggles which transports the server serves.
type Protocols struct {
	WebSocket bool   `yaml:"websocket"`
	SSE       bool   `yaml:"sse"`
	TCP       bool   `yaml:"tcp"`
	TCPPort   uint16 `yaml:"tcp_port"`
	Metrics   bool   `yaml:"metrics"`
}

// CTLog holds the tunables for polling and retrying against CT logs.
type CTLog struct {
	RetryMaxAttempts        uint32 `yaml:"retry_max_attempts"`
	RetryInitialDelayMs     uint64 `yaml:"retry_initial_delay_ms"`
	RetryMaxDelayMs         uint64 `yaml:"retry_max_delay_ms"`
	RequestTimeoutSecs      uint64 `yaml:"request_timeout_secs"`
	HealthyThreshold        uint32 `yaml:"healthy_threshold"`
	UnhealthyThreshold      uint32 `yaml:"unhealthy_threshold"`
	HealthCheckIntervalSecs uint64 `yaml:"health_check_interval_secs"`
	StateFile               string `yaml:"state_file"`
	BatchSize                uint64 `yaml:"batch_size"`
	PollIntervalMs           uint64 `yaml:"poll_interval_ms"`
}

// RateLimit configures the token-bucket limiter applied to HTTP requests per
// source IP.
type RateLimit struct {
	Enabled   bool   `yaml:"enabled"`
	PerSecond uint64 `yaml:"per_second"`
	BurstSize uint32 `yaml:"burst_size"`
}

// ConnectionLimit caps total and per-IP concurrent subscriber connections.
type ConnectionLimit struct {
	Enabled        bool   `yaml:"enabled"`
	MaxConnections uint32 `yaml:"max_connections"`
	PerIPLimit     uint32 `yaml:"per_ip_limit"`
}

// Auth gates connections behind a bearer token.
type Auth struct {
	Enabled    bool     `yaml:"enabled"`
	Tokens     []string `yaml:"tokens"`
	HeaderName string   `yaml:"header_name"`
}

// HotReload watches a config file and re-applies it without a restart.
type HotReload struct {
	Enabled   bool   `yaml:"enabled"`
	WatchPath string `yaml:"watch_path"`
}

// Config is the fully resolved configuration: YAML file values overridden
// by environment variables, both layered over built-in defaults.
type Config struct {
	Host       string
	Port       uint16
	LogLevel   string
	BufferSize int
	CTLogsURL  string
	TLSCert    string
	TLSKey     string
	CustomLogs []CustomLog

	Protocols       Protocols
	CTLog           CTLog
	RateLimit       RateLimit
	ConnectionLimit ConnectionLimit
	Auth            Auth
	HotReload       HotReload

	ConfigPath string
}

// HasTLS reports whether both halves of a TLS keypair were configured.
func (c *Config) HasTLS() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// yamlConfig mirrors Config's shape but leaves every field optional, so a
// YAML file only needs to set what it wants to override.
type yamlConfig struct {
	Host       *string      `yaml:"host"`
	Port       *uint16      `yaml:"port"`
	LogLevel   *string      `yaml:"log_level"`
	BufferSize *int         `yaml:"buffer_size"`
	CTLogsURL  *string      `yaml:"ct_logs_url"`
	TLSCert    *string      `yaml:"tls_cert"`
	TLSKey     *string      `yaml:"tls_key"`
	CustomLogs []CustomLog  `yaml:"custom_logs"`

	Protocols       *Protocols       `yaml:"protocols"`
	CTLog           *CTLog           `yaml:"ct_log"`
	RateLimit       *RateLimit       `yaml:"rate_limit"`
	ConnectionLimit *ConnectionLimit `yaml:"connection_limit"`
	Auth            *Auth            `yaml:"auth"`
	HotReload       *HotReload       `yaml:"hot_reload"`
}

func defaultCTLog() CTLog {
	return CTLog{
		RetryMaxAttempts:        3,
		RetryInitialDelayMs:     1000,
		RetryMaxDelayMs:         30000,
		RequestTimeoutSecs:      30,
		HealthyThreshold:        2,
		UnhealthyThreshold:      5,
		HealthCheckIntervalSecs: 60,
		BatchSize:               256,
		PollIntervalMs:           1000,
	}
}

func defaultRateLimit() RateLimit {
	return RateLimit{PerSecond: 10, BurstSize: 50}
}

func defaultConnectionLimit() ConnectionLimit {
	return ConnectionLimit{MaxConnections: 10000}
}

func defaultAuth() Auth {
	return Auth{HeaderName: "Authorization"}
}

func defaultProtocols() Protocols {
	return Protocols{WebSocket: true, Metrics: true}
}

// configSearchPaths is the order config files are looked for: an explicit
// CERTSTREAM_CONFIG path first, then the two conventional names in the
// working directory, then the system-wide location.
func configSearchPaths() []string {
	var paths []string
	if p := os.Getenv("CERTSTREAM_CONFIG"); p != "" {
		paths = append(paths, p)
	}
	return append(paths, "config.yaml", "config.yml", "/etc/certstream/config.yaml")
}

func loadYAML() (yamlConfig, string) {
	for _, path := range configSearchPaths() {
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		// Seed each subsection with its defaults so a file that sets only
		// some fields of a subsection keeps the defaults for the rest.
		protocols, ctLog := defaultProtocols(), defaultCTLog()
		rateLimit, connLimit, auth := defaultRateLimit(), defaultConnectionLimit(), defaultAuth()
		y := yamlConfig{
			Protocols:       &protocols,
			CTLog:           &ctLog,
			RateLimit:       &rateLimit,
			ConnectionLimit: &connLimit,
			Auth:            &auth,
		}
		if err := yaml.Unmarshal(content, &y); err != nil {
			continue
		}

		return y, path
	}

	return yamlConfig{}, ""
}

// Load resolves the full Config from (in increasing priority) built-in
// defaults, an optional YAML file, and CERTSTREAM_* environment variables.
func Load() Config {
	y, configPath := loadYAML()

	cfg := Config{
		Host:       firstString(os.Getenv("CERTSTREAM_HOST"), derefString(y.Host), "0.0.0.0"),
		Port:       firstUint16(envUint16("CERTSTREAM_PORT"), y.Port, 8080),
		LogLevel:   firstString(os.Getenv("CERTSTREAM_LOG_LEVEL"), derefString(y.LogLevel), "info"),
		BufferSize: firstInt(envInt("CERTSTREAM_BUFFER_SIZE"), y.BufferSize, 1000),
		CTLogsURL: firstString(
			os.Getenv("CERTSTREAM_CT_LOGS_URL"),
			derefString(y.CTLogsURL),
			"https://www.gstatic.com/ct/log_list/v3/all_logs_list.json",
		),
		TLSCert:    firstString(os.Getenv("CERTSTREAM_TLS_CERT"), derefString(y.TLSCert), ""),
		TLSKey:     firstString(os.Getenv("CERTSTREAM_TLS_KEY"), derefString(y.TLSKey), ""),
		CustomLogs: y.CustomLogs,
		ConfigPath: configPath,
	}

	cfg.Protocols = resolveProtocols(y.Protocols)
	cfg.CTLog = resolveCTLog(y.CTLog)
	cfg.RateLimit = resolveRateLimit(y.RateLimit)
	cfg.ConnectionLimit = resolveConnectionLimit(y.ConnectionLimit)
	cfg.Auth = resolveAuth(y.Auth)
	cfg.HotReload = resolveHotReload(y.HotReload)

	if cfg.Protocols.TCP && cfg.Protocols.TCPPort == 0 {
		cfg.Protocols.TCPPort = cfg.Port + 1
	}

	return cfg
}

// resolveProtocols and its siblings below all follow the same precedence:
// start from the YAML-sourced subsection if a file was loaded (its defaults
// with the file's fields on top), else from the built-in defaults, then apply every CERTSTREAM_* env var on top of that
// regardless of which base it started from. A YAML file setting only one
// field of a subsection must not silently block env overrides for the rest
// of that subsection's fields.
func resolveProtocols(y *Protocols) Protocols {
	p := defaultProtocols()
	if y != nil {
		p = *y
	}

	p.WebSocket = envBoolOr("CERTSTREAM_WS_ENABLED", p.WebSocket)
	p.SSE = envBoolOr("CERTSTREAM_SSE_ENABLED", p.SSE)
	p.TCP = envBoolOr("CERTSTREAM_TCP_ENABLED", p.TCP)
	if v := envUint16("CERTSTREAM_TCP_PORT"); v != nil {
		p.TCPPort = *v
	}
	p.Metrics = envBoolOr("CERTSTREAM_METRICS_ENABLED", p.Metrics)
	return p
}

func resolveCTLog(y *CTLog) CTLog {
	c := defaultCTLog()
	if y != nil {
		c = *y
	}

	c.RetryMaxAttempts = envUint32Or("CERTSTREAM_RETRY_MAX_ATTEMPTS", c.RetryMaxAttempts)
	c.RetryInitialDelayMs = envUint64Or("CERTSTREAM_RETRY_INITIAL_DELAY_MS", c.RetryInitialDelayMs)
	c.RetryMaxDelayMs = envUint64Or("CERTSTREAM_RETRY_MAX_DELAY_MS", c.RetryMaxDelayMs)
	c.RequestTimeoutSecs = envUint64Or("CERTSTREAM_REQUEST_TIMEOUT_SECS", c.RequestTimeoutSecs)
	c.UnhealthyThreshold = envUint32Or("CERTSTREAM_UNHEALTHY_THRESHOLD", c.UnhealthyThreshold)
	c.HealthyThreshold = envUint32Or("CERTSTREAM_HEALTHY_THRESHOLD", c.HealthyThreshold)
	c.HealthCheckIntervalSecs = envUint64Or("CERTSTREAM_HEALTH_CHECK_INTERVAL_SECS", c.HealthCheckIntervalSecs)
	c.StateFile = firstString(os.Getenv("CERTSTREAM_STATE_FILE"), c.StateFile, "")
	c.BatchSize = envUint64Or("CERTSTREAM_BATCH_SIZE", c.BatchSize)
	c.PollIntervalMs = envUint64Or("CERTSTREAM_POLL_INTERVAL_MS", c.PollIntervalMs)
	return c
}

func resolveRateLimit(y *RateLimit) RateLimit {
	r := defaultRateLimit()
	if y != nil {
		r = *y
	}

	r.Enabled = envBoolOr("CERTSTREAM_RATE_LIMIT_ENABLED", r.Enabled)
	r.PerSecond = envUint64Or("CERTSTREAM_RATE_LIMIT_PER_SECOND", r.PerSecond)
	r.BurstSize = envUint32Or("CERTSTREAM_RATE_LIMIT_BURST_SIZE", r.BurstSize)
	return r
}

func resolveConnectionLimit(y *ConnectionLimit) ConnectionLimit {
	c := defaultConnectionLimit()
	if y != nil {
		c = *y
	}

	c.Enabled = envBoolOr("CERTSTREAM_CONNECTION_LIMIT_ENABLED", c.Enabled)
	c.MaxConnections = envUint32Or("CERTSTREAM_MAX_CONNECTIONS", c.MaxConnections)
	c.PerIPLimit = envUint32Or("CERTSTREAM_PER_IP_LIMIT", c.PerIPLimit)
	return c
}

func resolveAuth(y *Auth) Auth {
	a := defaultAuth()
	if y != nil {
		a = *y
	}

	a.Enabled = envBoolOr("CERTSTREAM_AUTH_ENABLED", a.Enabled)
	if v := os.Getenv("CERTSTREAM_AUTH_TOKENS"); v != "" {
		tokens := strings.Split(v, ",")
		for i := range tokens {
			tokens[i] = strings.TrimSpace(tokens[i])
		}
		a.Tokens = tokens
	}
	a.HeaderName = firstString(os.Getenv("CERTSTREAM_AUTH_HEADER"), a.HeaderName, "Authorization")
	return a
}

func resolveHotReload(y *HotReload) HotReload {
	h := HotReload{}
	if y != nil {
		h = *y
	}

	h.Enabled = envBoolOr("CERTSTREAM_HOT_RELOAD_ENABLED", h.Enabled)
	return h
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(envVal *int, yamlVal *int, def int) int {
	if envVal != nil {
		return *envVal
	}
	if yamlVal != nil {
		return *yamlVal
	}
	return def
}

func firstUint16(envVal *uint16, yamlVal *uint16, def uint16) uint16 {
	if envVal != nil {
		return *envVal
	}
	if yamlVal != nil {
		return *yamlVal
	}
	return def
}

func envInt(name string) *int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &parsed
}

func envUint16(name string) *uint16 {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return nil
	}
	result := uint16(parsed)
	return &result
}

func envUint32Or(name string, def uint32) uint32 {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return def
	}
	return uint32(parsed)
}

func envUint64Or(name string, def uint64) uint64 {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func envBoolOr(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

// Validate reports an error for configuration combinations that cannot
// work: the TCP transport sharing the HTTP listener's port.
func (c *Config) Validate() error {
	if c.Protocols.TCP && c.Protocols.TCPPort == c.Port {
		return fmt.Errorf("config: tcp_port %d collides with the HTTP port", c.Protocols.TCPPort)
	}
	return nil
}
