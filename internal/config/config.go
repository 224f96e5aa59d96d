// Package config loads the petstoreapp configuration from config.yml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configFile = "config.yml"

	PetService     = "pet-service"
	ProductService = "product-service"
	OrderService   = "order-service"
)

// Services lists the downstream services the application calls.
var Services = []string{PetService, ProductService, OrderService}

var validProxyPolicies = map[string]bool{"use": true, "require": true, "ignore": true, "reject": true}

type yamlDuration time.Duration

func (d *yamlDuration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	*d = yamlDuration(parsed)

	return nil
}

// ServerConfig configures the inbound HTTP server.
type ServerConfig struct {
	Listen             string       `yaml:"listen,omitempty"`
	WebListen          string       `yaml:"web_listen,omitempty"`
	ReadinessProbe     string       `yaml:"readiness_probe,omitempty"`
	LivenessProbe      string       `yaml:"liveness_probe,omitempty"`
	GracePeriod        yamlDuration `yaml:"grace_period,omitempty"`
	ProxyProtocol      bool         `yaml:"proxy_protocol,omitempty"`
	ProxyPolicy        string       `yaml:"proxy_policy,omitempty"`
	ProxyAllowed       []string     `yaml:"proxy_allowed,omitempty"`
	ProxyHeaderTimeout yamlDuration `yaml:"proxy_header_timeout,omitempty"`
	// ForwardHeaders names inbound headers copied onto every downstream call.
	ForwardHeaders []string `yaml:"forward_headers,omitempty"`
}

// SessionConfig configures browser sessions and bearer token verification.
type SessionConfig struct {
	CookieName  string `yaml:"cookie_name,omitempty"`
	MaxSessions int    `yaml:"max_sessions,omitempty"`
	// SecretFilePath is only for parsing. Application code should always use Secret.
	SecretFilePath string `yaml:"secret_file,omitempty"`
	Secret         string `yaml:"secret,omitempty"`
}

// ServiceConfig locates a downstream service.
type ServiceConfig struct {
	URL string `yaml:"url"`
}

// DownstreamConfig configures the clients of the downstream services.
type DownstreamConfig struct {
	ConnectTimeout yamlDuration `yaml:"connect_timeout,omitempty"`
	ReadTimeout    yamlDuration `yaml:"read_timeout,omitempty"`
	// RetryMax bounds retries of refused connections. A negative value
	// disables retries.
	RetryMax     int                      `yaml:"retry_max,omitempty"`
	RetryWaitMin yamlDuration             `yaml:"retry_wait_min,omitempty"`
	RetryWaitMax yamlDuration             `yaml:"retry_wait_max,omitempty"`
	CaFile       string                   `yaml:"ca_file,omitempty"`
	CaPath       string                   `yaml:"ca_path,omitempty"`
	StartupWait  yamlDuration             `yaml:"startup_wait,omitempty"`
	Services     map[string]ServiceConfig `yaml:"services,omitempty"`
}

// Config is the complete application configuration.
type Config struct {
	RootDir string `yaml:"-"`

	Server ServerConfig `yaml:",inline"`

	LogFile       string `yaml:"log_file,omitempty"`
	LogFormat     string `yaml:"log_format,omitempty"`
	LogLevel      string `yaml:"log_level,omitempty"`
	Tracing       string `yaml:"tracing,omitempty"`
	ServiceName   string `yaml:"service_name,omitempty"`
	Version       string `yaml:"version,omitempty"`
	ContainerHost string `yaml:"container_host,omitempty"`

	Session    SessionConfig    `yaml:"session,omitempty"`
	Downstream DownstreamConfig `yaml:"downstream,omitempty"`
}

// DefaultServerConfig holds the server values applied by ApplyDefaults.
var DefaultServerConfig = ServerConfig{
	Listen:             "[::]:8080",
	WebListen:          "localhost:9122",
	ReadinessProbe:     "/readiness",
	LivenessProbe:      "/liveness",
	GracePeriod:        yamlDuration(10 * time.Second),
	ProxyPolicy:        "use",
	ProxyHeaderTimeout: yamlDuration(500 * time.Millisecond),
}

// DefaultConfig holds the values applied by ApplyDefaults.
var DefaultConfig = Config{
	Server:      DefaultServerConfig,
	LogFormat:   "text",
	LogLevel:    "info",
	ServiceName: "petstoreapp",
	Session: SessionConfig{
		CookieName:  "petstore_session",
		MaxSessions: 10000,
	},
	Downstream: DownstreamConfig{
		ConnectTimeout: yamlDuration(5 * time.Second),
		ReadTimeout:    yamlDuration(5 * time.Second),
		RetryMax:       2,
		RetryWaitMin:   yamlDuration(100 * time.Millisecond),
		RetryWaitMax:   yamlDuration(time.Second),
		StartupWait:    yamlDuration(30 * time.Second),
	},
}

// NewFromDir returns a new config given a root directory. It looks for the
// config file name in the given directory and reads the config from it. It
// doesn't apply any defaults.
func NewFromDir(dir string) (*Config, error) {
	return newFromFile(filepath.Join(dir, configFile))
}

func newFromFile(path string) (*Config, error) {
	cfg := &Config{RootDir: filepath.Dir(path)}

	configBytes, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(configBytes, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := parseSecret(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseSecret(cfg *Config) error {
	// The secret was parsed from yaml no need to read another file
	if cfg.Session.Secret != "" || cfg.Session.SecretFilePath == "" {
		return nil
	}

	if !filepath.IsAbs(cfg.Session.SecretFilePath) {
		cfg.Session.SecretFilePath = filepath.Join(cfg.RootDir, cfg.Session.SecretFilePath)
	}

	secretFileContent, err := os.ReadFile(cfg.Session.SecretFilePath)
	if err != nil {
		return fmt.Errorf("read session secret: %w", err)
	}
	cfg.Session.Secret = strings.TrimSpace(string(secretFileContent))

	return nil
}

// ApplyDefaults fills every unset value from DefaultConfig.
func (cfg *Config) ApplyDefaults() {
	d := DefaultConfig

	setString(&cfg.Server.Listen, d.Server.Listen)
	setString(&cfg.Server.WebListen, d.Server.WebListen)
	setString(&cfg.Server.ReadinessProbe, d.Server.ReadinessProbe)
	setString(&cfg.Server.LivenessProbe, d.Server.LivenessProbe)
	setString(&cfg.Server.ProxyPolicy, d.Server.ProxyPolicy)
	setDuration(&cfg.Server.GracePeriod, d.Server.GracePeriod)
	setDuration(&cfg.Server.ProxyHeaderTimeout, d.Server.ProxyHeaderTimeout)

	setString(&cfg.LogFormat, d.LogFormat)
	setString(&cfg.LogLevel, d.LogLevel)
	setString(&cfg.ServiceName, d.ServiceName)
	if cfg.LogFile != "" && !filepath.IsAbs(cfg.LogFile) && cfg.RootDir != "" {
		cfg.LogFile = filepath.Join(cfg.RootDir, cfg.LogFile)
	}

	setString(&cfg.Session.CookieName, d.Session.CookieName)
	if cfg.Session.MaxSessions == 0 {
		cfg.Session.MaxSessions = d.Session.MaxSessions
	}

	setDuration(&cfg.Downstream.ConnectTimeout, d.Downstream.ConnectTimeout)
	setDuration(&cfg.Downstream.ReadTimeout, d.Downstream.ReadTimeout)
	setDuration(&cfg.Downstream.RetryWaitMin, d.Downstream.RetryWaitMin)
	setDuration(&cfg.Downstream.RetryWaitMax, d.Downstream.RetryWaitMax)
	setDuration(&cfg.Downstream.StartupWait, d.Downstream.StartupWait)
	if cfg.Downstream.RetryMax == 0 {
		cfg.Downstream.RetryMax = d.Downstream.RetryMax
	}
}

// ServiceURL returns the configured URL of the named downstream service.
func (cfg *Config) ServiceURL(name string) string {
	return cfg.Downstream.Services[name].URL
}

// SetServiceURL points the named downstream service at url.
func (cfg *Config) SetServiceURL(name, url string) {
	if cfg.Downstream.Services == nil {
		cfg.Downstream.Services = make(map[string]ServiceConfig)
	}

	cfg.Downstream.Services[name] = ServiceConfig{URL: url}
}

// GracePeriod returns how long in-flight requests may run on shutdown.
func (cfg *Config) GracePeriod() time.Duration {
	return time.Duration(cfg.Server.GracePeriod)
}

// ProxyHeaderTimeout returns how long to wait for a PROXY protocol header.
func (cfg *Config) ProxyHeaderTimeout() time.Duration {
	return time.Duration(cfg.Server.ProxyHeaderTimeout)
}

// ConnectTimeout returns the downstream connect timeout.
func (cfg *Config) ConnectTimeout() time.Duration {
	return time.Duration(cfg.Downstream.ConnectTimeout)
}

// ReadTimeout returns the downstream read timeout.
func (cfg *Config) ReadTimeout() time.Duration {
	return time.Duration(cfg.Downstream.ReadTimeout)
}

// RetryWaits returns the bounds of the wait between connection retries.
func (cfg *Config) RetryWaits() (time.Duration, time.Duration) {
	return time.Duration(cfg.Downstream.RetryWaitMin), time.Duration(cfg.Downstream.RetryWaitMax)
}

// StartupWait returns how long startup waits for the downstream services.
func (cfg *Config) StartupWait() time.Duration {
	return time.Duration(cfg.Downstream.StartupWait)
}

// IsSane checks if the given config fulfills the minimum requirements to be
// able to run. Any error returned by this function should be a startup
// error.
func (cfg *Config) IsSane() error {
	if cfg.Server.Listen == "" {
		return errors.New("listen is required")
	}

	for _, name := range Services {
		if cfg.ServiceURL(name) == "" {
			return fmt.Errorf("downstream.services.%s.url is required", name)
		}
	}

	if !validProxyPolicies[strings.ToLower(cfg.Server.ProxyPolicy)] {
		return fmt.Errorf("unknown proxy_policy %q", cfg.Server.ProxyPolicy)
	}

	timeouts := map[string]yamlDuration{
		"downstream.connect_timeout": cfg.Downstream.ConnectTimeout,
		"downstream.read_timeout":    cfg.Downstream.ReadTimeout,
		"grace_period":               cfg.Server.GracePeriod,
	}
	for key, timeout := range timeouts {
		if timeout <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}

	if cfg.Session.MaxSessions <= 0 {
		return errors.New("session.max_sessions must be positive")
	}

	return nil
}

func setString(value *string, def string) {
	if *value == "" {
		*value = def
	}
}

func setDuration(value *yamlDuration, def yamlDuration) {
	if *value == 0 {
		*value = def
	}
}
