package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort is the port TouchOSC editors conventionally sync on.
	DefaultPort = 9658
	// DefaultServiceType is the DNS-SD type TouchOSC browses for.
	DefaultServiceType = "_touchosceditor._tcp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
	// DefaultMediaType is sent as Content-Type with every layout download.
	DefaultMediaType = "application/x-touchosc-layout"
	// LayoutExtension is appended to the layout name in Content-Disposition.
	LayoutExtension = "touchosc"

	defaultConnTimeout     = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	envPrefix              = "LAYOUTD_"
)

// ServerConfig holds configuration for layoutd.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	Name            string        `yaml:"name"`
	LayoutPath      string        `yaml:"layout"`
	LogLevel        string        `yaml:"log_level"`
	AdminAddr       string        `yaml:"admin_addr"`
	ConnTimeout     time.Duration `yaml:"conn_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MediaType       string        `yaml:"media_type"`
	ServiceType     string        `yaml:"service_type"`
	Domain          string        `yaml:"domain"`
	NoDiscovery     bool          `yaml:"no_discovery"`
	ConfigFile      string        `yaml:"-"`
}

// SetDefaults initializes c with built-in defaults.
func (c *ServerConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Name == "" {
		c.Name = DefaultName()
	}
	if c.ConnTimeout == 0 {
		c.ConnTimeout = defaultConnTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.MediaType == "" {
		c.MediaType = DefaultMediaType
	}
	if c.ServiceType == "" {
		c.ServiceType = DefaultServiceType
	}
	if c.Domain == "" {
		c.Domain = DefaultDomain
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("layoutd.yaml")
	}
}

// DefaultName is the service name shown in the TouchOSC server list when none
// is configured.
func DefaultName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return "OSC Layout Server on " + host
}

// ApplyEnv overlays LAYOUTD_* environment variables onto the current values.
// Malformed numbers and durations are ignored.
func (c *ServerConfig) ApplyEnv() {
	if v := GetEnv(envPrefix+"CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := GetEnv(envPrefix+"LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := GetEnv(envPrefix+"PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := GetEnv(envPrefix+"HOST", ""); v != "" {
		c.Host = v
	}
	if v := GetEnv(envPrefix+"NAME", ""); v != "" {
		c.Name = v
	}
	if v := GetEnv(envPrefix+"LAYOUT", ""); v != "" {
		c.LayoutPath = v
	}
	if v := GetEnv(envPrefix+"ADMIN_ADDR", ""); v != "" {
		if strings.Contains(v, ":") {
			c.AdminAddr = v
		} else {
			c.AdminAddr = ":" + v
		}
	}
	if v := GetEnv(envPrefix+"CONN_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ConnTimeout = d
		}
	}
	if v := GetEnv(envPrefix+"SHUTDOWN_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ShutdownTimeout = d
		}
	}
	if v := GetEnv(envPrefix+"MEDIA_TYPE", ""); v != "" {
		c.MediaType = v
	}
	if v := GetEnv(envPrefix+"NO_DISCOVERY", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.NoDiscovery = b
		}
	}
}

// BindFlags binds command line flags on fs using the current config values as
// defaults, so precedence stays defaults < file < env < args.
func (c *ServerConfig) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVarP(&c.Port, "port", "p", c.Port, "port that the layout server will host on")
	fs.StringVar(&c.Host, "host", c.Host, "interface address to bind; empty binds all interfaces")
	fs.StringVarP(&c.Name, "name", "n", c.Name, "name that will appear in TouchOSC's server list")
	fs.StringVar(&c.AdminAddr, "admin-addr", c.AdminAddr, "listen address for /healthz and /metrics; empty disables")
	fs.DurationVar(&c.ConnTimeout, "conn-timeout", c.ConnTimeout, "per-connection read/write deadline (0 disables)")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "how long stop waits for an in-flight download")
	fs.StringVar(&c.MediaType, "media-type", c.MediaType, "Content-Type sent with the layout")
	fs.BoolVar(&c.NoDiscovery, "no-discovery", c.NoDiscovery, "serve without advertising over mDNS")
}

// ConfigFileFromArgs scans args for --config so the file can be loaded before
// flags are parsed.
func ConfigFileFromArgs(args []string) (string, bool) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--config" && i+1 < len(args) {
			return args[i+1], true
		}
		if strings.HasPrefix(a, "--config=") {
			return strings.TrimPrefix(a, "--config="), true
		}
	}
	return "", false
}

// LoadFile populates the config from a YAML file.
func (c *ServerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// Validate reports the first invalid field.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("service name must not be empty")
	}
	if c.ConnTimeout < 0 {
		return fmt.Errorf("conn timeout %s must not be negative", c.ConnTimeout)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout %s must not be negative", c.ShutdownTimeout)
	}
	if c.LayoutPath == "" {
		return errors.New("please specify a layout file")
	}
	return nil
}
