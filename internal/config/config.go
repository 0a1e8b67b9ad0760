package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/icapscan/internal/icap"
	"golang.org/x/net/proxy"
)

// Default configuration values.
const (
	// DefaultHost is the ICAP server host used when none is configured.
	DefaultHost = "127.0.0.1"

	// DefaultPort is the IANA-registered ICAP port.
	DefaultPort = 1344

	// DefaultEndpoint is the ICAP service name. c-icap with squidclamav
	// exposes "avscan"; other scanners use names like "srv_clamav".
	DefaultEndpoint = "avscan"

	// DefaultTimeout bounds each exchange with the server.
	DefaultTimeout = icap.DefaultTimeout

	// DefaultBatchSize is the number of files scanned concurrently.
	// Each scan holds its own connection to the ICAP server.
	DefaultBatchSize = 4

	// AppName is the application name used for XDG directory paths.
	AppName = "icapscan"
)

// Environment variables read by ApplyEnv.
const (
	EnvHost     = "ICAP_SERVER_HOST"
	EnvPort     = "ICAP_SERVER_PORT"
	EnvEndpoint = "ICAP_ENDPOINT"
	EnvTimeout  = "ICAP_SERVER_TIMEOUT" // milliseconds
)

// Config holds all configuration options for icapscan.
// It is built from defaults, the config file, the environment and CLI flags,
// in that order, and passed down explicitly.
type Config struct {
	// Host is the ICAP server host name or address.
	Host string

	// Port is the ICAP server TCP port.
	Port int

	// Endpoint is the ICAP service name appended to the service URI.
	Endpoint string

	// Timeout bounds each exchange (OPTIONS, RESPMOD) and the dial.
	Timeout time.Duration

	// UserAgent is sent in the User-Agent header of every ICAP request.
	UserAgent string

	// Proxy is an optional proxy URL (socks5://host:port) used to reach the server.
	Proxy string

	// TextMIMETypes lists content type prefixes submitted in text mode.
	TextMIMETypes []string

	// InfectionHeader is the response header whose presence marks a file infected.
	InfectionHeader string

	// ServerName selects a named server profile from the config file.
	ServerName string

	// Verbose enables debug logging, including raw ICAP headers.
	Verbose bool

	// BatchSize is the number of files scanned concurrently.
	BatchSize int

	// MaxFileSize skips files larger than this many bytes. Zero means no limit.
	MaxFileSize int64

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches the current directory, the XDG config
	// directory and the home directory.
	ConfigFilePath string

	// Servers holds the profiles loaded from the config file.
	Servers *File

	// JSONReport enables JSON report output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report. Stdout when empty.
	ReportFile string

	// Targets is the list of file paths to scan.
	Targets []string

	// DBDir is the directory holding the scan history database.
	DBDir string

	// SaveToDB records every scan in the history database.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		Endpoint:        DefaultEndpoint,
		Timeout:         DefaultTimeout,
		UserAgent:       icap.DefaultUserAgent,
		TextMIMETypes:   append([]string(nil), icap.DefaultTextMIMETypes...),
		InfectionHeader: icap.DefaultInfectionHeader,
		BatchSize:       DefaultBatchSize,
		DBDir:           XDGDataDir(),
		SaveToDB:        true,
	}
}

// XDGDataDir returns the XDG data directory for icapscan.
// On Linux: ~/.local/share/icapscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for icapscan.
// On Linux: ~/.config/icapscan
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found.
func (c *Config) Validate() error {
	if err := c.ValidateServer(); err != nil {
		return err
	}
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxFileSize < 0 {
		return ErrInvalidMaxFileSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}

// ValidateServer checks only the settings needed to talk to the ICAP server.
func (c *Config) ValidateServer() error {
	if c.Host == "" {
		return ErrNoHost
	}
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.Endpoint == "" {
		return ErrNoEndpoint
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Proxy != "" {
		if _, err := c.Dialer(); err != nil {
			return err
		}
	}
	return nil
}

// ApplyServerConfig overrides settings with the non-zero fields of sc.
func (c *Config) ApplyServerConfig(sc ServerConfig) {
	if sc.Host != "" {
		c.Host = sc.Host
	}
	if sc.Port != 0 {
		c.Port = sc.Port
	}
	if sc.Endpoint != "" {
		c.Endpoint = sc.Endpoint
	}
	if sc.TimeoutMS > 0 {
		c.Timeout = time.Duration(sc.TimeoutMS) * time.Millisecond
	}
	if sc.UserAgent != "" {
		c.UserAgent = sc.UserAgent
	}
	if sc.Proxy != "" {
		c.Proxy = sc.Proxy
	}
	if len(sc.TextMIMETypes) > 0 {
		c.TextMIMETypes = append([]string(nil), sc.TextMIMETypes...)
	}
	if sc.InfectionHeader != "" {
		c.InfectionHeader = sc.InfectionHeader
	}
}

// ApplyEnv overrides server settings from ICAP_* environment variables.
// lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvHost); ok && v != "" {
		c.Host = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidEnv, EnvPort, v)
		}
		c.Port = port
	}
	if v, ok := lookup(EnvEndpoint); ok && v != "" {
		c.Endpoint = v
	}
	if v, ok := lookup(EnvTimeout); ok && v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms <= 0 {
			return fmt.Errorf("%w: %s=%q", ErrInvalidEnv, EnvTimeout, v)
		}
		c.Timeout = time.Duration(ms) * time.Millisecond
	}
	return nil
}

// ICAPServer returns the server identity for the icap package.
func (c *Config) ICAPServer() icap.Server {
	return icap.Server{
		Host:     c.Host,
		Port:     c.Port,
		Endpoint: c.Endpoint,
	}
}

// Dialer returns the dialer for reaching the ICAP server: a direct dialer, or
// a proxy dialer when Proxy is set.
func (c *Config) Dialer() (proxy.Dialer, error) {
	if c.Proxy == "" {
		return proxy.Direct, nil
	}
	u, err := url.Parse(c.Proxy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}
	d, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}
	return d, nil
}

// ClientOptions converts the configuration into icap.Client options.
func (c *Config) ClientOptions() ([]icap.ClientOption, error) {
	dialer, err := c.Dialer()
	if err != nil {
		return nil, err
	}
	return []icap.ClientOption{
		icap.WithTimeout(c.Timeout),
		icap.WithUserAgent(c.UserAgent),
		icap.WithDialer(dialer),
		icap.WithTextMIMETypes(c.TextMIMETypes),
		icap.WithInfectionHeader(c.InfectionHeader),
	}, nil
}
