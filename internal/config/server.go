package config

import "fmt"

// ServerConfig holds the settings of one ICAP server profile.
// Zero values mean "inherit": from the defaults section for a named profile,
// and from the built-in defaults for the defaults section itself.
type ServerConfig struct {
	// Host is the ICAP server host name or address.
	Host string `yaml:"host,omitempty" toml:"host"`

	// Port is the ICAP server TCP port.
	Port int `yaml:"port,omitempty" toml:"port"`

	// Endpoint is the ICAP service name, e.g. "avscan" or "srv_clamav".
	Endpoint string `yaml:"endpoint,omitempty" toml:"endpoint"`

	// TimeoutMS bounds each exchange, in milliseconds.
	TimeoutMS int64 `yaml:"timeout_ms,omitempty" toml:"timeout_ms"`

	// UserAgent overrides the User-Agent header.
	UserAgent string `yaml:"user_agent,omitempty" toml:"user_agent"`

	// Proxy is a proxy URL such as socks5://127.0.0.1:1080.
	Proxy string `yaml:"proxy,omitempty" toml:"proxy"`

	// TextMIMETypes replaces the list of content types submitted in text mode.
	TextMIMETypes []string `yaml:"text_mime_types,omitempty" toml:"text_mime_types"`

	// InfectionHeader is the response header that marks a file infected.
	InfectionHeader string `yaml:"infection_header,omitempty" toml:"infection_header"`
}

// File represents the structure of the .icapscan configuration file.
//
// Example:
//
//	defaults:
//	  timeout_ms: 10000
//	servers:
//	  clamav:
//	    host: 10.0.0.5
//	    endpoint: srv_clamav
type File struct {
	// Defaults apply to every scan and to all named profiles.
	Defaults ServerConfig `yaml:"defaults" toml:"defaults"`

	// Servers maps a profile name to its settings.
	Servers map[string]ServerConfig `yaml:"servers" toml:"servers"`
}

// GetServerConfig returns the profile named name merged over the defaults.
// An empty name returns the defaults.
func (f *File) GetServerConfig(name string) (ServerConfig, error) {
	result := f.Defaults
	if name == "" {
		return result, nil
	}

	sc, ok := f.Servers[name]
	if !ok {
		return ServerConfig{}, fmt.Errorf("%w: %q", ErrUnknownServer, name)
	}

	if sc.Host != "" {
		result.Host = sc.Host
	}
	if sc.Port != 0 {
		result.Port = sc.Port
	}
	if sc.Endpoint != "" {
		result.Endpoint = sc.Endpoint
	}
	if sc.TimeoutMS > 0 {
		result.TimeoutMS = sc.TimeoutMS
	}
	if sc.UserAgent != "" {
		result.UserAgent = sc.UserAgent
	}
	if sc.Proxy != "" {
		result.Proxy = sc.Proxy
	}
	if len(sc.TextMIMETypes) > 0 {
		result.TextMIMETypes = sc.TextMIMETypes
	}
	if sc.InfectionHeader != "" {
		result.InfectionHeader = sc.InfectionHeader
	}
	return result, nil
}
