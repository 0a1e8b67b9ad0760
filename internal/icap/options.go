package icap

import (
	"log/slog"
	"time"

	"golang.org/x/net/proxy"
)

const (
	// DefaultTimeout bounds each exchange (and the dial) when no timeout is configured.
	DefaultTimeout = 30 * time.Second

	// DefaultInfectionHeader is the response header whose presence marks infected content.
	DefaultInfectionHeader = "X-Infection-Found"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-exchange deadline. The dial uses the same bound.
// Non-positive durations are ignored.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDialer sets the dialer used to reach the server, e.g. a SOCKS5 dialer
// from golang.org/x/net/proxy. A nil dialer is ignored.
func WithDialer(d proxy.Dialer) ClientOption {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithUserAgent sets the User-Agent header of every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTextMIMETypes replaces the content type prefixes written in text mode.
// A copy of types is stored.
func WithTextMIMETypes(types []string) ClientOption {
	return func(c *Client) {
		c.textTypes = append([]string(nil), types...)
	}
}

// WithInfectionHeader sets the header name whose presence in a 200 RESPMOD
// answer marks the content as infected.
func WithInfectionHeader(name string) ClientOption {
	return func(c *Client) {
		if name != "" {
			c.infectionHeader = name
		}
	}
}

// WithLogger sets the logger for session diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// withClock overrides the clock used for the encapsulated Date header.
func withClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}
