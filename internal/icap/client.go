package icap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

// ErrInvalidServer is returned by NewClient when the server address is unusable.
var ErrInvalidServer = errors.New("invalid ICAP server")

// ScanResult is the verdict of a successful scan.
type ScanResult struct {
	// Clean is true when the server answered 204 (no modification needed).
	Clean bool
	// Infection holds the infection header value when Clean is false.
	// It is informational only; the header's presence decides the verdict.
	Infection string
	// StatusCode is the RESPMOD status code (204 or 200).
	StatusCode int
	// Headers are the RESPMOD response headers.
	Headers Headers
}

// Infected reports whether the scanner flagged the content.
func (r *ScanResult) Infected() bool {
	return !r.Clean
}

// Client scans content against a single ICAP service.
// It holds configuration only and is safe for concurrent use: each Scan
// opens, uses and closes its own connection.
type Client struct {
	server          Server
	userAgent       string
	timeout         time.Duration
	dialer          proxy.Dialer
	textTypes       []string
	infectionHeader string
	logger          *slog.Logger
	now             func() time.Time
}

// NewClient creates a Client for server.
func NewClient(server Server, opts ...ClientOption) (*Client, error) {
	if server.Host == "" {
		return nil, fmt.Errorf("%w: host is empty", ErrInvalidServer)
	}
	if server.Port < 1 || server.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidServer, server.Port)
	}

	c := &Client{
		server:          server,
		userAgent:       DefaultUserAgent,
		timeout:         DefaultTimeout,
		dialer:          proxy.Direct,
		textTypes:       DefaultTextMIMETypes,
		infectionHeader: DefaultInfectionHeader,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c, nil
}

// Server returns the service this client talks to.
func (c *Client) Server() Server {
	return c.server
}

// Scan submits req and returns the verdict. The connection is closed before
// Scan returns, whatever the outcome.
func (c *Client) Scan(ctx context.Context, req *ScanRequest) (*ScanResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	s := &session{client: c, logger: c.logger.With("service", c.server.ServiceURI(), "file", req.Name)}
	return s.scan(ctx, req)
}

// Options runs only the capability negotiation and returns the server's
// answer. A non-200 answer is returned together with a KindNegotiationRejected error.
func (c *Client) Options(ctx context.Context) (*Response, error) {
	s := &session{client: c, logger: c.logger.With("service", c.server.ServiceURI())}
	return s.probe(ctx)
}

// dial opens a connection to the server, bounded by the exchange timeout.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)
	if cd, ok := c.dialer.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", c.server.Address())
	} else {
		conn, err = dialWithContext(ctx, c.dialer, "tcp", c.server.Address())
	}
	if err != nil {
		return nil, newConnectionError("failed to connect to "+c.server.Address(), err)
	}
	return conn, nil
}

// dialWithContext dials with a dialer that has no context support.
func dialWithContext(ctx context.Context, d proxy.Dialer, network, address string) (net.Conn, error) {
	type dialResult struct {
		conn net.Conn
		err  error
	}

	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := d.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-resultCh; r.conn != nil {
				_ = r.conn.Close() //nolint:errcheck // abandoned connection
			}
		}()
		return nil, ctx.Err()
	case r := <-resultCh:
		return r.conn, r.err
	}
}

// State is a step of the scan session.
type State int

// Session states, in order.
const (
	StateConnecting State = iota
	StateNegotiating
	StateSubmitting
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateNegotiating:
		return "negotiating"
	case StateSubmitting:
		return "submitting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// session is one pass through Connecting -> Negotiating -> Submitting -> Closed.
type session struct {
	client *Client
	logger *slog.Logger
	state  State
}

func (s *session) enter(state State) {
	s.state = state
	s.logger.Debug("session state", "state", state.String())
}

// connect dials and returns the connection with a close func that moves the
// session to Closed. The close func is the only place the connection is closed.
func (s *session) connect(ctx context.Context) (net.Conn, func(), error) {
	s.enter(StateConnecting)
	conn, err := s.client.dial(ctx)
	if err != nil {
		s.logger.Error("connection error", "error", err)
		s.enter(StateClosed)
		return nil, nil, err
	}
	closeConn := func() {
		if err := conn.Close(); err != nil {
			s.logger.Debug("close failed", "error", err)
		}
		s.enter(StateClosed)
	}
	return conn, closeConn, nil
}

func (s *session) scan(ctx context.Context, req *ScanRequest) (*ScanResult, error) {
	conn, closeConn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer closeConn()

	if _, err := s.negotiate(ctx, conn); err != nil {
		return nil, err
	}

	return s.submit(ctx, conn, req)
}

func (s *session) probe(ctx context.Context) (*Response, error) {
	conn, closeConn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer closeConn()

	return s.negotiate(ctx, conn)
}

// negotiate runs the OPTIONS exchange. Anything but 200 is a rejection.
func (s *session) negotiate(ctx context.Context, conn net.Conn) (*Response, error) {
	s.enter(StateNegotiating)
	c := s.client

	req := BuildOptionsRequest(c.server, c.userAgent)
	s.logger.Debug("sending OPTIONS request", "request", string(req))

	resp, err := exchange(ctx, conn, bytes.NewReader(req), c.timeout, s.logger)
	if err != nil {
		s.logger.Error("OPTIONS exchange failed", "error", err)
		return nil, err
	}
	if resp.StatusCode != 200 {
		err := newNegotiationRejectedError(resp.StatusCode)
		s.logger.Error("OPTIONS rejected", "status", resp.StatusCode)
		return resp, err
	}
	return resp, nil
}

// submit runs the RESPMOD exchange and maps its answer to a verdict.
func (s *session) submit(ctx context.Context, conn net.Conn, req *ScanRequest) (*ScanResult, error) {
	s.enter(StateSubmitting)
	c := s.client

	text := IsTextContentType(req.ContentType, c.textTypes)
	respmod, err := BuildRespmodRequest(c.server, c.userAgent, req, c.now(), text)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sending RESPMOD request",
		"header", string(respmod.Header)+string(respmod.ReqHdr)+string(respmod.ResHdr),
		"size", len(respmod.Payload),
		"text", text,
	)

	resp, err := exchange(ctx, conn, respmod, c.timeout, s.logger)
	if err != nil {
		s.logger.Error("RESPMOD exchange failed", "error", err)
		return nil, err
	}

	switch {
	case resp.StatusCode == 204:
		return &ScanResult{Clean: true, StatusCode: resp.StatusCode, Headers: resp.Headers}, nil
	case resp.StatusCode == 200 && resp.Headers.Has(c.infectionHeader):
		infection, _ := resp.Headers.Get(c.infectionHeader)
		return &ScanResult{Clean: false, Infection: infection, StatusCode: resp.StatusCode, Headers: resp.Headers}, nil
	default:
		s.logger.Error("RESPMOD rejected", "status", resp.StatusCode)
		return nil, newSubmissionRejectedError(resp.StatusCode)
	}
}
