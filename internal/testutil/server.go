package testutil

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	headerEnd = "\r\n\r\n"
	ieofEnd   = "0; ieof\r\n\r\n"
)

// Handler answers the index-th request received on conn. Writing nothing
// leaves the client waiting.
type Handler func(conn net.Conn, index int, request []byte)

// ICAPServer is a TCP listener that parses ICAP request framing and hands each
// request to a Handler.
type ICAPServer struct {
	ln      net.Listener
	handler Handler

	mu       sync.Mutex
	requests [][]byte
	accepted int
	closed   int

	wg sync.WaitGroup
}

// NewICAPServer starts a server on 127.0.0.1 and stops it when t finishes.
func NewICAPServer(t testing.TB, handler Handler) *ICAPServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	s := &ICAPServer{ln: ln, handler: handler}
	s.wg.Add(1)
	go s.acceptLoop()

	t.Cleanup(s.Close)
	return s
}

// Host returns the listening host.
func (s *ICAPServer) Host() string {
	host, _, _ := net.SplitHostPort(s.ln.Addr().String()) //nolint:errcheck // listener address is well-formed
	return host
}

// Port returns the listening port.
func (s *ICAPServer) Port() int {
	_, port, _ := net.SplitHostPort(s.ln.Addr().String()) //nolint:errcheck // listener address is well-formed
	p, _ := strconv.Atoi(port)                            //nolint:errcheck // listener port is numeric
	return p
}

// Requests returns a copy of every request received so far.
func (s *ICAPServer) Requests() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.requests))
	copy(out, s.requests)
	return out
}

// Accepted returns the number of connections accepted.
func (s *ICAPServer) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// ClientClosed returns the number of connections the client closed.
func (s *ICAPServer) ClientClosed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops the listener and waits for connection handlers to exit.
func (s *ICAPServer) Close() {
	_ = s.ln.Close() //nolint:errcheck // shutting down
	s.wg.Wait()
}

func (s *ICAPServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.accepted++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *ICAPServer) serve(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	r := bufio.NewReader(conn)
	for i := 0; ; i++ {
		req, err := ReadRequest(r)
		if err != nil {
			s.mu.Lock()
			s.closed++
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		if s.handler != nil {
			s.handler(conn, i, req)
		}
	}
}

// ReadRequest reads one ICAP request. OPTIONS requests end at the first blank
// line; RESPMOD requests end at the ieof chunk.
func ReadRequest(r *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	for !bytes.HasSuffix(buf.Bytes(), []byte(headerEnd)) {
		line, err := r.ReadBytes('\n')
		buf.Write(line)
		if err != nil {
			return buf.Bytes(), err
		}
	}

	if !strings.HasPrefix(buf.String(), "RESPMOD ") {
		return buf.Bytes(), nil
	}

	for !bytes.HasSuffix(buf.Bytes(), []byte(ieofEnd)) {
		line, err := r.ReadBytes('\n')
		buf.Write(line)
		if err != nil {
			return buf.Bytes(), errors.Join(errors.New("truncated RESPMOD body"), err)
		}
	}
	return buf.Bytes(), nil
}

// Reply returns a Handler that writes responses[i] for the i-th request and
// nothing for requests beyond the list.
func Reply(responses ...string) Handler {
	return func(conn net.Conn, index int, _ []byte) {
		if index < len(responses) {
			_, _ = conn.Write([]byte(responses[index])) //nolint:errcheck // client may have gone
		}
	}
}

// Canned responses.
const (
	OptionsOK = "ICAP/1.0 200 OK\r\n" +
		"Methods: RESPMOD\r\n" +
		"Service: Test ICAP Server\r\n" +
		"ISTag: \"test-1\"\r\n" +
		"Allow: 204\r\n" +
		"Preview: 1024\r\n" +
		"Encapsulated: null-body=0\r\n" +
		"\r\n"

	NoContent = "ICAP/1.0 204 No Content\r\n" +
		"ISTag: \"test-1\"\r\n" +
		"Encapsulated: null-body=0\r\n" +
		"\r\n"

	Infected = "ICAP/1.0 200 OK\r\n" +
		"ISTag: \"test-1\"\r\n" +
		"X-Infection-Found: Type=0; Resolution=2; Threat=EICAR;\r\n" +
		"Encapsulated: res-hdr=0, null-body=19\r\n" +
		"\r\n" +
		"HTTP/1.1 403 Forbidden\r\n\r\n"

	ServerError = "ICAP/1.0 500 Server Error\r\n" +
		"Encapsulated: null-body=0\r\n" +
		"\r\n"
)
