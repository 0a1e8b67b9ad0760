package icap

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/transform"
)

const (
	protocolVersion = "ICAP/1.0"

	methodOptions = "OPTIONS"
	methodRespmod = "RESPMOD"

	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "icapscan ICAP/1.0 Client"

	// DefaultContentType is used for requests that carry no content type.
	DefaultContentType = "application/octet-stream"

	ieofChunk = "0; ieof\r\n\r\n"
)

// Server identifies an ICAP service.
type Server struct {
	// Host is the ICAP server host name or IP address.
	Host string
	// Port is the ICAP server TCP port, usually 1344.
	Port int
	// Endpoint is the service name, e.g. "avscan" or "srv_clamav".
	Endpoint string
}

// Address returns the dialable host:port of the server.
func (s Server) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ServiceURI returns the icap:// URI naming the service.
func (s Server) ServiceURI() string {
	return "icap://" + s.Address() + "/" + strings.TrimPrefix(s.Endpoint, "/")
}

// String implements fmt.Stringer.
func (s Server) String() string {
	return s.ServiceURI()
}

// ScanRequest is the content submitted in one scan.
type ScanRequest struct {
	// Payload is the raw content.
	Payload []byte
	// Size is the payload length in bytes. Zero or negative means len(Payload).
	Size int64
	// Name is the display name, used as the path of the encapsulated GET.
	Name string
	// ContentType is the MIME type announced in the encapsulated response.
	ContentType string
}

// size returns the effective payload length.
func (r *ScanRequest) size() int64 {
	if r.Size > 0 {
		return r.Size
	}
	return int64(len(r.Payload))
}

// validate checks that the request can be framed.
func (r *ScanRequest) validate() error {
	if r == nil {
		return newInvalidRequestError("scan request is nil")
	}
	if r.Size > 0 && r.Size != int64(len(r.Payload)) {
		return newInvalidRequestError(fmt.Sprintf("size %d does not match payload length %d", r.Size, len(r.Payload)))
	}
	return nil
}

// BuildOptionsRequest renders the capability negotiation request.
func BuildOptionsRequest(s Server, userAgent string) []byte {
	var b strings.Builder
	b.WriteString(methodOptions + " " + s.ServiceURI() + " " + protocolVersion + crlf)
	b.WriteString("Host: " + s.Host + crlf)
	b.WriteString("User-Agent: " + userAgent + crlf)
	b.WriteString("Encapsulated: null-body=0" + crlf)
	b.WriteString(crlf)
	return []byte(b.String())
}

// RespmodRequest is a rendered content submission. Its pieces are kept apart
// so the Encapsulated offsets can be checked against the rendered blocks.
type RespmodRequest struct {
	// Header is the outer ICAP request line and header block.
	Header []byte
	// ReqHdr is the encapsulated HTTP request header block.
	ReqHdr []byte
	// ResHdr is the encapsulated HTTP response header block.
	ResHdr []byte
	// Payload is the content carried as the single body chunk.
	Payload []byte
	// Text selects the ASCII transcoding write mode for Payload.
	Text bool
}

// BuildRespmodRequest renders the content submission for req. now stamps the
// Date header of the encapsulated response. text selects the write mode of
// the payload (see IsTextContentType).
func BuildRespmodRequest(s Server, userAgent string, req *ScanRequest, now time.Time, text bool) (*RespmodRequest, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = "file"
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	var reqHdr strings.Builder
	reqHdr.WriteString("GET /" + url.PathEscape(name) + " HTTP/1.1" + crlf)
	reqHdr.WriteString("Host: " + s.Address() + crlf)
	reqHdr.WriteString(crlf)

	var resHdr strings.Builder
	resHdr.WriteString("HTTP/1.1 200 OK" + crlf)
	resHdr.WriteString("Date: " + now.UTC().Format(http.TimeFormat) + crlf)
	resHdr.WriteString("Content-Type: " + contentType + crlf)
	resHdr.WriteString("Content-Length: " + strconv.FormatInt(req.size(), 10) + crlf)
	resHdr.WriteString(crlf)

	resHdrOffset := reqHdr.Len()
	resBodyOffset := reqHdr.Len() + resHdr.Len()

	var header strings.Builder
	header.WriteString(methodRespmod + " " + s.ServiceURI() + " " + protocolVersion + crlf)
	header.WriteString("Host: " + s.Host + crlf)
	header.WriteString("Connection: close" + crlf)
	header.WriteString("User-Agent: " + userAgent + crlf)
	header.WriteString("Allow: 204" + crlf)
	fmt.Fprintf(&header, "Encapsulated: req-hdr=0, res-hdr=%d, res-body=%d"+crlf, resHdrOffset, resBodyOffset)
	header.WriteString(crlf)

	return &RespmodRequest{
		Header:  []byte(header.String()),
		ReqHdr:  []byte(reqHdr.String()),
		ResHdr:  []byte(resHdr.String()),
		Payload: req.Payload,
		Text:    text,
	}, nil
}

// Offsets returns the req-hdr, res-hdr and res-body offsets of the
// encapsulated blocks, measured from the end of the outer header.
func (r *RespmodRequest) Offsets() (reqHdr, resHdr, resBody int) {
	return 0, len(r.ReqHdr), len(r.ReqHdr) + len(r.ResHdr)
}

// WriteTo writes the complete request, including the chunked body and the
// ieof terminator, to w.
func (r *RespmodRequest) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	for _, block := range [][]byte{r.Header, r.ReqHdr, r.ResHdr} {
		if _, err := cw.Write(block); err != nil {
			return cw.n, err
		}
	}

	if len(r.Payload) > 0 {
		if _, err := io.WriteString(cw, strconv.FormatInt(int64(len(r.Payload)), 16)+crlf); err != nil {
			return cw.n, err
		}
		if err := r.writePayload(cw); err != nil {
			return cw.n, err
		}
		if _, err := io.WriteString(cw, crlf); err != nil {
			return cw.n, err
		}
	}

	_, err := io.WriteString(cw, ieofChunk)
	return cw.n, err
}

// Bytes renders the complete request into a single slice.
func (r *RespmodRequest) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = r.WriteTo(&buf) //nolint:errcheck // bytes.Buffer writes do not fail
	return buf.Bytes()
}

// writePayload writes the payload in raw or text mode.
func (r *RespmodRequest) writePayload(w io.Writer) error {
	if !r.Text {
		_, err := w.Write(r.Payload)
		return err
	}
	tw := transform.NewWriter(w, asciiTransformer{})
	if _, err := tw.Write(r.Payload); err != nil {
		return err
	}
	return tw.Close()
}

// countingWriter tracks the number of bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
