package icap

import (
	"bytes"
	"strconv"
	"strings"
)

const (
	crlf           = "\r\n"
	headerBlockEnd = "\r\n\r\n"
	headerSep      = ": "
)

// Response is the decoded status line and header block of one ICAP response.
// Any encapsulated body is not retained.
type Response struct {
	// StatusCode is the numeric ICAP status (e.g. 200, 204).
	StatusCode int

	// Headers maps header names, case preserved, to their values.
	// When a name repeats, the last occurrence wins.
	Headers Headers
}

// Headers is a case-preserving header map.
type Headers map[string]string

// Get returns the value for name. An exact match is preferred; otherwise the
// first case-insensitive match is returned.
func (h Headers) Get(name string) (string, bool) {
	if v, ok := h[name]; ok {
		return v, true
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Has reports whether a header named name is present, whatever its value.
func (h Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// ParseResponse decodes the status code and headers from the bytes received
// for a single exchange. It returns a KindMalformedStatusLine *Error when the
// status line has no numeric second token.
//
// Header lines are split on the first ": ". Lines without that separator, or
// with an empty name, are skipped.
func ParseResponse(data []byte) (*Response, error) {
	text := string(data)

	statusLine, _, _ := strings.Cut(text, crlf)
	fields := strings.Fields(statusLine)
	if len(fields) < 2 {
		return nil, newMalformedStatusLineError(statusLine)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, newMalformedStatusLineError(statusLine)
	}

	resp := &Response{
		StatusCode: code,
		Headers:    make(Headers),
	}

	block, _, _ := strings.Cut(text, headerBlockEnd)
	lines := strings.Split(block, crlf)
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, headerSep)
		if !ok || name == "" {
			continue
		}
		resp.Headers[name] = value
	}

	return resp, nil
}

// headerComplete reports whether buf holds a full status line and header block.
func headerComplete(buf []byte) bool {
	return bytes.Contains(buf, []byte(headerBlockEnd))
}
