package icap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"
)

const (
	// readChunkSize is the size of a single read from the connection.
	readChunkSize = 4096

	// maxResponseHeaderBytes bounds how much is buffered while waiting for
	// the end of a response header block.
	maxResponseHeaderBytes = 64 * 1024
)

// aLongTimeAgo is a deadline in the past, used to wake up blocked I/O.
var aLongTimeAgo = time.Unix(1, 0)

// exchange performs one request/response cycle on conn.
//
// The request is written in full before anything is read. A single deadline,
// set when the exchange starts, covers both the write and the reads. Bytes are
// accumulated across reads until the header block terminator arrives, then
// parsed. Cancelling ctx interrupts a pending write or read. Exactly one
// outcome is returned and nothing is read from conn after it resolves.
func exchange(ctx context.Context, conn net.Conn, req io.WriterTo, timeout time.Duration, logger *slog.Logger) (*Response, error) {
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, newConnectionError("failed to set exchange deadline", err)
	}
	defer conn.SetDeadline(time.Time{}) //nolint:errcheck // best effort reset

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(aLongTimeAgo) //nolint:errcheck // wakes blocked I/O
	})
	defer stop()

	if _, err := req.WriteTo(conn); err != nil {
		return nil, classifyIOError(ctx, "failed to write request", err)
	}

	buf := make([]byte, 0, readChunkSize)
	chunk := make([]byte, readChunkSize)
	for {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)

		if headerComplete(buf) {
			logger.Debug("raw ICAP response", "response", string(buf))
			return ParseResponse(buf)
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				logger.Debug("raw ICAP response (closed before header end)", "response", string(buf))
				return ParseResponse(buf)
			}
			if errors.Is(err, io.EOF) {
				return nil, newConnectionError("connection closed before a response was received", err)
			}
			return nil, classifyIOError(ctx, "failed to read response", err)
		}
		if len(buf) > maxResponseHeaderBytes {
			return nil, newConnectionError(fmt.Sprintf("response header exceeds %d bytes", maxResponseHeaderBytes), nil)
		}
	}
}

// classifyIOError maps an I/O failure during an exchange to a typed *Error.
func classifyIOError(ctx context.Context, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return newTimeoutError(msg, ctxErr)
		}
		return newConnectionError(msg+": exchange cancelled", ctxErr)
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return newTimeoutError(msg, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newTimeoutError(msg, err)
	}

	return newConnectionError(msg, err)
}
