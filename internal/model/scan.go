package model

import (
	"time"

	"github.com/google/uuid"
)

// FileScan records one file submitted to an ICAP server.
//
// A FileScan is created before the file is read, filled in by each pipeline
// step, and finally written to the history database and the report.
type FileScan struct {
	// ID uniquely identifies the scan in the history database.
	ID string `json:"id"`

	// Path is the file path as given on the command line.
	Path string `json:"path"`

	// Name is the base name sent in the RESPMOD request line.
	Name string `json:"name"`

	// Size is the payload size in bytes.
	Size int64 `json:"size"`

	// ContentType is the detected MIME type of the payload.
	ContentType string `json:"content_type,omitempty"`

	// TextMode is true when the payload was sent with the 7-bit text transform.
	TextMode bool `json:"text_mode"`

	// Digest is the hex-encoded SHA3-256 of the payload.
	Digest string `json:"digest,omitempty"`

	// Server is the ICAP service URI the file was sent to.
	Server string `json:"server"`

	// Verdict is the scan outcome.
	Verdict Verdict `json:"verdict"`

	// Infection is the value of the infection header when Verdict is infected.
	Infection string `json:"infection,omitempty"`

	// StatusCode is the last ICAP status code received, 0 if none.
	StatusCode int `json:"status_code,omitempty"`

	// Error describes why the scan failed when Verdict is error.
	Error string `json:"error,omitempty"`

	// ErrorKind classifies Error (connection_error, timeout, ...).
	ErrorKind string `json:"error_kind,omitempty"`

	// StartedAt is when the scan started.
	StartedAt time.Time `json:"started_at"`

	// Duration is how long the scan took, file reading included.
	Duration time.Duration `json:"duration"`
}

// NewFileScan creates a FileScan for path with a fresh ID.
// The verdict stays VerdictError until a step records an outcome.
func NewFileScan(path string) *FileScan {
	return &FileScan{
		ID:        uuid.NewString(),
		Path:      path,
		Verdict:   VerdictError,
		StartedAt: time.Now(),
	}
}

// MarkClean records a clean outcome.
func (s *FileScan) MarkClean(statusCode int) {
	s.Verdict = VerdictClean
	s.StatusCode = statusCode
	s.Infection = ""
	s.Error = ""
	s.ErrorKind = ""
}

// MarkInfected records an infected outcome with the infection header value.
func (s *FileScan) MarkInfected(statusCode int, infection string) {
	s.Verdict = VerdictInfected
	s.StatusCode = statusCode
	s.Infection = infection
	s.Error = ""
	s.ErrorKind = ""
}

// MarkFailed records a failed scan.
// kind is a short classification such as "timeout"; it may be empty.
func (s *FileScan) MarkFailed(err error, kind string, statusCode int) {
	s.Verdict = VerdictError
	s.StatusCode = statusCode
	s.ErrorKind = kind
	if err != nil {
		s.Error = err.Error()
	}
}

// Finish sets Duration from StartedAt.
func (s *FileScan) Finish() {
	s.Duration = time.Since(s.StartedAt)
}
