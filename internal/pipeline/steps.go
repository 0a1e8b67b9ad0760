package pipeline

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/nao1215/icapscan/internal/icap"
	"github.com/nao1215/icapscan/internal/model"
	"golang.org/x/crypto/sha3"
)

// Error kinds recorded by steps that fail outside the ICAP client.
const (
	KindReadError   = "read_error"
	KindRecordError = "record_error"
)

// ErrNotRegularFile is returned by ReadStep for directories and special files.
var ErrNotRegularFile = errors.New("not a regular file")

// ErrFileTooLarge is returned by ReadStep when a file exceeds the size limit.
var ErrFileTooLarge = errors.New("file too large")

// ReadStep loads the file, detects its content type and computes its digest.
type ReadStep struct {
	textTypes   []string
	maxFileSize int64
}

// ReadStepOption configures a ReadStep.
type ReadStepOption func(*ReadStep)

// WithTextMIMETypes sets the content type prefixes marked as text mode.
func WithTextMIMETypes(types []string) ReadStepOption {
	return func(s *ReadStep) {
		s.textTypes = types
	}
}

// WithMaxFileSize rejects files larger than n bytes. Zero means no limit.
func WithMaxFileSize(n int64) ReadStepOption {
	return func(s *ReadStep) {
		s.maxFileSize = n
	}
}

// NewReadStep creates a new file reading step.
func NewReadStep(opts ...ReadStepOption) *ReadStep {
	s := &ReadStep{textTypes: icap.DefaultTextMIMETypes}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *ReadStep) Name() string {
	return "read"
}

// Do executes the read step.
func (s *ReadStep) Do(_ context.Context, job *Job) error {
	scan := job.Scan

	info, err := os.Stat(scan.Path)
	if err != nil {
		return s.fail(job, err)
	}
	if !info.Mode().IsRegular() {
		return s.fail(job, fmt.Errorf("%w: %s", ErrNotRegularFile, scan.Path))
	}
	if s.maxFileSize > 0 && info.Size() > s.maxFileSize {
		return s.fail(job, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, scan.Path, info.Size(), s.maxFileSize))
	}

	payload, err := os.ReadFile(scan.Path)
	if err != nil {
		return s.fail(job, err)
	}

	job.Payload = payload
	scan.Name = filepath.Base(scan.Path)
	scan.Size = int64(len(payload))
	scan.ContentType = DetectContentType(scan.Path, payload)
	scan.TextMode = icap.IsTextContentType(scan.ContentType, s.textTypes)
	scan.Digest = Digest(payload)
	return nil
}

func (s *ReadStep) fail(job *Job, err error) error {
	err = fmt.Errorf("failed to read file: %w", err)
	job.Scan.MarkFailed(err, KindReadError, 0)
	return err
}

// DetectContentType returns the media type of a file, without parameters.
// The extension is consulted first, then the content itself.
func DetectContentType(path string, payload []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			return mediaType
		}
	}
	if len(payload) == 0 {
		return icap.DefaultContentType
	}
	mediaType, _, err := mime.ParseMediaType(http.DetectContentType(payload))
	if err != nil {
		return icap.DefaultContentType
	}
	return mediaType
}

// Digest returns the hex-encoded SHA3-256 of payload.
func Digest(payload []byte) string {
	sum := sha3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Scanner submits content to an ICAP service. *icap.Client satisfies it.
type Scanner interface {
	Scan(ctx context.Context, req *icap.ScanRequest) (*icap.ScanResult, error)
	Server() icap.Server
}

// ScanStep submits the payload to the ICAP server and records the verdict.
type ScanStep struct {
	scanner Scanner
	logger  *slog.Logger
}

// NewScanStep creates a new ICAP scanning step.
func NewScanStep(scanner Scanner, logger *slog.Logger) *ScanStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanStep{scanner: scanner, logger: logger}
}

// Name returns the step name.
func (s *ScanStep) Name() string {
	return "icap_scan"
}

// Do executes the scan step.
func (s *ScanStep) Do(ctx context.Context, job *Job) error {
	scan := job.Scan
	scan.Server = s.scanner.Server().ServiceURI()

	result, err := s.scanner.Scan(ctx, &icap.ScanRequest{
		Payload:     job.Payload,
		Size:        scan.Size,
		Name:        scan.Name,
		ContentType: scan.ContentType,
	})
	if err != nil {
		scan.MarkFailed(err, string(icap.KindOf(err)), icap.StatusCodeOf(err))
		return err
	}

	if result.Infected() {
		scan.MarkInfected(result.StatusCode, result.Infection)
		s.logger.Warn("infection found",
			"path", scan.Path,
			"digest", scan.Digest,
			"infection", result.Infection,
		)
		return nil
	}
	scan.MarkClean(result.StatusCode)
	return nil
}

// Saver persists a finished scan. *database.ScanDB satisfies it.
type Saver interface {
	SaveScan(ctx context.Context, scan *model.FileScan) error
}

// RecordStep stores the scan in the history database.
// Add it with AddDeferredStep so failed scans are recorded as well.
type RecordStep struct {
	saver Saver
}

// NewRecordStep creates a new history recording step.
func NewRecordStep(saver Saver) *RecordStep {
	return &RecordStep{saver: saver}
}

// Name returns the step name.
func (s *RecordStep) Name() string {
	return "record"
}

// Do executes the record step. A storage failure does not change the verdict.
func (s *RecordStep) Do(ctx context.Context, job *Job) error {
	if err := s.saver.SaveScan(ctx, job.Scan); err != nil {
		return fmt.Errorf("failed to record scan: %w", err)
	}
	return nil
}
