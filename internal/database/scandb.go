package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/icapscan/internal/model"
)

// DBFileName is the name of the SQLite file inside the database directory.
const DBFileName = "icapscan.db"

// timeLayout stores timestamps with fixed-width fractions so that text
// ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a scan ID does not exist.
var ErrNotFound = errors.New("scan not found")

// ScanDB provides SQLite-based storage for scan history.
type ScanDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures ScanDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a ScanDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*ScanDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file; mode=rwc creates it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer. Batch scans record concurrently.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	sdb := &ScanDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := sdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return sdb, nil
}

// Path returns the database file path.
func (sdb *ScanDB) Path() string {
	return sdb.dbPath
}

// Close closes the database connection.
func (sdb *ScanDB) Close() error {
	return sdb.db.Close()
}

func (sdb *ScanDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		name TEXT NOT NULL,
		size INTEGER NOT NULL,
		content_type TEXT,
		text_mode INTEGER NOT NULL DEFAULT 0,
		digest TEXT,
		server TEXT NOT NULL,
		verdict TEXT NOT NULL,
		infection TEXT,
		status_code INTEGER,
		error TEXT,
		error_kind TEXT,
		started_at TEXT NOT NULL,
		duration_ns INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_scans_digest ON scans(digest);
	CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at);
	CREATE INDEX IF NOT EXISTS idx_scans_verdict ON scans(verdict);
	`
	_, err := sdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveScan inserts a scan, replacing any row with the same ID.
func (sdb *ScanDB) SaveScan(ctx context.Context, scan *model.FileScan) error {
	if scan == nil {
		return errors.New("scan is nil")
	}
	query := `
	INSERT OR REPLACE INTO scans (
		id, path, name, size, content_type, text_mode, digest, server,
		verdict, infection, status_code, error, error_kind, started_at, duration_ns
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := sdb.db.ExecContext(ctx, query,
		scan.ID,
		scan.Path,
		scan.Name,
		scan.Size,
		scan.ContentType,
		scan.TextMode,
		scan.Digest,
		scan.Server,
		scan.Verdict.String(),
		scan.Infection,
		scan.StatusCode,
		scan.Error,
		scan.ErrorKind,
		scan.StartedAt.UTC().Format(timeLayout),
		int64(scan.Duration),
	)
	if err != nil {
		return fmt.Errorf("failed to save scan %s: %w", scan.ID, err)
	}
	return nil
}

const selectColumns = `
	SELECT id, path, name, size, content_type, text_mode, digest, server,
		verdict, infection, status_code, error, error_kind, started_at, duration_ns
	FROM scans
`

// GetScan retrieves a scan by ID. It returns ErrNotFound if the ID is unknown.
func (sdb *ScanDB) GetScan(ctx context.Context, id string) (*model.FileScan, error) {
	row := sdb.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	scan, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan %s: %w", id, err)
	}
	return scan, nil
}

// ListScans returns the most recent scans, newest first.
// A non-positive limit returns all scans.
func (sdb *ScanDB) ListScans(ctx context.Context, limit int) ([]*model.FileScan, error) {
	query := selectColumns + " ORDER BY started_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return sdb.query(ctx, query, args...)
}

// GetScansByDigest returns every scan of the content with the given digest,
// newest first.
func (sdb *ScanDB) GetScansByDigest(ctx context.Context, digest string) ([]*model.FileScan, error) {
	return sdb.query(ctx, selectColumns+" WHERE digest = ? ORDER BY started_at DESC", digest)
}

// CountByVerdict returns the number of stored scans per verdict name.
func (sdb *ScanDB) CountByVerdict(ctx context.Context) (map[string]int, error) {
	rows, err := sdb.db.QueryContext(ctx, "SELECT verdict, COUNT(*) FROM scans GROUP BY verdict")
	if err != nil {
		return nil, fmt.Errorf("failed to count scans: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var verdict string
		var n int
		if err := rows.Scan(&verdict, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[verdict] = n
	}
	return counts, rows.Err()
}

func (sdb *ScanDB) query(ctx context.Context, query string, args ...any) ([]*model.FileScan, error) {
	rows, err := sdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var results []*model.FileScan
	for rows.Next() {
		scan, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, scan)
	}
	return results, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*model.FileScan, error) {
	var (
		scan        model.FileScan
		contentType sql.NullString
		digest      sql.NullString
		infection   sql.NullString
		statusCode  sql.NullInt64
		errMsg      sql.NullString
		errKind     sql.NullString
		verdict     string
		startedAt   string
		durationNS  int64
	)
	err := row.Scan(
		&scan.ID, &scan.Path, &scan.Name, &scan.Size, &contentType, &scan.TextMode,
		&digest, &scan.Server, &verdict, &infection, &statusCode, &errMsg, &errKind,
		&startedAt, &durationNS,
	)
	if err != nil {
		return nil, err
	}

	scan.ContentType = contentType.String
	scan.Digest = digest.String
	scan.Infection = infection.String
	scan.StatusCode = int(statusCode.Int64)
	scan.Error = errMsg.String
	scan.ErrorKind = errKind.String
	scan.StartedAt = parseTimestamp(startedAt)
	scan.Duration = time.Duration(durationNS)
	if v, err := model.ParseVerdict(verdict); err == nil {
		scan.Verdict = v
	}
	return &scan, nil
}

// timestampFormats lists formats SQLite timestamps may come back in.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp parses a timestamp string using the known formats.
// It returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
