package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/icapscan/internal/database"
	"github.com/nao1215/icapscan/internal/model"
	"github.com/nao1215/icapscan/internal/pipeline"
	"github.com/nao1215/icapscan/internal/report"
)

// seedHistory stores scans in a fresh database under dbDir.
func seedHistory(t *testing.T, dbDir string, scans ...*model.FileScan) {
	t.Helper()
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	for _, s := range scans {
		if err := db.SaveScan(context.Background(), s); err != nil {
			t.Fatalf("failed to save scan: %v", err)
		}
	}
}

// runHistory executes the history command against dbDir.
func runHistory(t *testing.T, dbDir string, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{
		"--config", writeConfig(t, "defaults: {}\n"),
		"--db-dir", dbDir,
		"history",
	}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestHistoryCommand(t *testing.T) {
	t.Parallel()

	payload := []byte("quarterly numbers")
	digest := pipeline.Digest(payload)

	older := model.NewFileScan("/data/report-v1.xlsx")
	older.Digest = digest
	older.StartedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	older.MarkClean(204)

	newer := model.NewFileScan("/data/report-v2.xlsx")
	newer.Digest = digest
	newer.StartedAt = older.StartedAt.Add(time.Hour)
	newer.MarkInfected(200, "Threat=EICAR;")

	other := model.NewFileScan("/data/other.bin")
	other.Digest = pipeline.Digest([]byte("other"))
	other.StartedAt = older.StartedAt.Add(2 * time.Hour)
	other.MarkFailed(context.DeadlineExceeded, "timeout", 0)

	dbDir := t.TempDir()
	seedHistory(t, dbDir, older, newer, other)

	decode := func(t *testing.T, out string) *report.Report {
		t.Helper()
		var r report.Report
		if err := json.Unmarshal([]byte(out), &r); err != nil {
			t.Fatalf("failed to decode JSON report: %v\n%s", err, out)
		}
		return &r
	}

	t.Run("lists recent scans newest first", func(t *testing.T) {
		t.Parallel()
		out, err := runHistory(t, dbDir, "--json", "-n", "2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		r := decode(t, out)
		if r.Title != "Scan History" {
			t.Errorf("expected title 'Scan History', got %q", r.Title)
		}
		if len(r.Scans) != 2 {
			t.Fatalf("expected 2 scans, got %d", len(r.Scans))
		}
		if r.Scans[0].ID != other.ID || r.Scans[1].ID != newer.ID {
			t.Errorf("expected newest first, got %s then %s", r.Scans[0].Path, r.Scans[1].Path)
		}
	})

	t.Run("finds scans by file content", func(t *testing.T) {
		t.Parallel()
		env := newScanEnv(t)
		path := env.file(t, "renamed.xlsx", string(payload))

		out, err := runHistory(t, dbDir, "--json", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		r := decode(t, out)
		if len(r.Scans) != 2 {
			t.Fatalf("expected 2 scans of the same content, got %d", len(r.Scans))
		}
		if r.Summary.Infected != 1 || r.Summary.Clean != 1 {
			t.Errorf("unexpected summary: %+v", r.Summary)
		}
	})

	t.Run("finds scans by digest", func(t *testing.T) {
		t.Parallel()
		out, err := runHistory(t, dbDir, "--json", strings.ToUpper(digest))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r := decode(t, out); len(r.Scans) != 2 {
			t.Errorf("expected 2 scans, got %d", len(r.Scans))
		}
	})

	t.Run("finds scan by ID", func(t *testing.T) {
		t.Parallel()
		out, err := runHistory(t, dbDir, "--json", other.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		r := decode(t, out)
		if len(r.Scans) != 1 || r.Scans[0].ErrorKind != "timeout" {
			t.Errorf("expected the timed out scan, got %+v", r.Scans)
		}
	})

	t.Run("unknown scan ID", func(t *testing.T) {
		t.Parallel()
		if _, err := runHistory(t, dbDir, "no-such-scan"); err == nil {
			t.Error("expected error for unknown scan ID")
		}
	})

	t.Run("prints verdict counts", func(t *testing.T) {
		t.Parallel()
		out, err := runHistory(t, dbDir, "--stats")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"total     3", "clean     1", "error     1", "infected  1"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output, got:\n%s", want, out)
			}
		}
	})

	t.Run("empty history", func(t *testing.T) {
		t.Parallel()
		out, err := runHistory(t, t.TempDir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "SCAN HISTORY") {
			t.Errorf("expected simple report title, got:\n%s", out)
		}
	})

	t.Run("conflicting formats", func(t *testing.T) {
		t.Parallel()
		if _, err := runHistory(t, dbDir, "--json", "--markdown"); err == nil {
			t.Error("expected error for conflicting report formats")
		}
	})
}
