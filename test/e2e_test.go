package test

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/007jayesh/parsesaas-go/internal/controller"
	"github.com/007jayesh/parsesaas-go/internal/convert"
	"github.com/007jayesh/parsesaas-go/internal/export"
	"github.com/007jayesh/parsesaas-go/internal/history"
	"github.com/007jayesh/parsesaas-go/internal/platform/sqlite"
	historyrepo "github.com/007jayesh/parsesaas-go/internal/repository/history"
	"github.com/007jayesh/parsesaas-go/internal/transport/stream"
)

// streamBackend serves the chunked-stream conversion endpoint: a fixed
// sequence of frames flushed one at a time.
func streamBackend(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "bad upload", http.StatusBadRequest)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer is not a flusher")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	}))
}

func setupHistory(t *testing.T) *history.Service {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return history.NewService(historyrepo.NewRepository(db.DB))
}

func TestConversion_EndToEnd(t *testing.T) {
	csvPayload := "date,amount\n2026-01-02,150.00\n"
	excelPayload := base64.StdEncoding.EncodeToString([]byte("xlsx-bytes"))
	frames := []string{
		`{"type": "progress", "stage": "upload", "progress": 10, "stage_index": 0}`,
		`{"type": "progress", "stage": "extracting", "progress": 40, "data": {"current_page": 1, "total_pages": 2}}`,
		`{"type": "docling_output", "content": "| date | amount |", "page": 1}`,
		`{"type": "progress", "stage": "extracting", "progress": 80, "data": {"current_page": 2, "total_pages": 2, "transactions_found": 12}}`,
		fmt.Sprintf(`{"type": "completion", "result": {"conversion_id": "conv-e2e", "status": "completed", "csv_data": %q, "excel_data": %q, "pages_processed": 2, "credits_used": 1, "processing_time_seconds": 3.5}}`,
			csvPayload, excelPayload),
	}
	backend := streamBackend(t, frames)
	defer backend.Close()

	hist := setupHistory(t)
	ctx := context.Background()

	job, err := convert.NewJob("statement.pdf", "application/pdf", []byte("%PDF-1.4"),
		[]string{convert.FormatCSV, convert.FormatExcel}, convert.ModeFast)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	tr := stream.New("test-token", stream.WithEndpoint(backend.URL))
	record, err := hist.Begin(ctx, job, tr.Name())
	if err != nil {
		t.Fatalf("begin history: %v", err)
	}

	ctrl := controller.New()
	ctrl.Start(ctx, job, tr)

	select {
	case <-ctrl.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}

	snap := ctrl.Snapshot()
	if snap.State != controller.StateCompleted {
		t.Fatalf("expected completed, got %s (error: %s)", snap.State, snap.Error)
	}
	if snap.Percent != 100 {
		t.Errorf("expected 100%%, got %v", snap.Percent)
	}
	if snap.TotalPages != 2 || snap.TransactionsFound != 12 {
		t.Errorf("unexpected progress detail: pages=%d transactions=%d",
			snap.TotalPages, snap.TransactionsFound)
	}
	if len(snap.LiveOutput) != 1 {
		t.Errorf("expected 1 live output line, got %d", len(snap.LiveOutput))
	}

	// Record the outcome and read it back.
	if err := hist.Complete(ctx, record, history.StatusCompleted, snap.Result, ""); err != nil {
		t.Fatalf("complete history: %v", err)
	}
	got, err := hist.Get(ctx, history.GetRequest{ID: record.ID})
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if got.Status != history.StatusCompleted {
		t.Errorf("expected completed record, got %s", got.Status)
	}
	if got.ConversionID != "conv-e2e" {
		t.Errorf("expected conv-e2e, got %s", got.ConversionID)
	}
	if got.Pages != 2 || got.CreditsUsed != 1 {
		t.Errorf("unexpected counters: pages=%d credits=%d", got.Pages, got.CreditsUsed)
	}
	if got.Duration != 3.5 {
		t.Errorf("expected backend duration, got %v", got.Duration)
	}

	// Export the result files.
	dir := t.TempDir()
	files, err := export.Files(snap.Result, "statement", job.Formats)
	if err != nil {
		t.Fatalf("export files: %v", err)
	}
	if err := export.WriteAll(ctx, dir, files); err != nil {
		t.Fatalf("write files: %v", err)
	}

	written, err := os.ReadFile(filepath.Join(dir, "statement.csv"))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if string(written) != csvPayload {
		t.Errorf("csv payload mismatch: %q", written)
	}
	if _, err := os.Stat(filepath.Join(dir, "statement.xlsx")); err != nil {
		t.Errorf("expected excel file: %v", err)
	}
}

func TestConversion_BackendError_RecordedAsFailed(t *testing.T) {
	frames := []string{
		`{"type": "progress", "stage": "upload", "progress": 10}`,
		`{"type": "error", "error": "unsupported document layout"}`,
	}
	backend := streamBackend(t, frames)
	defer backend.Close()

	hist := setupHistory(t)
	ctx := context.Background()

	job, err := convert.NewJob("broken.pdf", "application/pdf", []byte("%PDF-1.4"), nil, "")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	tr := stream.New("test-token", stream.WithEndpoint(backend.URL))
	record, err := hist.Begin(ctx, job, tr.Name())
	if err != nil {
		t.Fatalf("begin history: %v", err)
	}

	ctrl := controller.New()
	ctrl.Start(ctx, job, tr)

	select {
	case <-ctrl.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}

	snap := ctrl.Snapshot()
	if snap.State != controller.StateFailed {
		t.Fatalf("expected failed, got %s", snap.State)
	}
	if snap.Error != "unsupported document layout" {
		t.Errorf("expected backend message verbatim, got %q", snap.Error)
	}

	if err := hist.Complete(ctx, record, history.StatusFailed, nil, snap.Error); err != nil {
		t.Fatalf("complete history: %v", err)
	}
	got, err := hist.Get(ctx, history.GetRequest{ID: record.ID})
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if got.Status != history.StatusFailed {
		t.Errorf("expected failed record, got %s", got.Status)
	}
	if got.Error != "unsupported document layout" {
		t.Errorf("unexpected recorded error: %q", got.Error)
	}
}
