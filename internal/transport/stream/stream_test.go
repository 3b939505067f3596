package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/007jayesh/parsesaas-go/internal/convert"
	"github.com/007jayesh/parsesaas-go/internal/transport"
)

func testJob(t *testing.T) *convert.Job {
	t.Helper()
	job, err := convert.NewJob("statement.pdf", "application/pdf", []byte("%PDF-1.4 fake"), []string{"csv"}, convert.ModeFast)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return job
}

func collect(events *[]convert.Event) func(convert.Event) {
	return func(ev convert.Event) { *events = append(*events, ev) }
}

func TestRun_ThreePageScenario(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("output_formats"); got != "csv" {
			t.Errorf("expected output_formats csv, got %q", got)
		}

		flusher := w.(http.Flusher)
		for _, frame := range []string{
			`data: {"type":"progress","stage":"extract","progress":30}` + "\n\n",
			`data: {"type":"progress","stage":"analyze","progress":70}` + "\n\n",
			`data: {"type":"completion","result":{"conversion_id":"c1","status":"success","pages_processed":3,"credits_used":3,"csv_data":"a,b"}}` + "\n\n",
		} {
			_, _ = w.Write([]byte(frame))
			flusher.Flush()
		}
	}))
	defer ts.Close()

	tr := New("tok", WithClient(ts.Client()), WithEndpoint(ts.URL))

	var events []convert.Event
	if err := tr.Run(context.Background(), testJob(t), collect(&events)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != convert.EventProgress || events[1].Type != convert.EventProgress {
		t.Errorf("expected two progress events, got %s, %s", events[0].Type, events[1].Type)
	}
	if events[2].Type != convert.EventCompletion {
		t.Fatalf("expected completion, got %s", events[2].Type)
	}
	if events[2].Result.PagesProcessed != 3 {
		t.Errorf("expected 3 pages processed, got %d", events[2].Result.PagesProcessed)
	}
}

func TestRun_FramesSplitAcrossReads(t *testing.T) {
	// One frame delivered byte by byte, plus a trailing partial frame that
	// only completes in a later write.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		flusher := w.(http.Flusher)
		full := `data: {"type":"progress","stage":"extract","progress":10}` + "\n\ndata: {\"type\":"
		for _, b := range []byte(full) {
			_, _ = w.Write([]byte{b})
			flusher.Flush()
		}
		_, _ = w.Write([]byte(`"completion","result":{"conversion_id":"c2","status":"success"}}` + "\n\n"))
		flusher.Flush()
	}))
	defer ts.Close()

	tr := New("tok", WithClient(ts.Client()), WithEndpoint(ts.URL))

	var events []convert.Event
	if err := tr.Run(context.Background(), testJob(t), collect(&events)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Result.ConversionID != "c2" {
		t.Errorf("expected conversion c2, got %q", events[1].Result.ConversionID)
	}
}

func TestRun_MalformedFramesSkipped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("data: {broken json\n\n"))
		_, _ = w.Write([]byte(": keepalive comment\n\n"))
		_, _ = w.Write([]byte(`data: {"type":"heartbeat"}` + "\n\n"))
		_, _ = w.Write([]byte(`data: {"type":"completion","result":{"conversion_id":"c3","status":"success"}}` + "\n\n"))
	}))
	defer ts.Close()

	tr := New("tok", WithClient(ts.Client()), WithEndpoint(ts.URL))

	var events []convert.Event
	if err := tr.Run(context.Background(), testJob(t), collect(&events)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Type != convert.EventCompletion {
		t.Fatalf("expected only the completion event, got %+v", events)
	}
}

func TestRun_EOFWithoutTerminal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`data: {"type":"progress","stage":"extract","progress":30}` + "\n\n"))
	}))
	defer ts.Close()

	tr := New("tok", WithClient(ts.Client()), WithEndpoint(ts.URL))

	var events []convert.Event
	err := tr.Run(context.Background(), testJob(t), collect(&events))
	if !errors.Is(err, transport.ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected the progress event to be delivered first, got %d events", len(events))
	}
}

func TestRun_NonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "insufficient credits", http.StatusPaymentRequired)
	}))
	defer ts.Close()

	tr := New("tok", WithClient(ts.Client()), WithEndpoint(ts.URL))

	var events []convert.Event
	err := tr.Run(context.Background(), testJob(t), collect(&events))
	if err == nil {
		t.Fatal("expected error for non-2xx status")
	}
	if len(events) != 0 {
		t.Errorf("no frames should be processed after a rejected request, got %d", len(events))
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`data: {"type":"progress","stage":"extract"}` + "\n\n"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	tr := New("tok", WithClient(ts.Client()), WithEndpoint(ts.URL))
	job := testJob(t)

	done := make(chan error, 1)
	var events []convert.Event
	go func() { done <- tr.Run(ctx, job, collect(&events)) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
