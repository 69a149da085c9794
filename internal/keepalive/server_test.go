package keepalive

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"voicepolish/internal/domain"
	"voicepolish/internal/metrics"
	"voicepolish/internal/relay"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestRoot_ReturnsAliveText(t *testing.T) {
	s := New(Config{Logger: testLogger()})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != AliveText {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	s := New(Config{Logger: testLogger()})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestMetrics_MountedWhenConfigured(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "voicepolish_up 1\n")
	})
	s := New(Config{Logger: testLogger(), Metrics: metrics, MetricsPath: "/m"})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/m", nil))
	if rec.Body.String() != "voicepolish_up 1\n" {
		t.Fatalf("unexpected metrics body %q", rec.Body.String())
	}

	bare := New(Config{Logger: testLogger()})
	rec = httptest.NewRecorder()
	bare.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics handler, got %d", rec.Code)
	}
}

// blockingTranscriber parks the pipeline inside transcription until released.
type blockingTranscriber struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	close(b.entered)
	<-b.release
	return "", nil
}

type nopMessenger struct{}

func (nopMessenger) Reply(context.Context, int64, int, string) (int, error) { return 1, nil }
func (nopMessenger) Edit(context.Context, int64, int, string) error         { return nil }
func (nopMessenger) Delete(context.Context, int64, int) error               { return nil }
func (nopMessenger) Download(context.Context, string) ([]byte, error)       { return []byte("OggS"), nil }

type nopRestyler struct{}

func (nopRestyler) Restyle(context.Context, string, string) (string, error) { return "ok", nil }

func TestStart_ServesWhilePipelineIsBlocked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := &blockingTranscriber{entered: make(chan struct{}), release: make(chan struct{})}
	p := relay.New(relay.Config{
		Messenger:   nopMessenger{},
		Transcriber: tr,
		Restyler:    nopRestyler{},
		TempDir:     t.TempDir(),
		Logger:      testLogger(),
	})
	handled := make(chan relay.Result, 1)
	go func() {
		handled <- p.Handle(ctx, domain.VoiceMessage{ChatID: 1, MessageID: 2, FileID: "f"})
	}()
	select {
	case <-tr.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not reach transcription")
	}

	s := New(Config{Host: "127.0.0.1", Port: 0, Logger: testLogger(), Metrics: metrics.Default.Handler()})
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-s.Ready():
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + s.Addr() + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != AliveText {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, body)
	}

	resp, err = client.Get("http://" + s.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "voicepolish_pipeline_in_flight 1") {
		t.Fatalf("blocked run should be in flight:\n%s", body)
	}

	close(tr.release)
	select {
	case res := <-handled:
		if res.State != relay.Failed {
			t.Fatalf("empty transcript should fail the run, got %v", res.State)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not finish after release")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected shutdown error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
