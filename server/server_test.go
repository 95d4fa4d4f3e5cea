package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/K-Arthur/script-generator/config"
	"github.com/K-Arthur/script-generator/events"
	"github.com/K-Arthur/script-generator/generation"
	"github.com/K-Arthur/script-generator/ingest"
	"github.com/K-Arthur/script-generator/orchestrator"
	"github.com/K-Arthur/script-generator/provider"
	"github.com/K-Arthur/script-generator/server/api"
	"github.com/K-Arthur/script-generator/task"
	"github.com/K-Arthur/script-generator/telemetry"
	"github.com/K-Arthur/script-generator/templates"
	"github.com/K-Arthur/script-generator/validation"
)

// gatedProvider answers only after release is closed.
type gatedProvider struct {
	release chan struct{}
	content string
}

func (g *gatedProvider) Name() string { return "gated" }

func (g *gatedProvider) Chat(ctx context.Context, _ []provider.Message) (*provider.Response, error) {
	select {
	case <-g.release:
		return &provider.Response{Content: g.content}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTestServer(t *testing.T, p provider.Provider) *httptest.Server {
	t.Helper()
	reg := templates.Default()
	metrics := telemetry.New()

	gen, err := generation.NewClient([]provider.Provider{p},
		generation.WithTemplates(reg),
		generation.WithObserver(metrics))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	bus := events.NewInMemoryBus()
	orch := orchestrator.New(task.NewMemoryStore(), gen,
		validation.New(reg, validation.DefaultThresholds()),
		orchestrator.WithEvents(bus),
		orchestrator.WithObserver(metrics))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})

	srv := New(config.ServerConfig{CORSOrigin: "*", Gzip: true}, nil)
	srv.SetHandlers(&api.Handlers{
		Tasks:     orch,
		Checker:   validation.New(reg, validation.DefaultThresholds()),
		Templates: reg,
		Uploads:   ingest.NewDecoder(),
		Version:   "test",
	})
	srv.SetEvents(bus)
	srv.SetMetrics(metrics.Handler())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getStatus(t *testing.T, base, id string) map[string]any {
	t.Helper()
	resp, err := http.Get(base + "/script-status/" + id)
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return out
}

func TestServer_GenerateAndPoll(t *testing.T) {
	p := &gatedProvider{release: make(chan struct{}), content: "Introduction\n\nA short narrated script."}
	ts := newTestServer(t, p)

	content := strings.TrimSpace(strings.Repeat("word ", 500))
	body := fmt.Sprintf(`{"content":%q,"template_name":"documentary"}`, content)
	resp, err := http.Post(ts.URL+"/generate-script", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	var submitted map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&submitted)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || submitted["status"] != "processing" {
		t.Fatalf("submit = %d %v", resp.StatusCode, submitted)
	}
	id := submitted["task_id"]

	if got := getStatus(t, ts.URL, id); got["status"] != "processing" {
		t.Fatalf("immediate poll status = %v, want processing", got["status"])
	}

	close(p.release)

	deadline := time.Now().Add(5 * time.Second)
	var final map[string]any
	for time.Now().Before(deadline) {
		final = getStatus(t, ts.URL, id)
		if final["status"] != "processing" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if final["status"] != "completed" {
		t.Fatalf("final status = %v (error %v)", final["status"], final["error"])
	}
	if final["script"] == "" || final["validation"] == nil {
		t.Errorf("completed task missing script or validation: %v", final)
	}
	v, _ := final["validation"].(map[string]any)
	if _, ok := v["template_compliance"]; !ok {
		t.Errorf("validation missing template_compliance: %v", v)
	}
}

func TestServer_UnknownTask(t *testing.T) {
	ts := newTestServer(t, &gatedProvider{release: make(chan struct{})})

	resp, err := http.Get(ts.URL + "/script-status/never-issued")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "Task not found") {
		t.Errorf("body = %s", b)
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	ts := newTestServer(t, &gatedProvider{release: make(chan struct{})})

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/generate-script", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t, &gatedProvider{release: make(chan struct{})})

	resp, err := http.Post(ts.URL+"/generate-script", "application/json", strings.NewReader(`{"content":"hello"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "scriptgen_tasks_submitted_total 1") {
		t.Errorf("metrics missing submitted counter:\n%s", b)
	}
}

func TestServer_StopWithOpenEventStream(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := New(config.ServerConfig{}, nil)
	srv.SetEvents(events.NewInMemoryBus())

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/events")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil || line != "event: connected\n" {
		t.Fatalf("first line = %q, err = %v", line, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop took %v with an open event stream", elapsed)
	}
	if err := <-served; !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("Serve returned %v, want ErrServerClosed", err)
	}
}
