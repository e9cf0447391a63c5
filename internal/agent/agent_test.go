package agent_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/etsangsplk/metadata-agent/internal/agent"
	"github.com/etsangsplk/metadata-agent/internal/config"
	"github.com/etsangsplk/metadata-agent/internal/resource"
)

// quietConfig disables every update source so tests control the store.
func quietConfig() *config.Config {
	cfg := config.Default()
	cfg.ServerHost = "127.0.0.1"
	cfg.ServerPort = 0
	cfg.InstancePollSeconds = 0
	cfg.DockerPollSeconds = 0
	cfg.KubernetesPollSeconds = 0
	cfg.PurgeSeconds = 0
	return cfg
}

// startAgent runs the agent and waits for the API server to bind.
func startAgent(t *testing.T, cfg *config.Config) (*agent.Agent, string, func()) {
	t.Helper()

	a, err := agent.New(cfg, "", nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for a.Server().Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if a.Server().Addr() == nil {
		cancel()
		t.Fatal("agent server did not start")
	}

	stop := func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run returned %v", err)
		}
	}
	return a, "http://" + a.Server().Addr().String(), stop
}

func TestAgentServesLookups(t *testing.T) {
	a, base, stop := startAgent(t, quietConfig())
	defer stop()

	a.Store().UpdateResource([]string{"123"}, resource.New("gce_instance", map[string]string{
		"zone": "us-central1-a",
	}))

	resp, err := http.Get(base + "/monitoredResource/123")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestMisconfiguredUpdaterIsIsolated(t *testing.T) {
	cfg := quietConfig()
	// Enable the kubernetes source without the cluster name it requires:
	// validation fails, the updater stays idle, the agent keeps serving.
	cfg.KubernetesPollSeconds = 1
	cfg.ClusterName = ""

	a, base, stop := startAgent(t, cfg)
	defer stop()

	if got := len(a.Updaters()); got != 1 {
		t.Fatalf("updaters = %d, want 1", got)
	}

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("healthz status = %d, want 503", resp.StatusCode)
	}
	if want := "unhealthy: updater/kubernetes"; string(body) != want {
		t.Errorf("healthz body = %q, want %q", body, want)
	}

	// Lookups still work.
	resp, err = http.Get(base + "/monitoredResource/absent")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("lookup status = %d, want 404", resp.StatusCode)
	}
}

func TestAgentStops(t *testing.T) {
	_, _, stop := startAgent(t, quietConfig())

	start := time.Now()
	stop()
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("shutdown took %v", elapsed)
	}
}
