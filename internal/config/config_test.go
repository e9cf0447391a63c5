package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/etsangsplk/metadata-agent/internal/config"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "metadatad.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	c := config.Default()

	if c.ServerPort != 8000 {
		t.Errorf("ServerPort = %d, want 8000", c.ServerPort)
	}
	if c.ServerWorkers != 3 {
		t.Errorf("ServerWorkers = %d, want 3", c.ServerWorkers)
	}
	if c.Verbose() {
		t.Error("verbose on by default")
	}
	if c.KubernetesPollSeconds != 0 {
		t.Error("kubernetes source enabled by default")
	}
	if c.InstancePollPeriod() != time.Hour {
		t.Errorf("InstancePollPeriod = %v, want 1h", c.InstancePollPeriod())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := config.Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.ServerPort != 8000 {
		t.Errorf("ServerPort = %d, want default", c.ServerPort)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{
		"verboseLogging": true,
		"serverPort": 9000,
		"dockerPollSeconds": 5,
		"clusterName": "prod"
	}`)

	c, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !c.Verbose() {
		t.Error("verbose not applied")
	}
	if c.ServerPort != 9000 {
		t.Errorf("ServerPort = %d, want 9000", c.ServerPort)
	}
	if c.DockerPollPeriod() != 5*time.Second {
		t.Errorf("DockerPollPeriod = %v, want 5s", c.DockerPollPeriod())
	}
	if c.ClusterName != "prod" {
		t.Errorf("ClusterName = %q", c.ClusterName)
	}
	// Unspecified fields keep their defaults.
	if c.DockerHost != "unix:///var/run/docker.sock" {
		t.Errorf("DockerHost = %q", c.DockerHost)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad json", `{"serverPort": `},
		{"port out of range", `{"serverPort": 70000}`},
		{"negative workers", `{"serverWorkers": -1}`},
		{"negative poll", `{"dockerPollSeconds": -5}`},
		{"negative purge", `{"metadataPurgeSeconds": -1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			if _, err := config.Load(path); err == nil {
				t.Error("Load accepted invalid config")
			}
		})
	}
}

func TestWatchFlipsVerbose(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"verboseLogging": false}`)

	c, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, path, nil)
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(50 * time.Millisecond)
	writeConfig(t, dir, `{"verboseLogging": true}`)

	deadline := time.Now().Add(3 * time.Second)
	for !c.Verbose() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !c.Verbose() {
		t.Error("verbose flag not picked up from changed file")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}
