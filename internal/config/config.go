// Package config provides the agent's configuration: a flat JSON file with
// defaults for every field, so an empty or missing file yields a working
// agent.
//
// Config describes the desired agent shape. It is loaded once at startup;
// the only value that changes at runtime is the verbose flag, which is
// re-read by Watch when the file changes.
//
// Semantic validation of per-source settings (endpoints, poll periods) is
// the responsibility of each update source's ValidateConfig, reported as
// errors, never panics.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"
	"time"
)

// Config is the full agent configuration. JSON field names are the knobs
// exposed to operators.
type Config struct {
	// Logging.
	VerboseLogging bool   `json:"verboseLogging"`
	LogFormat      string `json:"logFormat"` // "text" or "json"
	LogLevel       string `json:"logLevel"`

	// Local API server.
	ServerHost    string `json:"serverHost"`
	ServerPort    int    `json:"serverPort"`
	ServerWorkers int    `json:"serverWorkers"`

	// Poll periods in seconds. Zero disables the source.
	InstancePollSeconds   int `json:"instancePollSeconds"`
	DockerPollSeconds     int `json:"dockerPollSeconds"`
	KubernetesPollSeconds int `json:"kubernetesPollSeconds"`

	// Instance source. Overrides let the agent run off-GCE.
	InstanceID       string `json:"instanceId"`
	InstanceZone     string `json:"instanceZone"`
	InstanceResource string `json:"instanceResourceType"`

	// Docker source.
	DockerHost string `json:"dockerHost"`

	// Kubernetes source.
	KubeletEndpoint string `json:"kubeletEndpoint"`
	ClusterName     string `json:"clusterName"`
	ClusterLocation string `json:"clusterLocation"`

	// Store maintenance.
	PurgeSeconds int `json:"metadataPurgeSeconds"`

	// verbose is the live value of VerboseLogging, flipped by Watch.
	verbose atomic.Bool
}

// Default returns a Config with every field set to its default.
func Default() *Config {
	c := &Config{
		LogFormat:             "text",
		LogLevel:              "info",
		ServerHost:            "0.0.0.0",
		ServerPort:            8000,
		ServerWorkers:         3,
		InstancePollSeconds:   3600,
		DockerPollSeconds:     60,
		KubernetesPollSeconds: 0,
		InstanceResource:      "gce_instance",
		DockerHost:            "unix:///var/run/docker.sock",
		KubeletEndpoint:       "http://127.0.0.1:10255",
		PurgeSeconds:          600,
	}
	c.verbose.Store(c.VerboseLogging)
	return c
}

// Load reads the config file at path on top of the defaults. A missing file
// is not an error: the defaults apply.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	c.verbose.Store(c.VerboseLogging)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Validate checks the fields the agent cannot start without. Per-source
// settings are validated by the sources themselves.
func (c *Config) Validate() error {
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("serverPort out of range: %d", c.ServerPort)
	}
	if c.ServerWorkers < 0 {
		return fmt.Errorf("serverWorkers must be non-negative: %d", c.ServerWorkers)
	}
	if c.InstancePollSeconds < 0 || c.DockerPollSeconds < 0 || c.KubernetesPollSeconds < 0 {
		return errors.New("poll periods must be non-negative")
	}
	if c.PurgeSeconds < 0 {
		return fmt.Errorf("metadataPurgeSeconds must be non-negative: %d", c.PurgeSeconds)
	}
	return nil
}

// Verbose reports the live verbose-logging flag. Safe for concurrent use;
// pass the method value wherever a verbosity source is needed.
func (c *Config) Verbose() bool {
	return c.verbose.Load()
}

// SetVerbose flips the live verbose-logging flag.
func (c *Config) SetVerbose(v bool) {
	c.verbose.Store(v)
}

// InstancePollPeriod returns the instance source poll period.
func (c *Config) InstancePollPeriod() time.Duration {
	return time.Duration(c.InstancePollSeconds) * time.Second
}

// DockerPollPeriod returns the docker source poll period.
func (c *Config) DockerPollPeriod() time.Duration {
	return time.Duration(c.DockerPollSeconds) * time.Second
}

// KubernetesPollPeriod returns the kubernetes source poll period.
func (c *Config) KubernetesPollPeriod() time.Duration {
	return time.Duration(c.KubernetesPollSeconds) * time.Second
}

// PurgePeriod returns the store purge interval.
func (c *Config) PurgePeriod() time.Duration {
	return time.Duration(c.PurgeSeconds) * time.Second
}
