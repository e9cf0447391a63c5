package instance

import (
	"context"
	"testing"

	"github.com/etsangsplk/metadata-agent/internal/config"
	"github.com/etsangsplk/metadata-agent/internal/logging"
)

// Tests run with full overrides so the metadata server is never contacted.

func overriddenSource() *Source {
	cfg := config.Default()
	cfg.InstanceID = "1234567890"
	cfg.InstanceZone = "us-central1-a"
	return &Source{cfg: cfg, logger: logging.Discard()}
}

func TestQueryWithOverrides(t *testing.T) {
	s := overriddenSource()

	batch, err := s.query(context.Background())
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("got %d entries, want 1", len(batch))
	}

	rm := batch[0]
	if len(rm.IDs) != 1 || rm.IDs[0] != "1234567890" {
		t.Errorf("IDs = %v", rm.IDs)
	}
	if rm.Resource.Type() != "gce_instance" {
		t.Errorf("Type = %q", rm.Resource.Type())
	}
	if rm.Resource.Label("instance_id") != "1234567890" {
		t.Errorf("instance_id = %q", rm.Resource.Label("instance_id"))
	}
	if rm.Resource.Label("zone") != "us-central1-a" {
		t.Errorf("zone = %q", rm.Resource.Label("zone"))
	}
	if rm.Metadata == nil || rm.Metadata.CollectedAt.IsZero() {
		t.Error("metadata freshness marker missing")
	}
}

func TestValidateRequiresResourceType(t *testing.T) {
	s := overriddenSource()
	s.cfg.InstanceResource = ""

	if err := s.validate(); err == nil {
		t.Error("validate accepted empty resource type")
	}
}

func TestValidateAcceptsOverrides(t *testing.T) {
	// With both overrides present, validation must pass without consulting
	// the metadata server.
	if err := overriddenSource().validate(); err != nil {
		t.Errorf("validate failed: %v", err)
	}
}
