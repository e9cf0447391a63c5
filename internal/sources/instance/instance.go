// Package instance supplies the monitored-resource descriptor for the VM
// the agent runs on, queried from the GCE metadata server.
//
// Config overrides for instance id and zone let the agent run off-GCE (and
// let tests avoid the metadata server entirely).
package instance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	gce "cloud.google.com/go/compute/metadata"

	"github.com/etsangsplk/metadata-agent/internal/config"
	"github.com/etsangsplk/metadata-agent/internal/logging"
	"github.com/etsangsplk/metadata-agent/internal/resource"
	"github.com/etsangsplk/metadata-agent/internal/store"
	"github.com/etsangsplk/metadata-agent/internal/updater"
)

// metadataVersion tags the payload shape this source emits.
const metadataVersion = "0.1"

// Source queries instance identity once per period. The instance rarely
// changes; the long default period just refreshes the freshness marker.
type Source struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New builds the instance updater.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) *updater.Updater {
	s := &Source{
		cfg:    cfg,
		logger: logging.Default(logger).With("component", "source", "source", "instance"),
	}
	return updater.NewPolling(updater.PollingConfig{
		Name:     "instance",
		Store:    st,
		Period:   cfg.InstancePollPeriod(),
		Query:    s.query,
		Validate: s.validate,
		Logger:   logger,
	})
}

func (s *Source) validate() error {
	if s.cfg.InstanceResource == "" {
		return fmt.Errorf("instance resource type is required")
	}
	if (s.cfg.InstanceID == "" || s.cfg.InstanceZone == "") && !gce.OnGCE() {
		return fmt.Errorf("not running on GCE and no instanceId/instanceZone overrides configured")
	}
	return nil
}

func (s *Source) query(ctx context.Context) ([]updater.ResourceMetadata, error) {
	id := s.cfg.InstanceID
	zone := s.cfg.InstanceZone
	name := ""

	if id == "" {
		var err error
		id, err = gce.InstanceIDWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("query instance id: %w", err)
		}
		// The name is a convenience alias; its absence is not an error.
		// Only asked for when the id came from the metadata server, so
		// fully overridden configs never touch the network.
		if n, err := gce.InstanceNameWithContext(ctx); err == nil {
			name = n
		}
	}
	if zone == "" {
		var err error
		zone, err = gce.ZoneWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("query instance zone: %w", err)
		}
	}

	res := resource.New(s.cfg.InstanceResource, map[string]string{
		"instance_id": id,
		"zone":        zone,
	})

	ids := []string{id}
	if name != "" && name != id {
		ids = append(ids, name)
	}

	now := time.Now()
	payload, err := json.Marshal(map[string]string{
		"instance_id": id,
		"zone":        zone,
		"name":        name,
	})
	if err != nil {
		return nil, fmt.Errorf("encode instance metadata: %w", err)
	}

	s.logger.Debug("instance metadata collected", "instance_id", id, "zone", zone)
	return []updater.ResourceMetadata{{
		IDs:      ids,
		Resource: res,
		Metadata: &store.Metadata{
			Version:     metadataVersion,
			CreatedAt:   now,
			CollectedAt: now,
			Payload:     payload,
		},
	}}, nil
}
