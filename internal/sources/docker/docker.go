// Package docker discovers containers through the Docker Engine API and
// maps their identifiers (full id, short id, name) to docker_container
// resources.
//
// Stopped containers are still reported, with their metadata marked deleted
// so the periodic store purge reclaims them while late log entries can
// still resolve the container's resource.
package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/etsangsplk/metadata-agent/internal/config"
	"github.com/etsangsplk/metadata-agent/internal/logging"
	"github.com/etsangsplk/metadata-agent/internal/resource"
	"github.com/etsangsplk/metadata-agent/internal/store"
	"github.com/etsangsplk/metadata-agent/internal/updater"
)

// metadataVersion tags the payload shape this source emits.
const metadataVersion = "0.1"

// shortIDLen is the length of the abbreviated container id Docker prints.
const shortIDLen = 12

// Source polls the Docker daemon for the current container set.
type Source struct {
	cfg    *config.Config
	client engineClient
	logger *slog.Logger
}

// New builds the docker updater. Creating the SDK client validates the host
// URL but performs no I/O; daemon connectivity problems surface as query
// errors and are retried every period.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) (*updater.Updater, error) {
	client, err := newSDKClient(cfg.DockerHost)
	if err != nil {
		return nil, fmt.Errorf("docker source: %w", err)
	}
	return newWithClient(cfg, st, client, logger), nil
}

// newWithClient builds the updater with a provided client (for testing).
func newWithClient(cfg *config.Config, st *store.Store, client engineClient, logger *slog.Logger) *updater.Updater {
	s := &Source{
		cfg:    cfg,
		client: client,
		logger: logging.Default(logger).With("component", "source", "source", "docker"),
	}
	return updater.NewPolling(updater.PollingConfig{
		Name:     "docker",
		Store:    st,
		Period:   cfg.DockerPollPeriod(),
		Query:    s.query,
		Validate: s.validate,
		Logger:   logger,
	})
}

func (s *Source) validate() error {
	if s.cfg.DockerHost == "" {
		return errors.New("docker host is required")
	}
	return nil
}

func (s *Source) query(ctx context.Context) ([]updater.ResourceMetadata, error) {
	containers, err := s.client.ContainerList(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	batch := make([]updater.ResourceMetadata, 0, len(containers))
	for _, c := range containers {
		info, payload, err := s.client.ContainerInspect(ctx, c.ID)
		if err != nil {
			// The container may have disappeared between list and inspect.
			s.logger.Debug("skipping container", "container_id", shortID(c.ID), "error", err)
			continue
		}

		res := resource.New("docker_container", map[string]string{
			"container_id": info.ID,
			"location":     s.cfg.InstanceZone,
		})

		ids := []string{info.ID, shortID(info.ID)}
		if info.Name != "" {
			ids = append(ids, info.Name)
		}

		batch = append(batch, updater.ResourceMetadata{
			IDs:      ids,
			Resource: res,
			Metadata: &store.Metadata{
				Version:     metadataVersion,
				IsDeleted:   info.State != "running",
				CreatedAt:   now,
				CollectedAt: now,
				Payload:     payload,
			},
		})
	}

	s.logger.Debug("docker containers collected", "count", len(batch))
	return batch, nil
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}
