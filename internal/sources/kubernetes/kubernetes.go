// Package kubernetes discovers pods by scraping the kubelet's read-only
// /pods endpoint and maps pod UIDs and namespace/name pairs to k8s_pod
// resources.
//
// The scrape deliberately avoids the API server: the agent only needs the
// pods colocated on its own node, and the kubelet already knows them.
package kubernetes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/etsangsplk/metadata-agent/internal/config"
	"github.com/etsangsplk/metadata-agent/internal/logging"
	"github.com/etsangsplk/metadata-agent/internal/resource"
	"github.com/etsangsplk/metadata-agent/internal/store"
	"github.com/etsangsplk/metadata-agent/internal/updater"
)

// metadataVersion tags the payload shape this source emits.
const metadataVersion = "0.1"

// podList is the slice of the kubelet response the source decodes. Items
// stay raw so the full pod document can be stored as the metadata payload.
type podList struct {
	Items []json.RawMessage `json:"items"`
}

// pod is the subset of pod fields the source reads.
type pod struct {
	Metadata struct {
		Name      string `json:"name"`
		Namespace string `json:"namespace"`
		UID       string `json:"uid"`
	} `json:"metadata"`
	Status struct {
		Phase string `json:"phase"`
	} `json:"status"`
}

// Source polls the kubelet for the pods on this node.
type Source struct {
	cfg    *config.Config
	client *http.Client
	logger *slog.Logger
}

// New builds the kubernetes updater.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) *updater.Updater {
	s := &Source{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logging.Default(logger).With("component", "source", "source", "kubernetes"),
	}
	return updater.NewPolling(updater.PollingConfig{
		Name:     "kubernetes",
		Store:    st,
		Period:   cfg.KubernetesPollPeriod(),
		Query:    s.query,
		Validate: s.validate,
		Logger:   logger,
	})
}

func (s *Source) validate() error {
	if s.cfg.ClusterName == "" {
		return errors.New("cluster name is required for the kubernetes source")
	}
	u, err := url.Parse(s.cfg.KubeletEndpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid kubelet endpoint %q", s.cfg.KubeletEndpoint)
	}
	return nil
}

func (s *Source) query(ctx context.Context) ([]updater.ResourceMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.KubeletEndpoint+"/pods", nil)
	if err != nil {
		return nil, fmt.Errorf("build kubelet request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query kubelet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kubelet returned %s", resp.Status)
	}

	var list podList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode kubelet response: %w", err)
	}

	now := time.Now()
	batch := make([]updater.ResourceMetadata, 0, len(list.Items))
	for _, raw := range list.Items {
		var p pod
		if err := json.Unmarshal(raw, &p); err != nil {
			s.logger.Warn("skipping undecodable pod", "error", err)
			continue
		}
		if p.Metadata.UID == "" {
			continue
		}

		res := resource.New("k8s_pod", map[string]string{
			"cluster_name":   s.cfg.ClusterName,
			"location":       s.cfg.ClusterLocation,
			"namespace_name": p.Metadata.Namespace,
			"pod_name":       p.Metadata.Name,
		})

		// Terminal pods stay resolvable until the purge sweep runs.
		terminal := p.Status.Phase == "Succeeded" || p.Status.Phase == "Failed"

		batch = append(batch, updater.ResourceMetadata{
			IDs: []string{
				p.Metadata.UID,
				p.Metadata.Namespace + "/" + p.Metadata.Name,
			},
			Resource: res,
			Metadata: &store.Metadata{
				Version:     metadataVersion,
				IsDeleted:   terminal,
				CreatedAt:   now,
				CollectedAt: now,
				Payload:     raw,
			},
		})
	}

	s.logger.Debug("kubelet pods collected", "count", len(batch))
	return batch, nil
}
