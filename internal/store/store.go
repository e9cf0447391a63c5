// Package store holds the in-memory mapping from short-lived resource
// identifiers to monitored-resource descriptors and their metadata.
//
// The store is the only piece of state shared between updater goroutines
// (writers) and API server workers (readers). Every operation is safe under
// concurrent invocation; callers never take locks around store calls.
//
// All state is volatile. Nothing is persisted across restarts: the update
// sources rebuild the mapping after process start.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/etsangsplk/metadata-agent/internal/logging"
	"github.com/etsangsplk/metadata-agent/internal/resource"
)

// ErrNotFound is returned by lookups for identifiers no updater has
// registered. A miss is an expected outcome, not an internal error.
var ErrNotFound = errors.New("resource not found")

// Metadata is the opaque, updater-defined payload associated with a
// monitored resource, carrying freshness information.
//
// Ownership: a Metadata value is transferred to the store on UpdateMetadata.
// After the call the producing updater must not read or reuse it.
type Metadata struct {
	Version     string
	IsDeleted   bool
	CreatedAt   time.Time
	CollectedAt time.Time
	Payload     json.RawMessage
}

// Store is the shared identifier → resource → metadata mapping.
type Store struct {
	logger *slog.Logger

	mu        sync.RWMutex
	resources map[string]resource.Resource // alias id → resource
	metadata  map[string]*Metadata         // resource.Key() → metadata
}

// New creates an empty store.
func New(logger *slog.Logger) *Store {
	return &Store{
		logger:    logging.Default(logger).With("component", "store"),
		resources: make(map[string]resource.Resource),
		metadata:  make(map[string]*Metadata),
	}
}

// LookupResource returns the resource registered under id, or ErrNotFound.
func (s *Store) LookupResource(id string) (resource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.resources[id]
	if !ok {
		return resource.Resource{}, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	return res, nil
}

// UpdateResource registers res under every id in ids. The write is atomic:
// a concurrent reader sees either none or all of the aliases.
func (s *Store) UpdateResource(ids []string, res resource.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		s.logger.Debug("updating resource mapping", "id", id, "resource", res.String())
		s.resources[id] = res
	}
}

// UpdateMetadata stores md as the metadata for res, consuming md. The caller
// forfeits further use of the value after the call.
func (s *Store) UpdateMetadata(res resource.Resource, md *Metadata) {
	if md == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Debug("updating metadata", "resource", res.String(), "collected_at", md.CollectedAt)
	s.metadata[res.Key()] = md
}

// LookupMetadata returns the metadata last committed for res, or ErrNotFound.
func (s *Store) LookupMetadata(res resource.Resource) (*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	md, ok := s.metadata[res.Key()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", res.String(), ErrNotFound)
	}
	return md, nil
}

// PurgeDeleted removes metadata entries whose IsDeleted flag is set and
// returns the number removed. Resource alias mappings are left in place so
// late log entries for a deleted resource still resolve.
func (s *Store) PurgeDeleted() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for key, md := range s.metadata {
		if md.IsDeleted {
			delete(s.metadata, key)
			purged++
		}
	}
	if purged > 0 {
		s.logger.Info("purged deleted metadata entries", "count", purged)
	}
	return purged
}

// Snapshot returns a copy of the current alias mapping. Used by diagnostics
// and tests; not on the lookup hot path.
func (s *Store) Snapshot() map[string]resource.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.resources)
}
