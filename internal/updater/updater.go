// Package updater provides the lifecycle framework for asynchronous update
// sources that keep the metadata store fresh.
//
// Each concrete source (instance, docker, kubernetes) implements the small
// Hooks capability interface; the Updater driver owns the shared lifecycle
// state machine and the commit path into the store. Sources never touch the
// store directly.
package updater

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/etsangsplk/metadata-agent/internal/logging"
	"github.com/etsangsplk/metadata-agent/internal/resource"
	"github.com/etsangsplk/metadata-agent/internal/store"
)

// State is the lifecycle state of an updater.
type State int

const (
	// Idle is the initial state. An updater whose configuration fails
	// validation stays Idle permanently.
	Idle State = iota
	// Running means the source's background work has been started.
	Running
	// Stopped is terminal. A stopped updater is never restarted.
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrStopped is returned by Start on an updater that has already been stopped.
var ErrStopped = errors.New("updater already stopped")

// ErrAlreadyRunning is returned by Start on a running updater.
var ErrAlreadyRunning = errors.New("updater already running")

// ResourceMetadata bundles the alias identifiers, the monitored-resource
// descriptor, and the opaque metadata payload produced by one query.
//
// A ResourceMetadata is immutable after construction, except for the
// one-time handoff of Metadata to the store at commit time: the driver nils
// the field once ownership has transferred.
type ResourceMetadata struct {
	IDs      []string
	Resource resource.Resource
	Metadata *store.Metadata
}

// CommitFunc pushes one batch entry into the store. Handed to Hooks.Start so
// sources commit through the driver rather than holding a store reference.
type CommitFunc func(*ResourceMetadata)

// Hooks is the capability interface a concrete update source implements.
// The three operations mirror the lifecycle transitions the driver makes.
type Hooks interface {
	// ValidateConfig rejects missing or malformed configuration before any
	// goroutine or timer is started. A non-nil error keeps the updater Idle.
	ValidateConfig() error

	// Start launches the source's background work. Must not block.
	Start(commit CommitFunc)

	// Stop signals the background work to finish and blocks until it has.
	Stop()
}

// Updater drives the lifecycle state machine for one update source and owns
// its commit path into the store.
type Updater struct {
	name     string
	instance uuid.UUID
	store    *store.Store
	hooks    Hooks
	logger   *slog.Logger

	mu    sync.Mutex
	state State

	// stopOnce runs the hook join exactly once; concurrent Stop callers
	// block inside Do until the first caller's join has completed.
	stopOnce sync.Once
}

// New wraps hooks in a lifecycle driver writing into st.
func New(name string, st *store.Store, hooks Hooks, logger *slog.Logger) *Updater {
	instance := uuid.New()
	return &Updater{
		name:     name,
		instance: instance,
		store:    st,
		hooks:    hooks,
		logger: logging.Default(logger).With(
			"component", "updater", "updater", name, "instance", instance.String()),
	}
}

// Name returns the source name the updater was constructed with.
func (u *Updater) Name() string { return u.name }

// Instance returns the unique id of this updater instance.
func (u *Updater) Instance() uuid.UUID { return u.instance }

// State returns the current lifecycle state.
func (u *Updater) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Start validates the source configuration and, on success, transitions
// Idle → Running and launches the source's background work.
//
// A validation failure is logged and leaves the updater Idle permanently;
// the returned error is for the caller's visibility and must not be treated
// as fatal to the process.
func (u *Updater) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch u.state {
	case Running:
		return ErrAlreadyRunning
	case Stopped:
		return ErrStopped
	}

	if err := u.hooks.ValidateConfig(); err != nil {
		u.logger.Error("configuration validation failed, updater will not run", "error", err)
		return fmt.Errorf("validate %s updater: %w", u.name, err)
	}

	u.state = Running
	u.logger.Info("updater starting")
	u.hooks.Start(u.commit)
	return nil
}

// Stop transitions Running → Stopped and joins the source's background
// work. Safe to call multiple times, including concurrently: every call
// returns only after the background work has been joined. Calls on an
// updater that never ran are no-ops.
func (u *Updater) Stop() {
	u.mu.Lock()
	if u.state == Idle {
		u.mu.Unlock()
		return
	}
	u.state = Stopped
	u.mu.Unlock()

	u.stopOnce.Do(func() {
		u.hooks.Stop()
		u.logger.Info("updater stopped")
	})
}

// commit pushes one batch entry into the store: the resource mapping first,
// then the metadata that references it, so a reader never observes metadata
// for an unregistered identifier. Consumes rm.Metadata.
func (u *Updater) commit(rm *ResourceMetadata) {
	if len(rm.IDs) == 0 {
		u.logger.Warn("dropping resource metadata with no ids", "resource", rm.Resource.String())
		return
	}
	u.store.UpdateResource(rm.IDs, rm.Resource)
	if rm.Metadata != nil {
		u.store.UpdateMetadata(rm.Resource, rm.Metadata)
		// Ownership has transferred to the store.
		rm.Metadata = nil
	}
}
