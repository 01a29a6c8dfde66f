// Package kernel is the Reactive Kernel: it boots and shuts down the
// link-graph backend, the event reactor, the file watcher, the
// permission gatekeeper, the checkpoint store and time traveler, and
// the context manager as one coordinated unit, and hot-reloads the
// components that care about a changed path.
package kernel

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wendao-project/wendao-kernel/autofix"
	"github.com/wendao-project/wendao-kernel/checkpoint"
	wendaocontext "github.com/wendao-project/wendao-kernel/context"
	"github.com/wendao-project/wendao-kernel/gatekeeper"
	"github.com/wendao-project/wendao-kernel/linkgraph/backend"
	"github.com/wendao-project/wendao-kernel/log"
)

// NotificationSink broadcasts a tools/listChanged-style notification to
// whatever transport is connected. The transport itself is an external
// collaborator per spec.md §1; a nil sink is a valid no-op.
type NotificationSink func(event string, payload map[string]any)

// Kernel wires every subsystem into one bootable, shutdownable unit.
// There is no package-level singleton: callers construct one explicitly
// and thread it through, so tests can boot independent kernels rather
// than resetting shared global state.
type Kernel struct {
	Lifecycle  *Lifecycle
	Reactor    *Reactor
	Registry   *Registry
	Backend    *backend.Backend
	Traveler   *checkpoint.Traveler
	Context    *wendaocontext.Manager
	AutoFix    *autofix.Loop
	Permission map[string][]string

	watcher *Watcher
	logger  log.Logger
	notify  NotificationSink

	mu       sync.RWMutex
	bgCancel context.CancelFunc
	bgGroup  *errgroup.Group
}

// Options configures a new Kernel. Store is required. A 500ms-debounced
// watcher runs over WatchRoot only when WatchRoot is set, and a nil
// Logger falls back to the package-level default logger.
type Options struct {
	Backend    *backend.Backend
	Store      checkpoint.Store
	Logger     log.Logger
	WatchRoot  string
	Notify     NotificationSink
	Manifests  []gatekeeper.Manifest
	Summarizer wendaocontext.Summarizer
}

// New assembles a Kernel in StateUninitialized. Call Boot to bring it
// up.
func New(opts Options) (*Kernel, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	store := opts.Store
	if store == nil {
		return nil, fmt.Errorf("kernel: Options.Store is required")
	}

	var watcher *Watcher
	if opts.WatchRoot != "" {
		w, err := NewWatcher(opts.WatchRoot, logger)
		if err != nil {
			return nil, fmt.Errorf("kernel: building watcher: %w", err)
		}
		watcher = w
	}

	traveler := checkpoint.NewTraveler(store)
	ctxManager := wendaocontext.NewManager(nil, opts.Summarizer)

	k := &Kernel{
		Lifecycle:  NewLifecycle(),
		Reactor:    NewReactor(logger),
		Registry:   NewRegistry(),
		Backend:    opts.Backend,
		Traveler:   traveler,
		Context:    ctxManager,
		Permission: gatekeeper.BuildPermissionIndex(opts.Manifests),
		watcher:    watcher,
		logger:     logger,
		notify:     opts.Notify,
	}

	k.AutoFix = autofix.NewLoop(&autofixTravelerAdapter{traveler: traveler}, nil, 2)

	return k, nil
}

// Boot runs the six-step startup sequence: discover and load skill
// context, register loaded skills and their commands, build the
// Cortex index asynchronously (never blocking readiness), load Sniffer
// rules, start the reactor and file watcher with the Cortex/Sniffer
// hooks wired to file/changed and file/created, and log a readiness
// summary.
func (k *Kernel) Boot(ctx context.Context) error {
	if err := k.Lifecycle.Transition(StateInitializing); err != nil {
		return err
	}

	// Step 1+2: skill discovery/registration is driven by callers via
	// Registry.Register before or during Boot; the kernel itself only
	// owns the registry, not the skill-manifest loader (an external
	// collaborator per spec.md §1).
	for _, c := range k.Registry.All() {
		if err := c.Init(ctx); err != nil {
			return fmt.Errorf("kernel: initializing component %s: %w", c.Name(), err)
		}
	}

	// Step 3: build the Cortex index asynchronously so a slow scan
	// never blocks boot.
	_, cancel := context.WithCancel(context.Background())
	group := &errgroup.Group{}
	k.mu.Lock()
	k.bgCancel = cancel
	k.bgGroup = group
	k.mu.Unlock()

	if k.Backend != nil {
		group.Go(func() error {
			if _, err := k.Backend.Bootstrap(); err != nil {
				k.logger.Error("kernel: cortex bootstrap failed: %v", err)
				return err
			}
			return nil
		})
	}

	// Step 4: Sniffer rule loading is an external collaborator
	// (persisted rule store) — Sniffer components register themselves
	// through Registry and load their own rules from Init.

	// Step 5: start the reactor, then the watcher, wiring debounced
	// file-change batches to every FileEventAware component (the
	// Cortex indexer and the Sniffer) and to a refresh of the backend.
	k.Reactor.Start(ctx)
	if k.watcher != nil {
		k.watcher.Start(func(paths []string) {
			k.onFilesChanged(ctx, paths)
		})
	}

	if err := k.Lifecycle.Transition(StateReady); err != nil {
		return err
	}
	if err := k.Lifecycle.Transition(StateRunning); err != nil {
		return err
	}

	k.logger.Info("kernel: ready, components=%v", k.Registry.Names())
	return nil
}

// onFilesChanged is the hot-reload handler: it rebuilds only the
// affected skill via a targeted backend refresh, notifies every
// FileEventAware component, publishes file/changed on the reactor, and
// broadcasts tools/listChanged to the connected transport.
func (k *Kernel) onFilesChanged(ctx context.Context, paths []string) {
	if k.Backend != nil {
		if _, err := k.Backend.Refresh(paths, false, 50); err != nil {
			k.logger.Error("kernel: hot-reload refresh failed: %v", err)
		}
	}
	for _, err := range k.Registry.DispatchFileEvent(ctx, paths) {
		k.logger.Warn("kernel: file-event hook error: %v", err)
	}
	_ = k.Reactor.Publish(ctx, Event{Topic: "file/changed", Payload: map[string]any{"paths": paths}})
	if k.notify != nil {
		k.notify("tools/listChanged", map[string]any{"paths": paths})
	}
}

// Shutdown runs the teardown sequence: cancel and await background
// tasks, stop the reactor (which drains its queue and dispatches
// system/shutdown), stop the file watcher, persist persistable
// component state, then shut down every registered component and clear
// the registry. There is no separate Sniffer-hook step: Sniffer
// components are shut down with the rest of the registry.
func (k *Kernel) Shutdown(ctx context.Context) error {
	if err := k.Lifecycle.Transition(StateShuttingDown); err != nil {
		return err
	}

	k.mu.RLock()
	cancel, group := k.bgCancel, k.bgGroup
	k.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	if group != nil {
		if err := group.Wait(); err != nil {
			k.logger.Warn("kernel: background task exited with error: %v", err)
		}
	}

	k.Reactor.Stop(ctx)
	if k.watcher != nil {
		k.watcher.Stop()
	}

	if _, errs := k.Registry.PersistAll(ctx); len(errs) > 0 {
		for _, err := range errs {
			k.logger.Warn("kernel: persist failed: %v", err)
		}
	}

	for _, c := range k.Registry.All() {
		if err := c.Shutdown(ctx); err != nil {
			k.logger.Warn("kernel: shutdown of component %s failed: %v", c.Name(), err)
		}
	}
	k.Registry.Clear()

	if err := k.Lifecycle.Transition(StateStopped); err != nil {
		return err
	}
	k.logger.Info("kernel: stopped")
	return nil
}

// autofixTravelerAdapter bridges the kernel's *checkpoint.Traveler to
// autofix's minimal Traveler interface.
type autofixTravelerAdapter struct {
	traveler *checkpoint.Traveler
}

func (a *autofixTravelerAdapter) ForkAndCorrect(ctx context.Context, threadID string, stepsBack int, patch checkpoint.PatchFunc, reason string, sink checkpoint.EventSink) (*checkpoint.Checkpoint, error) {
	return a.traveler.ForkAndCorrect(ctx, threadID, stepsBack, patch, reason, sink)
}
