// Package registry holds the in-memory index of installed routes and
// drives their lifecycle: deploy, start, stop, remove, delete. A per-key
// lock (keyed by the route's tenant-scoped internal key) serializes
// mutations against a single route without blocking readers of any route,
// mirroring the per-key-guarded-map shape used throughout this codebase
// (see internal/eventbus's per-process-id locking).
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/corewire/routeforge/internal/compiler"
	"github.com/corewire/routeforge/internal/executor"
	"github.com/corewire/routeforge/internal/routemodel"
	"github.com/corewire/routeforge/internal/routestore"
	"github.com/corewire/routeforge/pkg/apperrors"
	"github.com/corewire/routeforge/pkg/logger"
	"github.com/corewire/routeforge/pkg/metrics"
)

// installed is one route's in-memory state: its definition, its compiled
// form (nil for a route reloaded in a non-DEPLOYED status until it is
// started), and whether it is currently accepting invocations.
type installed struct {
	def      routemodel.RouteDefinition
	compiled *compiler.CompiledRoute
	running  bool
}

// Registry is the in-memory route index and lifecycle manager.
type Registry struct {
	compiler *compiler.Compiler
	store    *routestore.Store
	log      *logger.Logger

	mu     sync.RWMutex
	routes map[string]*installed
	locks  map[string]*sync.Mutex

	execMu sync.RWMutex
	exec   *executor.Executor
}

// New builds a Registry. Call SetExecutor before any route is invoked;
// this two-step wiring breaks the construction cycle between the registry
// (which an Executor's RouteInvoker option needs) and the Executor itself.
func New(comp *compiler.Compiler, store *routestore.Store, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewDefault("registry")
	}
	return &Registry{
		compiler: comp,
		store:    store,
		log:      log,
		routes:   make(map[string]*installed),
		locks:    make(map[string]*sync.Mutex),
	}
}

// SetExecutor wires the executor routes are run against. Safe to call once
// during startup before traffic begins.
func (r *Registry) SetExecutor(exec *executor.Executor) {
	r.execMu.Lock()
	defer r.execMu.Unlock()
	r.exec = exec
}

func (r *Registry) executorOrNil() *executor.Executor {
	r.execMu.RLock()
	defer r.execMu.RUnlock()
	return r.exec
}

func (r *Registry) lockFor(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

func (r *Registry) get(key string) (*installed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ins, ok := r.routes[key]
	return ins, ok
}

func (r *Registry) set(key string, ins *installed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[key] = ins
}

func (r *Registry) delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes, key)
}

// Deploy validates, compiles, and installs def under its tenant-scoped key,
// snapshotting any prior compiled route so a compile/install failure can
// roll back to it atomically. On success the definition is persisted via
// RouteStore and marked DEPLOYED.
func (r *Registry) Deploy(ctx context.Context, def routemodel.RouteDefinition) error {
	key := def.Key()
	lock := r.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if err := r.compiler.Validate(def); err != nil {
		metrics.RecordCompile(def.TenantID, false)
		return err
	}

	prior, hadPrior := r.get(key)

	compiled, err := r.compiler.Compile(def)
	if err != nil {
		metrics.RecordCompile(def.TenantID, false)
		return err
	}
	metrics.RecordCompile(def.TenantID, true)

	def.Status = routemodel.RouteStatusDeployed
	if err := r.store.Save(ctx, def); err != nil {
		// Roll back to the prior compiled route; deploy never leaves the
		// registry worse off than it found it.
		if hadPrior {
			r.set(key, prior)
		}
		metrics.RecordDeploy(def.TenantID, false)
		return err
	}

	r.set(key, &installed{def: def, compiled: compiled, running: true})
	metrics.RecordDeploy(def.TenantID, true)
	r.log.WithField("route_key", key).Info("route deployed")
	return nil
}

// StartRoute marks an installed route as accepting invocations again.
func (r *Registry) StartRoute(ctx context.Context, tenantID, routeID string) error {
	key := routemodel.Key(tenantID, routeID)
	lock := r.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	ins, ok := r.get(key)
	if !ok {
		return apperrors.RouteNotFound(tenantID, routeID)
	}
	if ins.compiled == nil {
		compiled, err := r.compiler.Compile(ins.def)
		if err != nil {
			return err
		}
		ins.compiled = compiled
	}
	ins.running = true
	ins.def.Status = routemodel.RouteStatusDeployed
	if err := r.store.Save(ctx, ins.def); err != nil {
		// In-memory transition already happened; per spec, a persistence
		// failure here leaves the persisted status unchanged, not the
		// in-memory one, so correct it back.
		ins.running = false
		ins.def.Status = routemodel.RouteStatusStopped
		return err
	}
	return nil
}

// StopRoute marks an installed route as rejecting new invocations. Running
// invocations already in flight are not interrupted; the executor has no
// visibility into this flag.
func (r *Registry) StopRoute(ctx context.Context, tenantID, routeID string) error {
	key := routemodel.Key(tenantID, routeID)
	lock := r.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	ins, ok := r.get(key)
	if !ok {
		return apperrors.RouteNotFound(tenantID, routeID)
	}
	ins.running = false
	ins.def.Status = routemodel.RouteStatusStopped
	if err := r.store.Save(ctx, ins.def); err != nil {
		ins.running = true
		ins.def.Status = routemodel.RouteStatusDeployed
		return err
	}
	return nil
}

// RemoveRoute uninstalls a route from the in-memory index without deleting
// its persisted row (it can be reinstalled by redeploying or reloading).
func (r *Registry) RemoveRoute(tenantID, routeID string) error {
	key := routemodel.Key(tenantID, routeID)
	lock := r.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := r.get(key); !ok {
		return apperrors.RouteNotFound(tenantID, routeID)
	}
	r.delete(key)
	return nil
}

// DeleteRoute is two-phase: remove from memory first, then delete the
// persisted row. If the row delete fails the route is already gone from
// the runtime; callers retry the delete against RouteStore directly.
func (r *Registry) DeleteRoute(ctx context.Context, tenantID, routeID string) error {
	key := routemodel.Key(tenantID, routeID)
	lock := r.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := r.get(key); !ok {
		return apperrors.RouteNotFound(tenantID, routeID)
	}
	r.delete(key)
	return r.store.Delete(ctx, tenantID, routeID)
}

// GetRoute returns the currently installed definition for (tenantID, routeID).
func (r *Registry) GetRoute(tenantID, routeID string) (routemodel.RouteDefinition, error) {
	ins, ok := r.get(routemodel.Key(tenantID, routeID))
	if !ok {
		return routemodel.RouteDefinition{}, apperrors.RouteNotFound(tenantID, routeID)
	}
	return ins.def, nil
}

// ListRoutes returns every installed definition for a tenant, sorted by id.
func (r *Registry) ListRoutes(tenantID string) []routemodel.RouteDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var defs []routemodel.RouteDefinition
	for _, ins := range r.routes {
		if tenantID == "" || ins.def.TenantID == tenantID {
			defs = append(defs, ins.def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// Invoke runs the installed, running route identified by (tenantID,
// routeID) against body/headers.
func (r *Registry) Invoke(ctx context.Context, tenantID, routeID string, body interface{}, headers map[string]string) (*routemodel.Exchange, error) {
	ins, ok := r.get(routemodel.Key(tenantID, routeID))
	if !ok {
		return nil, apperrors.RouteNotFound(tenantID, routeID)
	}
	if !ins.running {
		return nil, apperrors.New(apperrors.CodeRouteNotFound, "route is stopped: "+routeID, 409)
	}
	exec := r.executorOrNil()
	if exec == nil {
		return nil, apperrors.Internal("registry has no executor wired", nil)
	}
	return exec.Invoke(ctx, ins.compiled, body, headers)
}

// InvokeDirect satisfies executor.RouteInvoker, letting a "direct:" endpoint
// URI resolve to another deployed route within the same tenant.
func (r *Registry) InvokeDirect(ctx context.Context, tenantID, name string, ex *routemodel.Exchange) (*routemodel.Exchange, error) {
	return r.Invoke(ctx, tenantID, name, ex.Body, ex.Headers)
}

// Reload reads every persisted route for all tenants from RouteStore and
// installs it into the in-memory index, compiling and activating every row
// whose persisted status is DEPLOYED. Legacy key migration happens inside
// RouteStore.List itself.
func (r *Registry) Reload(ctx context.Context) error {
	defs, err := r.store.List(ctx, "")
	if err != nil {
		return err
	}
	for _, def := range defs {
		ins := &installed{def: def}
		if def.Status == routemodel.RouteStatusDeployed {
			compiled, err := r.compiler.Compile(def)
			if err != nil {
				r.log.WithField("route_key", def.Key()).WithError(err).
					Warn("skipping route on reload: compile failed")
				continue
			}
			ins.compiled = compiled
			ins.running = true
		}
		r.set(def.Key(), ins)
	}
	return nil
}
