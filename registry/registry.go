package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/interopmesh/core"
	"github.com/hupe1980/interopmesh/logging"
)

// Export opts one Go method of a module in to cross-boundary invocation.
type Export struct {
	// Method is the Go method name.
	Method string
	// ID is an alternate identifier; empty means Method.
	ID string
}

// Exporter is implemented by modules and by instance types whose methods can
// be invoked across the boundary.
type Exporter interface {
	Invokable() []Export
}

// Options configures a Registry.
type Options struct {
	// Logger receives build diagnostics. Defaults to NoOp logger if nil.
	Logger logging.Logger
}

// module is a loaded module: a name, an optional Exporter value and any
// functions registered explicitly under its name.
type module struct {
	key   core.ModuleKey
	value any
	funcs []registeredFunc
	// sealed is set when the table build takes its snapshot of funcs.
	sealed bool
}

type registeredFunc struct {
	id string
	fn any
}

// methodTable is the built identifier map of a module or instance type. A
// non-nil err is a fatal configuration error reported on every use.
type methodTable struct {
	owner   any
	methods map[string]*Method
	err     error
}

// Registry resolves (module, identifier) pairs to methods. Modules are
// matched by name against loaded modules only, in load order; when two
// loaded modules share a name the first one wins. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	modules []*module

	tables sync.Map // *module | reflect.Type -> *methodTable
	group  singleflight.Group

	logger logging.Logger
}

// New creates an empty Registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{logger: logging.Scoped(opts.Logger, "registry", "")}
}

// AddModule loads a module under name. When value implements Exporter its
// opted-in methods become invokable; their identifiers are checked when the
// module is first used.
func (r *Registry) AddModule(name string, value any) error {
	if name == "" {
		return fmt.Errorf("module name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.findLocked(name); existing != nil {
		r.logger.Warn("registry.module.shadowed", "module", name)
	}
	r.modules = append(r.modules, &module{
		key:   core.ModuleKey{Name: name, Identity: value},
		value: value,
	})
	return nil
}

// Register adds fn as an invokable function of the module moduleID, loading
// the module by name if necessary. A module's table is built once, at its
// first use; registering into a module after that fails with
// core.ErrRegistrationClosed.
func (r *Registry) Register(moduleID, methodID string, fn any) error {
	if moduleID == "" || methodID == "" {
		return fmt.Errorf("module and method identifiers must not be empty")
	}
	if fn == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
		return core.Errorf(core.ErrInvalidSignature, "invokable '%s' in module '%s' is not a function", methodID, moduleID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	mod := r.findLocked(moduleID)
	if mod == nil {
		mod = &module{key: core.NameKey(moduleID)}
		r.modules = append(r.modules, mod)
	}
	if mod.sealed {
		return core.Errorf(core.ErrRegistrationClosed,
			"cannot register '%s': the module '%s' has already been built", methodID, mod.key)
	}
	mod.funcs = append(mod.funcs, registeredFunc{id: methodID, fn: fn})
	return nil
}

// Resolve returns the method registered as identifier in the module named
// moduleID. Repeated calls return the identical *Method.
func (r *Registry) Resolve(moduleID, identifier string) (*Method, error) {
	tbl, err := r.moduleTable(moduleID)
	if err != nil {
		return nil, err
	}
	m, ok := tbl.methods[identifier]
	if !ok {
		return nil, core.Errorf(core.ErrNotFound, "the module '%s' does not contain an invokable method with identifier '%s'", moduleID, identifier)
	}
	return m, nil
}

// ResolveInstance returns the instance method registered as identifier on
// the dynamic type of target. The type must implement Exporter.
func (r *Registry) ResolveInstance(target any, identifier string) (*Method, error) {
	if target == nil {
		return nil, core.Errorf(core.ErrNotFound, "cannot resolve '%s' on a nil target", identifier)
	}
	t := reflect.TypeOf(target)

	tbl, err := r.typeTable(t, target)
	if err != nil {
		return nil, err
	}
	m, ok := tbl.methods[identifier]
	if !ok {
		return nil, core.Errorf(core.ErrNotFound, "the type '%s' does not contain an invokable method with identifier '%s'", core.TypeName(t), identifier)
	}
	return m, nil
}

// Identifiers returns the sorted identifiers of a module.
func (r *Registry) Identifiers(moduleID string) ([]string, error) {
	tbl, err := r.moduleTable(moduleID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(tbl.methods))
	for id := range tbl.methods {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Modules returns the names of the loaded modules in load order.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for _, m := range r.modules {
		names = append(names, m.key.Name)
	}
	return names
}

func (r *Registry) findLocked(name string) *module {
	key := core.NameKey(name)
	for _, m := range r.modules {
		if m.key.Equal(key) {
			return m
		}
	}
	return nil
}

func (r *Registry) moduleTable(moduleID string) (*methodTable, error) {
	r.mu.RLock()
	mod := r.findLocked(moduleID)
	r.mu.RUnlock()
	if mod == nil {
		return nil, core.Errorf(core.ErrNotFound, "no loaded module with the name '%s'", moduleID)
	}

	if cached, ok := r.tables.Load(mod); ok {
		tbl := cached.(*methodTable)
		return tbl, tbl.err
	}

	v, _, _ := r.group.Do(fmt.Sprintf("module:%p", mod), func() (any, error) {
		if cached, ok := r.tables.Load(mod); ok {
			return cached, nil
		}
		tbl := r.buildModule(mod)
		r.tables.Store(mod, tbl)
		return tbl, nil
	})
	tbl := v.(*methodTable)
	return tbl, tbl.err
}

func (r *Registry) typeTable(t reflect.Type, target any) (*methodTable, error) {
	if cached, ok := r.tables.Load(t); ok {
		tbl := cached.(*methodTable)
		return tbl, tbl.err
	}

	v, _, _ := r.group.Do("type:"+t.String(), func() (any, error) {
		if cached, ok := r.tables.Load(t); ok {
			return cached, nil
		}
		tbl := r.buildType(t, target)
		r.tables.Store(t, tbl)
		return tbl, nil
	})
	tbl := v.(*methodTable)
	if tbl.owner != t {
		// Two distinct types rendered to the same name shared a flight.
		tbl = r.buildType(t, target)
		actual, _ := r.tables.LoadOrStore(t, tbl)
		tbl = actual.(*methodTable)
	}
	return tbl, tbl.err
}

func (r *Registry) buildModule(mod *module) *methodTable {
	r.mu.Lock()
	mod.sealed = true
	funcs := append([]registeredFunc(nil), mod.funcs...)
	r.mu.Unlock()

	tbl := &methodTable{owner: mod, methods: make(map[string]*Method)}

	if exp, ok := mod.value.(Exporter); ok {
		rv := reflect.ValueOf(mod.value)
		for _, e := range exp.Invokable() {
			id := e.ID
			if id == "" {
				id = e.Method
			}
			fn := rv.MethodByName(e.Method)
			if !fn.IsValid() {
				tbl.err = core.Errorf(core.ErrInvalidSignature, "module '%s' has no exported method '%s'", mod.key, e.Method)
				break
			}
			if tbl.err = r.add(tbl, mod.key, id, e.Method, fn, false); tbl.err != nil {
				break
			}
		}
	}

	if tbl.err == nil {
		for _, f := range funcs {
			if tbl.err = r.add(tbl, mod.key, f.id, f.id, reflect.ValueOf(f.fn), false); tbl.err != nil {
				break
			}
		}
	}

	r.logBuild(mod.key.String(), tbl)
	return tbl
}

func (r *Registry) buildType(t reflect.Type, target any) *methodTable {
	tbl := &methodTable{owner: t, methods: make(map[string]*Method)}
	key := core.ModuleKey{Name: core.TypeName(t), Identity: t}

	exp, ok := target.(Exporter)
	if !ok {
		tbl.err = core.Errorf(core.ErrNotFound, "the type '%s' does not expose invokable methods", core.TypeName(t))
		r.logBuild(key.Name, tbl)
		return tbl
	}

	for _, e := range exp.Invokable() {
		id := e.ID
		if id == "" {
			id = e.Method
		}
		m, found := t.MethodByName(e.Method)
		if !found {
			tbl.err = core.Errorf(core.ErrInvalidSignature, "type '%s' has no exported method '%s'", key.Name, e.Method)
			break
		}
		if tbl.err = r.add(tbl, key, id, e.Method, m.Func, true); tbl.err != nil {
			break
		}
	}

	r.logBuild(key.Name, tbl)
	return tbl
}

func (r *Registry) add(tbl *methodTable, key core.ModuleKey, id, name string, fn reflect.Value, instance bool) error {
	if _, dup := tbl.methods[id]; dup {
		return core.Errorf(core.ErrDuplicateRegistration,
			"the module '%s' contains more than one invokable method with identifier '%s'; identifiers must be unique within a module", key, id)
	}
	m, err := newMethod(key, id, name, fn, instance)
	if err != nil {
		return err
	}
	tbl.methods[id] = m
	return nil
}

func (r *Registry) logBuild(name string, tbl *methodTable) {
	if tbl.err != nil {
		r.logger.Error("registry.module.invalid", "module", name, "error", tbl.err)
		return
	}
	r.logger.Debug("registry.module.built", "module", name, "methods", len(tbl.methods))
}
