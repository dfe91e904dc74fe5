// Package interopmesh provides a high-level façade over the method registry
// and per-session dispatchers of a cross-runtime invocation bridge. Most
// applications interact with this package by:
//  1. Creating an InteropMesh via New() (optionally overriding the default configuration)
//  2. Loading modules whose methods the other runtime may call (AddModule, Register)
//  3. Connecting a Host per peer and routing its inbound calls to the returned session
//
// The registry is shared by every session; reference tables and pending
// outbound calls are per session and released on Disconnect.
package interopmesh

import (
	"github.com/hupe1980/interopmesh/config"
	"github.com/hupe1980/interopmesh/dispatch"
	"github.com/hupe1980/interopmesh/logging"
	"github.com/hupe1980/interopmesh/registry"
	"github.com/hupe1980/interopmesh/session"
)

// Options configures the InteropMesh instance.
type Options struct {
	// Config holds handle key, outbound timeout and logging settings.
	// Defaults to config.Default(). Its log settings build the logger when
	// Logger is nil.
	Config config.Config

	// Registry is shared by all sessions; a fresh one is created if nil.
	Registry *registry.Registry

	// Logger overrides the logger built from Config. Use logging.NoOpLogger{}
	// to silence logging.
	Logger logging.Logger
}

// InteropMesh aggregates the method registry and the open sessions.
type InteropMesh struct {
	opts     Options
	registry *registry.Registry
	sessions *session.Manager
}

// New creates a new InteropMesh instance with optional overrides.
func New(optFns ...func(o *Options)) (*InteropMesh, error) {
	opts := Options{
		Config: config.Default(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = opts.Config.NewLogger()
	}
	if opts.Registry == nil {
		opts.Registry = registry.New(func(o *registry.Options) { o.Logger = opts.Logger })
	}

	m := &InteropMesh{opts: opts, registry: opts.Registry}
	m.sessions = session.NewManager(m.newDispatcher, func(o *session.Options) { o.Logger = opts.Logger })
	return m, nil
}

// Registry returns the shared method registry.
func (m *InteropMesh) Registry() *registry.Registry { return m.registry }

// AddModule loads a module whose exported methods become invokable.
func (m *InteropMesh) AddModule(name string, module any) error {
	return m.registry.AddModule(name, module)
}

// Register adds a single function to the module moduleID.
func (m *InteropMesh) Register(moduleID, methodID string, fn any) error {
	return m.registry.Register(moduleID, methodID, fn)
}

// Connect opens a session for host.
func (m *InteropMesh) Connect(host dispatch.Host) (*session.Session, error) {
	return m.sessions.Open(host)
}

// Session returns the open session with the given id.
func (m *InteropMesh) Session(id string) (*session.Session, error) {
	return m.sessions.Get(id)
}

// Disconnect closes the session with the given id.
func (m *InteropMesh) Disconnect(id string) error { return m.sessions.Close(id) }

// Close disconnects every session.
func (m *InteropMesh) Close() error { return m.sessions.CloseAll() }

func (m *InteropMesh) newDispatcher(id string, host dispatch.Host) *dispatch.Dispatcher {
	return dispatch.New(m.registry, host, func(o *dispatch.Options) {
		o.HandleKey = m.opts.Config.HandleKey
		o.CallTimeout = m.opts.Config.CallTimeout
		o.SessionID = id
		o.Logger = m.opts.Logger
	})
}
