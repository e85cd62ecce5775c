// Package mirror attaches to a process embedding a Mono runtime and gives
// access to the metadata of one of its assemblies.
//
// A Mirror holds one session with the target: the process handle, the
// memory view with its page cache, the export resolver and the loaded
// image. Sessions are opened lazily and dropped by Clean; Query wraps a
// read in the retry policy that copes with the target mutating memory
// underneath the reader.
package mirror

import (
	"errors"
	"fmt"
	"sync"

	"github.com/monomirror/monomirror/pkg/logflags"
	"github.com/monomirror/monomirror/pkg/mono"
	"github.com/monomirror/monomirror/pkg/pe"
	"github.com/monomirror/monomirror/pkg/proc"
)

// Default settings of a Mirror.
const (
	DefaultProcessName      = "Hearthstone"
	DefaultAssemblyName     = "Assembly-CSharp"
	DefaultRootDomainExport = "mono_get_root_domain"
)

// Config describes the target of a Mirror.
type Config struct {
	// ProcessName is the image name of the target, without ".exe".
	ProcessName string
	// AssemblyName is the assembly whose image Root returns.
	AssemblyName string
	// RootDomainExport is the module export used to find the root domain.
	RootDomainExport string
	// ExportIndirect means the export is a pointer to the accessor rather
	// than the accessor itself.
	ExportIndirect bool
	// CachePages is the capacity of the page cache.
	CachePages int
	// Offsets is the structure layout of the runtime.
	Offsets mono.Offsets

	// Attach opens the target process. Defaults to proc.FindProcess.
	Attach func(name string) (proc.Process, error)
}

// DefaultConfig returns the configuration for the Hearthstone client.
func DefaultConfig() Config {
	return Config{
		ProcessName:      DefaultProcessName,
		AssemblyName:     DefaultAssemblyName,
		RootDomainExport: DefaultRootDomainExport,
		ExportIndirect:   true,
		CachePages:       proc.DefaultCachePages,
		Offsets:          mono.DefaultOffsets(),
	}
}

// Mirror is a reading session with a target process. It is safe for
// concurrent use.
type Mirror struct {
	cfg Config
	log logflags.Logger

	mu       sync.Mutex
	process  proc.Process
	view     *proc.View
	rt       *mono.Runtime
	resolver *pe.Resolver
	image    *mono.Image
}

// New returns a Mirror for cfg. Nothing is attached until the first read.
func New(cfg Config) *Mirror {
	def := DefaultConfig()
	if cfg.ProcessName == "" {
		cfg.ProcessName = def.ProcessName
	}
	if cfg.AssemblyName == "" {
		cfg.AssemblyName = def.AssemblyName
	}
	if cfg.RootDomainExport == "" {
		cfg.RootDomainExport = def.RootDomainExport
	}
	if cfg.Attach == nil {
		cfg.Attach = proc.FindProcess
	}
	return &Mirror{cfg: cfg, log: logflags.MirrorLogger()}
}

// Config returns the configuration of m.
func (m *Mirror) Config() Config {
	return m.cfg
}

// Active reports whether m is attached to a process.
func (m *Mirror) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.process != nil
}

// Pid returns the process id of the target, or 0 when not attached.
func (m *Mirror) Pid() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.process == nil {
		return 0
	}
	return m.process.Pid()
}

func (m *Mirror) attachLocked() error {
	if m.process != nil {
		return nil
	}
	p, err := m.cfg.Attach(m.cfg.ProcessName)
	if err != nil {
		return err
	}
	m.process = p
	m.view = proc.NewView(p, m.cfg.CachePages)
	m.rt = mono.NewRuntime(m.view, m.cfg.Offsets)
	m.log.WithPid(p.Pid()).Debugf("attached to %s", m.cfg.ProcessName)
	return nil
}

// View returns the memory view of the target, attaching if needed.
func (m *Mirror) View() (*proc.View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.attachLocked(); err != nil {
		return nil, err
	}
	return m.view, nil
}

func (m *Mirror) resolverLocked() (*pe.Resolver, error) {
	if m.resolver != nil {
		return m.resolver, nil
	}
	if err := m.attachLocked(); err != nil {
		return nil, err
	}
	base, size := m.process.MainModule()
	image, err := m.view.Snapshot(base, size)
	if err != nil {
		return nil, err
	}
	r, err := pe.New(image, base)
	if err != nil {
		return nil, err
	}
	if logflags.PE() {
		logflags.PELogger().WithAddr("module", base).Debugf("%#x bytes mapped, %d exports", size, len(r.Exports()))
	}
	m.resolver = r
	return r, nil
}

// Resolver returns the export resolver of the target main module.
func (m *Mirror) Resolver() (*pe.Resolver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolverLocked()
}

func (m *Mirror) domainLocked() (uint64, error) {
	r, err := m.resolverLocked()
	if err != nil {
		return 0, err
	}
	return rootDomain(m.view, r, m.cfg.RootDomainExport, m.cfg.ExportIndirect)
}

// Root returns the image of the configured assembly. The class index is
// built on first use and kept until Clean.
func (m *Mirror) Root() (*mono.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.image != nil {
		return m.image, nil
	}
	domain, err := m.domainLocked()
	if err != nil {
		return nil, err
	}
	addr, err := findAssembly(m.view, m.cfg.Offsets, domain, m.cfg.AssemblyName)
	if err != nil {
		return nil, err
	}
	image, err := m.rt.LoadImage(addr)
	if err != nil {
		return nil, fmt.Errorf("loading image of %s: %w", m.cfg.AssemblyName, err)
	}
	m.image = image
	return image, nil
}

// Assemblies returns the names of the assemblies loaded in the root
// domain, in load order.
func (m *Mirror) Assemblies() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	domain, err := m.domainLocked()
	if err != nil {
		return nil, err
	}
	var names []string
	err = walkAssemblies(m.view, m.cfg.Offsets, domain, func(a assembly) bool {
		names = append(names, a.name)
		return true
	})
	return names, err
}

// ClearCache drops every cached page so the next read sees current target
// memory.
func (m *Mirror) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.view != nil {
		m.view.ClearCache()
	}
}

// Clean ends the session. The next read attaches again.
func (m *Mirror) Clean() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanLocked()
}

func (m *Mirror) cleanLocked() error {
	var err error
	if m.process != nil {
		err = m.process.Close()
	}
	m.process = nil
	m.view = nil
	m.rt = nil
	m.resolver = nil
	m.image = nil
	return err
}

// Close ends the session and reports any error releasing the process.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanLocked()
}

// isFatal reports whether err can not go away by attaching again.
func isFatal(err error) bool {
	var pnf *proc.ProcessNotFoundError
	var arch *pe.ArchitectureError
	return errors.As(err, &pnf) || errors.As(err, &arch) || errors.Is(err, proc.ErrUnsupportedPlatform)
}

// Query runs fn against the root image of m.
//
// The page cache is cleared first so that fn sees current memory. If
// loading the image or fn fails, by error or by panic, the session is
// dropped and the whole query runs once more; a second failure returns the
// zero value of T and a nil error, as a missing value. Failures that a new
// session can not fix, such as the process not running, are returned.
func Query[T any](m *Mirror, fn func(*mono.Image) (T, error)) (T, error) {
	var zero T
	m.ClearCache()
	v, err := runQuery(m, fn)
	if err == nil {
		return v, nil
	}
	if isFatal(err) {
		return zero, err
	}
	m.log.WithError(err).Debug("query failed, retrying with a new session")
	m.Clean()
	v, err = runQuery(m, fn)
	if err == nil {
		return v, nil
	}
	if isFatal(err) {
		return zero, err
	}
	m.log.WithError(err).Warn("query failed twice")
	return zero, nil
}

func runQuery[T any](m *Mirror, fn func(*mono.Image) (T, error)) (v T, err error) {
	defer func() {
		if ierr := recover(); ierr != nil {
			var zero T
			v, err = zero, fmt.Errorf("query panicked: %v", ierr)
		}
	}()
	image, err := m.Root()
	if err != nil {
		return v, err
	}
	return fn(image)
}
