// Package plugin implements lla's in-process extension runtime: discovery and
// loading of plugin modules, the version handshake, typed request dispatch
// over the binary protocol, decoration caching, per-plugin health tracking,
// and the validator behind `lla clean`.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/tetratelabs/wazero"

	"github.com/llakit/lla/config"
	"github.com/llakit/lla/protocol"
)

// Version is the host version advertised to plugins in the config push.
const Version = "0.1.0"

// pluginSuffix is the file extension discovery looks for.
const pluginSuffix = ".wasm"

const defaultCallTimeout = 5 * time.Second

var (
	// ErrPluginNotFound is returned when dispatching to a name with no
	// registered plugin.
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrPluginNotEnabled is returned when invoking an action on a plugin
	// that is registered but not enabled.
	ErrPluginNotEnabled = errors.New("plugin not enabled")
	// ErrUnexpectedResponse is returned when a plugin answers a request with
	// the wrong message variant. It is always a protocol error; variants are
	// never coerced.
	ErrUnexpectedResponse = errors.New("unexpected response type")
)

// transport is a loaded plugin's request channel: one call in, raw bytes out.
// Nothing outside this package ever holds one; all interaction goes through
// Manager.SendRequest.
type transport interface {
	Invoke(ctx context.Context, request []byte) ([]byte, error)
	Close(ctx context.Context) error
}

// Manager owns every loaded plugin for the lifetime of the process. Plugins
// are keyed by their protocol-reported name, deduplicated by canonical file
// path, and never unloaded before exit.
type Manager struct {
	ctx     context.Context
	runtime wazero.Runtime
	cfg     *config.Config
	log     *logrus.Logger

	mu          sync.RWMutex
	plugins     map[string]transport
	loadedPaths map[string]struct{}
	enabled     map[string]struct{}
	health      map[string]*Health

	caps        *lru.Cache[string, []string]
	decorations *lru.Cache[decorationKey, map[string]string]

	callTimeout time.Duration

	// Seams for tests; production wiring points these at the wasm engine.
	open  func(path string) (transport, error)
	probe func(ctx context.Context, path string) (transport, error)
}

// NewManager creates a plugin manager backed by a shared wasm runtime. The
// logger may be nil, in which case a default logger is used.
func NewManager(cfg *config.Config, log *logrus.Logger) (*Manager, error) {
	if log == nil {
		log = logrus.New()
	}

	ctx := context.Background()
	runtime, err := newPluginRuntime(ctx, log)
	if err != nil {
		return nil, err
	}

	caps, err := lru.New[string, []string](capabilityCacheSize)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to create capability cache: %w", err)
	}
	decorations, err := lru.New[decorationKey, map[string]string](decorationCacheSize)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to create decoration cache: %w", err)
	}

	enabled := make(map[string]struct{}, len(cfg.EnabledPlugins))
	for _, name := range cfg.EnabledPlugins {
		enabled[name] = struct{}{}
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	m := &Manager{
		ctx:         ctx,
		runtime:     runtime,
		cfg:         cfg,
		log:         log,
		plugins:     make(map[string]transport),
		loadedPaths: make(map[string]struct{}),
		enabled:     enabled,
		health:      make(map[string]*Health),
		caps:        caps,
		decorations: decorations,
		callTimeout: timeout,
	}
	m.open = func(path string) (transport, error) {
		return openWASMPlugin(m.ctx, m.runtime, path, maxResponseLen)
	}
	m.probe = m.probeWASM
	return m, nil
}

// Close releases the wasm runtime and every loaded plugin with it.
func (m *Manager) Close() error {
	return m.runtime.Close(m.ctx)
}

// Load loads the plugin file at path. Loading the same canonical path twice
// is a no-op, as is a plugin whose handshake reports a name that is already
// registered (first registration wins).
//
// A broken plugin file must never abort a listing: open failures, version
// mismatches, and malformed handshakes are logged and swallowed. Only a path
// that cannot be resolved at all is reported as an error.
func (m *Manager) Load(path string) error {
	canonical, err := canonicalPath(path)
	if err != nil {
		return fmt.Errorf("failed to resolve plugin path %s: %w", path, err)
	}

	m.mu.RLock()
	_, loaded := m.loadedPaths[canonical]
	m.mu.RUnlock()
	if loaded {
		return nil
	}

	t, err := m.open(canonical)
	if err != nil {
		if errors.Is(err, errVersionMismatch) {
			m.log.Warnf("plugin version mismatch for %s: %v; run `lla clean` to remove invalid plugins", path, err)
		} else {
			m.log.Warnf("failed to load plugin %s: %v", path, err)
		}
		return nil
	}

	name, err := m.handshakeName(t)
	if err != nil {
		m.log.Warnf("failed to get plugin name for %s: %v", path, err)
		_ = t.Close(m.ctx)
		return nil
	}

	m.mu.Lock()
	if _, exists := m.plugins[name]; exists {
		m.mu.Unlock()
		_ = t.Close(m.ctx)
		return nil
	}
	m.plugins[name] = t
	m.loadedPaths[canonical] = struct{}{}
	m.health[name] = &Health{IsHealthy: true}
	m.mu.Unlock()

	m.sendConfig(name)
	return nil
}

// Discover loads every plugin file in dir, creating the directory first when
// it does not exist. Individual load failures never stop discovery.
func (m *Manager) Discover(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create plugin directory %s: %w", dir, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read plugin directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), pluginSuffix) {
			continue
		}
		if err := m.Load(filepath.Join(dir, entry.Name())); err != nil {
			m.log.Warnf("failed to load plugin %s: %v", entry.Name(), err)
		}
	}
	return nil
}

// SendRequest encodes the request, invokes the plugin's handler, and decodes
// the response. This is the single choke point for cross-boundary calls:
// every outcome updates the plugin's health record.
func (m *Manager) SendRequest(name string, msg protocol.Message) (protocol.Message, error) {
	m.mu.RLock()
	t, ok := m.plugins[name]
	m.mu.RUnlock()
	if !ok {
		m.recordError(name, fmt.Sprintf("plugin %q not found", name))
		return protocol.Message{}, fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.callTimeout)
	defer cancel()

	out, err := t.Invoke(ctx, protocol.Encode(msg))
	if err != nil {
		m.recordError(name, fmt.Sprintf("request failed: %v", err))
		return protocol.Message{}, fmt.Errorf("plugin %q request failed: %w", name, err)
	}

	resp, err := protocol.Decode(out)
	if err != nil {
		m.recordError(name, fmt.Sprintf("failed to decode response: %v", err))
		return protocol.Message{}, fmt.Errorf("plugin %q: %w", name, err)
	}

	m.markHealthy(name)
	return resp, nil
}

// handshakeName queries an unregistered transport for its protocol-reported
// name. Shared by Load and the validator.
func (m *Manager) handshakeName(t transport) (string, error) {
	ctx, cancel := context.WithTimeout(m.ctx, m.callTimeout)
	defer cancel()

	out, err := t.Invoke(ctx, protocol.Encode(protocol.Message{Body: protocol.GetNameRequest{}}))
	if err != nil {
		return "", err
	}
	resp, err := protocol.Decode(out)
	if err != nil {
		return "", err
	}
	nr, ok := resp.Body.(protocol.NameResponse)
	if !ok {
		return "", ErrUnexpectedResponse
	}
	if nr.Name == "" {
		return "", errors.New("plugin reported an empty name")
	}
	return nr.Name, nil
}

// sendConfig pushes the one-shot config message to a freshly loaded plugin.
// The response, if any, is discarded.
func (m *Manager) sendConfig(name string) {
	cfgMap := map[string]string{
		"version":        Version,
		"api_version":    strconv.FormatUint(uint64(protocol.CurrentVersion), 10),
		"theme":          m.cfg.Theme,
		"default_format": m.cfg.DefaultFormat,
		"show_icons":     strconv.FormatBool(m.cfg.ShowIcons),
	}

	shortcuts := make([]string, 0, len(m.cfg.Shortcuts))
	for key, sc := range m.cfg.Shortcuts {
		shortcuts = append(shortcuts, key+":"+sc.Action)
	}
	sort.Strings(shortcuts)

	_, _ = m.SendRequest(name, protocol.Message{Body: protocol.ConfigRequest{
		Config:    cfgMap,
		Theme:     m.cfg.Theme,
		Shortcuts: shortcuts,
	}})
}

// PerformPluginAction invokes a named action on an enabled plugin. A
// success=false response surfaces the plugin's error message verbatim.
func (m *Manager) PerformPluginAction(name, action string, args []string) error {
	if !m.IsEnabled(name) {
		return fmt.Errorf("plugin %q: %w", name, ErrPluginNotEnabled)
	}

	resp, err := m.SendRequest(name, protocol.Message{Body: protocol.ActionRequest{
		Action: action,
		Args:   args,
	}})
	if err != nil {
		return err
	}

	ar, ok := resp.Body.(protocol.ActionResponse)
	if !ok {
		return fmt.Errorf("plugin %q: %w", name, ErrUnexpectedResponse)
	}
	if !ar.Success {
		if ar.Error != nil {
			return errors.New(*ar.Error)
		}
		return errors.New("unknown error")
	}
	return nil
}

// AvailableActions asks a plugin to enumerate its actions.
func (m *Manager) AvailableActions(name string) ([]protocol.ActionInfo, error) {
	resp, err := m.SendRequest(name, protocol.Message{Body: protocol.GetAvailableActionsRequest{}})
	if err != nil {
		return nil, err
	}
	aa, ok := resp.Body.(protocol.AvailableActionsResponse)
	if !ok {
		return nil, fmt.Errorf("plugin %q: %w", name, ErrUnexpectedResponse)
	}
	return aa.Actions, nil
}

// PluginInfo is one row of `lla list-plugins`.
type PluginInfo struct {
	Name        string
	Version     string
	Description string
	Enabled     bool
	Health      Health
}

// ListPlugins queries every registered plugin for its metadata, in name
// order. A plugin that fails any of the three lookups is skipped; its health
// record keeps the failure.
func (m *Manager) ListPlugins() []PluginInfo {
	names := m.registeredNames()

	var result []PluginInfo
	for _, name := range names {
		reported, err := m.queryString(name, protocol.GetNameRequest{})
		if err != nil {
			continue
		}
		version, err := m.queryString(name, protocol.GetVersionRequest{})
		if err != nil {
			continue
		}
		description, err := m.queryString(name, protocol.GetDescriptionRequest{})
		if err != nil {
			continue
		}
		result = append(result, PluginInfo{
			Name:        reported,
			Version:     version,
			Description: description,
			Enabled:     m.IsEnabled(name),
			Health:      m.HealthFor(name),
		})
	}
	return result
}

func (m *Manager) queryString(name string, req protocol.Body) (string, error) {
	resp, err := m.SendRequest(name, protocol.Message{Body: req})
	if err != nil {
		return "", err
	}
	switch v := resp.Body.(type) {
	case protocol.NameResponse:
		if _, ok := req.(protocol.GetNameRequest); ok {
			return v.Name, nil
		}
	case protocol.VersionResponse:
		if _, ok := req.(protocol.GetVersionRequest); ok {
			return v.Version, nil
		}
	case protocol.DescriptionResponse:
		if _, ok := req.(protocol.GetDescriptionRequest); ok {
			return v.Description, nil
		}
	}
	return "", fmt.Errorf("plugin %q: %w", name, ErrUnexpectedResponse)
}

// EnablePlugin adds a registered plugin to the enabled set and persists the
// change through the configuration.
func (m *Manager) EnablePlugin(name string) error {
	m.mu.Lock()
	if _, ok := m.plugins[name]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}
	m.enabled[name] = struct{}{}
	m.mu.Unlock()
	return m.cfg.EnablePlugin(name)
}

// DisablePlugin removes a registered plugin from the enabled set and
// persists the change.
func (m *Manager) DisablePlugin(name string) error {
	m.mu.Lock()
	if _, ok := m.plugins[name]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}
	delete(m.enabled, name)
	m.mu.Unlock()
	return m.cfg.DisablePlugin(name)
}

// IsEnabled reports whether the named plugin is currently enabled.
func (m *Manager) IsEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.enabled[name]
	return ok
}

// EnabledPlugins returns the enabled set sorted by name. The sorted order is
// also the merge order for decoration fields: when two plugins emit the same
// key, the lexicographically later name wins.
func (m *Manager) EnabledPlugins() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.enabled))
	for name := range m.enabled {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (m *Manager) registeredNames() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (m *Manager) enabledCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.enabled)
}

// canonicalPath resolves path to an absolute, symlink-free form so the same
// plugin file is never loaded twice under different spellings.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
