package plugin

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llakit/lla/config"
	"github.com/llakit/lla/protocol"
)

// fakePlugin is a scripted transport standing in for a loaded wasm module.
type fakePlugin struct {
	name        string
	version     string
	description string
	formats     []string
	fields      map[string]string // custom fields contributed per Decorate
	field       string            // inline string returned by FormatField, "" for none
	actions     []protocol.ActionInfo
	actionErr   string // "" means actions succeed

	supportsBatch bool
	failFormats   bool // answer GetSupportedFormats with garbage
	garbage       bool // answer everything with garbage

	calls      map[string]int
	lastConfig *protocol.ConfigRequest
	closed     bool
}

func newFakePlugin(name string, formats ...string) *fakePlugin {
	return &fakePlugin{
		name:        name,
		version:     "1.0.0",
		description: name + " plugin",
		formats:     formats,
		calls:       make(map[string]int),
	}
}

func enc(body protocol.Body) []byte {
	return protocol.Encode(protocol.Message{Body: body})
}

func (f *fakePlugin) Invoke(_ context.Context, request []byte) ([]byte, error) {
	msg, err := protocol.Decode(request)
	if err != nil {
		return nil, err
	}
	if f.garbage {
		return []byte{0xFF, 0xFE}, nil
	}

	switch body := msg.Body.(type) {
	case protocol.GetNameRequest:
		f.calls["get_name"]++
		return enc(protocol.NameResponse{Name: f.name}), nil
	case protocol.GetVersionRequest:
		f.calls["get_version"]++
		return enc(protocol.VersionResponse{Version: f.version}), nil
	case protocol.GetDescriptionRequest:
		f.calls["get_description"]++
		return enc(protocol.DescriptionResponse{Description: f.description}), nil
	case protocol.GetSupportedFormatsRequest:
		f.calls["get_supported_formats"]++
		if f.failFormats {
			return []byte{0xFF, 0xFE}, nil
		}
		return enc(protocol.FormatsResponse{Formats: f.formats}), nil
	case protocol.DecorateRequest:
		f.calls["decorate"]++
		return enc(protocol.DecoratedResponse{Entry: protocol.DecoratedEntry{
			Path:         body.Entry.Path,
			CustomFields: f.fields,
		}}), nil
	case protocol.BatchDecorateRequest:
		f.calls["batch_decorate"]++
		if !f.supportsBatch {
			// A plugin without batch support answers with some other variant.
			return enc(protocol.NameResponse{Name: f.name}), nil
		}
		out := make([]protocol.DecoratedEntry, len(body.Entries))
		for i, e := range body.Entries {
			out[i] = protocol.DecoratedEntry{Path: e.Path, CustomFields: f.fields}
		}
		return enc(protocol.BatchDecoratedResponse{Entries: out}), nil
	case protocol.FormatFieldRequest:
		f.calls["format_field"]++
		resp := protocol.FieldResponse{}
		if f.field != "" {
			field := f.field
			resp.Field = &field
		}
		return enc(resp), nil
	case protocol.ActionRequest:
		f.calls["action"]++
		if f.actionErr != "" {
			msg := f.actionErr
			return enc(protocol.ActionResponse{Success: false, Error: &msg}), nil
		}
		return enc(protocol.ActionResponse{Success: true}), nil
	case protocol.ConfigRequest:
		f.calls["config"]++
		f.lastConfig = &body
		return nil, nil
	case protocol.GetAvailableActionsRequest:
		f.calls["get_available_actions"]++
		return enc(protocol.AvailableActionsResponse{Actions: f.actions}), nil
	}
	return nil, fmt.Errorf("fake plugin: unhandled request %T", msg.Body)
}

func (f *fakePlugin) Close(context.Context) error {
	f.closed = true
	return nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestManager(t *testing.T) (*Manager, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	cfg.PluginsDir = filepath.Join(dir, "plugins")

	m, err := NewManager(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, cfg
}

// installFakes points the manager's open seam at scripted transports keyed
// by plugin file name. opens counts open attempts per file name.
func installFakes(m *Manager, fakes map[string]transport, errs map[string]error, opens map[string]int) {
	m.open = func(path string) (transport, error) {
		base := filepath.Base(path)
		if opens != nil {
			opens[base]++
		}
		if err, ok := errs[base]; ok {
			return nil, err
		}
		if t, ok := fakes[base]; ok {
			return t, nil
		}
		return nil, fmt.Errorf("no fake registered for %s", base)
	}
}

// writePluginFile creates a placeholder plugin file so path canonicalization
// has something real to resolve.
func writePluginFile(t *testing.T, dir, name string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("\x00asm placeholder"), 0o644))
	return path
}

func TestLoadRegistersPluginAndPushesConfig(t *testing.T) {
	m, cfg := newTestManager(t)
	cfg.Theme = "dark"
	cfg.DefaultFormat = "long"
	cfg.Shortcuts = map[string]config.Shortcut{"gs": {Action: "status"}}

	alpha := newFakePlugin("alpha", "long")
	installFakes(m, map[string]transport{"alpha.wasm": alpha}, nil, nil)
	path := writePluginFile(t, cfg.PluginsDir, "alpha.wasm")

	require.NoError(t, m.Load(path))

	require.Equal(t, []string{"alpha"}, m.registeredNames())
	assert.True(t, m.HealthFor("alpha").IsHealthy)

	require.NotNil(t, alpha.lastConfig)
	assert.Equal(t, "dark", alpha.lastConfig.Theme)
	assert.Equal(t, "1", alpha.lastConfig.Config["api_version"])
	assert.Equal(t, Version, alpha.lastConfig.Config["version"])
	assert.Equal(t, "long", alpha.lastConfig.Config["default_format"])
	assert.Equal(t, []string{"gs:status"}, alpha.lastConfig.Shortcuts)
}

func TestLoadIsIdempotentByCanonicalPath(t *testing.T) {
	m, cfg := newTestManager(t)

	alpha := newFakePlugin("alpha")
	opens := make(map[string]int)
	installFakes(m, map[string]transport{"alpha.wasm": alpha}, nil, opens)
	path := writePluginFile(t, cfg.PluginsDir, "alpha.wasm")

	require.NoError(t, m.Load(path))
	require.NoError(t, m.Load(path))

	assert.Equal(t, 1, opens["alpha.wasm"])
	assert.Equal(t, []string{"alpha"}, m.registeredNames())
}

func TestLoadDuplicateNameFirstRegisteredWins(t *testing.T) {
	m, cfg := newTestManager(t)

	first := newFakePlugin("alpha")
	second := newFakePlugin("alpha")
	installFakes(m, map[string]transport{
		"alpha.wasm": first,
		"other.wasm": second,
	}, nil, nil)
	pathA := writePluginFile(t, cfg.PluginsDir, "alpha.wasm")
	pathB := writePluginFile(t, cfg.PluginsDir, "other.wasm")

	require.NoError(t, m.Load(pathA))
	require.NoError(t, m.Load(pathB))

	assert.Equal(t, []string{"alpha"}, m.registeredNames())
	assert.True(t, second.closed, "losing duplicate must be closed")
	assert.False(t, first.closed)
}

func TestLoadVersionMismatchNeverRegisters(t *testing.T) {
	m, cfg := newTestManager(t)

	installFakes(m, nil, map[string]error{
		"beta.wasm": fmt.Errorf("%w: expected %d, got 999", errVersionMismatch, protocol.CurrentVersion),
	}, nil)
	path := writePluginFile(t, cfg.PluginsDir, "beta.wasm")

	require.NoError(t, m.Load(path))
	assert.Empty(t, m.registeredNames())
}

func TestLoadMalformedHandshakeLeavesPluginUnregistered(t *testing.T) {
	m, cfg := newTestManager(t)

	broken := newFakePlugin("broken")
	broken.garbage = true
	installFakes(m, map[string]transport{"broken.wasm": broken}, nil, nil)
	path := writePluginFile(t, cfg.PluginsDir, "broken.wasm")

	require.NoError(t, m.Load(path))
	assert.Empty(t, m.registeredNames())
	assert.True(t, broken.closed)
}

// A file that is not wasm at all goes through the real engine and is
// skipped without aborting anything.
func TestLoadGarbageFileIsNonFatal(t *testing.T) {
	m, cfg := newTestManager(t)
	path := writePluginFile(t, cfg.PluginsDir, "garbage.wasm")

	require.NoError(t, m.Load(path))
	assert.Empty(t, m.registeredNames())
}

func TestSendRequestUnknownPlugin(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.SendRequest("ghost", protocol.Message{Body: protocol.GetNameRequest{}})
	require.ErrorIs(t, err, ErrPluginNotFound)

	h := m.HealthFor("ghost")
	assert.False(t, h.IsHealthy)
	assert.Contains(t, h.LastError, "not found")
	assert.NotZero(t, h.LastErrorTime)
}

func TestHealthRecoversAfterSuccessfulDispatch(t *testing.T) {
	m, cfg := newTestManager(t)

	alpha := newFakePlugin("alpha")
	installFakes(m, map[string]transport{"alpha.wasm": alpha}, nil, nil)
	require.NoError(t, m.Load(writePluginFile(t, cfg.PluginsDir, "alpha.wasm")))

	alpha.garbage = true
	_, err := m.SendRequest("alpha", protocol.Message{Body: protocol.GetVersionRequest{}})
	require.Error(t, err)
	h := m.HealthFor("alpha")
	require.False(t, h.IsHealthy)
	require.Contains(t, h.LastError, "decode")
	require.NotZero(t, h.LastErrorTime)

	alpha.garbage = false
	_, err = m.SendRequest("alpha", protocol.Message{Body: protocol.GetVersionRequest{}})
	require.NoError(t, err)
	h = m.HealthFor("alpha")
	assert.True(t, h.IsHealthy)
	assert.Empty(t, h.LastError)
	assert.Zero(t, h.LastErrorTime)
}

func TestPerformPluginAction(t *testing.T) {
	m, cfg := newTestManager(t)

	alpha := newFakePlugin("alpha")
	installFakes(m, map[string]transport{"alpha.wasm": alpha}, nil, nil)
	require.NoError(t, m.Load(writePluginFile(t, cfg.PluginsDir, "alpha.wasm")))

	err := m.PerformPluginAction("alpha", "sync", nil)
	require.ErrorIs(t, err, ErrPluginNotEnabled)
	assert.Zero(t, alpha.calls["action"])

	require.NoError(t, m.EnablePlugin("alpha"))
	require.NoError(t, m.PerformPluginAction("alpha", "sync", []string{"--all"}))
	assert.Equal(t, 1, alpha.calls["action"])

	alpha.actionErr = "remote unreachable"
	err = m.PerformPluginAction("alpha", "sync", nil)
	require.EqualError(t, err, "remote unreachable")
}

func TestEnableDisableRequireRegisteredPlugin(t *testing.T) {
	m, cfg := newTestManager(t)

	require.ErrorIs(t, m.EnablePlugin("ghost"), ErrPluginNotFound)
	require.ErrorIs(t, m.DisablePlugin("ghost"), ErrPluginNotFound)

	alpha := newFakePlugin("alpha")
	installFakes(m, map[string]transport{"alpha.wasm": alpha}, nil, nil)
	require.NoError(t, m.Load(writePluginFile(t, cfg.PluginsDir, "alpha.wasm")))

	require.NoError(t, m.EnablePlugin("alpha"))
	assert.True(t, m.IsEnabled("alpha"))
	assert.Contains(t, cfg.EnabledPlugins, "alpha")

	require.NoError(t, m.DisablePlugin("alpha"))
	assert.False(t, m.IsEnabled("alpha"))
	assert.NotContains(t, cfg.EnabledPlugins, "alpha")
}

func TestListPlugins(t *testing.T) {
	m, cfg := newTestManager(t)

	alpha := newFakePlugin("alpha")
	alpha.description = "first plugin"
	zeta := newFakePlugin("zeta")
	zeta.version = "2.1.0"
	installFakes(m, map[string]transport{
		"alpha.wasm": alpha,
		"zeta.wasm":  zeta,
	}, nil, nil)
	require.NoError(t, m.Load(writePluginFile(t, cfg.PluginsDir, "alpha.wasm")))
	require.NoError(t, m.Load(writePluginFile(t, cfg.PluginsDir, "zeta.wasm")))
	require.NoError(t, m.EnablePlugin("zeta"))

	infos := m.ListPlugins()
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha", infos[0].Name)
	assert.Equal(t, "first plugin", infos[0].Description)
	assert.False(t, infos[0].Enabled)
	assert.Equal(t, "zeta", infos[1].Name)
	assert.Equal(t, "2.1.0", infos[1].Version)
	assert.True(t, infos[1].Enabled)
	assert.True(t, infos[1].Health.IsHealthy)
}

func TestListPluginsSkipsUnresponsivePlugin(t *testing.T) {
	m, cfg := newTestManager(t)

	alpha := newFakePlugin("alpha")
	mute := newFakePlugin("mute")
	installFakes(m, map[string]transport{
		"alpha.wasm": alpha,
		"mute.wasm":  mute,
	}, nil, nil)
	require.NoError(t, m.Load(writePluginFile(t, cfg.PluginsDir, "alpha.wasm")))
	require.NoError(t, m.Load(writePluginFile(t, cfg.PluginsDir, "mute.wasm")))

	mute.garbage = true
	infos := m.ListPlugins()
	require.Len(t, infos, 1)
	assert.Equal(t, "alpha", infos[0].Name)
	assert.False(t, m.HealthFor("mute").IsHealthy)
}

func TestAvailableActions(t *testing.T) {
	m, cfg := newTestManager(t)

	alpha := newFakePlugin("alpha")
	alpha.actions = []protocol.ActionInfo{
		{Name: "sync", Usage: "sync [--all]", Description: "synchronize state"},
	}
	installFakes(m, map[string]transport{"alpha.wasm": alpha}, nil, nil)
	require.NoError(t, m.Load(writePluginFile(t, cfg.PluginsDir, "alpha.wasm")))

	actions, err := m.AvailableActions("alpha")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "sync", actions[0].Name)
}
