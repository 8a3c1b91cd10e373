package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/llakit/lla/protocol"
)

// maxProbeResponseLen rejects any probe response above 1 MiB before it is
// read back, so a bogus reported length can never turn into an oversized
// read.
const maxProbeResponseLen = 1 << 20

// Validate probes the plugin file at path without registering it: it loads
// the module into an isolated runtime, resolves the required exports,
// checks the ABI version, and performs a GetName round-trip. Every failure
// mode, a panic during the probe included, classifies the file as invalid;
// a probe can never take the host down.
func (m *Manager) Validate(path string) (valid bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			valid = false
			err = fmt.Errorf("plugin validation panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(m.ctx, m.callTimeout)
	defer cancel()

	t, err := m.probe(ctx, path)
	if err != nil {
		return false, nil
	}
	defer t.Close(ctx)

	out, err := t.Invoke(ctx, protocol.Encode(protocol.Message{Body: protocol.GetNameRequest{}}))
	if err != nil {
		return false, nil
	}
	resp, err := protocol.Decode(out)
	if err != nil {
		return false, nil
	}
	nr, ok := resp.Body.(protocol.NameResponse)
	if !ok || nr.Name == "" {
		return false, nil
	}
	return true, nil
}

// probeWASM opens a plugin in a throwaway runtime so a misbehaving candidate
// cannot disturb the registered plugins sharing the main runtime. The
// runtime observes context cancellation so a looping candidate is cut off
// at the probe deadline.
func (m *Manager) probeWASM(ctx context.Context, path string) (transport, error) {
	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}
	if err := instantiateHostModule(ctx, runtime, m.log); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	p, err := openWASMPlugin(ctx, runtime, path, maxProbeResponseLen)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, err
	}
	return &probePlugin{wasmPlugin: p, runtime: runtime}, nil
}

// probePlugin ties the probed plugin's lifetime to its private runtime.
type probePlugin struct {
	*wasmPlugin
	runtime wazero.Runtime
}

func (p *probePlugin) Close(ctx context.Context) error {
	_ = p.wasmPlugin.Close(ctx)
	return p.runtime.Close(ctx)
}

// Clean validates every plugin file in the configured plugins directory and
// deletes the ones that fail.
func (m *Manager) Clean() error {
	dir := m.cfg.PluginsDir
	m.log.Info("starting plugin cleanup")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.log.Info("plugin cleanup complete")
			return nil
		}
		return fmt.Errorf("failed to read plugin directory %s: %w", dir, err)
	}

	var invalid []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), pluginSuffix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		m.log.Infof("checking plugin %s", path)

		ok, err := m.Validate(path)
		switch {
		case err != nil:
			m.log.Warnf("error validating plugin %s: %v", path, err)
			invalid = append(invalid, path)
		case !ok:
			m.log.Infof("plugin is invalid: %s", path)
			invalid = append(invalid, path)
		default:
			m.log.Infof("plugin is valid: %s", path)
		}
	}

	for _, path := range invalid {
		if err := os.Remove(path); err != nil {
			m.log.Warnf("failed to remove invalid plugin %s: %v", path, err)
		} else {
			m.log.Infof("removed invalid plugin %s", path)
		}
	}

	m.log.Info("plugin cleanup complete")
	return nil
}
