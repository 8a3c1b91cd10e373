package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/llakit/lla/protocol"
)

// Exports every plugin module must provide. The handshake fails, without
// aborting the host, when any is missing or malformed.
const (
	exportAPIVersion    = "plugin_api_version"
	exportHandleRequest = "handle_request"
	exportMalloc        = "malloc"
	exportFree          = "free"
)

// maxResponseLen caps a response from a registered plugin. The validator
// probes with a far tighter limit.
const maxResponseLen = 64 << 20

var errVersionMismatch = errors.New("plugin API version mismatch")

// newPluginRuntime creates the shared wasm runtime plugins are instantiated
// into, with WASI and the host's env module available for import.
// CloseOnContextDone makes guest execution observe call deadlines: a plugin
// that loops in its handler is cut off when the context expires instead of
// blocking the host forever.
func newPluginRuntime(ctx context.Context, log *logrus.Logger) (wazero.Runtime, error) {
	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}
	if err := instantiateHostModule(ctx, runtime, log); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}
	return runtime, nil
}

// wasmPlugin is a loaded plugin module. Request buffers are written into
// guest memory with the guest's own malloc; response buffers are read out
// and handed back to the guest's free, so the allocator that created a
// buffer is always the one that destroys it.
type wasmPlugin struct {
	instance      api.Module
	compiled      wazero.CompiledModule
	handleRequest api.Function
	malloc        api.Function
	free          api.Function
	freeTakesLen  bool
	maxResponse   uint32
}

// openWASMPlugin compiles and instantiates the module at path and performs
// the export and version checks of the ABI handshake.
func openWASMPlugin(ctx context.Context, runtime wazero.Runtime, path string, maxResponse uint32) (*wasmPlugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin file: %w", err)
	}

	compiled, err := runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to compile plugin module: %w", err)
	}

	instance, err := runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(path))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate plugin module: %w", err)
	}

	p, err := bindExports(ctx, instance, maxResponse)
	if err != nil {
		_ = instance.Close(ctx)
		_ = compiled.Close(ctx)
		return nil, err
	}
	p.compiled = compiled
	return p, nil
}

// bindExports resolves the required exports and checks the reported ABI
// version against the host's.
func bindExports(ctx context.Context, instance api.Module, maxResponse uint32) (*wasmPlugin, error) {
	versionFn := instance.ExportedFunction(exportAPIVersion)
	if versionFn == nil {
		return nil, fmt.Errorf("plugin module must export %s", exportAPIVersion)
	}
	results, err := versionFn.Call(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query plugin API version: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%s returned no result", exportAPIVersion)
	}
	if got := uint32(results[0]); got != protocol.CurrentVersion {
		return nil, fmt.Errorf("%w: expected %d, got %d", errVersionMismatch, protocol.CurrentVersion, got)
	}

	handleFn := instance.ExportedFunction(exportHandleRequest)
	if handleFn == nil {
		return nil, fmt.Errorf("plugin module must export %s", exportHandleRequest)
	}
	if n := len(handleFn.Definition().ResultTypes()); n != 2 {
		return nil, fmt.Errorf("%s must return 2 results (ptr, len), got %d", exportHandleRequest, n)
	}

	mallocFn := instance.ExportedFunction(exportMalloc)
	if mallocFn == nil {
		return nil, fmt.Errorf("plugin module must export %s", exportMalloc)
	}
	freeFn := instance.ExportedFunction(exportFree)
	if freeFn == nil {
		return nil, fmt.Errorf("plugin module must export %s", exportFree)
	}
	paramCount := len(freeFn.Definition().ParamTypes())
	if paramCount != 1 && paramCount != 2 {
		return nil, fmt.Errorf("%s must accept 1 (ptr) or 2 (ptr, len) parameters, got %d", exportFree, paramCount)
	}

	return &wasmPlugin{
		instance:      instance,
		handleRequest: handleFn,
		malloc:        mallocFn,
		free:          freeFn,
		freeTakesLen:  paramCount == 2,
		maxResponse:   maxResponse,
	}, nil
}

// Invoke passes one encoded request across the module boundary and returns
// a copy of the encoded response. A zero-length return from the plugin is an
// empty response, legal for messages whose reply is optional.
func (p *wasmPlugin) Invoke(ctx context.Context, request []byte) ([]byte, error) {
	reqPtr, reqLen, err := p.allocate(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate request buffer: %w", err)
	}
	defer p.release(ctx, reqPtr, reqLen)

	results, err := p.handleRequest.Call(ctx, uint64(reqPtr), uint64(reqLen))
	if err != nil {
		return nil, fmt.Errorf("%s trapped: %w", exportHandleRequest, err)
	}
	if len(results) < 2 {
		return nil, fmt.Errorf("%s returned insufficient results (expected ptr, len)", exportHandleRequest)
	}

	respPtr := uint32(results[0])
	respLen := uint32(results[1])
	if respLen == 0 {
		p.release(ctx, respPtr, 0)
		return nil, nil
	}
	if respPtr == 0 {
		return nil, errors.New("plugin returned a null response pointer")
	}
	if p.maxResponse > 0 && respLen > p.maxResponse {
		return nil, fmt.Errorf("plugin response length %d exceeds limit %d", respLen, p.maxResponse)
	}

	mem := p.instance.Memory()
	if mem == nil {
		return nil, errors.New("plugin module has no memory")
	}
	view, ok := mem.Read(respPtr, respLen)
	if !ok {
		return nil, fmt.Errorf("failed to read response at ptr=%d len=%d", respPtr, respLen)
	}

	// The view aliases guest memory; copy before releasing the buffer.
	out := make([]byte, len(view))
	copy(out, view)
	p.release(ctx, respPtr, respLen)
	return out, nil
}

// Close shuts down the module instance and releases its compiled code.
func (p *wasmPlugin) Close(ctx context.Context) error {
	if p.instance != nil {
		_ = p.instance.Close(ctx)
	}
	if p.compiled != nil {
		return p.compiled.Close(ctx)
	}
	return nil
}

// allocate writes data into a guest buffer obtained from the guest's malloc.
func (p *wasmPlugin) allocate(ctx context.Context, data []byte) (uint32, uint32, error) {
	if len(data) == 0 {
		return 0, 0, nil
	}

	results, err := p.malloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, 0, fmt.Errorf("%s failed: %w", exportMalloc, err)
	}
	if len(results) == 0 {
		return 0, 0, fmt.Errorf("%s returned no result", exportMalloc)
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, 0, fmt.Errorf("%s returned a null pointer", exportMalloc)
	}

	mem := p.instance.Memory()
	if mem == nil {
		return 0, 0, errors.New("plugin module has no memory")
	}
	if !mem.Write(ptr, data) {
		p.release(ctx, ptr, uint32(len(data)))
		return 0, 0, errors.New("failed to write request into plugin memory")
	}
	return ptr, uint32(len(data)), nil
}

func (p *wasmPlugin) release(ctx context.Context, ptr, length uint32) {
	if ptr == 0 {
		return
	}
	params := []uint64{uint64(ptr)}
	if p.freeTakesLen {
		params = append(params, uint64(length))
	}
	_, _ = p.free.Call(ctx, params...)
}
