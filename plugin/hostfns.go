package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Host functions exported to plugins under the "env" module. Plugins run in
// a wasm sandbox with no ambient network or logging, so the host provides
// the two capabilities lla's plugins actually need: structured log output
// and outbound HTTP.

const (
	hostHTTPTimeout    = 10 * time.Second
	maxHTTPResponseLen = 4 << 20
)

// hostHTTPRequest is the JSON descriptor a plugin passes to env.http_request.
// Body is base64 on the wire, courtesy of encoding/json.
type hostHTTPRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`
}

// hostHTTPResponse is the JSON payload written back into guest memory.
type hostHTTPResponse struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers"`
	Body    []byte              `json:"body"`
}

func instantiateHostModule(ctx context.Context, runtime wazero.Runtime, log *logrus.Logger) error {
	_, err := runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			hostLogMessage(log, mod, stack)
		}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, nil).
		Export("log_message").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			hostHTTPRequestFn(ctx, log, mod, stack)
		}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}).
		Export("http_request").
		Instantiate(ctx)
	return err
}

// hostLogMessage routes a guest log line to the host logger.
// Signature: log_message(level i32, ptr i32, len i32).
func hostLogMessage(log *logrus.Logger, mod api.Module, stack []uint64) {
	level := uint32(stack[0])
	msg, err := readGuestString(mod, uint32(stack[1]), uint32(stack[2]))
	if err != nil {
		log.Warnf("log_message: %v", err)
		return
	}

	entry := log.WithField("plugin", mod.Name())
	switch level {
	case 0:
		entry.Debug(msg)
	case 1:
		entry.Info(msg)
	case 2:
		entry.Warn(msg)
	default:
		entry.Error(msg)
	}
}

// hostHTTPRequestFn performs an outbound HTTP request on a plugin's behalf.
// Signature: http_request(req_ptr i32, req_len i32) -> (resp_ptr i32, resp_len i32).
// The response is written into guest memory with the guest's malloc; (0, 0)
// signals failure.
func hostHTTPRequestFn(ctx context.Context, log *logrus.Logger, mod api.Module, stack []uint64) {
	fail := func(format string, args ...any) {
		log.WithField("plugin", mod.Name()).Warnf("http_request: "+format, args...)
		stack[0] = 0
		stack[1] = 0
	}

	payload, err := readGuestBytes(mod, uint32(stack[0]), uint32(stack[1]))
	if err != nil {
		fail("failed to read request: %v", err)
		return
	}

	var hreq hostHTTPRequest
	if err := json.Unmarshal(payload, &hreq); err != nil {
		fail("failed to parse request descriptor: %v", err)
		return
	}

	var body io.Reader
	if len(hreq.Body) > 0 {
		body = bytes.NewReader(hreq.Body)
	}
	req, err := http.NewRequestWithContext(ctx, hreq.Method, hreq.URL, body)
	if err != nil {
		fail("failed to build request: %v", err)
		return
	}
	for name, value := range hreq.Headers {
		req.Header.Set(name, value)
	}

	client := &http.Client{Timeout: hostHTTPTimeout}
	resp, err := client.Do(req)
	if err != nil {
		fail("%s %s failed: %v", hreq.Method, hreq.URL, err)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPResponseLen+1))
	if err != nil {
		fail("failed to read response body: %v", err)
		return
	}
	if len(respBody) > maxHTTPResponseLen {
		fail("response body exceeds %d bytes", maxHTTPResponseLen)
		return
	}

	out, err := json.Marshal(hostHTTPResponse{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Body:    respBody,
	})
	if err != nil {
		fail("failed to serialize response: %v", err)
		return
	}

	ptr, err := writeGuestBytes(ctx, mod, out)
	if err != nil {
		fail("failed to write response into plugin memory: %v", err)
		return
	}
	stack[0] = uint64(ptr)
	stack[1] = uint64(len(out))
}

func readGuestBytes(mod api.Module, ptr, length uint32) ([]byte, error) {
	mem := mod.Memory()
	if mem == nil {
		return nil, errors.New("module has no memory")
	}
	view, ok := mem.Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("failed to read memory at ptr=%d len=%d", ptr, length)
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

func readGuestString(mod api.Module, ptr, length uint32) (string, error) {
	b, err := readGuestBytes(mod, ptr, length)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// writeGuestBytes allocates a guest buffer with the guest's malloc and
// copies data into it. Ownership passes to the guest, which frees it with
// its own allocator.
func writeGuestBytes(ctx context.Context, mod api.Module, data []byte) (uint32, error) {
	mallocFn := mod.ExportedFunction(exportMalloc)
	if mallocFn == nil {
		return 0, fmt.Errorf("module does not export %s", exportMalloc)
	}
	results, err := mallocFn.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%s failed: %w", exportMalloc, err)
	}
	if len(results) == 0 || uint32(results[0]) == 0 {
		return 0, fmt.Errorf("%s returned a null pointer", exportMalloc)
	}
	ptr := uint32(results[0])

	mem := mod.Memory()
	if mem == nil {
		return 0, errors.New("module has no memory")
	}
	if !mem.Write(ptr, data) {
		return 0, fmt.Errorf("failed to write %d bytes at ptr=%d", len(data), ptr)
	}
	return ptr, nil
}
