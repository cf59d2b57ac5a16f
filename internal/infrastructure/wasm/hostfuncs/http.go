package hostfuncs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/reglet-dev/krew-wasm/wireformat"
	"github.com/tetratelabs/wazero/api"
)

// maxBodySize caps response bodies returned to the guest.
const maxBodySize = 10 * 1024 * 1024

// Network performs outbound HTTP requests on behalf of a module.
type Network struct {
	client    *http.Client
	logger    *slog.Logger
	userAgent string
}

// NewNetwork creates the network capability of one execution.
func NewNetwork(client *http.Client, userAgent string, logger *slog.Logger) *Network {
	if logger == nil {
		logger = slog.Default()
	}
	return &Network{client: client, userAgent: userAgent, logger: logger}
}

// HTTPRequest implements kube_outbound_http.request.
// It receives a packed uint64 (ptr+len) pointing to a JSON-encoded HTTPRequestWire
// and returns a packed uint64 (ptr+len) pointing to a JSON-encoded HTTPResponseWire.
// Failures are reported in the response, never as traps.
func (n *Network) HTTPRequest(ctx context.Context, mod api.Module, stack []uint64) {
	ptr, length := unpackPtrLen(stack[0])

	requestBytes, ok := mod.Memory().Read(ptr, length)
	if !ok {
		errMsg := "hostfuncs: failed to read HTTP request from guest memory"
		n.logger.ErrorContext(ctx, errMsg, "ptr", ptr, "len", length)
		stack[0] = hostWriteResponse(ctx, mod, HTTPResponseWire{
			Error: &ErrorDetail{Message: errMsg, Type: wireformat.ErrorTypeInternal},
		})
		return
	}

	var request HTTPRequestWire
	if err := json.Unmarshal(requestBytes, &request); err != nil {
		errMsg := fmt.Sprintf("hostfuncs: failed to unmarshal HTTP request: %v", err)
		n.logger.ErrorContext(ctx, errMsg)
		stack[0] = hostWriteResponse(ctx, mod, HTTPResponseWire{
			Error: &ErrorDetail{Message: errMsg, Type: wireformat.ErrorTypeInternal},
		})
		return
	}

	stack[0] = hostWriteResponse(ctx, mod, n.Do(ctx, request))
}

// Do performs request and builds the wire response.
func (n *Network) Do(ctx context.Context, request HTTPRequestWire) HTTPResponseWire {
	requestID := request.Context.RequestID
	if requestID == "" {
		requestID, _ = RunIDFromContext(ctx)
	}
	logger := n.logger.With("request_id", requestID, "method", request.Method, "url", request.URL)
	if module, ok := ModuleNameFromContext(ctx); ok {
		logger = logger.With("module", module)
	}

	httpCtx, cancel := createContextFromWire(ctx, request.Context)
	defer cancel()

	var reqBody io.Reader
	if request.Body != "" {
		decoded, err := base64.StdEncoding.DecodeString(request.Body)
		if err != nil {
			logger.WarnContext(ctx, "failed to decode request body", "error", err)
			return HTTPResponseWire{Error: &ErrorDetail{
				Message: fmt.Sprintf("failed to decode request body: %v", err),
				Type:    wireformat.ErrorTypeConfig,
			}}
		}
		reqBody = bytes.NewReader(decoded)
	}

	method := request.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(httpCtx, method, request.URL, reqBody)
	if err != nil {
		logger.WarnContext(ctx, "invalid HTTP request", "error", err)
		return HTTPResponseWire{Error: &ErrorDetail{
			Message: fmt.Sprintf("invalid HTTP request: %v", err),
			Type:    wireformat.ErrorTypeConfig,
		}}
	}

	if n.userAgent != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}
	for key, values := range request.Headers {
		req.Header.Del(key)
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		detail := toErrorDetail(err, wireformat.ErrorTypeNetwork)
		if detail.Type == wireformat.ErrorTypeCapability {
			logger.WarnContext(ctx, "outbound request denied", "error", err)
		} else {
			logger.ErrorContext(ctx, "HTTP request failed", "error", err)
		}
		return HTTPResponseWire{Error: detail}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Read one byte past the limit to detect truncation.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		logger.ErrorContext(ctx, "failed to read response body", "error", err)
		return HTTPResponseWire{Error: toErrorDetail(err, wireformat.ErrorTypeNetwork)}
	}

	truncated := false
	if len(body) > maxBodySize {
		body = body[:maxBodySize]
		truncated = true
		logger.WarnContext(ctx, "HTTP response body truncated", "max_size_mb", maxBodySize/(1024*1024))
	}

	var encoded string
	if len(body) > 0 {
		encoded = base64.StdEncoding.EncodeToString(body)
	}

	logger.DebugContext(ctx, "HTTP request completed", "status", resp.StatusCode, "bytes", len(body))

	return HTTPResponseWire{
		StatusCode:    resp.StatusCode,
		Headers:       resp.Header,
		Body:          encoded,
		BodyTruncated: truncated,
	}
}
