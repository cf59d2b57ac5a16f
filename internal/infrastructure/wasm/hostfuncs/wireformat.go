package hostfuncs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"
	"time"

	apperrors "github.com/reglet-dev/krew-wasm/internal/application/errors"
	"github.com/reglet-dev/krew-wasm/wireformat"
	"github.com/tetratelabs/wazero/api"
)

type (
	// ContextWireFormat is a re-export of wireformat.ContextWireFormat
	ContextWireFormat = wireformat.ContextWireFormat
	// HTTPRequestWire is a re-export of wireformat.HTTPRequestWire
	HTTPRequestWire = wireformat.HTTPRequestWire
	// HTTPResponseWire is a re-export of wireformat.HTTPResponseWire
	HTTPResponseWire = wireformat.HTTPResponseWire
	// ErrorDetail is a re-export of wireformat.ErrorDetail
	ErrorDetail = wireformat.ErrorDetail
)

// allocateExport is the guest function the host calls to obtain response memory.
const allocateExport = "allocate"

// createContextFromWire creates a new context from the wire format.
func createContextFromWire(parentCtx context.Context, wireCtx ContextWireFormat) (context.Context, context.CancelFunc) {
	if wireCtx.Cancelled {
		slog.WarnContext(parentCtx, "hostfuncs: received already cancelled context from module")
		ctx, cancel := context.WithCancel(parentCtx)
		cancel()
		return ctx, cancel
	}

	if wireCtx.Deadline != nil && !wireCtx.Deadline.IsZero() {
		return context.WithDeadline(parentCtx, *wireCtx.Deadline)
	}

	if wireCtx.TimeoutMs > 0 {
		return context.WithTimeout(parentCtx, time.Duration(wireCtx.TimeoutMs)*time.Millisecond)
	}

	return context.WithCancel(parentCtx)
}

// toErrorDetail classifies err for the guest. fallback is the type used when
// nothing more specific is known.
func toErrorDetail(err error, fallback string) *ErrorDetail {
	if err == nil {
		return nil
	}

	detail := &ErrorDetail{
		Message: err.Error(),
		Type:    fallback,
	}

	switch apperrors.KindOf(err) {
	case apperrors.KindCapabilityDenied:
		detail.Type = wireformat.ErrorTypeCapability
		return detail
	case apperrors.KindUnknownScheme, apperrors.KindConfigError:
		detail.Type = wireformat.ErrorTypeConfig
		return detail
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		detail.Type = wireformat.ErrorTypeTimeout
		detail.Code = "ETIMEDOUT"
	case errors.As(err, &netErr) && netErr.Timeout():
		detail.Type = wireformat.ErrorTypeTimeout
		detail.Code = "ETIMEDOUT"
	case errors.Is(err, syscall.ECONNREFUSED):
		detail.Type = wireformat.ErrorTypeNetwork
		detail.Code = "ECONNREFUSED"
	case errors.Is(err, syscall.ECONNRESET):
		detail.Type = wireformat.ErrorTypeNetwork
		detail.Code = "ECONNRESET"
	default:
		var dnsErr *net.DNSError
		var opErr *net.OpError
		if errors.As(err, &dnsErr) || errors.As(err, &opErr) {
			detail.Type = wireformat.ErrorTypeNetwork
		}
	}

	return detail
}

// hostWriteResponse writes the JSON response to WASM memory and returns packed ptr+len.
// It returns 0 when the guest cannot receive a response.
func hostWriteResponse(ctx context.Context, mod api.Module, response any) uint64 {
	data, err := json.Marshal(response)
	if err != nil {
		errMsg := fmt.Sprintf("hostfuncs: failed to marshal response: %v", err)
		slog.ErrorContext(ctx, errMsg)
		data, _ = json.Marshal(HTTPResponseWire{
			Error: &ErrorDetail{Message: errMsg, Type: wireformat.ErrorTypeInternal},
		})
	}

	allocate := mod.ExportedFunction(allocateExport)
	if allocate == nil {
		slog.ErrorContext(ctx, "hostfuncs: module does not export allocate, dropping response", "module", mod.Name())
		return 0
	}

	results, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil || len(results) == 0 {
		slog.ErrorContext(ctx, "hostfuncs: failed to call guest allocate function", "error", err)
		return 0
	}
	ptr := uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit

	if !mod.Memory().Write(ptr, data) {
		slog.ErrorContext(ctx, "hostfuncs: allocated region is out of guest memory bounds", "ptr", ptr, "len", len(data))
		return 0
	}

	return packPtrLen(ptr, uint32(len(data))) //nolint:gosec // G115: WASM memory allocations are bounded to 4GB
}

// packPtrLen and unpackPtrLen implement the ptr<<32|len convention of the ABI.
func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

func unpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> 32) //nolint:gosec // G115: Packed format stores 32-bit values
	length = uint32(packed)    //nolint:gosec // G115: Packed format stores 32-bit values
	return ptr, length
}
