package hostfuncs

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Host module and function names of the network ABI.
const (
	NetworkModuleName   = "kube_outbound_http"
	RequestFunctionName = "request"
)

// RegisterNetwork instantiates the kube_outbound_http host module in runtime.
func RegisterNetwork(ctx context.Context, runtime wazero.Runtime, network *Network) error {
	builder := runtime.NewHostModuleBuilder(NetworkModuleName)

	// Parameters: requestPacked (i64) - packed ptr+len of HTTPRequestWire JSON
	// Returns: responsePacked (i64) - packed ptr+len of HTTPResponseWire JSON
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(network.HTTPRequest),
			[]api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
		WithParameterNames("request").
		Export(RequestFunctionName)

	_, err := builder.Instantiate(ctx)
	return err
}
