package rpc

import (
	"github.com/vietddude/burnrelay/internal/infra/rpc/provider"
)

// Operation represents a JSON-RPC call to execute.
type Operation = provider.Operation

// NewOperation creates an Operation for a JSON-RPC method.
func NewOperation(method string, params ...any) Operation {
	return provider.Operation{
		Method: method,
		Params: params,
	}
}
