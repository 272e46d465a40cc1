package api

import (
	"github.com/ssargent/rowbench/pkg/procedure"
)

// Header names shared by server and client
const (
	HeaderAPIKey    = "X-API-Key"
	HeaderRequestID = "X-Request-ID"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CallRequest is the body of a procedure call
type CallRequest struct {
	Params []procedure.Param `json:"params"`
}

// callResponse and scatterResponse are the typed forms of APIResponse the client decodes
type callResponse struct {
	Success bool                `json:"success"`
	Data    *procedure.Response `json:"data,omitempty"`
	Error   string              `json:"error,omitempty"`
}

type scatterResponse struct {
	Success bool                          `json:"success"`
	Data    []procedure.PartitionResponse `json:"data,omitempty"`
	Error   string                        `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port   int
	APIKey string // required in X-API-Key when set
}
