// Package mcp implements the Model Context Protocol server for
// GovernmentReporter. It exposes the ingested collections to AI clients
// as search tools and full documents as resources.
package mcp

import (
	"context"
	"errors"
	"fmt"

	gverrors "github.com/govreporter/govreporter/internal/errors"
)

// Custom MCP error codes for GovernmentReporter.
const (
	// ErrCodeCollectionNotFound indicates a collection is missing from
	// the vector store.
	ErrCodeCollectionNotFound = -32001

	// ErrCodeEmbeddingFailed indicates query embedding generation failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeDocumentNotFound indicates a document or resource target
	// does not exist.
	ErrCodeDocumentNotFound = -32004

	// ErrCodeUpstreamFailed indicates a government API call failed.
	ErrCodeUpstreamFailed = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
// It maps pipeline error categories to appropriate MCP error codes.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var rerr *gverrors.ReporterError
	if errors.As(err, &rerr) {
		return mapReporterError(rerr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Tool not found.",
		}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: "Invalid parameters.",
		}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{
			Code:    ErrCodeDocumentNotFound,
			Message: "Resource not found.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: err.Error(),
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeDocumentNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

// mapReporterError converts a ReporterError to an MCPError. The
// suggestion, when present, rides along in the message.
func mapReporterError(re *gverrors.ReporterError) *MCPError {
	message := re.Message
	if re.Suggestion != "" {
		message = fmt.Sprintf("%s %s", re.Message, re.Suggestion)
	}

	switch re.Category {
	case gverrors.CategoryStorage:
		if re.Code == gverrors.ErrCodeCollection {
			return &MCPError{
				Code:    ErrCodeCollectionNotFound,
				Message: message,
			}
		}
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: message,
		}
	case gverrors.CategoryNetwork:
		if re.Code == gverrors.ErrCodeNetworkTimeout {
			return &MCPError{
				Code:    ErrCodeTimeout,
				Message: message,
			}
		}
		return &MCPError{
			Code:    ErrCodeUpstreamFailed,
			Message: message,
		}
	case gverrors.CategoryValidation:
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: message,
		}
	case gverrors.CategoryInternal:
		if re.Code == gverrors.ErrCodeEmbeddingFailed {
			return &MCPError{
				Code:    ErrCodeEmbeddingFailed,
				Message: message,
			}
		}
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: message,
		}
	default: // CategoryConfig and unknown
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: message,
		}
	}
}
