package toolkit

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/urbangrammar/demoland-assistant/internal/layers"
	"github.com/urbangrammar/demoland-assistant/internal/query"
	"github.com/urbangrammar/demoland-assistant/internal/scenario"
	"github.com/urbangrammar/demoland-assistant/internal/signature"
	"github.com/urbangrammar/demoland-assistant/pkg/overpass"
)

// Stable error codes reported to tool callers.
const (
	CodeUnknownSignatureCode = "unknown_signature_code"
	CodeUnknownRegion        = "unknown_region"
	CodeInvalidGeometryInput = "invalid_geometry_input"
	CodeSchemaValidation     = "schema_validation_error"
	CodeGeometryJoin         = "geometry_join_error"
	CodeLayerLoad            = "layer_load_error"
	CodeUpstreamUnavailable  = "upstream_unavailable"
	CodeNoActiveScenario     = "no_active_scenario"
	CodeInternal             = "internal_error"
)

// SchemaValidationError is returned when a tool is unknown or its arguments
// do not match the tool's schema. The handler never runs.
type SchemaValidationError struct {
	Tool   string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("toolkit: %s: %s", e.Tool, e.Reason)
}

// IsSchemaValidation reports whether err is a SchemaValidationError.
func IsSchemaValidation(err error) bool {
	var e *SchemaValidationError
	return errors.As(err, &e)
}

// ErrorCode maps an error to its stable code.
func ErrorCode(err error) string {
	var (
		schemaErr  *SchemaValidationError
		codeErr    *signature.UnknownSignatureCodeError
		regionErr  *query.UnknownRegionError
		geomErr    *query.InvalidGeometryInputError
		joinErr    *scenario.GeometryJoinError
		layerErr   *layers.LayerLoadError
		amenityErr *overpass.InvalidAmenityError
		upErr      *overpass.UnavailableError
	)
	switch {
	case errors.As(err, &schemaErr), errors.As(err, &amenityErr):
		return CodeSchemaValidation
	case errors.As(err, &codeErr):
		return CodeUnknownSignatureCode
	case errors.As(err, &regionErr):
		return CodeUnknownRegion
	case errors.As(err, &geomErr):
		return CodeInvalidGeometryInput
	case errors.As(err, &joinErr):
		return CodeGeometryJoin
	case errors.As(err, &layerErr):
		return CodeLayerLoad
	case errors.As(err, &upErr):
		return CodeUpstreamUnavailable
	case errors.Is(err, query.ErrNoScenario):
		return CodeNoActiveScenario
	default:
		return CodeInternal
	}
}

// Recoverable reports whether err is a tool-level failure the calling session
// survives: bad input, unknown names, or an unavailable upstream. Layer and
// join failures are not recoverable.
func Recoverable(err error) bool {
	switch ErrorCode(err) {
	case CodeSchemaValidation, CodeUnknownSignatureCode, CodeUnknownRegion,
		CodeInvalidGeometryInput, CodeUpstreamUnavailable, CodeNoActiveScenario:
		return true
	default:
		return false
	}
}

// ErrorResponse is the structured body of a failed tool call.
type ErrorResponse struct {
	Error       bool     `json:"error"`
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// NewErrorResponse builds the structured failure for err.
func NewErrorResponse(err error) ErrorResponse {
	resp := ErrorResponse{Error: true, Code: ErrorCode(err), Message: err.Error()}
	var regionErr *query.UnknownRegionError
	if errors.As(err, &regionErr) {
		resp.Suggestions = regionErr.Suggestions
	}
	return resp
}

// NewErrorResult renders err as an MCP tool result with IsError set, so the
// calling model sees the failure as data.
func NewErrorResult(err error) *mcp.CallToolResult {
	b, _ := json.Marshal(NewErrorResponse(err))
	result := mcp.NewToolResultText(string(b))
	result.IsError = true
	return result
}
