// Package toolkit exposes the spatial query operations as named tools with
// JSON argument schemas, for the chat agent, the HTTP API and MCP clients.
package toolkit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Handler runs a tool on already-decoded arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one registered tool.
type Tool struct {
	Name        string
	Description string
	Definition  mcp.Tool
	Handler     Handler
}

// Registry maps tool names to tools. It is built once at startup and only
// read afterwards.
type Registry struct {
	tools  []Tool
	byName map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register adds a tool. Registering a name twice panics.
func (r *Registry) Register(t Tool) {
	if _, dup := r.byName[t.Name]; dup {
		panic(fmt.Sprintf("toolkit: tool %q registered twice", t.Name))
	}
	r.byName[t.Name] = len(r.tools)
	r.tools = append(r.tools, t)
}

// Tools returns the tools in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Lookup returns the tool with the given name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Tool{}, false
	}
	return r.tools[i], true
}

// Invoke runs the named tool and renders its result as JSON text.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return "", &SchemaValidationError{Tool: name, Reason: "unknown tool"}
	}

	log := zap.L().With(zap.String("component", "toolkit"), zap.String("tool", name))
	result, err := t.Handler(ctx, args)
	if err != nil {
		log.Debug("tool failed", zap.String("code", ErrorCode(err)), zap.Error(err))
		return "", err
	}
	b, err := json.Marshal(result)
	if err != nil {
		return "", eris.Wrapf(err, "toolkit: encode %s result", name)
	}
	log.Debug("tool succeeded", zap.Int("bytes", len(b)))
	return string(b), nil
}

// Mount adds every tool to an MCP server. Recoverable failures become error
// results; anything else is returned as a protocol error.
func (r *Registry) Mount(s *server.MCPServer) {
	for _, t := range r.tools {
		name := t.Name
		s.AddTool(t.Definition, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := req.Params.Arguments.(map[string]any)
			text, err := r.Invoke(ctx, name, args)
			if err != nil {
				if Recoverable(err) {
					return NewErrorResult(err), nil
				}
				return nil, err
			}
			return mcp.NewToolResultText(text), nil
		})
	}
}

var validate = validator.New()

// Typed adapts a handler taking a typed argument struct. Arguments are decoded
// by their json tags with unknown keys rejected, then checked against the
// struct's validate tags; any failure is a SchemaValidationError.
func Typed[A any](name string, fn func(ctx context.Context, args A) (any, error)) Handler {
	return func(ctx context.Context, raw map[string]any) (any, error) {
		var args A
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:      &args,
			TagName:     "json",
			ErrorUnused: true,
		})
		if err != nil {
			return nil, eris.Wrap(err, "toolkit: build decoder")
		}
		if err := dec.Decode(raw); err != nil {
			return nil, &SchemaValidationError{Tool: name, Reason: err.Error()}
		}
		if err := validate.Struct(args); err != nil {
			return nil, &SchemaValidationError{Tool: name, Reason: err.Error()}
		}
		return fn(ctx, args)
	}
}
