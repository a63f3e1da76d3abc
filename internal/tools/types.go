// Package tools defines the typed tool catalog used by the agentic
// responders. Each tool carries a JSON-schema subset describing its
// arguments; the cortex adapters map the catalog to the model
// provider's function-calling shape.
package tools

import (
	"context"
)

// Category classifies tools for responder-based selection.
type Category string

const (
	// CategoryFilesystem covers sandboxed read/write/list/search operations.
	CategoryFilesystem Category = "/fs"

	// CategoryGit covers repository status and commit operations.
	CategoryGit Category = "/git"

	// CategoryBrokerage covers account, position, and order operations.
	CategoryBrokerage Category = "/brokerage"

	// CategoryGeneral is for tools usable by any responder.
	CategoryGeneral Category = "/general"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// Schema defines the JSON schema for tool arguments.
type Schema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
// Returns the result string and any error.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is one entry in the catalog. Tools are registered in a Registry
// and handed to the tool-call loop as a capability whitelist.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does, for the model.
	Description string

	// Category classifies the tool for responder filtering.
	Category Category

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema Schema
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Result wraps the outcome of a tool execution with metadata.
type Result struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Output is the string result from the tool.
	Output string

	// Error is set if the tool failed.
	Error error

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *Result) IsSuccess() bool {
	return r.Error == nil
}

// Payload renders the result as a JSON-serializable map in the shape
// fed back to the model after each call.
func (r *Result) Payload() map[string]any {
	if r.Error != nil {
		return map[string]any{"success": false, "error": r.Error.Error()}
	}
	return map[string]any{"success": true, "result": r.Output}
}
