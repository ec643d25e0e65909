// Package tools defines the function-call tools exposed to the chat model
// and the registry that validates and executes them. Tool failures are
// reported back to the model as plain result strings so a bad call never
// aborts the conversation turn.
package tools

import (
	"context"

	"github.com/buildownai/buddy/internal/llm"
)

// Property describes one argument of a tool.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Schema lists the arguments of a tool. It doubles as the parameters object
// sent to the model in the function definition.
type Schema struct {
	Required   []string
	Properties map[string]Property
}

// Parameters renders the schema as a JSON-schema object for the chat API.
func (s Schema) Parameters() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		props[name] = map[string]any{"type": p.Type, "description": p.Description}
	}
	required := s.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Tool is one callable function. Execute receives validated arguments and
// returns the result text given to the model.
type Tool struct {
	Name        string
	Description string
	Schema      Schema
	Execute     func(ctx context.Context, args map[string]any) (string, error)
}

// Def converts the tool into the wire definition of the chat API.
func (t Tool) Def() llm.ToolDef {
	return llm.ToolDef{Name: t.Name, Description: t.Description, Parameters: t.Schema.Parameters()}
}
