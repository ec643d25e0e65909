package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/buildownai/buddy/internal/llm"
	"github.com/buildownai/buddy/internal/log"
)

// Registry holds the tools of one chat session. Execution validates the
// model-supplied arguments against the tool schema before calling it.
type Registry struct {
	tools  map[string]Tool
	order  []string
	logger *log.Logger
}

func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{tools: make(map[string]Tool), logger: logger}
}

func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Defs returns the function definitions in registration order.
func (r *Registry) Defs() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Def())
	}
	return defs
}

func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Execute runs one tool call and always returns a result string. Unknown
// tools and invalid arguments produce corrective messages that tell the
// model what went wrong; execution errors are reported the same way.
func (r *Registry) Execute(ctx context.Context, name string, rawArgs json.RawMessage) string {
	tool, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q. Available tools: %s.", name, strings.Join(r.Names(), ", "))
	}
	args := make(map[string]any)
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return fmt.Sprintf("Error: arguments for tool %q are not valid JSON: %v", name, err)
		}
	}
	if msg := validate(tool.Schema, args); msg != "" {
		return fmt.Sprintf("Error: invalid arguments for tool %q: %s", name, msg)
	}
	r.logger.Debug("tool call", "tool", name)
	result, err := tool.Execute(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error: tool %q failed: %v", name, err)
	}
	return result
}

func validate(s Schema, args map[string]any) string {
	for _, req := range s.Required {
		if _, ok := args[req]; !ok {
			return fmt.Sprintf("missing required argument %q", req)
		}
	}
	for key, val := range args {
		prop, ok := s.Properties[key]
		if !ok {
			continue
		}
		if !typeMatches(prop.Type, val) {
			return fmt.Sprintf("argument %q must be of type %s", key, prop.Type)
		}
	}
	return ""
}

func typeMatches(typ string, val any) bool {
	switch typ {
	case "string":
		_, ok := val.(string)
		return ok
	case "number", "integer":
		_, ok := val.(float64)
		return ok
	case "boolean":
		_, ok := val.(bool)
		return ok
	default:
		return true
	}
}

// stringArg fetches a validated string argument with a fallback.
func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
