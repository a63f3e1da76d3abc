package agent

import (
	"context"

	"go.uber.org/zap"

	"alex/internal/cortex"
	"alex/internal/tools"
)

// maxToolIterations bounds the generate-execute-feed-back loop.
const maxToolIterations = 10

// ToolRecord is one tool invocation captured in call order.
type ToolRecord struct {
	Tool   string
	Args   map[string]any
	Result *tools.Result
}

// runToolLoop drives a tool session until the model answers with plain
// text or the iteration budget runs out. It returns the final text,
// the ordered invocation records, and whether the budget was exhausted
// before a terminal text response.
func (a *Agent) runToolLoop(ctx context.Context, session cortex.ToolSession, reg *tools.Registry) (string, []ToolRecord, bool, error) {
	var records []ToolRecord
	lastText := ""

	for i := 0; i < maxToolIterations; i++ {
		step, err := session.Next(ctx)
		if err != nil {
			return "", records, false, err
		}
		lastText = step.Text

		if len(step.Calls) == 0 {
			return step.Text, records, false, nil
		}

		results := make([]cortex.ToolResult, 0, len(step.Calls))
		for _, call := range step.Calls {
			a.log.Info("executing tool", zap.String("tool", call.Name))

			result, execErr := reg.Execute(ctx, call.Name, call.Args)
			if execErr != nil {
				a.log.Warn("tool failed",
					zap.String("tool", call.Name),
					zap.Error(execErr))
			}
			if result == nil {
				result = &tools.Result{ToolName: call.Name, Error: execErr}
			}
			records = append(records, ToolRecord{Tool: call.Name, Args: call.Args, Result: result})
			results = append(results, cortex.ToolResult{
				Name:     call.Name,
				Response: result.Payload(),
			})
		}
		session.Push(results)
	}

	return lastText, records, true, nil
}

// filesModified extracts paths from successful write_file records, in
// call order and deduplicated.
func filesModified(records []ToolRecord) []string {
	seen := make(map[string]bool)
	var files []string
	for _, r := range records {
		if r.Tool != "write_file" || r.Result == nil || !r.Result.IsSuccess() {
			continue
		}
		path, _ := r.Args["path"].(string)
		if path != "" && !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}
	return files
}
