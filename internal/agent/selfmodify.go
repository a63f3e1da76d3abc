package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"alex/internal/cortex"
	"alex/internal/memory"
)

const selfModifyPrompt = `You are Alex, an AI assistant with the ability to read and modify your own codebase.

You have access to file system tools to:
- Read files in your codebase
- Write/modify files
- Search for code patterns
- List directories
- Commit changes to git

IMPORTANT GUIDELINES:
1. ALWAYS read a file before modifying it
2. Make minimal, focused changes
3. Follow existing code patterns and style
4. Add appropriate error handling
5. Test your changes mentally before applying
6. Commit changes with clear, descriptive messages

Your codebase is located at: %s

When making changes, explain your reasoning clearly.`

// selfModifyNode runs the tool loop against the filesystem catalog and
// records any resulting code change.
func (a *Agent) selfModifyNode(ctx context.Context, s *TurnState) *Delta {
	start := time.Now()
	userMessage := s.LastUserMessage()
	if userMessage == "" {
		return a.selfModifyError(s, "No user message found")
	}
	if len(a.fsTools) == 0 {
		return a.selfModifyError(s, "filesystem tools are not configured")
	}

	system := fmt.Sprintf(selfModifyPrompt, a.projectRoot)
	session := a.toolChat.NewToolSession(a.cfg.FlashModel, system, userMessage, a.fsTools,
		cortex.GenOptions{Temperature: 0.2})

	reg := a.registryFor(a.fsTools)
	text, records, exhausted, err := a.runToolLoop(ctx, session, reg)
	if err != nil {
		return a.selfModifyError(s, err.Error())
	}

	files := filesModified(records)
	if len(files) > 0 && a.store != nil {
		description := "Modified files based on request: " + truncateString(userMessage, 200)
		cc := &memory.CodeChange{
			UserID:        s.UserID,
			Timestamp:     time.Now().UTC(),
			FilesModified: files,
			Description:   description,
			Reasoning:     userMessage,
			ChangeType:    "feature",
		}
		if _, err := a.store.StoreCodeChange(ctx, cc); err != nil {
			a.log.Warn("code change record failed", zap.Error(err))
		} else {
			a.log.Info("code change recorded", zap.Strings("files", files))
		}
		text += "\n\n**Files modified:** " + strings.Join(files, ", ")
	}

	stage := "self_modify"
	if exhausted {
		stage = "self_modify_truncated"
	}

	meta := s.Meta
	meta.ModelUsed = a.cfg.FlashModel
	meta.LatencyMs = time.Since(start).Milliseconds()

	return &Delta{
		Messages:        []Message{{Role: RoleAssistant, Content: text}},
		CurrentCortex:   CortexSelfModify,
		ProcessingStage: stage,
		ToolOutputs: map[string]any{
			"files_modified": files,
			"tool_results":   records,
		},
		Meta: &meta,
	}
}

func (a *Agent) selfModifyError(s *TurnState, errMsg string) *Delta {
	a.log.Error("self-modification failed", zap.String("error", errMsg))
	response := fmt.Sprintf(`I encountered an error while trying to modify the codebase: %s

This could be due to:
- File permission issues
- Protected file access
- Invalid file paths

Please check the request and try again.`, errMsg)

	return &Delta{
		Messages:        []Message{{Role: RoleAssistant, Content: response}},
		CurrentCortex:   CortexFlash,
		ProcessingStage: "error",
		Err:             errMsg,
	}
}

func truncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
