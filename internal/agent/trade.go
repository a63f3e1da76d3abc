package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alex/internal/brokerage"
	"alex/internal/cortex"
)

const tradeSystemPrompt = `You are Alex, an AI assistant with trading capabilities through tastytrade.

## Current Trading Mode
%s

## CRITICAL SAFETY RULES
1. **ALWAYS use dry-run first**: Before ANY trade execution, call place_order_dry_run or close_position_dry_run
2. **ALWAYS require confirmation**: After dry-run, present the trade details to the user and wait for explicit confirmation (e.g., "yes", "confirm", "do it")
3. **NEVER auto-execute**: Do not call confirm_trade until the user explicitly confirms
4. **Be transparent**: Always show the mode (SANDBOX/LIVE) and order details

## Confirmation Flow
1. User requests a trade
2. Call dry-run tool to validate, which returns a trade_id
3. Present trade details: "Ready to [action] [quantity] [symbol] at [price]. This is [mode] mode. Confirm?"
4. WAIT for the user to say "yes", "confirm", "execute", or similar
5. Only then call confirm_trade(trade_id)

## When User Confirms
If the user says "yes", "confirm", "do it", "execute", or similar affirmative:
- If there's a pending trade_id from the previous message, call confirm_trade with that trade_id
- If no trade_id exists, ask them to specify the trade first

## Response Style
- Be concise but informative
- Always show P&L for positions
- Format numbers with commas and appropriate decimals`

// tradeNode runs the tool loop against the brokerage catalog. Missing
// credentials produce a deterministic explanatory message rather than
// an error turn.
func (a *Agent) tradeNode(ctx context.Context, s *TurnState) *Delta {
	start := time.Now()
	userMessage := s.LastUserMessage()
	if userMessage == "" {
		return a.tradeError(s, "No user message found")
	}

	catalog, mode, err := a.tradeCatalog(s.UserID)
	if err != nil {
		if errors.Is(err, brokerage.ErrNotConfigured) {
			return a.tradeUnconfigured(s, err)
		}
		return a.tradeError(s, err.Error())
	}

	modeDisplay := "LIVE TRADING"
	if mode == "sandbox" {
		modeDisplay = "SANDBOX (Paper Trading)"
	}
	system := fmt.Sprintf(tradeSystemPrompt, modeDisplay)

	session := a.toolChat.NewToolSession(a.cfg.FlashModel, system, userMessage, catalog,
		cortex.GenOptions{Temperature: 0.3})

	reg := a.registryFor(catalog)
	text, records, exhausted, err := a.runToolLoop(ctx, session, reg)
	if err != nil {
		return a.tradeError(s, err.Error())
	}

	var executed []string
	for _, r := range records {
		if r.Tool == "confirm_trade" && r.Result != nil && r.Result.IsSuccess() {
			if id, ok := r.Args["trade_id"].(string); ok {
				executed = append(executed, id)
			}
		}
	}

	stage := "trade"
	if exhausted {
		stage = "trade_truncated"
	}

	meta := s.Meta
	meta.ModelUsed = a.cfg.FlashModel
	meta.LatencyMs = time.Since(start).Milliseconds()

	a.log.Info("trade turn complete",
		zap.Int("tool_calls", len(records)),
		zap.Int("executed_trades", len(executed)),
		zap.String("mode", mode))

	return &Delta{
		Messages:        []Message{{Role: RoleAssistant, Content: text}},
		CurrentCortex:   CortexTrade,
		ProcessingStage: stage,
		ToolOutputs: map[string]any{
			"tool_results":    records,
			"executed_trades": executed,
		},
		Meta: &meta,
	}
}

func (a *Agent) tradeUnconfigured(s *TurnState, err error) *Delta {
	a.log.Warn("trade configuration error", zap.Error(err))
	response := fmt.Sprintf(`Trading is not available: %s

To enable trading, configure your tastytrade credentials:
- For sandbox: TASTY_SANDBOX_USERNAME and TASTY_SANDBOX_PASSWORD
- For live: TASTY_USERNAME and TASTY_PASSWORD`, err)

	return &Delta{
		Messages:        []Message{{Role: RoleAssistant, Content: response}},
		CurrentCortex:   CortexFlash,
		ProcessingStage: "error",
		Err:             err.Error(),
	}
}

func (a *Agent) tradeError(s *TurnState, errMsg string) *Delta {
	a.log.Error("trade turn failed", zap.String("error", errMsg))
	response := fmt.Sprintf(`I encountered an error while processing your trading request: %s

Please try again or check your request.`, errMsg)

	return &Delta{
		Messages:        []Message{{Role: RoleAssistant, Content: response}},
		CurrentCortex:   CortexFlash,
		ProcessingStage: "error",
		Err:             errMsg,
	}
}
