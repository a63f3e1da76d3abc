package agent

// Node names used in the turn graph.
const (
	nodeClassify       = "classify"
	nodeRetrieveMemory = "retrieve_memory"
	nodeRespondFlash   = "respond_flash"
	nodeRespondPro     = "respond_pro"
	nodeRespondEngine  = "respond_engineer"
	nodeRespondSelfMod = "respond_self_modify"
	nodeRespondTrade   = "respond_trade"
	nodeStore          = "store_interaction"
	nodeHandleError    = "handle_error"
)

var engineeringIntents = map[string]bool{
	"code_change": true,
	"refactor":    true,
	"debug":       true,
	"test":        true,
	"deploy":      true,
}

var memoryIntents = map[string]bool{
	"memory_query":  true,
	"question":      true,
	"task_planning": true,
}

// routeAfterClassify picks the responder from classification results.
// Intent checks take precedence over the complexity cutoff.
func routeAfterClassify(threshold float64) RouteFunc {
	return func(s *TurnState) string {
		if s.Err != "" || s.ProcessingStage == "error" {
			return nodeHandleError
		}
		switch {
		case s.Meta.Intent == "self_modify":
			return nodeRespondSelfMod
		case s.Meta.Intent == "trade":
			return nodeRespondTrade
		case engineeringIntents[s.Meta.Intent]:
			return nodeRespondEngine
		case memoryIntents[s.Meta.Intent]:
			return nodeRetrieveMemory
		case s.Meta.ComplexityScore >= threshold:
			return nodeRespondPro
		default:
			return nodeRespondFlash
		}
	}
}

// routeAfterMemory escalates to Pro for complex requests or when the
// retrieved context is dense enough to warrant deeper reasoning.
func routeAfterMemory(threshold float64) RouteFunc {
	return func(s *TurnState) string {
		if s.Err != "" || s.ProcessingStage == "error" {
			return nodeHandleError
		}
		if s.Meta.ComplexityScore >= threshold {
			return nodeRespondPro
		}
		if s.Memory != nil && len(s.Memory.RelevantInteractions) > 3 {
			return nodeRespondPro
		}
		return nodeRespondFlash
	}
}

// shouldStore skips persistence for errored turns and trivially short
// exchanges.
func shouldStore(s *TurnState) string {
	if s.Err != "" {
		return End
	}
	user := s.LastUserMessage()
	assistant := s.LastAssistantMessage()
	if len(user) < 5 || len(assistant) < 10 {
		return End
	}
	return nodeStore
}
