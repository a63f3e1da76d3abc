package agent

import (
	"context"

	"go.uber.org/zap"

	"alex/internal/memory"
)

// retrieveMemoryNode loads the memory context for the turn. The
// retriever is fail-soft, so this node never errors the turn.
func (a *Agent) retrieveMemoryNode(ctx context.Context, s *TurnState) *Delta {
	if a.retriever == nil {
		return &Delta{Memory: &memory.Context{}, ProcessingStage: "retrieve_memory"}
	}

	mc := a.retriever.Retrieve(ctx, s.LastUserMessage(), s.Meta.Topics, s.Meta.Entities)
	a.log.Debug("memory retrieved",
		zap.Int("relevant_interactions", len(mc.RelevantInteractions)),
		zap.Int("concepts", len(mc.RelatedConcepts)))

	return &Delta{Memory: mc, ProcessingStage: "retrieve_memory"}
}

// storeInteractionNode persists the completed exchange. Storage is
// best-effort; a failure is logged and the response still goes out.
func (a *Agent) storeInteractionNode(ctx context.Context, s *TurnState) *Delta {
	if a.store == nil {
		return &Delta{ProcessingStage: "stored"}
	}

	userMessage := s.LastUserMessage()
	assistantResponse := s.LastAssistantMessage()

	if err := a.store.EnsureUser(ctx, s.UserID); err != nil {
		a.log.Warn("ensure user failed", zap.Error(err))
		return &Delta{ProcessingStage: "stored"}
	}

	var embedding []float32
	if a.embedder != nil {
		vec, err := a.embedder.Embed(ctx, userMessage+"\n"+assistantResponse)
		if err != nil {
			a.log.Warn("interaction embedding failed", zap.Error(err))
		} else {
			embedding = vec
		}
	}

	in := &memory.Interaction{
		UserID:            s.UserID,
		Date:              memory.DateOf(s.Meta.Timestamp),
		Timestamp:         s.Meta.Timestamp,
		UserMessage:       userMessage,
		AssistantResponse: assistantResponse,
		Intent:            s.Meta.Intent,
		ComplexityScore:   s.Meta.ComplexityScore,
		ModelUsed:         s.Meta.ModelUsed,
	}
	id, err := a.store.StoreInteraction(ctx, in, s.Meta.Topics, embedding)
	if err != nil {
		a.log.Warn("interaction store failed", zap.Error(err))
		return &Delta{ProcessingStage: "stored"}
	}

	a.log.Info("interaction stored",
		zap.Int64("id", id),
		zap.String("intent", s.Meta.Intent))
	return &Delta{ProcessingStage: "stored"}
}
