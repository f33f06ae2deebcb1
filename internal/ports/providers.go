package ports

import (
	"context"

	"github.com/libtrack/core/internal/domain/entities"
)

// CompletionProvider is one external LLM completion API. Complete sends the
// system instruction, the mapped history and the new user message, and
// returns the reply text plus a tag naming the model that actually answered.
// Providers are tried in order by the chat service until one succeeds.
type CompletionProvider interface {
	Name() string
	Complete(ctx context.Context, system string, history []entities.ChatTurn, message string) (reply, tag string, err error)
}
