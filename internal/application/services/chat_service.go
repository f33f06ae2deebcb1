package services

import (
	"context"
	"time"

	"github.com/libtrack/core/internal/domain/entities"
	"github.com/libtrack/core/internal/infrastructure/logger"
	"github.com/libtrack/core/internal/ports"
)

// systemPrompt is the fixed persona prepended to every upstream request.
const systemPrompt = `You are Kitaab Dost, the assistant of a small tutoring library. ` +
	`You help the librarian with student records, monthly library fees, book ` +
	`suggestions and short study questions. Reply briefly and politely in simple ` +
	`English mixed with everyday Roman Urdu where it feels natural. If you do not ` +
	`know something, say so instead of guessing.`

// ChatService forwards a user message plus history to an ordered chain of
// completion providers and returns the first successful reply. Calls are
// stateless; nothing is cached or retried beyond the chain itself.
type ChatService struct {
	providers []ports.CompletionProvider
	logger    *logger.Logger
}

// NewChatService creates a new chat service. Providers are tried in the
// order given.
func NewChatService(providers []ports.CompletionProvider, appLogger *logger.Logger) *ChatService {
	return &ChatService{
		providers: providers,
		logger:    appLogger.WithComponent("chat"),
	}
}

// ChatResult is a successful completion tagged with the provider/model that
// produced it.
type ChatResult struct {
	Reply    string `json:"reply"`
	Provider string `json:"provider"`
}

// Configured reports whether at least one provider is in the chain.
func (s *ChatService) Configured() bool {
	return len(s.providers) > 0
}

// ProviderNames lists the configured chain in order.
func (s *ChatService) ProviderNames() []string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	return names
}

// Chat sends the message down the provider chain. On success the result
// carries the tag of whichever model answered; when every provider fails the
// last failure is returned as a single error.
func (s *ChatService) Chat(ctx context.Context, message string, history []entities.ChatTurn) (*ChatResult, error) {
	if len(s.providers) == 0 {
		return nil, entities.ErrNoProvider
	}

	var lastErr error
	for _, p := range s.providers {
		start := time.Now()
		reply, tag, err := p.Complete(ctx, systemPrompt, history, message)
		s.logger.LogProviderCall(p.Name(), float64(time.Since(start).Nanoseconds())/1e6, err)
		if err != nil {
			lastErr = err
			continue
		}
		return &ChatResult{Reply: reply, Provider: tag}, nil
	}
	return nil, lastErr
}
