package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libtrack/core/internal/domain/entities"
	"github.com/libtrack/core/internal/infrastructure/logger"
	"github.com/libtrack/core/internal/ports"
)

type stubProvider struct {
	name   string
	reply  string
	tag    string
	err    error
	system string
	calls  int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Complete(ctx context.Context, system string, history []entities.ChatTurn, message string) (string, string, error) {
	p.calls++
	p.system = system
	if p.err != nil {
		return "", "", p.err
	}
	return p.reply, p.tag, nil
}

func TestChatService_PrimaryAnswers(t *testing.T) {
	primary := &stubProvider{name: "openai", reply: "Adaab! Fees is month ki 300 hai.", tag: "gpt-4o-mini"}
	fallback := &stubProvider{name: "gemini", reply: "unused", tag: "gemini-1.5-flash"}

	svc := NewChatService([]ports.CompletionProvider{primary, fallback}, logger.NewNop())

	result, err := svc.Chat(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "Adaab! Fees is month ki 300 hai.", result.Reply)
	assert.Equal(t, "gpt-4o-mini", result.Provider)
	assert.Equal(t, 1, primary.calls)
	assert.Zero(t, fallback.calls)
	assert.NotEmpty(t, primary.system, "system instruction must be passed through")
}

func TestChatService_FallbackOnPrimaryFailure(t *testing.T) {
	primary := &stubProvider{name: "openai", err: errors.New("status 500")}
	fallback := &stubProvider{name: "gemini", reply: "Ji, main madad karta hoon.", tag: "gemini-1.5-flash"}

	svc := NewChatService([]ports.CompletionProvider{primary, fallback}, logger.NewNop())

	result, err := svc.Chat(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini-1.5-flash", result.Provider)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestChatService_AllProvidersFailReturnsLastError(t *testing.T) {
	primary := &stubProvider{name: "openai", err: errors.New("primary down")}
	fallback := &stubProvider{name: "gemini", err: errors.New("fallback down")}

	svc := NewChatService([]ports.CompletionProvider{primary, fallback}, logger.NewNop())

	_, err := svc.Chat(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.EqualError(t, err, "fallback down")
}

func TestChatService_NoProviderConfigured(t *testing.T) {
	svc := NewChatService(nil, logger.NewNop())

	assert.False(t, svc.Configured())

	_, err := svc.Chat(context.Background(), "hello", nil)
	assert.ErrorIs(t, err, entities.ErrNoProvider)
}

func TestChatService_ProviderNames(t *testing.T) {
	svc := NewChatService([]ports.CompletionProvider{
		&stubProvider{name: "openai"},
		&stubProvider{name: "gemini"},
	}, logger.NewNop())

	assert.Equal(t, []string{"openai", "gemini"}, svc.ProviderNames())
}
