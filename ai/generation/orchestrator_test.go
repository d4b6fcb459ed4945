package generation

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/sidekick/ai/llm"
)

type mockLLM struct {
	chatErr   error
	streamErr error
	chatText  string
	fragments []string
}

func (m *mockLLM) Chat(_ context.Context, _ []llm.Message, _ *llm.CallOptions) (string, error) {
	return m.chatText, m.chatErr
}

func (m *mockLLM) ChatStream(_ context.Context, _ []llm.Message, _ *llm.CallOptions) (<-chan string, <-chan error) {
	contentChan := make(chan string, len(m.fragments)+1)
	errChan := make(chan error, 1)
	if m.streamErr != nil {
		errChan <- m.streamErr
	} else {
		for _, f := range m.fragments {
			contentChan <- f
		}
	}
	close(contentChan)
	close(errChan)
	return contentChan, errChan
}

func (m *mockLLM) Ping(_ context.Context) error {
	if m.chatErr != nil {
		return m.chatErr
	}
	return m.streamErr
}

func TestGenerateTrimsOutput(t *testing.T) {
	o := NewOrchestrator(&mockLLM{chatText: "  the answer \n"})

	result := o.Generate(context.Background(), &Request{Prompt: "question"})
	require.False(t, result.Degraded)
	require.NoError(t, result.Err)
	require.Equal(t, "the answer", result.Text)
}

func TestGenerateDegradesOnGatewayFailure(t *testing.T) {
	cause := errors.New("connection refused")
	o := NewOrchestrator(&mockLLM{chatErr: cause})

	result := o.Generate(context.Background(), &Request{Prompt: "question"})
	require.True(t, result.Degraded)
	require.ErrorIs(t, result.Err, cause)
	require.Equal(t, unavailableMessage, result.Text)
}

func TestGenerateStreamDeliversFragments(t *testing.T) {
	o := NewOrchestrator(&mockLLM{fragments: []string{"Hello", ", ", "world"}})

	fragments, results := o.GenerateStream(context.Background(), &Request{Prompt: "hi"})

	var got []string
	for f := range fragments {
		got = append(got, f)
	}
	require.Equal(t, []string{"Hello", ", ", "world"}, got)

	result := <-results
	require.False(t, result.Degraded)
	require.NoError(t, result.Err)
}

func TestGenerateStreamDegradesToSingleFragment(t *testing.T) {
	cause := errors.New("model not loaded")
	o := NewOrchestrator(&mockLLM{streamErr: cause})

	fragments, results := o.GenerateStream(context.Background(), &Request{Prompt: "hi"})

	var got []string
	for f := range fragments {
		got = append(got, f)
	}
	require.Len(t, got, 1)
	require.Equal(t, unavailableMessage, got[0])

	result := <-results
	require.True(t, result.Degraded)
	require.ErrorIs(t, result.Err, cause)
}

func TestBuildMessagesWithContext(t *testing.T) {
	o := NewOrchestrator(&mockLLM{})

	messages := o.buildMessages(&Request{Prompt: "what is Go?", Context: "Go is a language."})
	require.Len(t, messages, 2)
	require.Equal(t, "system", messages[0].Role)
	require.Equal(t, "user", messages[1].Role)
	require.Contains(t, messages[0].Content, "Go is a language.")
	require.Contains(t, messages[0].Content, "relevant information from the knowledge base")
	require.Equal(t, "what is Go?", messages[1].Content)

	// Without context the system prompt stays bare.
	messages = o.buildMessages(&Request{Prompt: "hi"})
	require.NotContains(t, messages[0].Content, "knowledge base:")
}

func TestWithPersona(t *testing.T) {
	o := NewOrchestrator(&mockLLM{}, WithPersona("You are a pirate."))
	messages := o.buildMessages(&Request{Prompt: "ahoy"})
	require.True(t, strings.HasPrefix(messages[0].Content, "You are a pirate."))

	// Blank persona keeps the default.
	o = NewOrchestrator(&mockLLM{}, WithPersona("   "))
	messages = o.buildMessages(&Request{Prompt: "hi"})
	require.Contains(t, messages[0].Content, "personal assistant")
}

func TestLoadPersona(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/persona.yaml"
	require.NoError(t, writeFile(path, "instructions: |\n  You are terse.\n"))

	instructions, err := LoadPersona(path)
	require.NoError(t, err)
	require.Contains(t, instructions, "You are terse.")

	_, err = LoadPersona(dir + "/missing.yaml")
	require.Error(t, err)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
