// Package generation builds the final prompt from persona instructions,
// retrieved context and the user query, and drives the LLM gateway in sync or
// streaming mode.
//
// Backend failures never propagate as errors from Generate: the result
// degrades to a user-facing diagnostic so a broken model host does not take
// the chat surface down with it. Callers distinguish the cases through the
// tagged Result.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hrygo/sidekick/ai/llm"
)

const defaultPersona = `You are a helpful, knowledgeable personal assistant.
You provide accurate, concise, and helpful responses based on the context provided.
If the context doesn't contain relevant information, use your general knowledge to answer.
Always be polite and professional.`

const unavailableMessage = "The language model is currently unavailable. Please make sure the backing service is running and try again."

// Persona is the optional YAML persona file format.
type Persona struct {
	Instructions string `yaml:"instructions"`
}

// LoadPersona reads persona instructions from a YAML file.
func LoadPersona(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read persona file %s: %w", path, err)
	}
	var persona Persona
	if err := yaml.Unmarshal(data, &persona); err != nil {
		return "", fmt.Errorf("unmarshal persona file %s: %w", path, err)
	}
	if strings.TrimSpace(persona.Instructions) == "" {
		return "", fmt.Errorf("persona file %s has no instructions", path)
	}
	return persona.Instructions, nil
}

// Request describes a single generation call. Prompt is the complete user
// message; multi-turn transcripts are the caller's job to compose into it
// before calling, this component does not interpolate history.
type Request struct {
	Temperature *float32
	Prompt      string
	Context     string // retrieved context block, empty for none
	MaxTokens   int
}

// Result is the tagged outcome of a generation call. When Degraded is set,
// Text carries a user-facing diagnostic and Err the underlying cause.
type Result struct {
	Err      error
	Text     string
	Degraded bool
}

type Orchestrator struct {
	llm     llm.Service
	persona string
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithPersona replaces the built-in persona instructions.
func WithPersona(instructions string) Option {
	return func(o *Orchestrator) {
		if strings.TrimSpace(instructions) != "" {
			o.persona = instructions
		}
	}
}

func NewOrchestrator(llmService llm.Service, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		llm:     llmService,
		persona: defaultPersona,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) buildMessages(req *Request) []llm.Message {
	systemPrompt := o.persona
	if req.Context != "" {
		systemPrompt += fmt.Sprintf(`

Here is some relevant information from the knowledge base:
---
%s
---

Use this information to help answer the user's question.`, req.Context)
	}

	return []llm.Message{
		llm.SystemPrompt(systemPrompt),
		llm.UserMessage(req.Prompt),
	}
}

func callOptions(req *Request) *llm.CallOptions {
	return &llm.CallOptions{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

// Generate performs a synchronous generation call. The returned text is
// trimmed of surrounding whitespace.
func (o *Orchestrator) Generate(ctx context.Context, req *Request) Result {
	text, err := o.llm.Chat(ctx, o.buildMessages(req), callOptions(req))
	if err != nil {
		slog.Warn("generation degraded to diagnostic message", "error", err)
		return Result{Text: unavailableMessage, Degraded: true, Err: err}
	}
	return Result{Text: strings.TrimSpace(text)}
}

// GenerateStream performs a streaming generation call. Fragments arrive on
// the first channel, which is closed when the sequence is exhausted; exactly
// one Result follows on the second. When the gateway is unavailable the
// fragment channel yields a single diagnostic fragment. Any end-of-stream
// signalling toward the transport (e.g. an SSE terminal event) is the
// caller's responsibility.
func (o *Orchestrator) GenerateStream(ctx context.Context, req *Request) (<-chan string, <-chan Result) {
	fragments := make(chan string, 10)
	resultChan := make(chan Result, 1)

	contentChan, errChan := o.llm.ChatStream(ctx, o.buildMessages(req), callOptions(req))

	go func() {
		defer close(fragments)
		defer close(resultChan)

		sent := 0
		for fragment := range contentChan {
			select {
			case fragments <- fragment:
				sent++
			case <-ctx.Done():
				resultChan <- Result{Err: ctx.Err()}
				return
			}
		}

		if err := <-errChan; err != nil {
			slog.Warn("streaming generation degraded", "error", err, "fragments_sent", sent)
			if sent == 0 {
				select {
				case fragments <- unavailableMessage:
				case <-ctx.Done():
				}
			}
			resultChan <- Result{Text: unavailableMessage, Degraded: true, Err: err}
			return
		}

		resultChan <- Result{}
	}()

	return fragments, resultChan
}
