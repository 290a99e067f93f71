// Package planner wraps langchaingo LLMs behind the decision-making
// oracle that drives the tool-use loop.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/dakshaarvind-fetch/RealEstate/internal/config"
)

// NewModel creates an LLM model for the given model name based on the
// configured provider.
func NewModel(cfg config.Config, modelName string) (llms.Model, error) {
	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err := ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		return model, nil

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return model, nil

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err := anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
		return model, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}

// Planner asks the model, each turn, whether to call tools or answer.
type Planner struct {
	llm       llms.Model
	modelName string
	maxTokens int
}

// New creates a Planner using the configured planner model.
func New(cfg config.Config) (*Planner, error) {
	model, err := NewModel(cfg, cfg.PlannerModel)
	if err != nil {
		return nil, err
	}
	return &Planner{
		llm:       model,
		modelName: cfg.PlannerModel,
		maxTokens: 2048,
	}, nil
}

// Model returns the planner model name.
func (p *Planner) Model() string {
	return p.modelName
}

// Decide sends the conversation and tool schemas to the model and
// classifies its reply.
func (p *Planner) Decide(ctx context.Context, history []llms.MessageContent, tools []llms.Tool) (Decision, error) {
	response, err := p.llm.GenerateContent(ctx, history,
		llms.WithTools(tools),
		llms.WithMaxTokens(p.maxTokens),
	)
	if err != nil {
		return Decision{}, fmt.Errorf("planner call: %w", err)
	}
	if len(response.Choices) == 0 {
		return Decision{}, fmt.Errorf("planner returned no choices")
	}
	decision := classify(response.Choices[0])
	decision.InputTokens, decision.OutputTokens = tokenUsage(response.Choices[0])
	return decision, nil
}

// tokenUsage pulls token counts out of GenerationInfo. Providers name
// the keys differently, and some report nothing at all.
func tokenUsage(choice *llms.ContentChoice) (input, output int64) {
	info := choice.GenerationInfo
	if info == nil {
		return 0, 0
	}
	input = intFromInfo(info, "InputTokens", "PromptTokens")
	output = intFromInfo(info, "OutputTokens", "CompletionTokens")
	return input, output
}

func intFromInfo(info map[string]any, keys ...string) int64 {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}

func classify(choice *llms.ContentChoice) Decision {
	if len(choice.ToolCalls) > 0 {
		calls := make([]ToolCall, 0, len(choice.ToolCalls))
		for _, tc := range choice.ToolCalls {
			call := ToolCall{ID: tc.ID}
			if tc.FunctionCall != nil {
				call.Name = tc.FunctionCall.Name
				call.Arguments = tc.FunctionCall.Arguments
			}
			calls = append(calls, call)
		}
		return Decision{
			Kind:       KindToolCalls,
			Calls:      calls,
			Text:       choice.Content,
			StopReason: choice.StopReason,
		}
	}

	if strings.TrimSpace(choice.Content) != "" {
		return Decision{
			Kind:       KindFinalAnswer,
			Text:       choice.Content,
			StopReason: choice.StopReason,
		}
	}

	return Decision{Kind: KindOther, StopReason: choice.StopReason}
}
