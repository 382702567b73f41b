// ABOUTME: OpenAI chat-completions implementation of Generator
// ABOUTME: Forces a tool call so the model's decision arrives as structured arguments

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIConfig configures the OpenAI generator
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  float64
	MaxTokens    int
	Instructions string

	// MaxRetries overrides the SDK default when non-negative.
	MaxRetries int
}

// OpenAIGenerator drafts replies with an OpenAI-compatible model
type OpenAIGenerator struct {
	client       openai.Client
	model        string
	temperature  float64
	maxTokens    int
	instructions string
	tools        []openai.ChatCompletionToolParam
	logger       *slog.Logger
}

var _ Generator = (*OpenAIGenerator)(nil)

type sendReplyArgs struct {
	Body string `json:"body" jsonschema:"required" jsonschema_description:"Complete email reply body in Markdown, including salutation and closing"`
}

type escalateArgs struct {
	Reason string `json:"reason" jsonschema:"required" jsonschema_description:"Why the thread needs a human instead of an automatic reply"`
	Draft  string `json:"draft,omitempty" jsonschema_description:"Optional draft reply a human can edit before sending"`
}

// NewOpenAI creates a generator. Model defaults to gpt-4o-mini.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) *OpenAIGenerator {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	instructions := strings.TrimSpace(cfg.Instructions)
	if instructions == "" {
		instructions = DefaultInstructions
	}

	return &OpenAIGenerator{
		client:       openai.NewClient(opts...),
		model:        model,
		temperature:  cfg.Temperature,
		maxTokens:    maxTokens,
		instructions: instructions,
		tools: []openai.ChatCompletionToolParam{
			tool(toolSendReply, "Send this reply to the customer.", &sendReplyArgs{}),
			tool(toolEscalate, "Hand the thread to a human operator instead of replying.", &escalateArgs{}),
		},
		logger: logger.With("component", "agent"),
	}
}

// Model returns the configured model name
func (g *OpenAIGenerator) Model() string {
	return g.model
}

// Generate asks the model to either reply or escalate
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Outcome, error) {
	params := openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(g.instructions),
			openai.UserMessage(RenderPrompt(req)),
		},
		MaxCompletionTokens: openai.Int(int64(g.maxTokens)),
		Temperature:         openai.Float(g.temperature),
		Tools:               g.tools,
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(string(openai.ChatCompletionToolChoiceOptionAutoRequired)),
		},
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Outcome{}, &GenerationError{Reason: "chat completion request", Err: err}
	}
	if len(resp.Choices) == 0 {
		return Outcome{}, &GenerationError{Reason: "no choices in response"}
	}

	choice := resp.Choices[0]
	g.logger.Debug("chat completion finished",
		"model", g.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", choice.FinishReason,
	)

	if len(choice.Message.ToolCalls) == 0 {
		return Outcome{}, &GenerationError{Reason: "model answered without calling a tool"}
	}
	call := choice.Message.ToolCalls[0]
	return decodeToolCall(call.Function.Name, call.Function.Arguments)
}

// decodeToolCall turns a tool call into an Outcome
func decodeToolCall(name, arguments string) (Outcome, error) {
	switch name {
	case toolSendReply:
		var args sendReplyArgs
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return Outcome{}, &GenerationError{Reason: "decoding send_reply arguments", Err: err}
		}
		body := strings.TrimSpace(args.Body)
		if body == "" {
			return Outcome{}, &GenerationError{Reason: "send_reply with empty body"}
		}
		return Reply(body), nil

	case toolEscalate:
		var args escalateArgs
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return Outcome{}, &GenerationError{Reason: "decoding escalate arguments", Err: err}
		}
		reason := strings.TrimSpace(args.Reason)
		if reason == "" {
			reason = "model escalated without a reason"
		}
		return Unable(reason, strings.TrimSpace(args.Draft)), nil

	default:
		return Outcome{}, &GenerationError{Reason: fmt.Sprintf("unknown tool %q", name)}
	}
}

// tool builds a function tool whose parameters are reflected from v
func tool(name, description string, v any) openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Function: shared.FunctionDefinitionParam{
			Name:        name,
			Description: openai.String(description),
			Parameters:  schemaFor(v),
		},
	}
}

// schemaFor reflects v into a JSON schema object
func schemaFor(v any) shared.FunctionParameters {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	data, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		panic(fmt.Sprintf("agent: marshalling tool schema: %v", err))
	}

	var params shared.FunctionParameters
	if err := json.Unmarshal(data, &params); err != nil {
		panic(fmt.Sprintf("agent: decoding tool schema: %v", err))
	}
	delete(params, "$schema")
	delete(params, "$id")
	return params
}
