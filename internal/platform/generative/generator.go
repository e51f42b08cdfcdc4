// Package generative is the boundary to external text generation models.
// Providers are reached through langchaingo; every failure is reported as
// one of ErrUnavailable, ErrTimeout or ErrUnsupportedParameter.
package generative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

const SystemPrompt = "You are a clinical assistant generating structured patient summaries."

const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

type Options struct {
	// Temperature is sent when non-nil.
	Temperature *float64
}

// Generator turns context text into narrative text.
type Generator interface {
	Generate(ctx context.Context, contextText, model string, opts Options) (string, error)
}

type Config struct {
	Provider        string
	Model           string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	OllamaHost      string
}

// ModelFactory builds a provider model for a model name.
type ModelFactory func(model string) (llms.Model, error)

// Client calls a langchaingo provider. Provider models are built lazily per
// model name and reused.
type Client struct {
	defaultModel string
	factory      ModelFactory
	logger       zerolog.Logger

	mu     sync.Mutex
	models map[string]llms.Model
}

// New returns the generator for cfg.Provider. Provider "none" yields a
// Disabled generator.
func New(cfg Config, logger zerolog.Logger) (Generator, error) {
	if cfg.Provider == ProviderNone || cfg.Provider == "" {
		return Disabled{}, nil
	}
	factory, err := providerFactory(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(cfg.Model, factory, logger), nil
}

func NewClient(defaultModel string, factory ModelFactory, logger zerolog.Logger) *Client {
	return &Client{
		defaultModel: defaultModel,
		factory:      factory,
		logger:       logger.With().Str("component", "generative").Logger(),
		models:       make(map[string]llms.Model),
	}
}

func providerFactory(cfg Config) (ModelFactory, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return func(model string) (llms.Model, error) {
			if cfg.OpenAIAPIKey == "" {
				return nil, fmt.Errorf("%w: OpenAI API key not configured", ErrUnavailable)
			}
			opts := []openai.Option{openai.WithToken(cfg.OpenAIAPIKey), openai.WithModel(model)}
			if cfg.OpenAIBaseURL != "" {
				opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
			}
			return openai.New(opts...)
		}, nil
	case ProviderOllama:
		return func(model string) (llms.Model, error) {
			return ollama.New(ollama.WithModel(model), ollama.WithServerURL(cfg.OllamaHost))
		}, nil
	case ProviderAnthropic:
		return func(model string) (llms.Model, error) {
			if cfg.AnthropicAPIKey == "" {
				return nil, fmt.Errorf("%w: Anthropic API key not configured", ErrUnavailable)
			}
			return anthropic.New(anthropic.WithToken(cfg.AnthropicAPIKey), anthropic.WithModel(model))
		}, nil
	}
	return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
}

func (c *Client) model(name string) (llms.Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.models[name]; ok {
		return m, nil
	}
	m, err := c.factory(name)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: create model %s: %v", ErrUnavailable, name, err)
	}
	c.models[name] = m
	return m, nil
}

// Generate sends contextText under the clinical system prompt. If the
// provider rejects the temperature, the call is retried once without it.
func (c *Client) Generate(ctx context.Context, contextText, model string, opts Options) (string, error) {
	if model == "" {
		model = c.defaultModel
	}
	m, err := c.model(model)
	if err != nil {
		return "", err
	}

	text, err := c.call(ctx, m, contextText, opts.Temperature)
	var upe *UnsupportedParameterError
	if errors.As(err, &upe) && upe.Param == "temperature" && opts.Temperature != nil {
		c.logger.Warn().Str("model", model).Err(err).Msg("temperature rejected, retrying with provider default")
		text, err = c.call(ctx, m, contextText, nil)
	}
	return text, err
}

func (c *Client) call(ctx context.Context, m llms.Model, contextText string, temperature *float64) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, SystemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, contextText),
	}
	var callOpts []llms.CallOption
	if temperature != nil {
		callOpts = append(callOpts, llms.WithTemperature(*temperature))
	}

	resp, err := m.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", Classify(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no response choices", ErrUnavailable)
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return text, nil
}

// Disabled is the generator used when no provider is configured.
type Disabled struct{}

func (Disabled) Generate(context.Context, string, string, Options) (string, error) {
	return "", fmt.Errorf("%w: provider disabled", ErrUnavailable)
}
