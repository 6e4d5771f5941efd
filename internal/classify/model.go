// Package classify delegates relevance decisions and summaries to a text
// completion service. Calls are retried like fetches: a fixed number of
// attempts with a fixed delay, and responses are parsed strictly.
package classify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/IshaanNene/gleaner/internal/config"
)

// Completer sends a single prompt and returns the raw completion.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Model wraps a langchaingo model.
type Model struct {
	llm         llms.Model
	modelName   string
	temperature float64
	maxTokens   int
}

// NewModel creates a completion model for the configured provider.
func NewModel(cc config.ClassifyConfig) (*Model, error) {
	var model llms.Model
	var err error

	switch cc.Provider {
	case "openai":
		if cc.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		opts := []openai.Option{
			openai.WithToken(cc.APIKey),
			openai.WithModel(cc.Model),
		}
		// Any OpenAI-compatible endpoint works here.
		if cc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cc.BaseURL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cc.Model)}
		if cc.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cc.BaseURL))
		}
		model, err = ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case "anthropic":
		if cc.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cc.APIKey),
			anthropic.WithModel(cc.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported completion provider: %s", cc.Provider)
	}

	return &Model{
		llm:         model,
		modelName:   cc.Model,
		temperature: cc.Temperature,
		maxTokens:   cc.MaxTokens,
	}, nil
}

// Complete implements Completer.
func (m *Model) Complete(ctx context.Context, prompt string) (string, error) {
	response, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt,
		llms.WithTemperature(m.temperature),
		llms.WithMaxTokens(m.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return response, nil
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.modelName
}

// NewStages builds the enabled completion stages over one shared model,
// classifier first.
func NewStages(cc config.ClassifyConfig, logger *slog.Logger) ([]Stage, error) {
	if !cc.Enabled && !cc.Summarize.Enabled {
		return nil, nil
	}
	m, err := NewModel(cc)
	if err != nil {
		return nil, err
	}
	logger.Info("completion model ready", "provider", cc.Provider, "model", m.Name())
	return Stages(m, cc, logger)
}

// Stages builds the enabled stages over c.
func Stages(c Completer, cc config.ClassifyConfig, logger *slog.Logger, opts ...Option) ([]Stage, error) {
	var stages []Stage
	if cc.Enabled {
		cl, err := NewClassifier(c, cc, logger, opts...)
		if err != nil {
			return nil, err
		}
		stages = append(stages, cl)
	}
	if cc.Summarize.Enabled {
		s, err := NewSummarizer(c, cc, logger, opts...)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	return stages, nil
}
