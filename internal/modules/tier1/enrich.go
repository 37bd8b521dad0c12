package tier1

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/igasovic/PKM-sub000/internal/modules/quality"
	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
	"github.com/igasovic/PKM-sub000/internal/platform/openai"
)

type EnrichResponse struct {
	Result
	PromptMode string          `json:"prompt_mode"`
	Model      string          `json:"model"`
	Quality    quality.Signals `json:"quality"`
}

// Enrich classifies one item synchronously.
func (s *Service) Enrich(ctx context.Context, item Item) (*EnrichResponse, error) {
	var (
		prompt Prompt
		answer string
		parsed *Result
		out    *EnrichResponse
	)
	_, err := s.pipe.run(ctx, FlowSync, []attribute.KeyValue{attribute.String("model", s.cfg.Model)},
		step{StageLoaded, func(context.Context) error {
			if strings.TrimSpace(item.CleanText) == "" {
				return fmt.Errorf("%w: clean_text is required", pkgerrors.ErrInvalidArgument)
			}
			return nil
		}},
		step{StagePrompted, func(context.Context) error {
			prompt = BuildPrompt(item)
			return nil
		}},
		step{StageResponded, func(ctx context.Context) error {
			var err error
			answer, err = s.api.Complete(ctx, openai.CompletionRequest{Model: s.cfg.Model, System: prompt.System, User: prompt.User})
			return err
		}},
		step{StageParsed, func(context.Context) error {
			var err error
			parsed, err = ParseResult(answer)
			return err
		}},
		step{StageWritten, func(context.Context) error {
			out = &EnrichResponse{Result: *parsed, PromptMode: prompt.Mode, Model: s.cfg.Model}
			if s.scorer != nil {
				out.Quality = s.scorer.Score(item.CleanText)
			}
			return nil
		}},
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}
