package summary

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/ehr/clinsum/internal/domain/episode"
	"github.com/ehr/clinsum/internal/domain/facts"
	"github.com/ehr/clinsum/internal/domain/narrative"
	"github.com/ehr/clinsum/internal/platform/generative"
)

type Config struct {
	DefaultModel string
	// Temperature is sent on the first generative attempt when non-nil.
	Temperature *float64
	// Timeout bounds each generative call.
	Timeout time.Duration
}

// Service runs the summary pipeline: resolve the latest episode, extract
// facts, compose the context, then generate or fall back.
type Service struct {
	resolver  *episode.Resolver
	extractor *facts.Extractor
	gen       generative.Generator
	cfg       Config
	logger    zerolog.Logger
}

func NewService(resolver *episode.Resolver, extractor *facts.Extractor, gen generative.Generator, cfg Config, logger zerolog.Logger) *Service {
	if gen == nil {
		gen = generative.Disabled{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Service{
		resolver:  resolver,
		extractor: extractor,
		gen:       gen,
		cfg:       cfg,
		logger:    logger.With().Str("component", "summary").Logger(),
	}
}

// PatientIDs lists every patient with records.
func (s *Service) PatientIDs() []int64 {
	return s.resolver.PatientIDs()
}

func (s *Service) Episodes(patientID int64) ([]episode.Span, error) {
	return s.resolver.Episodes(patientID)
}

// Context runs the pipeline up to composition for the patient's latest
// episode.
func (s *Service) Context(ctx context.Context, patientID int64) (*Context, error) {
	episodeID, err := s.resolver.LatestEpisodeID(patientID)
	if err != nil {
		return nil, err
	}
	return s.EpisodeContext(ctx, patientID, episodeID)
}

func (s *Service) EpisodeContext(ctx context.Context, patientID, episodeID int64) (*Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := s.resolver.EpisodeBundle(patientID, episodeID)
	if err != nil {
		return nil, err
	}
	f := s.extractor.Extract(b)
	return &Context{
		PatientID:   patientID,
		EpisodeID:   episodeID,
		Span:        b.Span,
		Facts:       f,
		ContextText: narrative.Compose(f),
	}, nil
}

// Summarize produces the summary for the patient's latest episode.
// Resolution errors abort the request; generative failures never do.
func (s *Service) Summarize(ctx context.Context, req Request) (*Response, error) {
	sc, err := s.Context(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}

	model := req.ModelName
	if model == "" {
		model = s.cfg.DefaultModel
	}
	resp := &Response{
		PatientID: req.PatientID,
		Debug: Debug{
			EpisodeID:     sc.EpisodeID,
			UseGenerative: req.UseGenerative,
			Model:         model,
		},
	}

	if !req.UseGenerative {
		resp.Summary = narrative.Fallback(sc.Facts)
		resp.Debug.GenerativeStatus = StatusSkipped
		return s.finish(resp), nil
	}

	text, err := s.generate(ctx, sc.ContextText, model)
	if err != nil {
		s.logger.Warn().Err(err).
			Int64("patient_id", req.PatientID).
			Int64("episode_id", sc.EpisodeID).
			Str("model", model).
			Str("failure", generative.Status(err)).
			Msg("generative call failed, using fallback")
		resp.Summary = narrative.Fallback(sc.Facts)
		resp.Debug.GenerativeStatus = StatusFallback
		resp.Debug.FailureKind = generative.Status(err)
		resp.Debug.Error = err.Error()
		resp.Debug.ContextPreview = preview(sc.ContextText, ContextPreviewChars)
		return s.finish(resp), nil
	}
	resp.Summary = text
	resp.Debug.GenerativeStatus = StatusSuccess
	return s.finish(resp), nil
}

func (s *Service) generate(ctx context.Context, contextText, model string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := s.gen.Generate(ctx, contextText, model, generative.Options{Temperature: s.cfg.Temperature})
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", generative.Classify(r.err)
		}
		if r.text == "" {
			return "", fmt.Errorf("%w: empty response", generative.ErrUnavailable)
		}
		return r.text, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", generative.ErrTimeout, ctx.Err())
	}
}

func (s *Service) finish(resp *Response) *Response {
	resp.Debug.Citations = narrative.ExtractCitations(resp.Summary)
	if resp.Debug.Citations == nil {
		resp.Debug.Citations = []string{}
	}
	s.logger.Info().
		Int64("patient_id", resp.PatientID).
		Int64("episode_id", resp.Debug.EpisodeID).
		Str("generative_status", resp.Debug.GenerativeStatus).
		Int("citations", len(resp.Debug.Citations)).
		Msg("summary generated")
	return resp
}

func preview(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}
