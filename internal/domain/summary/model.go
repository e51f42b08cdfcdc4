package summary

import (
	"github.com/ehr/clinsum/internal/domain/episode"
	"github.com/ehr/clinsum/internal/domain/facts"
)

// Generative status values reported in the debug trace.
const (
	StatusSuccess  = "success"
	StatusFallback = "fallback"
	StatusSkipped  = "skipped"
)

// ContextPreviewChars bounds the context excerpt kept in the debug trace when
// the generative call fails.
const ContextPreviewChars = 500

type Request struct {
	PatientID     int64  `json:"patient_id"`
	UseGenerative bool   `json:"use_llm"`
	ModelName     string `json:"model,omitempty"`
}

type Debug struct {
	EpisodeID        int64    `json:"episode_id"`
	UseGenerative    bool     `json:"use_llm"`
	Model            string   `json:"model,omitempty"`
	GenerativeStatus string   `json:"generative_status"`
	FailureKind      string   `json:"failure_kind,omitempty"`
	Error            string   `json:"error,omitempty"`
	ContextPreview   string   `json:"context_preview,omitempty"`
	Citations        []string `json:"citations"`
}

type Response struct {
	PatientID int64  `json:"patient_id"`
	Summary   string `json:"summary"`
	Debug     Debug  `json:"debug"`
}

// Context is the intermediate output of the pipeline up to composition,
// exposed for inspection.
type Context struct {
	PatientID   int64          `json:"patient_id"`
	EpisodeID   int64          `json:"episode_id"`
	Span        episode.Span   `json:"episode"`
	Facts       *facts.Summary `json:"facts"`
	ContextText string         `json:"context_text"`
}
