// Package extract enriches document text with structured metadata from a
// chat-completion model. Each document kind has a fixed JSON field shape;
// extraction failures degrade to a fallback object so ingestion never
// blocks on the model.
package extract

import (
	"context"
	"encoding/json"
	"log/slog"

	gverrors "github.com/govreporter/govreporter/internal/errors"
)

const (
	// minTopics and maxTopics bound topics_or_policy_areas. Too many
	// topics are clipped; too few only warn.
	minTopics = 5
	maxTopics = 8
)

// Extractor produces model-extracted metadata for document text.
//
// Both methods degrade instead of failing outright: on an unrecoverable
// error they return the kind's fallback fields together with a non-nil
// error, and the caller decides whether to flag the document for
// reprocessing.
type Extractor interface {
	// ExtractScotus extracts fields from a Supreme Court opinion.
	// When syllabus is non-empty it is treated as the authoritative
	// source for the holding, outcome, and issue fields.
	ExtractScotus(ctx context.Context, text, syllabus string) (*ScotusFields, error)

	// ExtractEO extracts fields from an executive order.
	ExtractEO(ctx context.Context, text string) (*EOFields, error)
}

// ScotusFields is the model-extracted metadata for a Supreme Court opinion.
type ScotusFields struct {
	PlainLanguageSummary    string   `json:"plain_language_summary"`
	ConstitutionCited       []string `json:"constitution_cited"`
	FederalStatutesCited    []string `json:"federal_statutes_cited"`
	FederalRegulationsCited []string `json:"federal_regulations_cited"`
	CasesCited              []string `json:"cases_cited"`
	TopicsOrPolicyAreas     []string `json:"topics_or_policy_areas"`
	HoldingPlain            string   `json:"holding_plain"`
	OutcomeSimple           string   `json:"outcome_simple"`
	IssuePlain              string   `json:"issue_plain"`
	Reasoning               string   `json:"reasoning"`
}

// Metadata returns the fields as a flat map for merging into a chunk payload.
func (f *ScotusFields) Metadata() map[string]any {
	return map[string]any{
		"plain_language_summary":    f.PlainLanguageSummary,
		"constitution_cited":        f.ConstitutionCited,
		"federal_statutes_cited":    f.FederalStatutesCited,
		"federal_regulations_cited": f.FederalRegulationsCited,
		"cases_cited":               f.CasesCited,
		"topics_or_policy_areas":    f.TopicsOrPolicyAreas,
		"holding_plain":             f.HoldingPlain,
		"outcome_simple":            f.OutcomeSimple,
		"issue_plain":               f.IssuePlain,
		"reasoning":                 f.Reasoning,
	}
}

// applyDefaults replaces nil slices so every field marshals as its JSON
// shape even when the model omitted it.
func (f *ScotusFields) applyDefaults() {
	f.ConstitutionCited = emptyIfNil(f.ConstitutionCited)
	f.FederalStatutesCited = emptyIfNil(f.FederalStatutesCited)
	f.FederalRegulationsCited = emptyIfNil(f.FederalRegulationsCited)
	f.CasesCited = emptyIfNil(f.CasesCited)
	f.TopicsOrPolicyAreas = emptyIfNil(f.TopicsOrPolicyAreas)
}

// EOFields is the model-extracted metadata for an executive order.
type EOFields struct {
	PlainLanguageSummary    string   `json:"plain_language_summary"`
	AgenciesImpacted        []string `json:"agencies_impacted"`
	ConstitutionCited       []string `json:"constitution_cited"`
	FederalStatutesCited    []string `json:"federal_statutes_cited"`
	FederalRegulationsCited []string `json:"federal_regulations_cited"`
	CasesCited              []string `json:"cases_cited"`
	TopicsOrPolicyAreas     []string `json:"topics_or_policy_areas"`
}

// Metadata returns the fields as a flat map for merging into a chunk payload.
func (f *EOFields) Metadata() map[string]any {
	return map[string]any{
		"plain_language_summary":    f.PlainLanguageSummary,
		"agencies_impacted":         f.AgenciesImpacted,
		"constitution_cited":        f.ConstitutionCited,
		"federal_statutes_cited":    f.FederalStatutesCited,
		"federal_regulations_cited": f.FederalRegulationsCited,
		"cases_cited":               f.CasesCited,
		"topics_or_policy_areas":    f.TopicsOrPolicyAreas,
	}
}

func (f *EOFields) applyDefaults() {
	f.AgenciesImpacted = emptyIfNil(f.AgenciesImpacted)
	f.ConstitutionCited = emptyIfNil(f.ConstitutionCited)
	f.FederalStatutesCited = emptyIfNil(f.FederalStatutesCited)
	f.FederalRegulationsCited = emptyIfNil(f.FederalRegulationsCited)
	f.CasesCited = emptyIfNil(f.CasesCited)
	f.TopicsOrPolicyAreas = emptyIfNil(f.TopicsOrPolicyAreas)
}

// FallbackScotusFields returns the placeholder fields stored when
// extraction fails for an opinion.
func FallbackScotusFields() *ScotusFields {
	return &ScotusFields{
		PlainLanguageSummary:    "Unable to generate summary.",
		ConstitutionCited:       []string{},
		FederalStatutesCited:    []string{},
		FederalRegulationsCited: []string{},
		CasesCited:              []string{},
		TopicsOrPolicyAreas:     []string{"supreme court", "legal opinion", "court decision"},
		HoldingPlain:            "Unable to extract holding.",
		OutcomeSimple:           "Unable to extract outcome.",
		IssuePlain:              "Unable to extract issue.",
		Reasoning:               "Unable to extract reasoning.",
	}
}

// FallbackEOFields returns the placeholder fields stored when extraction
// fails for an executive order.
func FallbackEOFields() *EOFields {
	return &EOFields{
		PlainLanguageSummary:    "Unable to generate summary.",
		AgenciesImpacted:        []string{},
		ConstitutionCited:       []string{},
		FederalStatutesCited:    []string{},
		FederalRegulationsCited: []string{},
		CasesCited:              []string{},
		TopicsOrPolicyAreas:     []string{"executive order", "federal policy", "presidential action"},
	}
}

// decodeScotusFields parses a model response, fills defaults, and clamps
// the topic list.
func decodeScotusFields(raw string, logger *slog.Logger) (*ScotusFields, error) {
	var f ScotusFields
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, gverrors.New(gverrors.ErrCodeMalformedResponse,
			"model returned invalid JSON", err)
	}
	f.applyDefaults()
	f.TopicsOrPolicyAreas = clampTopics(f.TopicsOrPolicyAreas, logger)
	return &f, nil
}

func decodeEOFields(raw string, logger *slog.Logger) (*EOFields, error) {
	var f EOFields
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, gverrors.New(gverrors.ErrCodeMalformedResponse,
			"model returned invalid JSON", err)
	}
	f.applyDefaults()
	f.TopicsOrPolicyAreas = clampTopics(f.TopicsOrPolicyAreas, logger)
	return &f, nil
}

// clampTopics clips the topic list to maxTopics. A short list is kept
// as-is; the warning flags degraded retrieval quality.
func clampTopics(topics []string, logger *slog.Logger) []string {
	if len(topics) > maxTopics {
		return topics[:maxTopics]
	}
	if len(topics) < minTopics {
		logger.Warn("fewer than 5 topics extracted, retrieval quality may suffer",
			slog.Int("topics", len(topics)))
	}
	return topics
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
