package extract

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	gverrors "github.com/govreporter/govreporter/internal/errors"
)

const (
	// DefaultModel is the chat model used for metadata extraction.
	DefaultModel = "gpt-5-nano"

	// Completion-token caps per document kind. Opinions carry ten
	// fields, orders seven.
	scotusCompletionCap = 2000
	eoCompletionCap     = 1500
)

// Config configures the OpenAI extractor.
type Config struct {
	// APIKey authenticates against the API. Empty falls back to the
	// SDK's environment lookup.
	APIKey string

	// Model overrides DefaultModel.
	Model string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// MaxRetries is the retry count after the initial attempt
	// (default 2, giving three attempts with 1s and 2s waits).
	MaxRetries int

	// InitialDelay is the wait before the first retry (default 1s).
	InitialDelay time.Duration
}

// OpenAIExtractor extracts metadata through the chat completions API in
// JSON-object mode.
type OpenAIExtractor struct {
	client openai.Client
	cfg    Config
	logger *slog.Logger
}

var _ Extractor = (*OpenAIExtractor)(nil)

// NewOpenAIExtractor creates an extractor. SDK-internal retries are
// disabled so the retry schedule here is the only one in effect.
func NewOpenAIExtractor(cfg Config, logger *slog.Logger) *OpenAIExtractor {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIExtractor{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		logger: logger,
	}
}

// ExtractScotus extracts opinion metadata. On failure it returns the
// fallback fields with a non-nil error so the caller can flag the
// document for reprocessing.
func (e *OpenAIExtractor) ExtractScotus(ctx context.Context, text, syllabus string) (*ScotusFields, error) {
	system, user := scotusPrompts(text, syllabus)

	raw, err := e.complete(ctx, system, user, scotusCompletionCap)
	if err != nil {
		e.logger.Error("scotus metadata extraction failed", gverrors.LogAttr(err))
		return FallbackScotusFields(), gverrors.New(gverrors.ErrCodeExtractFailed,
			"scotus metadata extraction failed", err)
	}

	fields, err := decodeScotusFields(raw, e.logger)
	if err != nil {
		e.logger.Error("scotus metadata response unparseable",
			gverrors.LogAttr(err),
			slog.String("response_head", head(raw, 500)))
		return FallbackScotusFields(), gverrors.New(gverrors.ErrCodeExtractFailed,
			"scotus metadata extraction failed", err)
	}

	e.logger.Debug("extracted scotus metadata",
		slog.Int("citations", len(fields.ConstitutionCited)+len(fields.FederalStatutesCited)+
			len(fields.FederalRegulationsCited)+len(fields.CasesCited)),
		slog.Int("topics", len(fields.TopicsOrPolicyAreas)))
	return fields, nil
}

// ExtractEO extracts executive order metadata. Failure semantics match
// ExtractScotus.
func (e *OpenAIExtractor) ExtractEO(ctx context.Context, text string) (*EOFields, error) {
	user := "Extract metadata from this Executive Order:\n\n" + text

	raw, err := e.complete(ctx, eoSystemPrompt, user, eoCompletionCap)
	if err != nil {
		e.logger.Error("executive order metadata extraction failed", gverrors.LogAttr(err))
		return FallbackEOFields(), gverrors.New(gverrors.ErrCodeExtractFailed,
			"executive order metadata extraction failed", err)
	}

	fields, err := decodeEOFields(raw, e.logger)
	if err != nil {
		e.logger.Error("executive order metadata response unparseable",
			gverrors.LogAttr(err),
			slog.String("response_head", head(raw, 500)))
		return FallbackEOFields(), gverrors.New(gverrors.ErrCodeExtractFailed,
			"executive order metadata extraction failed", err)
	}

	if s := fields.PlainLanguageSummary; s != "" && !startsWithActionVerb(s) {
		e.logger.Warn("executive order summary does not start with an action verb")
	}
	e.logger.Debug("extracted executive order metadata",
		slog.Int("agencies", len(fields.AgenciesImpacted)),
		slog.Int("topics", len(fields.TopicsOrPolicyAreas)))
	return fields, nil
}

// complete runs one JSON-mode chat completion with retries on rate
// limits and gateway errors.
func (e *OpenAIExtractor) complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	retryCfg := gverrors.RetryConfig{
		MaxRetries:   e.cfg.MaxRetries,
		InitialDelay: e.cfg.InitialDelay,
		MaxDelay:     4 * e.cfg.InitialDelay,
		Multiplier:   2.0,
		RetryIf:      retryableCompletion,
	}

	return gverrors.RetryWithResult(ctx, retryCfg, func() (string, error) {
		resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(e.cfg.Model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(system),
				openai.UserMessage(user),
			},
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
			ReasoningEffort:     shared.ReasoningEffortLow,
			MaxCompletionTokens: openai.Int(maxTokens),
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return "", gverrors.New(gverrors.ErrCodeMalformedResponse,
				"empty completion from model", nil)
		}
		return resp.Choices[0].Message.Content, nil
	})
}

// retryableCompletion accepts rate limits and gateway errors, the only
// failures worth a second attempt.
func retryableCompletion(err error) bool {
	var apiErr *openai.Error
	if stderrors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

const scotusPromptHeader = `You are a legal analyst extracting metadata from Supreme Court opinions for a RAG system.
Your task is to extract structured metadata that helps lay users understand complex legal documents.
%s
Extract the following fields in JSON format:

1. plain_language_summary: One paragraph using EXACTLY this template: "The Court held [holding in plain English]. It stated [key reasoning in plain English]."

2. constitution_cited: Array of U.S. Constitution citations in Bluebook format (e.g., "U.S. Const. amend. XIV, § 1", "U.S. Const. art. I, § 8, cl. 3")

3. federal_statutes_cited: Array of U.S.C. citations in Bluebook format (e.g., "42 U.S.C. § 1983", "8 U.S.C. § 1182(f)")

4. federal_regulations_cited: Array of C.F.R. citations in Bluebook format (e.g., "14 C.F.R. § 91.817")

5. cases_cited: Array of case citations in Bluebook format (e.g., "Brown v. Bd. of Educ., 347 U.S. 483 (1954)")

6. topics_or_policy_areas: Array of 5-8 plain-language tags covering both legal areas (e.g., "free speech", "due process") and topics (e.g., "education", "immigration")

7. holding_plain: The Court's holding in ONE sentence, plain English

8. outcome_simple: The outcome in simple terms (e.g., "Petitioner won", "Reversed and remanded", "Affirmed")

9. issue_plain: The central legal question in plain English

10. reasoning: The Court's reasoning in plain English (maximum one paragraph)

Focus on clarity for non-lawyers. Use everyday language while maintaining accuracy.`

const syllabusInstruction = `
IMPORTANT: Extract holding_plain, outcome_simple, and issue_plain ONLY from the SYLLABUS section.
The Syllabus is the authoritative summary. Use the full opinion for all other fields.
`

const eoSystemPrompt = `You are a policy analyst extracting metadata from Presidential Executive Orders for a RAG system.
Your task is to extract structured metadata that helps lay users understand government actions and policies.

Extract the following fields in JSON format:

1. plain_language_summary: One paragraph in everyday language starting with action verbs like:
   - "Establishes..." (for new programs/requirements)
   - "Prohibits..." (for bans/restrictions)
   - "Requires..." (for mandates)
   - "Revokes..." (for cancellations)
   - "Directs..." (for agency instructions)
   Explain WHAT the order does in concrete terms.

2. agencies_impacted: Array of federal agencies materially affected by this order (use canonical names like "Department of Defense", "Environmental Protection Agency")

3. constitution_cited: Array of U.S. Constitution citations in Bluebook format

4. federal_statutes_cited: Array of U.S.C. citations in Bluebook format

5. federal_regulations_cited: Array of C.F.R. citations in Bluebook format

6. cases_cited: Array of case citations in Bluebook format (rare in EOs but possible)

7. topics_or_policy_areas: Array of 5-8 plain-language tags covering both policy areas (e.g., "national security", "climate change") and topics (e.g., "aviation", "healthcare")

Focus on concrete actions and real-world impacts. Use everyday language for non-experts.`

// scotusPrompts assembles the system and user prompts. A provided
// syllabus is prepended to the analyzed content and pinned as the only
// source for the holding, outcome, and issue fields.
func scotusPrompts(text, syllabus string) (system, user string) {
	content := text
	instruction := ""
	if syllabus != "" {
		content = "SYLLABUS (USE THIS FOR HOLDING, OUTCOME, AND ISSUE):\n" + syllabus +
			"\n\nFULL OPINION:\n" + text
		instruction = syllabusInstruction
	}
	system = fmt.Sprintf(scotusPromptHeader, instruction)
	user = "Extract metadata from this Supreme Court opinion:\n\n" + content
	return system, user
}

var actionVerbs = []string{
	"Establishes", "Prohibits", "Requires", "Revokes", "Directs",
	"Creates", "Modifies", "Authorizes", "Mandates", "Rescinds",
}

func startsWithActionVerb(summary string) bool {
	for _, verb := range actionVerbs {
		if len(summary) >= len(verb) && summary[:len(verb)] == verb {
			return true
		}
	}
	return false
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
