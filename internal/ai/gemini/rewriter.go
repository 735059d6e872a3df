package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/resume-match/internal/apierr"
	"github.com/spigell/resume-match/internal/logger"
	"github.com/spigell/resume-match/internal/scoring"
)

const (
	defaultMaxLogLength = 200
	providerName        = "gemini"
	systemInstruction   = "You are an experienced technical recruiter helping a candidate tailor a resume. " +
		"Only suggest changes supported by the resume text. Answer with JSON only."
)

//go:embed prompt.md
var promptTemplate string

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// Rewriter produces resume suggestions with a Gemini model instead of the
// scoring service.
type Rewriter struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewRewriter(generator contentGenerator, log *zap.Logger, maxLogLength int) *Rewriter {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Rewriter{
		generator: generator,
		logger:    logger.WithFields(log, logger.ProviderFields(providerName, generator.Model())...),
		maxLogLen: maxLogLength,
	}
}

func (r *Rewriter) Rewrite(ctx context.Context, payload *scoring.Payload) (*scoring.RewriteResult, error) {
	if payload == nil || strings.TrimSpace(payload.Resume) == "" {
		return nil, apierr.Validation("resume text is required")
	}
	if strings.TrimSpace(payload.JD) == "" {
		return nil, apierr.Validation("job description or criteria is required")
	}

	prompt := buildPrompt(payload)

	r.logger.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, r.maxLogLen)),
	)

	raw, err := r.generator.GenerateContent(ctx, systemInstruction, prompt)
	if err != nil {
		return nil, classify(ctx, err)
	}

	r.logger.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, r.maxLogLen)),
	)

	return parseResponse(raw)
}

func buildPrompt(payload *scoring.Payload) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Job description:\n{{CRITERIA}}\n\nSkills:\n{{SKILLS}}\n\nResume:\n{{RESUME}}\n\nJSON Response:"
	}

	skills := "none detected"
	if len(payload.Skills) > 0 {
		skills = strings.Join(payload.Skills, ", ")
	}

	prompt := strings.ReplaceAll(template, "{{CRITERIA}}", strings.TrimSpace(payload.JD))
	prompt = strings.ReplaceAll(prompt, "{{SKILLS}}", skills)
	prompt = strings.ReplaceAll(prompt, "{{RESUME}}", strings.TrimSpace(payload.Resume))
	return prompt
}

// classify maps provider failures onto the error kinds the pipeline understands.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apierr.FromContext(ctx, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		msg := strings.TrimSpace(apiErr.Message)
		if msg == "" {
			msg = fmt.Sprintf("rewrite provider returned status %d", apiErr.Code)
		}
		return apierr.Service(apiErr.Code, msg)
	}

	return apierr.Network(err)
}

func parseResponse(raw string) (*scoring.RewriteResult, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, apierr.Malformed(fmt.Errorf("parse gemini response: %w", err))
	}

	result := &scoring.RewriteResult{
		ImprovedSummary:   coerceString(data["improved_summary"]),
		SkillsToAdd:       coerceStrings(data["skills_to_add"]),
		BulletSuggestions: coerceBullets(data["bullet_suggestions"]),
	}

	if result.ImprovedSummary == "" && len(result.SkillsToAdd) == 0 && len(result.BulletSuggestions) == 0 {
		return nil, apierr.Malformed(errors.New("gemini response has no suggestions"))
	}

	return result, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

// coerceStrings accepts a list or a comma separated string.
func coerceStrings(v any) []string {
	var items []string
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			items = append(items, coerceString(item))
		}
	case string:
		items = strings.Split(val, ",")
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// coerceBullets accepts objects or bare strings, which become the improved line.
func coerceBullets(v any) []scoring.BulletSuggestion {
	list, ok := v.([]any)
	if !ok {
		return []scoring.BulletSuggestion{}
	}

	out := make([]scoring.BulletSuggestion, 0, len(list))
	for _, item := range list {
		var bullet scoring.BulletSuggestion
		switch val := item.(type) {
		case map[string]any:
			bullet = scoring.BulletSuggestion{
				Original: coerceString(val["original"]),
				Improved: coerceString(val["improved"]),
				Reason:   coerceString(val["reason"]),
			}
		default:
			bullet.Improved = coerceString(val)
		}
		if bullet.Improved == "" {
			continue
		}
		out = append(out, bullet)
	}
	return out
}
