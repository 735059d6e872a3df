package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/resume-match/internal/apierr"
	"github.com/spigell/resume-match/internal/scoring"
)

type stubGenerator struct {
	response   string
	err        error
	lastSystem string
	lastPrompt string
}

func (s *stubGenerator) GenerateContent(_ context.Context, system, prompt string) (string, error) {
	s.lastSystem = system
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubGenerator) Model() string {
	return "stub-model"
}

func testPayload() *scoring.Payload {
	return &scoring.Payload{
		Resume: "Built data pipelines in Python and SQL.",
		JD:     "Looking for Python, SQL, Docker, AWS",
		Skills: []string{"Python", "SQL"},
	}
}

func TestRewriterRewrite(t *testing.T) {
	stub := &stubGenerator{response: "```json\n" + `{
		"improved_summary": "Data engineer with Python and SQL.",
		"skills_to_add": ["Docker", "AWS", ""],
		"bullet_suggestions": [
			{"original": "Built data pipelines", "improved": "Built Dockerized data pipelines on AWS", "reason": "mentions missing skills"},
			"Automated reporting with SQL"
		]
	}` + "\n```"}
	rewriter := NewRewriter(stub, zap.NewNop(), 0)

	result, err := rewriter.Rewrite(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ImprovedSummary != "Data engineer with Python and SQL." {
		t.Fatalf("unexpected summary: %q", result.ImprovedSummary)
	}
	if len(result.SkillsToAdd) != 2 || result.SkillsToAdd[0] != "Docker" {
		t.Fatalf("unexpected skills: %v", result.SkillsToAdd)
	}
	if len(result.BulletSuggestions) != 2 {
		t.Fatalf("expected 2 bullets, got %+v", result.BulletSuggestions)
	}
	if b := result.BulletSuggestions[0]; b.Original != "Built data pipelines" || b.Reason == "" {
		t.Fatalf("unexpected first bullet: %+v", b)
	}
	if b := result.BulletSuggestions[1]; b.Improved != "Automated reporting with SQL" || b.Original != "" {
		t.Fatalf("unexpected second bullet: %+v", b)
	}

	if stub.lastSystem == "" {
		t.Fatalf("expected a system instruction")
	}
	for _, want := range []string{"Looking for Python, SQL, Docker, AWS", "Python, SQL", "Built data pipelines"} {
		if !strings.Contains(stub.lastPrompt, want) {
			t.Fatalf("expected prompt to contain %q", want)
		}
	}
	if strings.Contains(stub.lastPrompt, "{{") {
		t.Fatalf("expected every placeholder to be replaced")
	}
}

func TestRewriterSkillsAsString(t *testing.T) {
	stub := &stubGenerator{response: `{"improved_summary": "ok", "skills_to_add": "Docker, AWS"}`}

	result, err := NewRewriter(stub, nil, 0).Rewrite(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.SkillsToAdd) != 2 || result.SkillsToAdd[1] != "AWS" {
		t.Fatalf("unexpected skills: %v", result.SkillsToAdd)
	}
	if result.BulletSuggestions == nil {
		t.Fatalf("expected an empty bullet list, not nil")
	}
}

func TestRewriterErrors(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name     string
		ctx      context.Context
		payload  *scoring.Payload
		stub     *stubGenerator
		wantKind apierr.Kind
	}{
		{
			name:     "missing resume",
			ctx:      context.Background(),
			payload:  &scoring.Payload{JD: "python"},
			stub:     &stubGenerator{},
			wantKind: apierr.KindValidation,
		},
		{
			name:     "missing criteria",
			ctx:      context.Background(),
			payload:  &scoring.Payload{Resume: "python"},
			stub:     &stubGenerator{},
			wantKind: apierr.KindValidation,
		},
		{
			name:     "not json",
			ctx:      context.Background(),
			payload:  testPayload(),
			stub:     &stubGenerator{response: "I cannot help with that"},
			wantKind: apierr.KindMalformed,
		},
		{
			name:     "empty suggestions",
			ctx:      context.Background(),
			payload:  testPayload(),
			stub:     &stubGenerator{response: `{}`},
			wantKind: apierr.KindMalformed,
		},
		{
			name:     "provider rejects",
			ctx:      context.Background(),
			payload:  testPayload(),
			stub:     &stubGenerator{err: genai.APIError{Code: http.StatusBadRequest, Message: "bad prompt"}},
			wantKind: apierr.KindService,
		},
		{
			name:     "transport failure",
			ctx:      context.Background(),
			payload:  testPayload(),
			stub:     &stubGenerator{err: errors.New("dial tcp: refused")},
			wantKind: apierr.KindNetwork,
		},
		{
			name:     "canceled",
			ctx:      canceled,
			payload:  testPayload(),
			stub:     &stubGenerator{err: context.Canceled},
			wantKind: apierr.KindCanceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRewriter(tt.stub, zap.NewNop(), 0).Rewrite(tt.ctx, tt.payload)
			if got := apierr.KindOf(err); got != tt.wantKind {
				t.Fatalf("expected %s, got %s (%v)", tt.wantKind, got, err)
			}
		})
	}
}
