package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/resume-match/internal/apierr"
	"github.com/spigell/resume-match/internal/document"
	"github.com/spigell/resume-match/internal/gateway"
	"github.com/spigell/resume-match/internal/session"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(gateway.New(server.URL+"/api", zap.NewNop()), zap.NewNop())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func TestLogin(t *testing.T) {
	var got Credentials
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "tok", "token_type": "bearer"})
	})

	token, err := c.Login(context.Background(), &Credentials{Email: " jane@example.com ", Password: "secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "tok" {
		t.Fatalf("unexpected token: %q", token)
	}
	if got.Email != "jane@example.com" || got.Password != "secret" || got.Username != "" {
		t.Fatalf("unexpected credentials sent: %+v", got)
	}
}

func TestLoginRejectedKeepsStoredSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Incorrect email or password"})
	}))
	t.Cleanup(server.Close)

	store := session.New("", nil)
	if err := store.Set("still-valid"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gw := gateway.New(server.URL+"/api", zap.NewNop())
	gw.OnUnauthorized = store.Clear
	c := New(gw, zap.NewNop())

	_, err := c.Login(context.Background(), &Credentials{Email: "jane@example.com", Password: "wrong"})
	if apierr.IsKind(err, apierr.KindAuthExpired) {
		t.Fatalf("a rejected login must not look like an expired session: %v", err)
	}
	if msg := apierr.UserMessage(err); msg != "Incorrect email or password" {
		t.Fatalf("unexpected message: %q", msg)
	}
	if token, ok := store.Current(); !ok || token != "still-valid" {
		t.Fatalf("expected stored session to survive, got %q (%v)", token, ok)
	}
}

func TestLoginValidation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	})

	if _, err := c.Login(context.Background(), &Credentials{Email: "jane@example.com"}); !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := c.Register(context.Background(), &Credentials{Email: "jane@example.com", Password: "x"}); !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegisterMissingToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "created"})
	})

	_, err := c.Register(context.Background(), &Credentials{Email: "jane@example.com", Password: "x", Username: "jane"})
	if !apierr.IsKind(err, apierr.KindMalformed) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestUploadResume(t *testing.T) {
	var filename, contentType string
	var content []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload-resume" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("reading form file: %v", err)
			return
		}
		defer file.Close()
		filename = header.Filename
		contentType = header.Header.Get("Content-Type")
		content, _ = io.ReadAll(file)

		writeJSON(w, http.StatusOK, map[string]any{
			"filename": header.Filename,
			"parsed": map[string]any{
				"name":      "Jane Doe",
				"emails":    []string{"jane@example.com"},
				"phones":    []string{},
				"skills":    []string{"Python", "SQL", "python"},
				"snippet":   "Jane Doe ...",
				"full_text": "Jane Doe Python SQL",
			},
		})
	})

	doc := document.New("jane.txt", []byte("Jane Doe Python SQL"))
	parsed, err := c.UploadResume(context.Background(), doc, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if filename != "jane.txt" || contentType != document.ContentTypeText {
		t.Fatalf("unexpected upload part: %q %q", filename, contentType)
	}
	if !bytes.Equal(content, doc.Content) {
		t.Fatalf("unexpected uploaded content: %q", content)
	}
	if parsed.Name != "Jane Doe" || parsed.FullText != "Jane Doe Python SQL" {
		t.Fatalf("unexpected parsed result: %+v", parsed)
	}
	if strings.Join(parsed.Skills, ",") != "Python,SQL" {
		t.Fatalf("expected duplicate skills to be dropped, got %v", parsed.Skills)
	}
}

func TestUploadResumeWithoutParsed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"filename": "x.pdf"})
	})

	_, err := c.UploadResume(context.Background(), document.New("x.pdf", []byte("%PDF-1.4")), "")
	if !apierr.IsKind(err, apierr.KindMalformed) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestScore(t *testing.T) {
	var got Payload
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, map[string]any{
			"final_score":         62.5,
			"skill_score":         45,
			"jd_similarity_score": 17.5,
			"similarity_raw":      0.5833,
			"matched_jd_skills":   []string{"Python"},
			"missing_skills":      []string{"Docker"},
			"resume_extra_skills": []string{"SQL"},
			"role":                "Backend Engineer",
		})
	})

	payload := &Payload{Resume: "Python SQL", JD: "Need Python and Docker", Skills: []string{"Python", "SQL"}}
	result, err := c.Score(context.Background(), payload, "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.JD != payload.JD || got.Resume != payload.Resume || len(got.Skills) != 2 {
		t.Fatalf("unexpected payload sent: %+v", got)
	}
	if result.FinalScore != 62.5 || result.SkillScore != 45 || result.JDSimilarityScore != 17.5 {
		t.Fatalf("unexpected scores: %+v", result)
	}
	if result.Role != "Backend Engineer" {
		t.Fatalf("unexpected role: %q", result.Role)
	}
	if skill, sim := result.Weights(); skill+sim != 100 {
		t.Fatalf("expected weights to sum to 100, got %v", skill+sim)
	}
}

func TestScoreErrorInBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"error": "Resume or JD missing"})
	})

	_, err := c.Score(context.Background(), &Payload{}, "")
	if !apierr.IsKind(err, apierr.KindService) {
		t.Fatalf("expected service error, got %v", err)
	}
	if apierr.UserMessage(err) != "Resume or JD missing" {
		t.Fatalf("unexpected message: %q", apierr.UserMessage(err))
	}
}

func TestRewrite(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"improved_summary": "Backend engineer focused on Python services.",
			"skills_to_add":    []string{"Docker"},
			"bullet_suggestions": []map[string]any{
				{"original": "Wrote scripts", "improved": "Automated reporting with Python", "reason": "quantify impact"},
				{"improved": "Containerized services with Docker", "reason": "covers a missing skill"},
			},
		})
	})

	result, err := c.Rewrite(context.Background(), &Payload{Resume: "r", JD: "j"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.BulletSuggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(result.BulletSuggestions))
	}
	if result.BulletSuggestions[0].Reason != "quantify impact" || result.BulletSuggestions[1].Original != "" {
		t.Fatalf("unexpected suggestions: %+v", result.BulletSuggestions)
	}
}

func TestSaveAnalysis(t *testing.T) {
	var got map[string]any
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, map[string]any{"status": "saved"})
	})

	req := &SaveRequest{
		Payload:    Payload{Resume: "r", JD: "j", Skills: []string{"Go"}},
		ResumeName: "cv.pdf",
	}
	if err := c.SaveAnalysis(context.Background(), req, "tok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if auth != "Bearer tok" {
		t.Fatalf("unexpected authorization: %q", auth)
	}
	if got["resume_name"] != "cv.pdf" || got["jd"] != "j" || got["resume"] != "r" {
		t.Fatalf("expected flattened save body, got %#v", got)
	}
}

func TestInitScoreDownloadResolvesLocator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		locator string
		expect  func(base string) string
	}{
		{name: "relative", locator: "/download/abc.pdf", expect: func(base string) string { return base + "/api/download/abc.pdf" }},
		{name: "absolute", locator: "https://files.example.com/abc.pdf", expect: func(string) string { return "https://files.example.com/abc.pdf" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got map[string]any
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewDecoder(r.Body).Decode(&got)
				writeJSON(w, http.StatusOK, map[string]any{"download_url": tt.locator})
			}))
			defer server.Close()

			c := New(gateway.New(server.URL+"/api/", nil), nil)
			req := NewReportRequest(&Payload{Resume: "r", JD: "j", Skills: []string{"Go"}}, &RewriteResult{ImprovedSummary: "better"})

			locator, err := c.InitScoreDownload(context.Background(), req, "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if want := tt.expect(server.URL); locator != want {
				t.Fatalf("expected %q, got %q", want, locator)
			}
			if got["improved_summary"] != "better" {
				t.Fatalf("expected rewrite fields in report request, got %#v", got)
			}
		})
	}
}

func TestInitScoreDownloadMissingLocator(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	_, err := c.InitScoreDownload(context.Background(), NewReportRequest(&Payload{}, nil), "")
	if !apierr.IsKind(err, apierr.KindMalformed) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestDownload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7 report"))
	})

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), "/download/abc.pdf", "", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != int64(buf.Len()) || buf.String() != "%PDF-1.7 report" {
		t.Fatalf("unexpected download: %d %q", n, buf.String())
	}
}

func TestAnalyses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 1, "resume_name": "cv.pdf", "match_score": 62.5, "missing_skills": "Docker", "created_at": "2026-10-01T10:00:00"},
			{"id": 2, "resume_name": "cv2.pdf", "match_score": 80},
		})
	})

	analyses, err := c.Analyses(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(analyses) != 2 {
		t.Fatalf("expected 2 analyses, got %d", len(analyses))
	}
	if analyses[0].ID != 1 || analyses[0].MatchScore != 62.5 || analyses[0].MissingSkills != "Docker" {
		t.Fatalf("unexpected analysis: %+v", analyses[0])
	}
}

func TestMe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 7, "email": "jane@example.com", "username": "jane", "name": nil})
	})

	profile, err := c.Me(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.ID != 7 || profile.Username != "jane" || profile.Name != "" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestPayloadCloneIsDeep(t *testing.T) {
	p := NewPayload(&Parsed{Snippet: "snippet", Skills: []string{"Go", " go ", ""}}, "Need Go")
	if p.Resume != "snippet" {
		t.Fatalf("expected snippet fallback, got %q", p.Resume)
	}
	if len(p.Skills) != 1 {
		t.Fatalf("expected deduplicated skills, got %v", p.Skills)
	}

	c := p.Clone()
	c.Skills[0] = "Rust"
	if p.Skills[0] != "Go" {
		t.Fatalf("clone shares skills slice")
	}
}

func TestResultClonesAreDeep(t *testing.T) {
	parsed := &Parsed{Name: "Ada", Emails: []string{"ada@example.com"}, Skills: []string{"Go"}}
	pc := parsed.Clone()
	pc.Skills[0] = "Rust"
	pc.Emails[0] = "other@example.com"
	if parsed.Skills[0] != "Go" || parsed.Emails[0] != "ada@example.com" {
		t.Fatalf("parsed clone shares slices: %+v", parsed)
	}

	score := &ScoreResult{FinalScore: 50, MatchedSkills: []string{"go"}, MissingSkills: []string{"aws"}}
	sc := score.Clone()
	sc.MatchedSkills[0] = "rust"
	sc.MissingSkills = append(sc.MissingSkills[:0], "none")
	if score.MatchedSkills[0] != "go" || score.MissingSkills[0] != "aws" {
		t.Fatalf("score clone shares slices: %+v", score)
	}

	rewrite := &RewriteResult{SkillsToAdd: []string{"Docker"}, BulletSuggestions: []BulletSuggestion{{Improved: "x"}}}
	rc := rewrite.Clone()
	rc.SkillsToAdd[0] = "Podman"
	rc.BulletSuggestions[0].Improved = "y"
	if rewrite.SkillsToAdd[0] != "Docker" || rewrite.BulletSuggestions[0].Improved != "x" {
		t.Fatalf("rewrite clone shares slices: %+v", rewrite)
	}

	if (*Parsed)(nil).Clone() != nil || (*ScoreResult)(nil).Clone() != nil || (*RewriteResult)(nil).Clone() != nil {
		t.Fatal("cloning nil must return nil")
	}
}
