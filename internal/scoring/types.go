package scoring

import (
	"slices"
	"strings"
)

const (
	// SkillWeight and SimilarityWeight are the nominal parts of FinalScore.
	SkillWeight      = 70.0
	SimilarityWeight = 30.0
)

// Parsed is the structured extraction produced by an upload.
type Parsed struct {
	Name     string   `json:"name,omitempty"`
	Emails   []string `json:"emails,omitempty"`
	Phones   []string `json:"phones,omitempty"`
	Skills   []string `json:"skills,omitempty"`
	Snippet  string   `json:"snippet,omitempty"`
	FullText string   `json:"full_text,omitempty"`
}

// ResumeText is what gets compared against the criteria.
func (p *Parsed) ResumeText() string {
	if p == nil {
		return ""
	}
	if strings.TrimSpace(p.FullText) != "" {
		return p.FullText
	}
	return p.Snippet
}

func (p *Parsed) Clone() *Parsed {
	if p == nil {
		return nil
	}
	c := *p
	c.Emails = slices.Clone(p.Emails)
	c.Phones = slices.Clone(p.Phones)
	c.Skills = slices.Clone(p.Skills)
	return &c
}

// Payload is the comparison input shared by score, rewrite and report.
type Payload struct {
	Resume string   `json:"resume"`
	JD     string   `json:"jd"`
	Skills []string `json:"skills"`
}

func NewPayload(parsed *Parsed, criteria string) *Payload {
	return &Payload{
		Resume: parsed.ResumeText(),
		JD:     criteria,
		Skills: uniqueTags(parsed.Skills),
	}
}

// Clone returns a deep copy so callers never share the skills slice.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	c := *p
	c.Skills = slices.Clone(p.Skills)
	if c.Skills == nil {
		c.Skills = []string{}
	}
	return &c
}

type ScoreResult struct {
	FinalScore        float64  `json:"final_score"`
	SkillScore        float64  `json:"skill_score"`
	JDSimilarityScore float64  `json:"jd_similarity_score"`
	SimilarityRaw     float64  `json:"similarity_raw,omitempty"`
	MatchedSkills     []string `json:"matched_jd_skills"`
	MissingSkills     []string `json:"missing_skills"`
	ExtraSkills       []string `json:"resume_extra_skills"`
	Role              string   `json:"role,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// Weights returns the nominal weights of the two sub-scores. They sum to 100.
func (s *ScoreResult) Weights() (skill, similarity float64) {
	return SkillWeight, SimilarityWeight
}

func (s *ScoreResult) Clone() *ScoreResult {
	if s == nil {
		return nil
	}
	c := *s
	c.MatchedSkills = slices.Clone(s.MatchedSkills)
	c.MissingSkills = slices.Clone(s.MissingSkills)
	c.ExtraSkills = slices.Clone(s.ExtraSkills)
	return &c
}

type BulletSuggestion struct {
	Original string `json:"original,omitempty"`
	Improved string `json:"improved"`
	Reason   string `json:"reason,omitempty"`
}

type RewriteResult struct {
	ImprovedSummary   string             `json:"improved_summary"`
	SkillsToAdd       []string           `json:"skills_to_add"`
	BulletSuggestions []BulletSuggestion `json:"bullet_suggestions"`
}

func (r *RewriteResult) Clone() *RewriteResult {
	if r == nil {
		return nil
	}
	c := *r
	c.SkillsToAdd = slices.Clone(r.SkillsToAdd)
	c.BulletSuggestions = slices.Clone(r.BulletSuggestions)
	return &c
}

type SaveRequest struct {
	Payload
	ResumeName string `json:"resume_name"`
}

// ReportRequest is the scored payload enriched with rewrite fields when present.
type ReportRequest struct {
	Payload
	ImprovedSummary   string             `json:"improved_summary,omitempty"`
	SkillsToAdd       []string           `json:"skills_to_add,omitempty"`
	BulletSuggestions []BulletSuggestion `json:"bullet_suggestions,omitempty"`
}

func NewReportRequest(payload *Payload, rewrite *RewriteResult) *ReportRequest {
	req := &ReportRequest{Payload: *payload.Clone()}
	if rewrite != nil {
		req.ImprovedSummary = rewrite.ImprovedSummary
		req.SkillsToAdd = slices.Clone(rewrite.SkillsToAdd)
		req.BulletSuggestions = slices.Clone(rewrite.BulletSuggestions)
	}
	return req
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

type Profile struct {
	ID        int    `json:"id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Analysis is a previously saved scoring run.
type Analysis struct {
	ID             int     `json:"id"`
	ResumeName     string  `json:"resume_name,omitempty"`
	JobTitle       string  `json:"job_title,omitempty"`
	JobDescription string  `json:"job_description,omitempty"`
	MatchScore     float64 `json:"match_score"`
	SkillScore     float64 `json:"skill_score"`
	SemanticScore  float64 `json:"semantic_score"`
	MissingSkills  string  `json:"missing_skills,omitempty"`
	BonusSkills    string  `json:"bonus_skills,omitempty"`
	CreatedAt      string  `json:"created_at,omitempty"`
}

// uniqueTags drops blanks and case-insensitive duplicates, keeping the first spelling.
func uniqueTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}
