package pipeline

import (
	"github.com/spigell/resume-match/internal/apierr"
	"github.com/spigell/resume-match/internal/document"
	"github.com/spigell/resume-match/internal/scoring"
)

type Step string

const (
	StepUpload  Step = "upload"
	StepScore   Step = "score"
	StepRewrite Step = "rewrite"
	StepSave    Step = "save"
	StepReport  Step = "report"
)

// Steps lists every step in pipeline order.
var Steps = []Step{StepUpload, StepScore, StepRewrite, StepSave, StepReport}

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// StepState is the single source of truth for one step. Kind and Reason are
// only set when Status is StatusFailed.
type StepState struct {
	Status     Status
	Kind       apierr.Kind
	Reason     string
	Generation uint64
}

func (s StepState) Failed() bool { return s.Status == StatusFailed }

func (s StepState) Canceled() bool {
	return s.Status == StatusFailed && s.Kind == apierr.KindCanceled
}

// WorkingDocument is replaced as a whole on every successful upload.
type WorkingDocument struct {
	Document *document.Document
	Parsed   *scoring.Parsed
}

// Clone copies the document metadata and the parsed result. The file content
// is shared and must be treated as read-only.
func (w *WorkingDocument) Clone() *WorkingDocument {
	if w == nil {
		return nil
	}
	c := &WorkingDocument{Parsed: w.Parsed.Clone()}
	if w.Document != nil {
		doc := *w.Document
		c.Document = &doc
	}
	return c
}

// Snapshot is a read-only copy of the orchestrator state.
type Snapshot struct {
	// Version grows with every transition; renderers can drop older snapshots.
	Version       uint64
	Authenticated bool
	Document      *WorkingDocument
	Criteria      string
	Score         *scoring.ScoreResult
	Rewrite       *scoring.RewriteResult
	LastPayload   *scoring.Payload
	ResumeName    string
	ReportURL     string
	Steps         map[Step]StepState
}

func (s Snapshot) Step(step Step) StepState {
	return s.Steps[step]
}

// Running reports whether any step is in flight.
func (s Snapshot) Running() bool {
	for _, st := range s.Steps {
		if st.Status == StatusRunning {
			return true
		}
	}
	return false
}
