package pipeline

import (
	"context"
	"strings"

	"github.com/spigell/resume-match/internal/apierr"
	"github.com/spigell/resume-match/internal/document"
	"github.com/spigell/resume-match/internal/scoring"
)

var (
	errNoFile     = apierr.Validation("a resume file is required")
	errNoResume   = apierr.Validation("upload a resume first")
	errNoCriteria = apierr.Validation("job description or criteria is required")
	errNotScored  = apierr.Validation("score the resume first")
)

// Upload sends doc for extraction. On success it becomes the working
// document and every result derived from the previous one is dropped.
func (o *Orchestrator) Upload(ctx context.Context, doc *document.Document) (*scoring.Parsed, error) {
	var credential string
	a, err := o.start(ctx, StepUpload, func() error {
		if doc == nil || doc.Size() == 0 {
			return errNoFile
		}
		credential, _ = o.session.Current()
		return nil
	})
	if err != nil {
		return nil, err
	}

	parsed, err := o.service.UploadResume(a.ctx, doc, credential)
	if err == nil && parsed == nil {
		err = apierr.Malformed(nil)
	}

	err = o.finish(a, err, func() {
		o.document = &WorkingDocument{Document: doc, Parsed: parsed.Clone()}
		o.clearResultsLocked()
		for _, step := range []Step{StepScore, StepRewrite, StepSave, StepReport} {
			o.idleLocked(step)
		}
	})
	if err != nil {
		return nil, err
	}

	return parsed, nil
}

// Score compares the working document with the current criteria. The
// payload it sends is frozen as the input of every later step.
func (o *Orchestrator) Score(ctx context.Context) (*scoring.ScoreResult, error) {
	var (
		payload    *scoring.Payload
		resumeName string
		credential string
	)
	a, err := o.start(ctx, StepScore, func() error {
		if o.document == nil || o.document.Parsed == nil {
			return errNoResume
		}
		if strings.TrimSpace(o.criteria) == "" {
			return errNoCriteria
		}
		payload = scoring.NewPayload(o.document.Parsed, o.criteria)
		if o.document.Document != nil {
			resumeName = o.document.Document.Name
		}
		credential, _ = o.session.Current()
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := o.service.Score(a.ctx, payload.Clone(), credential)
	if err == nil && result == nil {
		err = apierr.Malformed(nil)
	}

	err = o.finish(a, err, func() {
		// A new score invalidates everything computed from the previous one.
		o.rewrite = nil
		o.reportURL = ""
		for _, step := range []Step{StepRewrite, StepSave, StepReport} {
			o.idleLocked(step)
		}
		o.score = result.Clone()
		o.lastPayload = payload
		o.lastResumeName = resumeName
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Rewrite asks for improvement suggestions for the last scored payload.
func (o *Orchestrator) Rewrite(ctx context.Context) (*scoring.RewriteResult, error) {
	var payload *scoring.Payload
	a, err := o.start(ctx, StepRewrite, func() error {
		if o.lastPayload == nil || o.score == nil {
			return errNotScored
		}
		payload = o.lastPayload.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := o.rewriter.Rewrite(a.ctx, payload)
	if err == nil && result == nil {
		err = apierr.Malformed(nil)
	}

	err = o.finish(a, err, func() {
		o.rewrite = result.Clone()
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Save records the last scored payload in the account history. It needs a
// credential.
func (o *Orchestrator) Save(ctx context.Context) error {
	var (
		req        *scoring.SaveRequest
		credential string
	)
	a, err := o.start(ctx, StepSave, func() error {
		var ok bool
		credential, ok = o.session.Current()
		if !ok {
			return apierr.ErrAuthRequired
		}
		if o.lastPayload == nil || o.score == nil {
			return errNotScored
		}
		req = &scoring.SaveRequest{Payload: *o.lastPayload.Clone(), ResumeName: o.lastResumeName}
		return nil
	})
	if err != nil {
		return err
	}

	err = o.service.SaveAnalysis(a.ctx, req, credential)

	return o.finish(a, err, func() {})
}

// Report asks the service to render the last scored payload, together with
// the current suggestions if any, and returns the download locator.
func (o *Orchestrator) Report(ctx context.Context) (string, error) {
	var (
		req        *scoring.ReportRequest
		credential string
	)
	a, err := o.start(ctx, StepReport, func() error {
		if o.lastPayload == nil || o.score == nil {
			return errNotScored
		}
		req = scoring.NewReportRequest(o.lastPayload, o.rewrite)
		credential, _ = o.session.Current()
		return nil
	})
	if err != nil {
		return "", err
	}

	locator, err := o.service.InitScoreDownload(a.ctx, req, credential)

	err = o.finish(a, err, func() {
		o.reportURL = locator
	})
	if err != nil {
		return "", err
	}

	return locator, nil
}

// Authenticated reports whether a credential is stored.
func (o *Orchestrator) Authenticated() bool {
	_, ok := o.session.Current()
	return ok
}
