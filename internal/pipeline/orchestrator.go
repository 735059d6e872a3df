package pipeline

import (
	"context"
	"errors"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/resume-match/internal/ai"
	"github.com/spigell/resume-match/internal/apierr"
	"github.com/spigell/resume-match/internal/document"
	"github.com/spigell/resume-match/internal/logger"
	"github.com/spigell/resume-match/internal/scoring"
)

var (
	errSuperseded = errors.New("superseded by a newer request")
	errLoggedOut  = errors.New("session ended while the request was in flight")
)

const (
	reasonSuperseded = "superseded by a newer request"
	reasonCanceled   = "canceled by user"
	reasonRejected   = "credential rejected by the service"
)

// Service is the part of the scoring service the pipeline drives.
type Service interface {
	UploadResume(ctx context.Context, doc *document.Document, credential string) (*scoring.Parsed, error)
	Score(ctx context.Context, payload *scoring.Payload, credential string) (*scoring.ScoreResult, error)
	Rewrite(ctx context.Context, payload *scoring.Payload, credential string) (*scoring.RewriteResult, error)
	SaveAnalysis(ctx context.Context, req *scoring.SaveRequest, credential string) error
	InitScoreDownload(ctx context.Context, req *scoring.ReportRequest, credential string) (string, error)
}

// Session is the credential holder. Clear must be idempotent.
type Session interface {
	Current() (string, bool)
	Clear()
}

type Deps struct {
	Service Service
	Session Session
	// Rewriter is optional; by default the service's rewrite endpoint is used.
	Rewriter ai.Rewriter
	Logger   *zap.Logger
}

// Orchestrator sequences the pipeline steps over a single working document.
// It is safe for concurrent use; the lock is never held across network calls.
type Orchestrator struct {
	mu sync.Mutex

	service  Service
	session  Session
	rewriter ai.Rewriter
	logger   *zap.Logger

	document       *WorkingDocument
	criteria       string
	score          *scoring.ScoreResult
	rewrite        *scoring.RewriteResult
	lastPayload    *scoring.Payload
	lastResumeName string
	reportURL      string

	runs map[Step]*run
	// epoch changes on every logout so late responses from the old session are dropped.
	epoch     uint64
	version   uint64
	listeners []func(Snapshot)
}

type run struct {
	gen    uint64
	cancel context.CancelFunc
	state  StepState
}

type attempt struct {
	step   Step
	gen    uint64
	epoch  uint64
	ctx    context.Context
	cancel context.CancelFunc
}

func New(deps *Deps) *Orchestrator {
	o := &Orchestrator{
		service:  deps.Service,
		session:  deps.Session,
		rewriter: deps.Rewriter,
		logger:   logger.WithFields(deps.Logger),
		runs:     make(map[Step]*run, len(Steps)),
	}

	for _, step := range Steps {
		o.runs[step] = &run{state: StepState{Status: StatusIdle}}
	}

	if o.rewriter == nil {
		o.rewriter = ai.RewriterFunc(func(ctx context.Context, payload *scoring.Payload) (*scoring.RewriteResult, error) {
			credential, _ := o.session.Current()
			return o.service.Rewrite(ctx, payload, credential)
		})
	}

	return o
}

// Subscribe registers fn to receive a snapshot after every transition.
// fn runs outside the orchestrator lock and may call read-only methods.
func (o *Orchestrator) Subscribe(fn func(Snapshot)) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.listeners = append(o.listeners, fn)
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.buildSnapshotLocked()
}

func (o *Orchestrator) Criteria() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.criteria
}

// SetCriteria replaces the comparison target. It does not touch an existing
// score: dependent steps keep using the frozen payload.
func (o *Orchestrator) SetCriteria(criteria string) {
	o.mu.Lock()
	o.criteria = criteria
	events := []Snapshot{o.snapshotLocked()}
	o.mu.Unlock()

	o.notify(events...)
}

// Cancel aborts the in-flight call of step, if any. The step ends in
// Failed(Canceled) and a late response is discarded.
func (o *Orchestrator) Cancel(step Step) {
	o.mu.Lock()
	r, ok := o.runs[step]
	if !ok || r.state.Status != StatusRunning {
		o.mu.Unlock()
		return
	}

	r.cancel()
	r.cancel = nil
	r.state = StepState{Status: StatusFailed, Kind: apierr.KindCanceled, Reason: reasonCanceled, Generation: r.gen}
	r.gen++
	o.logger.Info("step canceled", logger.StepFields(string(step), r.state.Generation)...)
	events := []Snapshot{o.snapshotLocked()}
	o.mu.Unlock()

	o.notify(events...)
}

// Reset wipes the document, criteria, results and step states. The
// credential is kept.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	for _, step := range Steps {
		o.idleLocked(step)
	}
	o.document = nil
	o.criteria = ""
	o.clearResultsLocked()
	o.logger.Info("pipeline reset")
	events := []Snapshot{o.snapshotLocked()}
	o.mu.Unlock()

	o.notify(events...)
}

// Logout ends the session explicitly. It is the same single transition the
// orchestrator performs when the service rejects the credential.
func (o *Orchestrator) Logout() {
	o.mu.Lock()
	events := o.logoutLocked("logout requested")
	o.mu.Unlock()

	o.notify(events...)
}

// SessionExpired ends the session after the service rejected the credential.
// Wire it as the gateway's unauthorized hook so the credential is cleared in
// the same transition that drops the document and results. It does nothing
// when no credential is held.
func (o *Orchestrator) SessionExpired() {
	o.mu.Lock()
	if _, ok := o.session.Current(); !ok {
		o.mu.Unlock()
		return
	}
	events := o.logoutLocked(reasonRejected)
	o.mu.Unlock()

	o.notify(events...)
}

// start checks preconditions and moves step to Running atomically. prepare
// runs under the lock and must only read state.
func (o *Orchestrator) start(ctx context.Context, step Step, prepare func() error) (*attempt, error) {
	o.mu.Lock()
	if err := prepare(); err != nil {
		events := o.rejectLocked(step, err)
		o.mu.Unlock()
		o.notify(events...)
		return nil, err
	}

	a, events := o.beginLocked(ctx, step)
	o.mu.Unlock()

	o.notify(events...)
	return a, nil
}

// finish applies the outcome of a call unless it was superseded. apply runs
// under the lock only for a current, successful attempt.
func (o *Orchestrator) finish(a *attempt, callErr error, apply func()) error {
	o.mu.Lock()
	a.cancel()

	authExpired := apierr.IsKind(callErr, apierr.KindAuthExpired)

	if a.epoch != o.epoch {
		o.mu.Unlock()
		if authExpired {
			return callErr
		}
		return apierr.Canceled(errLoggedOut)
	}

	if authExpired {
		events := o.logoutLocked(reasonRejected)
		o.mu.Unlock()
		o.notify(events...)
		return callErr
	}

	r := o.runs[a.step]
	if r.gen != a.gen {
		o.mu.Unlock()
		o.logger.Debug("discarding stale response", logger.StepFields(string(a.step), a.gen)...)
		return apierr.Canceled(errSuperseded)
	}
	r.cancel = nil

	var events []Snapshot
	if callErr != nil {
		r.state = failedState(callErr, a.gen)
		o.logger.Warn("step failed", append(logger.StepFields(string(a.step), a.gen),
			zap.String("kind", string(r.state.Kind)),
			zap.Error(callErr),
		)...)
	} else {
		apply()
		r.state = StepState{Status: StatusSucceeded, Generation: a.gen}
		o.logger.Info("step succeeded", logger.StepFields(string(a.step), a.gen)...)
	}
	events = append(events, o.snapshotLocked())
	o.mu.Unlock()

	o.notify(events...)
	return callErr
}

func (o *Orchestrator) beginLocked(ctx context.Context, step Step) (*attempt, []Snapshot) {
	var events []Snapshot
	r := o.runs[step]

	if r.state.Status == StatusRunning {
		r.cancel()
		r.state = StepState{Status: StatusFailed, Kind: apierr.KindCanceled, Reason: reasonSuperseded, Generation: r.gen}
		o.logger.Info("superseding running step", logger.StepFields(string(step), r.gen)...)
		events = append(events, o.snapshotLocked())
	}

	r.gen++
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.state = StepState{Status: StatusRunning, Generation: r.gen}
	o.logger.Debug("step started", logger.StepFields(string(step), r.gen)...)
	events = append(events, o.snapshotLocked())

	return &attempt{step: step, gen: r.gen, epoch: o.epoch, ctx: runCtx, cancel: cancel}, events
}

// rejectLocked records a failed precondition. A running attempt is left alone.
func (o *Orchestrator) rejectLocked(step Step, err error) []Snapshot {
	o.logger.Info("step rejected", append(logger.StepFields(string(step), 0), zap.Error(err))...)

	r := o.runs[step]
	if r.state.Status == StatusRunning {
		return nil
	}

	r.state = failedState(err, r.gen)
	return []Snapshot{o.snapshotLocked()}
}

// idleLocked aborts any in-flight call of step and returns it to Idle.
func (o *Orchestrator) idleLocked(step Step) {
	r := o.runs[step]
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.gen++
	r.state = StepState{Status: StatusIdle}
}

func (o *Orchestrator) clearResultsLocked() {
	o.score = nil
	o.rewrite = nil
	o.lastPayload = nil
	o.lastResumeName = ""
	o.reportURL = ""
}

func (o *Orchestrator) logoutLocked(reason string) []Snapshot {
	o.epoch++
	o.session.Clear()
	for _, step := range Steps {
		o.idleLocked(step)
	}
	o.document = nil
	o.clearResultsLocked()
	o.logger.Info("session ended", zap.String("reason", reason))

	return []Snapshot{o.snapshotLocked()}
}

// snapshotLocked records a transition and returns the resulting state.
func (o *Orchestrator) snapshotLocked() Snapshot {
	o.version++
	return o.buildSnapshotLocked()
}

func (o *Orchestrator) buildSnapshotLocked() Snapshot {
	_, authenticated := o.session.Current()

	steps := make(map[Step]StepState, len(o.runs))
	for step, r := range o.runs {
		steps[step] = r.state
	}

	return Snapshot{
		Version:       o.version,
		Authenticated: authenticated,
		Document:      o.document.Clone(),
		Criteria:      o.criteria,
		Score:         o.score.Clone(),
		Rewrite:       o.rewrite.Clone(),
		LastPayload:   o.lastPayload.Clone(),
		ResumeName:    o.lastResumeName,
		ReportURL:     o.reportURL,
		Steps:         steps,
	}
}

func (o *Orchestrator) notify(events ...Snapshot) {
	if len(events) == 0 {
		return
	}

	o.mu.Lock()
	listeners := slices.Clone(o.listeners)
	o.mu.Unlock()

	for _, snap := range events {
		for _, fn := range listeners {
			fn(snap)
		}
	}
}

func failedState(err error, gen uint64) StepState {
	kind := apierr.KindOf(err)
	if kind == "" {
		kind = apierr.KindMalformed
	}

	return StepState{
		Status:     StatusFailed,
		Kind:       kind,
		Reason:     apierr.UserMessage(err),
		Generation: gen,
	}
}
