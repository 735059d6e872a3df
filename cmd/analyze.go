package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-match/internal/apierr"
	"github.com/spigell/resume-match/internal/document"
	"github.com/spigell/resume-match/internal/pipeline"
)

const (
	PromptScore        = "Score"
	PromptRewrite      = "Rewrite"
	PromptSave         = "Save to history"
	PromptReport       = "Report"
	PromptEditCriteria = "Edit criteria"
	PromptUpload       = "Upload another file"
	PromptShowState    = "Show results"
	PromptReset        = "Reset"
	PromptLogout       = "Logout"
	PromptExit         = "Exit"
)

var errExit = errors.New("exit requested")

var menu = promptui.Select{
	Label: "Next step?",
	Items: []string{
		PromptScore, PromptRewrite, PromptSave, PromptReport, PromptEditCriteria,
		PromptUpload, PromptShowState, PromptReset, PromptLogout, PromptExit,
	},
	Size: 10,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Upload a resume and score it against a job description",
	Run: func(cmd *cobra.Command, _ []string) {
		analyze(cmd)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringP("file", "f", "", "resume file (PDF or plain text)")
	analyzeCmd.Flags().StringP("criteria", "c", "", "job description or criteria text")
	analyzeCmd.Flags().String("criteria-file", "", "file with the job description")
	analyzeCmd.Flags().BoolP("auto-approve", "y", false, "run the requested steps without the interactive menu")
	analyzeCmd.Flags().Bool("rewrite", false, "ask for rewrite suggestions after scoring")
	analyzeCmd.Flags().Bool("save", false, "save the analysis to the account history")
	analyzeCmd.Flags().Bool("report", false, "request a downloadable report")
	analyzeCmd.Flags().StringP("output", "o", "", "where to download the report")
}

type analysis struct {
	ctx    context.Context
	d      *deps
	o      *pipeline.Orchestrator
	output string
}

func analyze(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	d := setup()
	logger := d.logger
	defer func() { _ = logger.Sync() }()

	logger.Info("starting the resume-match", zap.String("version", resolveVersion()))

	path, _ := cmd.Flags().GetString("file")
	doc, err := document.Open(path)
	if err != nil {
		logger.Fatal("opening the resume", zap.Error(err), zap.String("hint", "pass the resume with --file"))
	}

	criteria, err := readCriteria(cmd)
	if err != nil {
		logger.Fatal("reading criteria", zap.Error(err))
	}

	rewriter, err := d.rewriter(ctx)
	if err != nil {
		logger.Fatal("building the rewriter", zap.Error(err))
	}

	o := pipeline.New(&pipeline.Deps{
		Service:  d.service,
		Session:  d.session,
		Rewriter: rewriter,
		Logger:   logger,
	})
	// The orchestrator clears the session itself so a rejected credential is
	// published as one logout.
	d.gateway.OnUnauthorized = o.SessionExpired
	o.Subscribe(snapshotRenderer(logger))
	o.SetCriteria(criteria)

	output, _ := cmd.Flags().GetString("output")
	s := &analysis{ctx: ctx, d: d, o: o, output: output}

	if !o.Authenticated() {
		logger.Info("not logged in, results cannot be saved", zap.String("hint", fmt.Sprintf("run '%s login' to enable saving", app)))
	}

	if err := s.upload(doc); err != nil {
		fatalCall(logger, "uploading the resume", err)
	}

	if auto, _ := cmd.Flags().GetBool("auto-approve"); auto {
		if err := s.unattended(cmd); err != nil {
			fatalCall(logger, "running the pipeline", err)
		}
		return
	}

	for {
		_, action, err := menu.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := s.handleAction(action); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func readCriteria(cmd *cobra.Command) (string, error) {
	criteria, _ := cmd.Flags().GetString("criteria")
	file, _ := cmd.Flags().GetString("criteria-file")

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading criteria file %q: %w", file, err)
		}
		criteria = string(data)
	}

	return strings.TrimSpace(criteria), nil
}

// unattended runs score and the requested follow-up steps in order.
func (s *analysis) unattended(cmd *cobra.Command) error {
	if err := s.score(); err != nil {
		return err
	}

	steps := []struct {
		flag string
		run  func() error
	}{
		{"rewrite", s.rewrite},
		{"save", s.save},
		{"report", s.report},
	}

	for _, step := range steps {
		if enabled, _ := cmd.Flags().GetBool(step.flag); !enabled {
			continue
		}
		if err := step.run(); err != nil {
			return err
		}
	}

	return nil
}

// handleAction runs one menu action. Step failures are reported and the menu continues.
func (s *analysis) handleAction(action string) error {
	var err error

	switch action {
	case PromptScore:
		err = s.score()
	case PromptRewrite:
		err = s.rewrite()
	case PromptSave:
		err = s.save()
	case PromptReport:
		err = s.report()
	case PromptEditCriteria:
		err = s.editCriteria()
	case PromptUpload:
		err = s.uploadAnother()
	case PromptShowState:
		s.show()
	case PromptReset:
		s.o.Reset()
		s.d.logger.Info("pipeline reset", zap.String("hint", "upload a resume to continue"))
	case PromptLogout:
		s.o.Logout()
		s.d.logger.Info("logged out")
	case PromptExit:
		s.d.logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}

	if errors.Is(err, promptui.ErrInterrupt) {
		return errExit
	}
	if err != nil && apierr.KindOf(err) == "" {
		return err
	}

	return nil
}

func (s *analysis) upload(doc *document.Document) error {
	parsed, err := s.o.Upload(s.ctx, doc)
	if err != nil {
		stepFailed(s.d.logger, pipeline.StepUpload, s.o.Snapshot())
		return err
	}

	s.d.logger.Info("resume uploaded",
		zap.String("filename", doc.Name),
		zap.Int("pages", doc.Pages),
		zap.Strings("skills", parsed.Skills),
	)
	return nil
}

func (s *analysis) uploadAnother() error {
	path, err := ask("Resume file", false)
	if err != nil {
		return err
	}

	doc, err := document.Open(strings.TrimSpace(path))
	if err != nil {
		s.d.logger.Warn("opening the resume", zap.String("reason", apierr.UserMessage(err)))
		return err
	}

	return s.upload(doc)
}

func (s *analysis) editCriteria() error {
	p := promptui.Prompt{
		Label:     "Job description",
		Default:   s.o.Criteria(),
		AllowEdit: true,
	}

	criteria, err := p.Run()
	if err != nil {
		return err
	}

	s.o.SetCriteria(strings.TrimSpace(criteria))
	return nil
}

func (s *analysis) score() error {
	result, err := s.o.Score(s.ctx)
	if err != nil {
		stepFailed(s.d.logger, pipeline.StepScore, s.o.Snapshot())
		return err
	}

	skill, similarity := result.Weights()
	renderJSON(s.d.logger, "score", result,
		zap.Float64("final_score", result.FinalScore),
		zap.Float64("skill_weight", skill),
		zap.Float64("similarity_weight", similarity),
	)
	return nil
}

func (s *analysis) rewrite() error {
	result, err := s.o.Rewrite(s.ctx)
	if err != nil {
		stepFailed(s.d.logger, pipeline.StepRewrite, s.o.Snapshot())
		return err
	}

	renderJSON(s.d.logger, "rewrite suggestions", result)
	return nil
}

func (s *analysis) save() error {
	if err := s.o.Save(s.ctx); err != nil {
		stepFailed(s.d.logger, pipeline.StepSave, s.o.Snapshot())
		return err
	}

	s.d.logger.Info("analysis saved")
	return nil
}

func (s *analysis) report() error {
	locator, err := s.o.Report(s.ctx)
	if err != nil {
		stepFailed(s.d.logger, pipeline.StepReport, s.o.Snapshot())
		return err
	}

	if s.output == "" {
		s.d.logger.Info("report is ready", zap.String("download_url", locator))
		return nil
	}

	return s.download(locator)
}

func (s *analysis) download(locator string) error {
	credential, _ := s.d.session.Current()
	n, err := writeFile(s.output, func(w io.Writer) (int64, error) {
		return s.d.service.Download(s.ctx, locator, credential, w)
	})
	if err != nil {
		if apierr.IsKind(err, apierr.KindAuthExpired) {
			s.o.SessionExpired()
		}
		s.d.logger.Warn("downloading the report", zap.String("reason", apierr.UserMessage(err)), zap.Error(err))
		return err
	}

	s.d.logger.Info("report downloaded", zap.String("filename", s.output), zap.Int64("bytes", n))
	return nil
}

// writeFile creates path and fills it. The file is removed again when fill fails
// so no truncated report is left behind.
func writeFile(path string, fill func(io.Writer) (int64, error)) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating report file: %w", err)
	}

	n, err := fill(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing report file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}

	return n, nil
}

func (s *analysis) show() {
	snap := s.o.Snapshot()

	state := map[string]any{
		"authenticated": snap.Authenticated,
		"criteria":      snap.Criteria,
		"score":         snap.Score,
		"rewrite":       snap.Rewrite,
		"report_url":    snap.ReportURL,
	}
	if snap.Document != nil && snap.Document.Document != nil {
		state["resume"] = snap.Document.Document.Name
	}

	steps := make(map[string]string, len(pipeline.Steps))
	for _, step := range pipeline.Steps {
		st := snap.Step(step)
		steps[string(step)] = string(st.Status)
		if st.Failed() {
			steps[string(step)] += ": " + st.Reason
		}
	}
	state["steps"] = steps

	renderJSON(s.d.logger, "current state", state, zap.Uint64("version", snap.Version))
}
