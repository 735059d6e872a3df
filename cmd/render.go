package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/spigell/resume-match/internal/logger"
	"github.com/spigell/resume-match/internal/pipeline"
)

// stdout receives rendered results. Logs go to stderr.
var stdout io.Writer = os.Stdout

// renderJSON prints v as indented JSON to stdout and logs a one-line summary.
func renderJSON(log *zap.Logger, title string, v any, fields ...zap.Field) {
	// do not bother error since every rendered value is a plain struct
	pretty, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintf(stdout, "%s\n", pretty)
	log.Info(title, fields...)
}

// snapshotRenderer logs every pipeline transition as a single structured line.
func snapshotRenderer(log *zap.Logger) func(pipeline.Snapshot) {
	return func(s pipeline.Snapshot) {
		fields := []zap.Field{
			zap.Uint64("version", s.Version),
			zap.Bool("authenticated", s.Authenticated),
		}
		for _, step := range pipeline.Steps {
			st := s.Step(step)
			fields = append(fields, zap.String(string(step), string(st.Status)))
		}
		log.Debug("pipeline state", fields...)
	}
}

func stepFailed(log *zap.Logger, step pipeline.Step, s pipeline.Snapshot) {
	st := s.Step(step)
	log.Warn("step did not complete", append(logger.StepFields(string(step), st.Generation),
		zap.String(logger.FieldStatus, string(st.Status)),
		zap.String("kind", string(st.Kind)),
		zap.String("reason", st.Reason),
	)...)
}
