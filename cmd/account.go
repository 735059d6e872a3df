package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-match/internal/apierr"
)

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the logged in account",
	Run: func(_ *cobra.Command, _ []string) {
		ctx := context.Background()
		d := setup()

		profile, err := d.service.Me(ctx, d.credential())
		if err != nil {
			fatalCall(d.logger, "getting the profile", err)
		}

		renderJSON(d.logger, "profile", profile)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved analyses",
	Run: func(_ *cobra.Command, _ []string) {
		ctx := context.Background()
		d := setup()

		analyses, err := d.service.Analyses(ctx, d.credential())
		if err != nil {
			fatalCall(d.logger, "getting saved analyses", err)
		}

		renderJSON(d.logger, "saved analyses", analyses, zap.Int("count", len(analyses)))
	},
}

func init() {
	rootCmd.AddCommand(meCmd)
	rootCmd.AddCommand(historyCmd)
}

func fatalCall(log *zap.Logger, msg string, err error) {
	fields := []zap.Field{
		zap.String("reason", apierr.UserMessage(err)),
		zap.Error(err),
	}
	if apierr.IsKind(err, apierr.KindAuthExpired) {
		fields = append(fields, zap.String("hint", fmt.Sprintf("run '%s login' again", app)))
	}
	log.Fatal(msg, fields...)
}
