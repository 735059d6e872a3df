package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-match/internal/apierr"
	"github.com/spigell/resume-match/internal/scoring"
	"github.com/spigell/resume-match/internal/secrets"
)

const passwordEnv = "RESUME_MATCH_PASSWORD"

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the scoring service and remember the session",
	Run: func(cmd *cobra.Command, _ []string) {
		authenticate(cmd, false)
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account on the scoring service and remember the session",
	Run: func(cmd *cobra.Command, _ []string) {
		authenticate(cmd, true)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Run: func(_ *cobra.Command, _ []string) {
		d := setup()
		d.session.Clear()
		d.logger.Info("logged out")
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringP("email", "e", "", "account email")
		c.Flags().String("password-file", "", "file containing the password (default is to prompt or read "+passwordEnv+")")
		rootCmd.AddCommand(c)
	}
	registerCmd.Flags().StringP("username", "u", "", "account username")

	rootCmd.AddCommand(logoutCmd)
}

func authenticate(cmd *cobra.Command, register bool) {
	ctx := context.Background()
	d := setup()

	creds, err := readCredentials(cmd, register)
	if err != nil {
		d.logger.Fatal("reading credentials", zap.Error(err))
	}

	var token string
	if register {
		token, err = d.service.Register(ctx, creds)
	} else {
		token, err = d.service.Login(ctx, creds)
	}
	if err != nil {
		d.logger.Fatal("authentication failed",
			zap.String("reason", apierr.UserMessage(err)),
			zap.Error(err),
		)
	}

	if err := d.session.Set(token); err != nil {
		d.logger.Fatal("storing the session", zap.Error(err))
	}

	d.logger.Info("logged in", zap.String("email", creds.Email))
}

func readCredentials(cmd *cobra.Command, register bool) (*scoring.Credentials, error) {
	creds := &scoring.Credentials{}

	email, _ := cmd.Flags().GetString("email")
	if strings.TrimSpace(email) == "" {
		var err error
		if email, err = ask("Email", false); err != nil {
			return nil, err
		}
	}
	creds.Email = strings.TrimSpace(email)

	if register {
		username, _ := cmd.Flags().GetString("username")
		if strings.TrimSpace(username) == "" {
			var err error
			if username, err = ask("Username", false); err != nil {
				return nil, err
			}
		}
		creds.Username = strings.TrimSpace(username)
	}

	passwordFile, _ := cmd.Flags().GetString("password-file")
	password, err := secrets.Load(secrets.Source{Name: "password", File: passwordFile, Env: passwordEnv})
	if err != nil {
		if passwordFile != "" {
			return nil, err
		}
		if password, err = ask("Password", true); err != nil {
			return nil, err
		}
	}
	creds.Password = password

	return creds, nil
}

func ask(label string, mask bool) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("must not be empty")
			}
			return nil
		},
	}
	if mask {
		p.Mask = '*'
	}

	return p.Run()
}
