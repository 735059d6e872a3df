package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-match/internal/ai"
	"github.com/spigell/resume-match/internal/ai/gemini"
	"github.com/spigell/resume-match/internal/gateway"
	"github.com/spigell/resume-match/internal/logger"
	"github.com/spigell/resume-match/internal/scoring"
	"github.com/spigell/resume-match/internal/secrets"
	"github.com/spigell/resume-match/internal/session"
)

const (
	providerService = "service"
	providerGemini  = "gemini"
)

// deps holds everything a command needs to talk to the scoring service.
type deps struct {
	config  *Config
	logger  *zap.Logger
	session *session.Store
	gateway *gateway.Client
	service *scoring.Client
}

func setup() *deps {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	sessionFile := strings.TrimSpace(config.SessionFile)
	if sessionFile == "" {
		sessionFile = session.DefaultPath(app)
	}
	store := session.New(sessionFile, logger)
	store.Load()

	base := gateway.ResolveBase(config.API.Origin, config.API.BaseURL)
	gw := gateway.New(base, logger)
	if config.API.Timeout > 0 {
		gw.Timeout = config.API.Timeout
	}
	if config.UserAgent != "" {
		gw.UserAgent = config.UserAgent
	}
	gw.OnUnauthorized = store.Clear

	logger.Debug("scoring service", zap.String("base_url", base), zap.String("session_file", sessionFile))

	return &deps{
		config:  config,
		logger:  logger,
		session: store,
		gateway: gw,
		service: scoring.New(gw, logger),
	}
}

// credential returns the stored credential or exits with a hint to log in.
func (d *deps) credential() string {
	token, ok := d.session.Current()
	if !ok {
		d.logger.Fatal("not logged in", zap.String("hint", fmt.Sprintf("run '%s login' first", app)))
	}
	return token
}

// rewriter returns nil for the service provider so the pipeline uses its default.
func (d *deps) rewriter(ctx context.Context) (ai.Rewriter, error) {
	cfg := d.config.Rewrite
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))

	switch provider {
	case "", providerService:
		return nil, nil
	case providerGemini:
	default:
		return nil, fmt.Errorf("unsupported rewrite provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set rewrite.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	genLogger := d.logger.With(logger.ProviderFields(providerGemini, cfg.Gemini.Model)...).
		With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries))

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	return gemini.NewRewriter(generator, d.logger, cfg.Gemini.MaxLogLength), nil
}

func redacted(config *Config) *Config {
	c := *config
	if config.Rewrite != nil && config.Rewrite.Gemini != nil && config.Rewrite.Gemini.APIKey != "" {
		rewrite := *config.Rewrite
		g := *config.Rewrite.Gemini
		g.APIKey = "***"
		rewrite.Gemini = &g
		c.Rewrite = &rewrite
	}
	return &c
}
