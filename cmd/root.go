package cmd

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/resume-match/internal/gateway"
)

const (
	app       = "resume-match"
	envPrefix = "RESUME_MATCH"
)

type Config struct {
	API         *APIConfig     `mapstructure:"api"`
	UserAgent   string         `mapstructure:"user-agent"`
	SessionFile string         `mapstructure:"session-file"`
	Rewrite     *RewriteConfig `mapstructure:"rewrite"`
}

type APIConfig struct {
	// BaseURL is either an absolute address or a path on Origin, like a same-origin proxy.
	BaseURL string        `mapstructure:"base-url"`
	Origin  string        `mapstructure:"origin"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RewriteConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "resume-match scores a resume against a job description using the resume scoring service",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is resume-match.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("base-url", "", "scoring service address, absolute or a path on the origin")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("api.base-url", rootCmd.PersistentFlags().Lookup("base-url"))

	viper.SetDefault("api.base-url", "/api")
	viper.SetDefault("api.origin", "http://127.0.0.1:8000")
	viper.SetDefault("api.timeout", gateway.DefaultTimeout)
	viper.SetDefault("user-agent", "")
	viper.SetDefault("session-file", "")
	viper.SetDefault("rewrite.provider", providerService)
	viper.SetDefault("rewrite.gemini.api-key", "")
	viper.SetDefault("rewrite.gemini.api-key-file", "")
	viper.SetDefault("rewrite.gemini.model", "")
	viper.SetDefault("rewrite.gemini.max-retries", 3)
	viper.SetDefault("rewrite.gemini.max-log-length", 200)
}

func initConfig() {
	// A missing .env is fine; a broken one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading .env file: %v", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Only an explicitly requested config file has to exist.
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.API == nil {
		config.API = &APIConfig{}
	}
	if config.Rewrite == nil {
		config.Rewrite = &RewriteConfig{}
	}
	if config.Rewrite.Gemini == nil {
		config.Rewrite.Gemini = &GeminiConfig{}
	}

	return config, nil
}
