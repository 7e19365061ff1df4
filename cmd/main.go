package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mammo-rag/internal/config"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	var cfgPath string
	root := &cobra.Command{
		Use:           "mammo-rag",
		Short:         "Mammogram classification and breast cancer question answering",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", configFilePath, "config file")

	load := func() (*config.Config, error) {
		return loadConfig(cfgPath)
	}
	root.AddCommand(serveCMD(load), indexCMD(load), askCMD(load), chatCMD(load))

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

type configLoader func() (*config.Config, error)

// loadConfig reads .env, the YAML file and environment overrides, then sets
// the global log level.
func loadConfig(path string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Ignoring unreadable .env file")
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debug().Interface("config", redacted(cfg)).Msg("Loaded config")
	return cfg, nil
}

func redacted(cfg *config.Config) config.Config {
	out := *cfg
	if out.EmbedLLM.Key != "" {
		out.EmbedLLM.Key = "***"
	}
	if out.ChatLLM.Key != "" {
		out.ChatLLM.Key = "***"
	}
	if out.RAG.EncryptionKey != "" {
		out.RAG.EncryptionKey = "***"
	}
	out.Database.DSN = ""
	return out
}
