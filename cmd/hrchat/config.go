package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "HRCHAT"

// config is the resolved configuration shared by all subcommands.
type config struct {
	BaseURL     string
	Token       string
	Agent       string
	Session     string
	IdleTimeout time.Duration
	LooseJSON   bool
	Transcript  string
	Addr        string
	LogLevel    string
}

// bindFlags registers the persistent flags and binds them to v. Flags win
// over HRCHAT_* environment variables, which win over defaults.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.PersistentFlags()
	f.String("base-url", "http://localhost:8080", "chat backend base URL")
	f.String("token", "", "bearer token for the chat backend")
	f.String("agent", "", "agent ID used when creating a session")
	f.String("session", "", "existing chat session ID to continue")
	f.Duration("idle-timeout", 60*time.Second, "abort a stream after this long without data (0 disables)")
	f.Bool("loose-json", false, "accept Python-style event payloads")
	f.String("transcript", "", "path of a transcript file to resume and save")
	f.String("addr", "127.0.0.1:8080", "listen address for the stub backend")
	f.String("log-level", "info", "log level: debug, info, warn, error")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	f.VisitAll(func(fl *pflag.Flag) {
		_ = v.BindPFlag(fl.Name, fl)
	})
}

// loadConfig reads .env (if present) and resolves the configuration.
func loadConfig(v *viper.Viper) (config, error) {
	_ = godotenv.Load()

	cfg := config{
		BaseURL:     v.GetString("base-url"),
		Token:       v.GetString("token"),
		Agent:       v.GetString("agent"),
		Session:     v.GetString("session"),
		IdleTimeout: v.GetDuration("idle-timeout"),
		LooseJSON:   v.GetBool("loose-json"),
		Transcript:  v.GetString("transcript"),
		Addr:        v.GetString("addr"),
		LogLevel:    v.GetString("log-level"),
	}
	if cfg.IdleTimeout < 0 {
		return config{}, fmt.Errorf("idle-timeout must be non-negative, got %s", cfg.IdleTimeout)
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log-level: %w", err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
