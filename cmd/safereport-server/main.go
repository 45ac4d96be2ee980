// Package main runs the safereport API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// version is set via ldflags: -X main.version=x.y.z
var version string

func getVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

type cliCtx struct {
	context.Context
	Logger *slog.Logger
}

type cli struct {
	Serve ServeCmd `cmd:"" default:"withargs" help:"Run the API server."`
	Token TokenCmd `cmd:"" help:"Mint a session token for an organization or admin account."`

	LogLevel  string           `env:"SAFEREPORT_LOG_LEVEL" default:"info" enum:"debug,info,warn,error" help:"Log level."`
	LogFormat string           `env:"SAFEREPORT_LOG_FORMAT" default:"text" enum:"text,json" help:"Log output format."`
	Version   kong.VersionFlag `help:"Show version"`
}

func main() {
	// A missing .env file is fine; the environment and flags still apply.
	_ = godotenv.Load()

	var c cli
	kctx := kong.Parse(&c,
		kong.UsageOnError(),
		kong.Name("safereport-server"),
		kong.Description("safereport receives anonymous incident reports and routes consented ones to verified support organizations."),
		kong.Vars{"version": getVersion()},
	)
	logger := newLogger(c.LogLevel, c.LogFormat)
	slog.SetDefault(logger)

	err := kctx.Run(&cliCtx{Context: context.Background(), Logger: logger})
	kctx.FatalIfErrorf(err)
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
