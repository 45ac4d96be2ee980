package commands

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/mscno/safereport/pkg/oskeyring"
)

const defaultServerURL = "http://localhost:8080"

type cliCtx struct {
	context.Context
	Logger    *slog.Logger
	OSKeyring oskeyring.Service
	ServerURL string
	// Token overrides the keyring entry for ServerURL when set.
	Token string
}

type cli struct {
	Login    LoginCmd    `cmd:"" help:"Store a session token for the server in the OS keyring."`
	Logout   LogoutCmd   `cmd:"" help:"Remove the stored session token for the server."`
	Classify ClassifyCmd `cmd:"" help:"Classify a description offline with the keyword classifier."`
	Submit   SubmitCmd   `cmd:"" help:"Submit an anonymous incident report."`
	Orgs     OrgsCmd     `cmd:"" help:"Find, register and review support organizations."`
	Reports  ReportsCmd  `cmd:"" help:"Work the organization inbox."`

	Server   string           `env:"SAFEREPORT_SERVER" default:"http://localhost:8080" help:"safereport API URL."`
	Token    string           `env:"SAFEREPORT_TOKEN" help:"Session token. Defaults to the token saved by login."`
	LogLevel string           `env:"SAFEREPORT_LOG_LEVEL" default:"warn" enum:"debug,info,warn,error" help:"Log level."`
	Version  kong.VersionFlag `help:"Show version"`
}

func Execute(version string) {
	_ = godotenv.Load()

	var cli cli
	ctx := kong.Parse(&cli,
		kong.UsageOnError(),
		kong.Name("safereport"),
		kong.Description("safereport files anonymous incident reports and manages the organization inbox."),
		kong.Vars{"version": version},
	)

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cli.LogLevel))); err != nil {
		level = slog.LevelWarn
	}
	err := ctx.Run(&cliCtx{
		Context:   context.Background(),
		Logger:    slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
		OSKeyring: oskeyring.NewDefaultService(),
		ServerURL: cli.Server,
		Token:     cli.Token,
	})
	ctx.FatalIfErrorf(err)
}
