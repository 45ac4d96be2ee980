package commands

import (
	"errors"
	"fmt"

	"github.com/mscno/safereport/pkg/client"
	"github.com/mscno/safereport/pkg/oskeyring"
)

func (ctx *cliCtx) serverURL() string {
	if ctx.ServerURL == "" {
		return defaultServerURL
	}
	return ctx.ServerURL
}

func (ctx *cliCtx) tokens() *oskeyring.TokenStore {
	return oskeyring.NewTokenStore(ctx.OSKeyring)
}

// setupClient builds an API client for the selected server. With
// requireToken set, a missing token is an error pointing at login.
func setupClient(ctx *cliCtx, requireToken bool) (*client.APIClient, error) {
	token := ctx.Token
	if token == "" && ctx.OSKeyring != nil {
		stored, err := ctx.tokens().Load(ctx.serverURL())
		switch {
		case err == nil:
			token = stored
		case errors.Is(err, oskeyring.ErrNotFound):
		default:
			return nil, fmt.Errorf("failed to read token from keyring: %w", err)
		}
	}
	if token == "" && requireToken {
		return nil, fmt.Errorf("not logged in to %s. Please login first with 'safereport login'", ctx.serverURL())
	}

	ctx.Logger.Debug("initializing API client", "serverURL", ctx.serverURL())
	return client.NewAPIClient(client.ClientConfig{
		ServerURL: ctx.serverURL(),
		AuthToken: token,
		Logger:    ctx.Logger,
	})
}
