package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mscno/safereport/pkg/session"
	"github.com/mscno/safereport/server/model"
)

// TokenCmd mints a bearer token. Account provisioning happens outside the
// server; operators hand the token to the organization or admin.
type TokenCmd struct {
	Subject   string        `arg:"" help:"Account id (the organization id for organizations)."`
	Role      string        `default:"organization" enum:"organization,admin" help:"Role granted by the token."`
	JWTSecret string        `env:"SAFEREPORT_JWT_SECRET" required:"" help:"HMAC secret used to sign session tokens."`
	Duration  time.Duration `default:"24h" help:"Token lifetime."`

	out io.Writer
}

func (c *TokenCmd) Run(ctx *cliCtx) error {
	if !model.Role(c.Role).Issuable() {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	signer, err := session.NewSigner(c.JWTSecret, c.Duration)
	if err != nil {
		return err
	}
	token, expires, err := signer.GenerateToken(c.Subject, c.Role)
	if err != nil {
		return err
	}
	ctx.Logger.Debug("minted session token", "subject", c.Subject, "role", c.Role, "expires", expires)

	out := c.out
	if out == nil {
		out = os.Stdout
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
