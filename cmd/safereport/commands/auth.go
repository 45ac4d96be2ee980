package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

type LoginCmd struct {
	Token string `arg:"" optional:"" help:"Session token. Read from stdin when omitted."`

	in io.Reader
}

func (c *LoginCmd) Run(ctx *cliCtx) error {
	token := strings.TrimSpace(c.Token)
	if token == "" {
		in := c.in
		if in == nil {
			in = os.Stdin
		}
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read token: %w", err)
		}
		token = strings.TrimSpace(line)
	}
	if err := ctx.tokens().Save(ctx.serverURL(), token); err != nil {
		return err
	}
	fmt.Printf("Logged in to %s\n", ctx.serverURL())
	return nil
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx *cliCtx) error {
	if err := ctx.tokens().Forget(ctx.serverURL()); err != nil {
		return err
	}
	fmt.Printf("Logged out of %s\n", ctx.serverURL())
	return nil
}
