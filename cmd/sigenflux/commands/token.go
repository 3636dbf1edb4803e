package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/dmaguire/sigenflux/internal/app"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "print the active access token, acquiring or refreshing as needed",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "discard the stored credential set and re-authenticate",
			},
			&cli.BoolFlag{
				Name:  "login",
				Usage: "prompt for the account secret instead of reading it from config",
			},
		},
		Action: tokenAction,
	}
}

func tokenAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("login") {
		secret, err := promptSecret(cmd)
		if err != nil {
			return err
		}
		cfg.Sigen.Password = secret
	}

	manager, err := app.NewTokenManager(cfg)
	if err != nil {
		return err
	}

	var token string
	if cmd.Bool("force") || cmd.Bool("login") {
		token, err = manager.ForceAuthenticate(ctx)
	} else {
		token, err = manager.ActiveAccessToken(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	fmt.Fprintln(cmd.Writer, token)
	return nil
}

// promptSecret reads the pre-transformed account secret without echo.
// Falls back to a plain line read when stdin is not a terminal (piped input).
func promptSecret(cmd *cli.Command) (string, error) {
	fmt.Fprint(cmd.ErrWriter, "Account secret: ")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrWriter)
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	var line string
	if _, err := fmt.Fscanln(cmd.Reader, &line); err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
