package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"voice-trial-agent/internal/admin"
	identityservice "voice-trial-agent/internal/identity/service"
)

func runLogin(ctx context.Context, a *app, args []string) error {
	flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
	email := flagSet.StringP("email", "e", "", "identity email")
	password := flagSet.StringP("password", "p", "", "password (prompted when omitted)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		v, err := promptLine("Email: ")
		if err != nil {
			return err
		}
		*email = v
	}
	if *password == "" {
		v, err := promptSecret("Password: ")
		if err != nil {
			return err
		}
		*password = v
	}

	id, err := a.auth.Login(ctx, *email, *password)
	if err != nil {
		return errors.New(identityservice.UserMessage(err))
	}
	a.term.Printf("Signed in as %s (%s).", id.DisplayName, id.Email)
	return nil
}

func runLogout(ctx context.Context, a *app, args []string) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	a.term.Printf("Signed out.")
	return nil
}

func runStatus(ctx context.Context, a *app, args []string) error {
	ctl, cleanup, err := a.newController(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()
	st, err := ctl.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Println(a.term.RenderStatus(st))
	return nil
}

func runAdmin(ctx context.Context, a *app, args []string) error {
	flagSet := pflag.NewFlagSet("admin", pflag.ContinueOnError)
	password := flagSet.String("password", "", "admin password (prompted when omitted)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		return errors.New("usage: voiceagent admin [--password P] list|reset EMAIL|revoke EMAIL|clear")
	}
	if *password == "" {
		v, err := promptSecret("Admin password: ")
		if err != nil {
			return err
		}
		*password = v
	}
	panel, err := a.adminGate().Unlock(*password)
	if err != nil {
		if errors.Is(err, admin.ErrInvalidAdminPassword) {
			return errors.New(admin.InvalidPasswordMessage)
		}
		return err
	}

	needEmail := func() (string, error) {
		if len(rest) < 2 {
			return "", fmt.Errorf("admin %s: email required", rest[0])
		}
		return rest[1], nil
	}
	switch rest[0] {
	case "list":
		entries, err := panel.Identities(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			state := "active"
			if e.Revoked {
				state = "revoked"
			}
			fmt.Printf("%-32s %-24s %s\n", e.Email, e.Name, state)
		}
		return nil
	case "reset":
		email, err := needEmail()
		if err != nil {
			return err
		}
		if err := panel.ResetTrial(ctx, email); err != nil {
			return err
		}
		a.term.Printf("Trial reset for %s.", email)
		return nil
	case "revoke":
		email, err := needEmail()
		if err != nil {
			return err
		}
		if err := panel.RevokeUser(ctx, email); err != nil {
			return err
		}
		a.term.Printf("Access revoked for %s.", email)
		return nil
	case "clear":
		if err := panel.ClearAllData(ctx); err != nil {
			return err
		}
		a.term.Printf("All stored data cleared.")
		return nil
	default:
		return fmt.Errorf("admin: unknown action %q", rest[0])
	}
}

var stdin = bufio.NewReader(os.Stdin)

func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads without echo when stdin is a terminal.
func promptSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptLine(prompt)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
