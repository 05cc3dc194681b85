// voiceagent is the trial-gated voice agent client.
//
//	voiceagent login --email you@example.com
//	voiceagent talk
//	voiceagent status
//	voiceagent logout
//	voiceagent admin list|reset EMAIL|revoke EMAIL|clear
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"voice-trial-agent/internal/config"
)

// command is one voiceagent subcommand.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"login", "sign in with an authorized email and password", runLogin},
	{"logout", "sign out and clear the current session", runLogout},
	{"status", "show usage, tokens and time remaining", runStatus},
	{"talk", "start an interactive voice session", runTalk},
	{"admin", "administrative panel (list, reset, revoke, clear)", runAdmin},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printHelp()
		return nil
	}
	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		printHelp()
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	return cmd.run(ctx, a, args[1:])
}

func printHelp() {
	fmt.Fprintln(os.Stderr, "voiceagent: trial-gated voice agent client\n\nUsage:\n  voiceagent <command> [flags]\n\nCommands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(os.Stderr, "\nConfiguration is read from .env and the environment (see internal/config).")
}
