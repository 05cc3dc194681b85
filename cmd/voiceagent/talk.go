package main

import (
	"bufio"
	"context"
	"errors"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"voice-trial-agent/internal/voice"
)

const talkHelp = "Enter: talk/stop · a: toggle active · d: dismiss notice · s: status · q: quit"

// runTalk drives the controller from stdin until q, EOF or an interrupt.
func runTalk(ctx context.Context, a *app, args []string) error {
	flagSet := pflag.NewFlagSet("talk", pflag.ContinueOnError)
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	ctl, cleanup, err := a.newController(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	if !a.auth.IsAuthenticated(ctx) {
		return errors.New("not signed in; run: voiceagent login")
	}
	a.term.Printf(talkHelp)
	if st, err := ctl.Status(ctx); err == nil {
		a.term.StatusChanged(st)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleTalkInput(ctx, a, ctl, line); quit {
				return nil
			}
		}
	}
}

func handleTalkInput(ctx context.Context, a *app, ctl *voice.Controller, line string) bool {
	switch strings.ToLower(line) {
	case "":
		switch ctl.State() {
		case voice.StateIdle:
			go startSession(ctx, a, ctl)
		case voice.StateConnecting, voice.StateListening:
			ctl.Stop(ctx)
		case voice.StateBlocked:
			ctl.Dismiss()
		}
	case "a":
		ctl.SetActive(ctx, !ctl.Active())
	case "d":
		ctl.Dismiss()
	case "s":
		if st, err := ctl.Status(ctx); err == nil {
			a.term.StatusChanged(st)
		}
	case "q", "quit", "exit":
		return true
	default:
		a.term.Printf(talkHelp)
	}
	return false
}

// startSession reports Start failures the controller does not already surface.
func startSession(ctx context.Context, a *app, ctl *voice.Controller) {
	err := ctl.Start(ctx)
	switch {
	case err == nil, errors.Is(err, voice.ErrAborted), errors.Is(err, voice.ErrConnectionFailure), errors.Is(err, voice.ErrPolicyViolation):
		// Failures already appear in the conversation or as the block notice.
	case errors.Is(err, voice.ErrNotAuthenticated):
		a.term.Printf("Signed out. Run: voiceagent login")
	default:
		a.term.Printf("Start: %v", err)
	}
}
