// Package ui renders controller updates to a terminal.
package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	policydomain "voice-trial-agent/internal/policy/domain"
	"voice-trial-agent/internal/voice"
)

// Theme holds the colors used by Terminal.
type Theme struct {
	Accent  lipgloss.Color
	Muted   lipgloss.Color
	User    lipgloss.Color
	Agent   lipgloss.Color
	Warning lipgloss.Color
	Danger  lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	Accent:  lipgloss.Color("39"),
	Muted:   lipgloss.Color("245"),
	User:    lipgloss.Color("81"),
	Agent:   lipgloss.Color("114"),
	Warning: lipgloss.Color("214"),
	Danger:  lipgloss.Color("203"),
}

// Terminal implements voice.Notifier by writing one line per update.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer

	label   lipgloss.Style
	muted   lipgloss.Style
	user    lipgloss.Style
	agent   lipgloss.Style
	warning lipgloss.Style
	notice  lipgloss.Style
}

// NewTerminal returns a Terminal writing to out. Colors are dropped when out is not a TTY.
func NewTerminal(out io.Writer, theme Theme) *Terminal {
	r := lipgloss.NewRenderer(out)
	return &Terminal{
		out:     out,
		label:   r.NewStyle().Bold(true).Foreground(theme.Accent),
		muted:   r.NewStyle().Foreground(theme.Muted),
		user:    r.NewStyle().Bold(true).Foreground(theme.User),
		agent:   r.NewStyle().Bold(true).Foreground(theme.Agent),
		warning: r.NewStyle().Foreground(theme.Warning),
		notice: r.NewStyle().
			Bold(true).
			Foreground(theme.Danger).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Danger).
			Padding(0, 1),
	}
}

var _ voice.Notifier = (*Terminal)(nil)

// StateChanged prints the new controller state.
func (t *Terminal) StateChanged(s voice.State) {
	t.println(t.label.Render("●") + " " + t.muted.Render(stateLabel(s)))
}

// MessageAdded prints one conversation line.
func (t *Terminal) MessageAdded(m voice.Message) {
	t.println(t.RenderMessage(m))
}

// StatusChanged prints the usage summary.
func (t *Terminal) StatusChanged(s voice.Status) {
	t.println(t.RenderStatus(s))
}

// Blocked prints the block notice for v.
func (t *Terminal) Blocked(v policydomain.Verdict) {
	t.println(t.RenderBlocked(v))
}

// Printf writes a muted informational line.
func (t *Terminal) Printf(format string, args ...any) {
	t.println(t.muted.Render(fmt.Sprintf(format, args...)))
}

// RenderMessage formats a conversation line as "HH:MM:SS you|agent: content".
func (t *Terminal) RenderMessage(m voice.Message) string {
	who := t.agent.Render("agent")
	if m.Type == voice.MessageUser {
		who = t.user.Render("you")
	}
	ts := t.muted.Render(m.Timestamp.Local().Format("15:04:05"))
	return fmt.Sprintf("%s %s: %s", ts, who, m.Content)
}

// RenderStatus formats the status line shown while authenticated.
func (t *Terminal) RenderStatus(s voice.Status) string {
	if s.Email == "" {
		return t.muted.Render("not signed in")
	}
	parts := []string{
		t.label.Render(s.Email),
		fmt.Sprintf("usage %d/%d", s.InteractionCount, s.InteractionLimit),
		fmt.Sprintf("tokens %d/%d", s.Tokens, s.TokenLimit),
	}
	if s.SessionStarted {
		remaining := formatRemaining(s.Remaining)
		if s.Remaining <= 10*time.Second {
			remaining = t.warning.Render(remaining)
		}
		parts = append(parts, remaining+" left")
	} else {
		parts = append(parts, t.muted.Render("session not started"))
	}
	if !s.Active {
		parts = append(parts, t.warning.Render("inactive"))
	}
	return strings.Join(parts, t.muted.Render(" · "))
}

// RenderBlocked formats the block notice.
func (t *Terminal) RenderBlocked(v policydomain.Verdict) string {
	msg := v.Reason.Message()
	if msg == "" {
		msg = "Your trial has ended."
	}
	return t.notice.Render(msg + "\nAsk an administrator to reset your trial.")
}

func (t *Terminal) println(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, s)
}

func stateLabel(s voice.State) string {
	switch s {
	case voice.StateIdle:
		return "Ready. Press Enter to talk."
	case voice.StateConnecting:
		return "Connecting..."
	case voice.StateListening:
		return "Listening. Press Enter to stop."
	case voice.StateStopping:
		return "Stopping..."
	case voice.StateBlocked:
		return "Trial ended."
	default:
		return string(s)
	}
}

// formatRemaining renders d as m:ss, clamped at zero.
func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
