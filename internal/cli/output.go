package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Highlight styles.
var (
	colorError   = []color.Attribute{color.FgRed, color.Bold}
	colorOK      = []color.Attribute{color.FgGreen}
	colorTag     = []color.Attribute{color.FgCyan, color.Bold}
	colorMuted   = []color.Attribute{color.Faint}
	colorWarning = []color.Attribute{color.FgYellow}
)

func (a *App) paint(attrs []color.Attribute) *color.Color {
	c := color.New(attrs...)
	if a.NoColor {
		c.DisableColor()
	}
	return c
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Stdout, format, args...)
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.Stdout, args...)
}

func (a *App) ok(format string, args ...any) {
	a.println(a.paint(colorOK).Sprintf(format, args...))
}

func (a *App) warn(format string, args ...any) {
	fmt.Fprintln(a.Stderr, a.paint(colorWarning).Sprintf(format, args...))
}

func (a *App) tag(s string) string { return a.paint(colorTag).Sprint(s) }

func (a *App) muted(s string) string { return a.paint(colorMuted).Sprint(s) }

// printJSON writes v indented by two spaces.
func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// confirm asks a question on Stdout and reads one answer line from r.
func (a *App) confirm(r *bufio.Reader, question, want string) bool {
	a.printf("%s", question)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), want)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func readAll(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
