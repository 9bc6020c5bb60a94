package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ANSI colour codes.
const (
	ansiGreen  = "\033[92m"
	ansiRed    = "\033[91m"
	ansiYellow = "\033[93m"
	ansiBlue   = "\033[94m"
	ansiReset  = "\033[0m"
)

const ruleWidth = 60

// console prints coloured progress lines. It also serves as the Logger for
// retry and transition so their progress shows up inline.
type console struct {
	w     io.Writer
	color bool
}

func newConsole(w io.Writer, color bool) *console {
	return &console{w: w, color: color}
}

func (c *console) paint(code, s string) string {
	if !c.color {
		return s
	}
	return code + s + ansiReset
}

func (c *console) printf(format string, args ...any) {
	//nolint:errcheck // console output
	fmt.Fprintf(c.w, format, args...)
}

func (c *console) banner(lines ...string) {
	rule := strings.Repeat("=", ruleWidth)
	c.printf("\n%s\n", c.paint(ansiBlue, rule))
	for _, l := range lines {
		c.printf("%s\n", c.paint(ansiBlue, l))
	}
	c.printf("%s\n\n", c.paint(ansiBlue, rule))
}

func (c *console) heading(s string) { c.printf("%s\n", c.paint(ansiBlue, s)) }
func (c *console) step(s string)    { c.printf("%s\n", c.paint(ansiYellow, s)) }

func (c *console) pass(name string) { c.printf("%s %s\n", c.paint(ansiGreen, "✓ PASS"), name) }

func (c *console) fail(name, reason string) {
	c.printf("%s %s - %s\n", c.paint(ansiRed, "✗ FAIL"), name, reason)
}

func (c *console) ok(s string)   { c.printf("%s %s\n", c.paint(ansiGreen, "✓"), s) }
func (c *console) bad(s string)  { c.printf("%s %s\n", c.paint(ansiRed, "✗"), s) }
func (c *console) warn(s string) { c.printf("%s %s\n", c.paint(ansiYellow, "⚠ WARN"), s) }

func (c *console) field(label string, value any, unit string) {
	if value == nil {
		value = "n/a"
		unit = ""
	}
	c.printf("  %s: %v%s\n", label, value, unit)
}

func (c *console) dump(v any) {
	data, err := json.MarshalIndent(v, "  ", "  ")
	if err != nil {
		c.printf("  (unprintable: %v)\n", err)
		return
	}
	c.printf("\n  Full Response:\n  %s\n", data)
}

// Logger methods. Debug and Info are dropped; retry waits arrive as Warn.

func (c *console) Debug(string, ...any) {}
func (c *console) Info(string, ...any)  {}

func (c *console) Warn(msg string, args ...any) {
	c.step(formatLog(msg, args))
}

func (c *console) Error(msg string, args ...any) {
	c.printf("%s\n", c.paint(ansiRed, formatLog(msg, args)))
}

// formatLog renders a structured log call as "msg (k=v, k=v)".
func formatLog(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	parts := make([]string, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		parts = append(parts, fmt.Sprintf("%v=%v", args[i], args[i+1]))
	}
	return msg + " (" + strings.Join(parts, ", ") + ")"
}
