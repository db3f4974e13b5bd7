package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Output selects how a Printer renders errors.
type Output string

const (
	OutputText Output = "text"
	OutputJSON Output = "json"
)

// ParseOutput validates an --error-format value.
func ParseOutput(s string) (Output, error) {
	switch o := Output(strings.ToLower(s)); o {
	case OutputText, OutputJSON:
		return o, nil
	}
	return "", fmt.Errorf("unknown error format %q (want text or json)", s)
}

// Printer writes errors for the command line.
type Printer struct {
	Output Output
	Color  bool
}

// NewPrinter returns a text printer that colors output when w is a
// terminal and NO_COLOR is unset.
func NewPrinter(w io.Writer) Printer {
	return Printer{Output: OutputText, Color: isTerminal(w) && os.Getenv("NO_COLOR") == ""}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	st, err := f.Stat()
	return err == nil && st.Mode()&os.ModeCharDevice != 0
}

// Print writes err to w. Errors that are not *Error are printed with
// their message only.
func (p Printer) Print(w io.Writer, err error) {
	var ce *Error
	if !errors.As(err, &ce) {
		ce = &Error{Message: err.Error()}
	}
	if p.Output == OutputJSON {
		data, _ := json.Marshal(ce)
		fmt.Fprintf(w, "%s\n", data)
		return
	}
	fmt.Fprint(w, ce.Render(p.Color))
}

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiRed   = "\033[31m"
	ansiCyan  = "\033[36m"
	ansiGray  = "\033[90m"
)

// pen applies ANSI styles when enabled.
type pen bool

func (p pen) paint(text string, styles ...string) string {
	if !p {
		return text
	}
	return strings.Join(styles, "") + text + ansiReset
}

// Render returns the error laid out for a terminal: a header, the source
// excerpt around Location, the detail paragraph, the cause and the hint.
func (e *Error) Render(color bool) string {
	pn := pen(color)
	var b strings.Builder

	label := "ERROR:"
	if e.Code != "" {
		label = "ERROR " + e.Code + ":"
	}
	fmt.Fprintf(&b, "\n%s %s\n\n", pn.paint(label, ansiBold, ansiRed), pn.paint(e.Message, ansiBold))

	e.renderSource(&b, pn)

	if lines := wrapText(e.Detail, 70); len(lines) > 0 {
		for _, l := range lines {
			fmt.Fprintf(&b, "  %s\n", l)
		}
		b.WriteString("\n")
	}
	if e.Wrapped != nil {
		fmt.Fprintf(&b, "  %s%s\n\n", pn.paint("Cause: ", ansiGray), e.Wrapped)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  %s%s\n\n", pn.paint("Hint: ", ansiCyan), e.Suggestion)
	}
	return b.String()
}

// renderSource writes the location and its context lines, marking the
// offending line and column.
func (e *Error) renderSource(b *strings.Builder, pn pen) {
	if e.Location == nil {
		return
	}
	fmt.Fprintf(b, "  %s\n\n", pn.paint(e.Location.String(), ansiCyan))
	if len(e.Context) == 0 {
		return
	}
	gutter := pn.paint(" │ ", ansiGray)
	first := e.Location.Line - len(e.Context)/2
	for i, text := range e.Context {
		n := first + i
		if n != e.Location.Line {
			fmt.Fprintf(b, "    %4d%s%s\n", n, gutter, text)
			continue
		}
		fmt.Fprintf(b, "  %s%4d%s%s\n", pn.paint("→ ", ansiRed), n, gutter, text)
		if c := e.Location.Column; c > 0 {
			fmt.Fprintf(b, "       %s%s%s\n", pn.paint("│ ", ansiGray), strings.Repeat(" ", c-1), pn.paint("^", ansiRed))
		}
	}
	b.WriteString("\n")
}

type jsonLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

type jsonError struct {
	Code       string        `json:"code,omitempty"`
	Category   Category      `json:"category,omitempty"`
	Message    string        `json:"message"`
	Detail     string        `json:"detail,omitempty"`
	Location   *jsonLocation `json:"location,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	Cause      string        `json:"cause,omitempty"`
}

// MarshalJSON encodes the error for --error-format=json.
func (e *Error) MarshalJSON() ([]byte, error) {
	v := jsonError{
		Code:       e.Code,
		Category:   e.Category,
		Message:    e.Message,
		Detail:     e.Detail,
		Suggestion: e.Suggestion,
	}
	if e.Location != nil {
		v.Location = &jsonLocation{File: e.Location.File, Line: e.Location.Line, Column: e.Location.Column}
	}
	if e.Wrapped != nil {
		v.Cause = e.Wrapped.Error()
	}
	return json.Marshal(v)
}

// wrapText breaks text into lines of at most width bytes at word
// boundaries. A single word longer than width gets its own line.
func wrapText(text string, width int) []string {
	var lines []string
	line := ""
	for _, word := range strings.Fields(text) {
		switch {
		case line == "":
			line = word
		case len(line)+1+len(word) > width:
			lines = append(lines, line)
			line = word
		default:
			line += " " + word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}
