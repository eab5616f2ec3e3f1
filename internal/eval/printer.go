// ABOUTME: Console printer for progress lines and the final evaluation summary
// ABOUTME: Lipgloss styling when stdout is a terminal, plain text otherwise

package eval

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// Printer writes human-readable progress and the final tally.
type Printer struct {
	out    io.Writer
	styled bool
}

// NewPrinter creates a printer for w. Styling is enabled only when w is a
// terminal.
func NewPrinter(w io.Writer) *Printer {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	return &Printer{out: w, styled: styled}
}

func (p *Printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

// Sectionf prints a blank-line-separated section header.
func (p *Printer) Sectionf(format string, args ...any) {
	fmt.Fprintf(p.out, "\n%s\n", p.render(headerStyle, fmt.Sprintf(format, args...)))
}

// Linef prints one plain line.
func (p *Printer) Linef(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// OKf prints an indented success line.
func (p *Printer) OKf(format string, args ...any) {
	fmt.Fprintf(p.out, "  %s\n", p.render(okStyle, "✓ "+fmt.Sprintf(format, args...)))
}

// Warnf prints an indented warning line.
func (p *Printer) Warnf(format string, args ...any) {
	fmt.Fprintf(p.out, "  %s\n", p.render(warnStyle, "⚠ "+fmt.Sprintf(format, args...)))
}

// Failf prints an indented failure line.
func (p *Printer) Failf(format string, args ...any) {
	fmt.Fprintf(p.out, "  %s\n", p.render(failStyle, "✗ "+fmt.Sprintf(format, args...)))
}

// Summary prints the final tally: totals, then per-failure detail.
func (p *Printer) Summary(r *Report) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(p.out, "\n%s\n", rule)
	fmt.Fprintln(p.out, p.render(headerStyle, "EVALUATION SUMMARY"))
	fmt.Fprintln(p.out, rule)
	fmt.Fprintln(p.out, p.render(dimStyle, "Run: "+r.RunID))

	fmt.Fprintf(p.out, "\nTotal tests: %d\n", len(r.Results))
	fmt.Fprintf(p.out, "Passed: %d\n", r.Passed())
	fmt.Fprintf(p.out, "Failed: %d\n", r.Failed())

	if r.Failed() == 0 {
		return
	}

	fmt.Fprintln(p.out, "\nFailed tests:")
	for _, res := range r.Results {
		if res.Success {
			continue
		}
		fmt.Fprintf(p.out, "  - %s\n", p.render(failStyle, res.Tool))
		if res.Err != "" {
			fmt.Fprintf(p.out, "    Error: %s\n", res.Err)
		}
		for _, d := range res.Differences {
			fmt.Fprintf(p.out, "    Diff: %s\n", d)
		}
	}
}
