package app

import (
	"fmt"
	"io"

	"go.trai.ch/sidefx/internal/ui/output"
	"go.trai.ch/sidefx/internal/ui/style"
)

// printSummary lists every reproduction found by explain, followed by the keys that could
// not be explained.
func printSummary(w io.Writer, attempted []string, explained map[string]bool, found []explanation) {
	out := output.New(w)
	heading := func(s string) string {
		return out.String(s).Bold().Foreground(out.Color(string(style.Iris))).String()
	}

	for _, key := range attempted {
		if !explained[key] {
			_, _ = fmt.Fprintln(out, out.String(style.Cross+" could not explain "+key).Foreground(out.Color(string(style.Red))))
		}
	}
	for _, e := range found {
		_, _ = fmt.Fprintln(out)
		if e.repro.Flaky {
			_, _ = fmt.Fprintln(out, heading(e.key+" is flaky: it changes value without intermediate steps"))
		} else {
			_, _ = fmt.Fprintln(out, heading(fmt.Sprintf("Found %d perturbation step(s) for %s", len(e.repro.Steps), e.key)))
		}
		for i, step := range e.repro.Steps {
			_, _ = fmt.Fprintf(out, "[%7d]: %s\n", i, step.String())
		}
		_, _ = fmt.Fprintf(out, "[subject]: %s\n", e.subject.String())
		_, _ = fmt.Fprintf(out, "    Fresh Value: %s\n", e.repro.Fresh.String())
		_, _ = fmt.Fprintf(out, "Perturbed Value: %s\n", e.repro.After.String())
	}

	mark := style.Check
	if len(found) < len(attempted) {
		mark = style.Warning
	}
	_, _ = fmt.Fprintf(out, "\n%s Found explanations for %d of %d attempted attribute instances\n", mark, len(found), len(attempted))
}
