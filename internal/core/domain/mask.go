package domain

import (
	"regexp"
	"strings"
)

// noStringFormPattern matches the warning an evaluator emits when a result type has no custom
// string form. The line after it then carries a "Type@hexhash" identity that differs per run.
var noStringFormPattern = regexp.MustCompile(
	`^(?:no custom string (?:form )?for|No toString\(\) or cpr_getOutput\(\) implementation in) ([A-Za-z0-9_.$]+)$`,
)

// Mask drops identity-hash lines that follow a "no custom string form for T" warning.
// Nested sequences are masked recursively. Mask(Mask(x)) equals Mask(x).
func Mask(lines []Line) []Line {
	if len(lines) == 0 {
		return lines
	}
	out := make([]Line, 0, len(lines))
	warnedType := ""
	for _, l := range lines {
		if l.Kind == LineArray {
			l = Line{Kind: LineArray, Items: Mask(l.Items)}
		}
		// A run of hash lines after one warning is dropped as a whole so Mask stays idempotent.
		if warnedType != "" && isIdentityHashLine(l, warnedType) {
			continue
		}
		warnedType = ""
		if l.Kind == LinePlain {
			if m := noStringFormPattern.FindStringSubmatch(l.Value); m != nil {
				warnedType = m[1]
			}
		}
		out = append(out, l)
	}
	return out
}

func isIdentityHashLine(l Line, typeName string) bool {
	if l.Kind != LinePlain {
		return false
	}
	rest, ok := strings.CutPrefix(l.Value, typeName+"@")
	if !ok || rest == "" {
		return false
	}
	for _, c := range rest {
		if !isHexDigit(c) {
			return false
		}
	}
	return true
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
