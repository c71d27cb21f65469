package minimize

import (
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/engine/search"
)

// better reports whether a should replace b as the representative of an issue.
func better(a, b domain.PricedReport) bool {
	if a.Perfect() != b.Perfect() {
		return a.Perfect()
	}
	return a.Cost < b.Cost
}

// Dedup keeps the cheapest finding per subject and then one finding per issue (node type and
// property name), preferring perfect reproductions. Order of first appearance is kept.
func Dedup(priced []domain.PricedReport) []domain.PricedReport {
	bySubject := make(map[domain.PropKey]int)
	var subjects []domain.PricedReport
	for _, r := range priced {
		if i, ok := bySubject[r.Subject.Key()]; ok {
			if r.Cost < subjects[i].Cost {
				subjects[i] = r
			}
			continue
		}
		bySubject[r.Subject.Key()] = len(subjects)
		subjects = append(subjects, r)
	}

	byIssue := make(map[string]int)
	var out []domain.PricedReport
	for _, r := range subjects {
		key := r.Subject.IssueKey()
		if i, ok := byIssue[key]; ok {
			if better(r, out[i]) {
				out[i] = r
			}
			continue
		}
		byIssue[key] = len(out)
		out = append(out, r)
	}
	return out
}

// uniqueDivergences keeps the earliest divergence per issue.
func uniqueDivergences(divs []search.Divergence) []search.Divergence {
	byIssue := make(map[string]int)
	var out []search.Divergence
	for _, d := range divs {
		key := d.Subject.IssueKey()
		if i, ok := byIssue[key]; ok {
			if d.Diff.Index < out[i].Diff.Index {
				out[i] = d
			}
			continue
		}
		byIssue[key] = len(out)
		out = append(out, d)
	}
	return out
}
