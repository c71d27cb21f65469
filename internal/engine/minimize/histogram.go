package minimize

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
)

// Bucket counts findings with one reproduction cost.
type Bucket struct {
	Cost  int
	Count int
}

// Histogram counts findings per cost, cheapest first.
func Histogram(priced []domain.PricedReport) []Bucket {
	counts := make(map[int]int)
	for _, r := range priced {
		counts[r.Cost]++
	}
	out := make([]Bucket, 0, len(counts))
	for cost, n := range counts {
		out = append(out, Bucket{Cost: cost, Count: n})
	}
	slices.SortFunc(out, func(a, b Bucket) int { return cmp.Compare(a.Cost, b.Cost) })
	return out
}

// LogHistogram logs the reproduction cost histogram of priced.
func LogHistogram(logger ports.Logger, priced []domain.PricedReport) {
	perfect := 0
	for _, r := range priced {
		if r.Perfect() {
			perfect++
		}
	}
	logger.Info(strconv.Itoa(len(priced)) + " reproductions, " + strconv.Itoa(perfect) + " perfect")
	for _, b := range Histogram(priced) {
		logger.Info(fmt.Sprintf("%4s -> %d", costString(b.Cost), b.Count))
	}
}

func costString(cost int) string {
	if cost == domain.CostInfinite {
		return "inf"
	}
	return strconv.Itoa(cost)
}
