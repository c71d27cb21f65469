package depgraph

import (
	"fmt"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
)

// LogStats logs the size and degree distribution of g at debug level.
func LogStats(logger ports.Logger, g *domain.DependencyGraph) {
	st := g.Stats()
	logger.Debug(fmt.Sprintf("dependency graph: %d nodes, %d edges, %d leaves", st.Nodes, st.Edges, st.Leaves))
	if st.Nodes == 0 {
		return
	}
	logger.Debug(fmt.Sprintf("out degree min/median/avg/max: %d/%d/%d/%d", st.MinOut, st.MedianOut, st.AvgOut, st.MaxOut))
	logger.Debug(fmt.Sprintf("in degree min/median/avg/max: %d/%d/%d/%d", st.MinIn, st.MedianIn, st.AvgIn, st.MaxIn))
}
