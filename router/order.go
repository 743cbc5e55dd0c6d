package router

import (
	"sort"

	"github.com/gomind-labs/execrt/core"
)

// orderCandidates sorts agents into the deterministic total order the
// router must use for FALLBACK and BROADCAST: agents with no NodeID
// first, then ascending NodePriority, then ascending agent Name. The
// same candidate set always produces the same order regardless of
// registry enumeration order, which is what makes routing decisions
// reproducible.
func orderCandidates(agents []core.AgentDefinition) []core.AgentDefinition {
	ordered := make([]core.AgentDefinition, len(agents))
	copy(ordered, agents)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]

		aNoNode, bNoNode := a.NodeID == "", b.NodeID == ""
		if aNoNode != bNoNode {
			return aNoNode // the one with no NodeID sorts first
		}
		if a.NodePriority != b.NodePriority {
			return a.NodePriority < b.NodePriority
		}
		return a.Name < b.Name
	})
	return ordered
}
