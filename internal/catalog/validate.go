package catalog

import (
	"fmt"

	"github.com/terra-clan/onboard-engine/internal/models"
)

// Validate checks the catalog's prerequisite graph at build time. A
// malformed graph would silently stall progression later (no startable
// pending task while the catalog is not exhausted), so defects are
// rejected up front: duplicate ids, unknown prerequisite references,
// self-references, and cycles.
func Validate(tasks []*models.Task) error {
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if t.ID == "" {
			return fmt.Errorf("task at position %d has an empty id", i)
		}
		if _, dup := index[t.ID]; dup {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		index[t.ID] = i
	}

	for _, t := range tasks {
		for _, pre := range t.Prerequisites {
			if pre == t.ID {
				return fmt.Errorf("task %q references itself as a prerequisite", t.ID)
			}
			if _, ok := index[pre]; !ok {
				return fmt.Errorf("task %q references unknown prerequisite %q", t.ID, pre)
			}
		}
	}

	if cycle := findCycle(tasks, index); len(cycle) > 0 {
		return fmt.Errorf("prerequisite cycle: %v", cycle)
	}
	return nil
}

// findCycle runs Kahn's algorithm over the prerequisite edges. When not
// every task can be ordered, the leftover tasks form at least one cycle;
// their ids are returned as the witness.
func findCycle(tasks []*models.Task, index map[string]int) []string {
	indeg := make([]int, len(tasks))
	dependents := make([][]int, len(tasks))

	for i, t := range tasks {
		for _, pre := range t.Prerequisites {
			j := index[pre]
			indeg[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	queue := make([]int, 0, len(tasks))
	for i := range indeg {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}

	ordered := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		ordered++
		for _, m := range dependents[n] {
			indeg[m]--
			if indeg[m] == 0 {
				queue = append(queue, m)
			}
		}
	}

	if ordered == len(tasks) {
		return nil
	}

	var cycle []string
	for i, t := range tasks {
		if indeg[i] > 0 {
			cycle = append(cycle, t.ID)
		}
	}
	return cycle
}
