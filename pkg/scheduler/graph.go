package scheduler

// depGraph is the reverse adjacency of the dependency DAG: for each task id
// it records the set of tasks blocked on it, so a completion wakes its
// dependents in O(edges) without scanning the blocked pool.
//
// Edges for a dependency that reaches FAILED or CANCELLED are deliberately
// left in place: its dependents stay blocked until explicitly cancelled
// (fail-closed). Not safe for concurrent use; callers hold the scheduler
// mutex.
type depGraph struct {
	dependents map[string]map[string]struct{}
}

func newDepGraph() *depGraph {
	return &depGraph{dependents: make(map[string]map[string]struct{})}
}

func (g *depGraph) addEdge(depID, taskID string) {
	set, ok := g.dependents[depID]
	if !ok {
		set = make(map[string]struct{})
		g.dependents[depID] = set
	}
	set[taskID] = struct{}{}
}

// take removes and returns the dependents of depID. Used on completion: the
// adjacency entry is consumed wholesale.
func (g *depGraph) take(depID string) []string {
	set, ok := g.dependents[depID]
	if !ok {
		return nil
	}
	delete(g.dependents, depID)
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// waiting returns the dependents of depID without consuming the entry.
func (g *depGraph) waiting(depID string) []string {
	set := g.dependents[depID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// removeTask drops every trace of id: its own adjacency entry and its
// membership in other entries. Used by the collector and by cancellation of
// blocked tasks.
func (g *depGraph) removeTask(id string) {
	delete(g.dependents, id)
	for depID, set := range g.dependents {
		delete(set, id)
		if len(set) == 0 {
			delete(g.dependents, depID)
		}
	}
}

func (g *depGraph) reset() {
	g.dependents = make(map[string]map[string]struct{})
}
