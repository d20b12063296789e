package dag

import (
	"sort"

	"github.com/smilemakc/farmcore/internal/farmerr"
)

// Graph is the stratified dependency graph produced by Build: Levels[0] is
// the set of rules with no unresolved predecessors, Levels[1] depends only
// on Levels[0], and so on.
type Graph struct {
	Levels [][]*Rule
}

// Build derives dependency edges from each rule's declared output and
// input paths (an edge producer -> consumer exists iff consumer declares
// an input path that producer declares as output), then stratifies the
// result with Kahn's algorithm. Only enabled rules participate; disabled
// rules are ignored entirely, as if they were never submitted.
//
// Two rules declaring the same output path is a DuplicateOutput error —
// first-wins is never used. A residual after one Kahn pass is a
// CyclicDependency error naming every rule that did not resolve.
func Build(rules []*Rule) (*Graph, error) {
	enabled := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}

	producer := make(map[string]*Rule, len(enabled))
	for _, r := range enabled {
		for _, out := range r.OutputPaths {
			if existing, ok := producer[out]; ok {
				return nil, farmerr.NewDuplicateOutputError(out, []string{existing.ID, r.ID})
			}
			producer[out] = r
		}
	}

	// edges[producerID] -> consumer rules; inDegree[consumerID] -> count
	// of unresolved predecessors.
	edges := make(map[string][]*Rule, len(enabled))
	inDegree := make(map[string]int, len(enabled))
	byID := make(map[string]*Rule, len(enabled))
	for _, r := range enabled {
		byID[r.ID] = r
		inDegree[r.ID] = 0
	}
	for _, r := range enabled {
		seenPreds := make(map[string]bool)
		for _, in := range r.InputPaths {
			p, ok := producer[in]
			if !ok || p.ID == r.ID || seenPreds[p.ID] {
				continue
			}
			seenPreds[p.ID] = true
			edges[p.ID] = append(edges[p.ID], r)
			inDegree[r.ID]++
		}
	}

	remaining := make(map[string]int, len(inDegree))
	for id, d := range inDegree {
		remaining[id] = d
	}

	var levels [][]*Rule
	processed := 0
	for processed < len(enabled) {
		var wave []*Rule
		for id, d := range remaining {
			if d == 0 {
				wave = append(wave, byID[id])
			}
		}
		if len(wave) == 0 {
			ids := make([]string, 0, len(remaining))
			for id := range remaining {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			return nil, farmerr.NewCyclicDependencyError(ids)
		}

		sort.Slice(wave, func(i, j int) bool {
			if wave[i].OrderIndex != wave[j].OrderIndex {
				return wave[i].OrderIndex < wave[j].OrderIndex
			}
			return wave[i].ID < wave[j].ID
		})

		for _, r := range wave {
			delete(remaining, r.ID)
			processed++
			for _, consumer := range edges[r.ID] {
				remaining[consumer.ID]--
			}
		}
		levels = append(levels, wave)
	}

	return &Graph{Levels: levels}, nil
}
