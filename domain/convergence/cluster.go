// Package convergence groups findings into region classes and ranks them
// into convergence points. Both steps are pure functions of a finding
// snapshot: recomputing over the same findings yields identical output.
package convergence

import (
	"sort"

	"github.com/inquestlabs/inquest/domain/finding"
)

// RegionClass is an equivalence class of findings judged to describe the
// same underlying region. Derived, never persisted as authoritative truth.
type RegionClass struct {
	// ID is the lexicographically smallest member finding id, which makes
	// class identity deterministic across recomputations.
	ID string `json:"id"`

	// Members are the member finding ids, sorted.
	Members []string `json:"members"`

	// Lenses are the distinct lens ids among members, sorted. Density is
	// len(Lenses), invariant to duplicate findings from one lens.
	Lenses []string `json:"lenses"`

	// Keys are the distinct region keys covered by the class, sorted.
	Keys []string `json:"keys"`
}

// Density is the number of distinct lenses that converged on this region.
func (c RegionClass) Density() int { return len(c.Lenses) }

// Cluster partitions findings into region classes: two findings are in the
// same class iff they are connected through shared region keys. The pass is
// indexed (group by key, union within the key group) so it stays linear in
// keys rather than quadratic in findings.
func Cluster(findings []finding.Finding) []RegionClass {
	if len(findings) == 0 {
		return nil
	}

	uf := newUnionFind(len(findings))

	// Union all findings sharing a key by linking each to the first holder.
	firstByKey := make(map[string]int)
	for i, f := range findings {
		for _, key := range f.RegionKeys {
			if j, ok := firstByKey[key]; ok {
				uf.union(i, j)
			} else {
				firstByKey[key] = i
			}
		}
	}

	// Collect components.
	groups := make(map[int][]int)
	for i := range findings {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	classes := make([]RegionClass, 0, len(groups))
	for _, members := range groups {
		classes = append(classes, buildClass(findings, members))
	}

	sort.Slice(classes, func(i, j int) bool { return classes[i].ID < classes[j].ID })
	return classes
}

func buildClass(findings []finding.Finding, members []int) RegionClass {
	ids := make([]string, 0, len(members))
	lensSet := make(map[string]struct{})
	keySet := make(map[string]struct{})
	for _, idx := range members {
		f := findings[idx]
		ids = append(ids, f.ID)
		lensSet[f.LensID] = struct{}{}
		for _, k := range f.RegionKeys {
			keySet[k] = struct{}{}
		}
	}
	sort.Strings(ids)

	lenses := make([]string, 0, len(lensSet))
	for l := range lensSet {
		lenses = append(lenses, l)
	}
	sort.Strings(lenses)

	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return RegionClass{ID: ids[0], Members: ids, Lenses: lenses, Keys: keys}
}

// unionFind is a plain disjoint-set with path compression and union by rank.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}
