package p2p

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/exp/maps"
)

// SourceTarget are the resolved peers of one logical device id: where it receives from
// and where it sends to. Either side may be missing -- topologies are not required to
// be cycles.
type SourceTarget struct {
	Source, Target       int64
	HasSource, HasTarget bool
}

// SourceTargetPair is one directed edge of the topology, exactly as the compiler wrote
// it. It keys the conditional bounds (Bounds).
type SourceTargetPair struct {
	Source, Target int64
}

// String implements fmt.Stringer, using the compiled attribute syntax.
func (p SourceTargetPair) String() string {
	return fmt.Sprintf("{%d,%d}", p.Source, p.Target)
}

// SourceTargetMap resolves a logical device id to its peers. It is built once at
// configuration time and never mutated afterwards: lookups are safe from any goroutine.
//
// Ids absent from the map are not participants of the communication pattern at all.
// That is different from a present entry with HasSource (or HasTarget) false: such a
// device participates, but only on one side of the pattern.
type SourceTargetMap map[int64]SourceTarget

// NewSourceTargetMap builds the resolver from the compiled (source,target) pairs: pair
// {a,b} gives a a target and b a source.
func NewSourceTargetMap(pairs [][2]int64) SourceTargetMap {
	m := make(SourceTargetMap, len(pairs))
	for _, pair := range pairs {
		source, target := pair[0], pair[1]
		entry := m[source]
		entry.Target = target
		entry.HasTarget = true
		m[source] = entry

		entry = m[target]
		entry.Source = source
		entry.HasSource = true
		m[target] = entry
	}
	return m
}

// SourceTarget resolves the peers of id. The found result distinguishes a device that
// is not part of the pattern (false) from one that participates, possibly on one side
// only (true).
func (m SourceTargetMap) SourceTarget(id int64) (entry SourceTarget, found bool) {
	entry, found = m[id]
	return
}

// Pairs returns the directed edges of the topology, sorted by source id.
func (m SourceTargetMap) Pairs() []SourceTargetPair {
	ids := maps.Keys(m)
	slices.Sort(ids)
	pairs := make([]SourceTargetPair, 0, len(ids))
	for _, id := range ids {
		entry := m[id]
		if entry.HasTarget {
			pairs = append(pairs, SourceTargetPair{Source: id, Target: entry.Target})
		}
	}
	return pairs
}

// String implements fmt.Stringer, rendering the edges in the compiled attribute syntax,
// e.g. "{{0,1},{1,2}}".
func (m SourceTargetMap) String() string {
	pairs := m.Pairs()
	parts := make([]string, len(pairs))
	for i, pair := range pairs {
		parts[i] = pair.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}
