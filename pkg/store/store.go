// Package store holds the merged graph in memory and answers the structural
// queries the reasoning agent needs. A Store never changes after New, so any
// number of goroutines may query it.
package store

import (
	"errors"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/policygraph/pkg/common"

	mapset "github.com/deckarep/golang-set/v2"
)

var ErrEntityNotFound = errors.New("entity not found")

const (
	MaxNeighborDepth = 3
	DefaultPathDepth = 5
	// maxPathsEnumerated bounds path search on dense graphs.
	maxPathsEnumerated = 1000
)

// Store is a read only index over an OntologyGraph.
type Store struct {
	graph    common.OntologyGraph
	byID     map[string]int
	sections map[string]int
	outgoing map[string][]int
	incoming map[string][]int
	adjacent map[string][]string
}

// Summary totals a graph by type.
type Summary struct {
	Entities          int                `json:"entities"`
	Relationships     int                `json:"relationships"`
	EntityTypes       []common.TypeCount `json:"entity_types"`
	RelationshipTypes []common.TypeCount `json:"relationship_types"`
}

// Neighborhood is the subgraph around Start. Entities are in breadth first
// order with Start first; Relationships are all edges among them.
type Neighborhood struct {
	Start         string                `json:"start"`
	Depth         int                   `json:"depth"`
	Entities      []common.Entity       `json:"entities"`
	Relationships []common.Relationship `json:"relationships"`
}

// Hop is one step of a path. Forward is false when the step walks the
// relationship against its direction.
type Hop struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Type    string `json:"type"`
	Forward bool   `json:"forward"`
}

type Path []Hop

// New indexes g. Relationships whose endpoints are missing are not indexed.
func New(g common.OntologyGraph) *Store {
	s := &Store{
		graph:    g,
		byID:     make(map[string]int, len(g.Entities)),
		sections: make(map[string]int, len(g.Sections)),
		outgoing: make(map[string][]int),
		incoming: make(map[string][]int),
		adjacent: make(map[string][]string),
	}
	for i, e := range g.Entities {
		s.byID[e.ID] = i
	}
	for i, sec := range g.Sections {
		s.sections[sec.ID] = i
	}

	neighbors := make(map[string]mapset.Set[string])
	link := func(a, b string) {
		set, ok := neighbors[a]
		if !ok {
			set = mapset.NewThreadUnsafeSet[string]()
			neighbors[a] = set
		}
		set.Add(b)
	}
	for i, r := range g.Relationships {
		if !s.Has(r.SourceID) || !s.Has(r.TargetID) {
			continue
		}
		s.outgoing[r.SourceID] = append(s.outgoing[r.SourceID], i)
		s.incoming[r.TargetID] = append(s.incoming[r.TargetID], i)
		link(r.SourceID, r.TargetID)
		link(r.TargetID, r.SourceID)
	}
	for id, set := range neighbors {
		ids := set.ToSlice()
		slices.Sort(ids)
		s.adjacent[id] = ids
	}
	return s
}

// Graph returns the indexed graph. Callers must not modify it.
func (s *Store) Graph() common.OntologyGraph {
	return s.graph
}

func (s *Store) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

func (s *Store) Entity(id string) (common.Entity, error) {
	i, ok := s.byID[id]
	if !ok {
		return common.Entity{}, ErrEntityNotFound
	}
	return s.graph.Entities[i], nil
}

// Name returns the entity's name, or the ID for unknown entities.
func (s *Store) Name(id string) string {
	if i, ok := s.byID[id]; ok && s.graph.Entities[i].Name != "" {
		return s.graph.Entities[i].Name
	}
	return id
}

func (s *Store) Section(id string) (common.DocumentSection, bool) {
	i, ok := s.sections[id]
	if !ok {
		return common.DocumentSection{}, false
	}
	return s.graph.Sections[i], true
}

func (s *Store) Outgoing(id string) []common.Relationship {
	return s.relationships(s.outgoing[id])
}

func (s *Store) Incoming(id string) []common.Relationship {
	return s.relationships(s.incoming[id])
}

func (s *Store) relationships(idx []int) []common.Relationship {
	out := make([]common.Relationship, len(idx))
	for i, j := range idx {
		out[i] = s.graph.Relationships[j]
	}
	return out
}

func (s *Store) EntityTypes() []common.TypeCount {
	counts := make(map[string]int)
	for _, e := range s.graph.Entities {
		counts[e.Type]++
	}
	return common.SortedCounts(counts)
}

func (s *Store) RelationshipTypes() []common.TypeCount {
	counts := make(map[string]int)
	for _, r := range s.graph.Relationships {
		counts[r.Type]++
	}
	return common.SortedCounts(counts)
}

func (s *Store) Summary() Summary {
	return Summary{
		Entities:          len(s.graph.Entities),
		Relationships:     len(s.graph.Relationships),
		EntityTypes:       s.EntityTypes(),
		RelationshipTypes: s.RelationshipTypes(),
	}
}

// FindEntities returns the entities of type typ (case-insensitive). When
// attr is set only entities carrying that attribute key are returned, and
// when value is set too the attribute's value must contain it
// (case-insensitive).
func (s *Store) FindEntities(typ, attr, value string) []common.Entity {
	value = strings.ToLower(value)
	var out []common.Entity
	for _, e := range s.graph.Entities {
		if !strings.EqualFold(e.Type, strings.TrimSpace(typ)) {
			continue
		}
		if attr != "" && !matchAttribute(e.Attributes, attr, value) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matchAttribute(attrs common.Attributes, key, value string) bool {
	for _, k := range attrs.Keys() {
		if !strings.EqualFold(k, key) {
			continue
		}
		if value == "" {
			return true
		}
		v, _ := attrs.Get(k)
		if strings.Contains(strings.ToLower(common.FormatValue(v)), value) {
			return true
		}
	}
	return false
}

// Search matches keyword case-insensitively against ID, name, description,
// type and attribute values. limit <= 0 returns every match.
func (s *Store) Search(keyword string, limit int) []common.Entity {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return nil
	}
	var out []common.Entity
	for _, e := range s.graph.Entities {
		if !strings.Contains(searchText(e), keyword) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func searchText(e common.Entity) string {
	var sb strings.Builder
	sb.WriteString(e.ID)
	sb.WriteByte(' ')
	sb.WriteString(e.Name)
	sb.WriteByte(' ')
	sb.WriteString(e.Description)
	sb.WriteByte(' ')
	sb.WriteString(e.Type)
	for _, k := range e.Attributes.Keys() {
		v, _ := e.Attributes.Get(k)
		sb.WriteByte(' ')
		sb.WriteString(common.FormatValue(v))
	}
	return strings.ToLower(sb.String())
}

// Neighbors walks depth hops in both directions from id. depth is clamped
// to 1..MaxNeighborDepth.
func (s *Store) Neighbors(id string, depth int) (Neighborhood, error) {
	if !s.Has(id) {
		return Neighborhood{}, ErrEntityNotFound
	}
	depth = min(max(depth, 1), MaxNeighborDepth)

	visited := mapset.NewThreadUnsafeSet(id)
	order := []string{id}
	frontier := []string{id}
	for range depth {
		var next []string
		for _, n := range frontier {
			for _, m := range s.adjacent[n] {
				if visited.Add(m) {
					order = append(order, m)
					next = append(next, m)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}

	nb := Neighborhood{Start: id, Depth: depth, Entities: make([]common.Entity, len(order))}
	for i, n := range order {
		nb.Entities[i] = s.graph.Entities[s.byID[n]]
	}
	for _, r := range s.graph.Relationships {
		if visited.Contains(r.SourceID) && visited.Contains(r.TargetID) {
			nb.Relationships = append(nb.Relationships, r)
		}
	}
	return nb, nil
}

// Paths finds simple paths of at most maxDepth hops between two entities,
// ignoring relationship direction. It returns up to limit paths, shortest
// first, and the number of paths found.
func (s *Store) Paths(source, target string, maxDepth, limit int) ([]Path, int, error) {
	if !s.Has(source) || !s.Has(target) {
		return nil, 0, ErrEntityNotFound
	}
	if maxDepth <= 0 {
		maxDepth = DefaultPathDepth
	}

	var found [][]string
	onPath := mapset.NewThreadUnsafeSet(source)
	walk := []string{source}
	var dfs func(cur string)
	dfs = func(cur string) {
		if len(found) >= maxPathsEnumerated {
			return
		}
		if cur == target {
			found = append(found, slices.Clone(walk))
			return
		}
		if len(walk)-1 == maxDepth {
			return
		}
		for _, next := range s.adjacent[cur] {
			if onPath.Contains(next) {
				continue
			}
			onPath.Add(next)
			walk = append(walk, next)
			dfs(next)
			walk = walk[:len(walk)-1]
			onPath.Remove(next)
		}
	}
	if source != target {
		dfs(source)
	}

	slices.SortStableFunc(found, func(a, b []string) int {
		return len(a) - len(b)
	})
	total := len(found)
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}

	paths := make([]Path, len(found))
	for i, nodes := range found {
		p := make(Path, 0, len(nodes)-1)
		for j := 0; j+1 < len(nodes); j++ {
			p = append(p, s.hop(nodes[j], nodes[j+1]))
		}
		paths[i] = p
	}
	return paths, total, nil
}

func (s *Store) hop(from, to string) Hop {
	for _, j := range s.outgoing[from] {
		if r := s.graph.Relationships[j]; r.TargetID == to {
			return Hop{From: from, To: to, Type: r.Type, Forward: true}
		}
	}
	for _, j := range s.outgoing[to] {
		if r := s.graph.Relationships[j]; r.TargetID == from {
			return Hop{From: from, To: to, Type: r.Type}
		}
	}
	return Hop{From: from, To: to}
}
