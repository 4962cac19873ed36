package graph

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/policygraph/pkg/common"

	mapset "github.com/deckarep/golang-set/v2"
)

// Report is a structural quality summary of a graph.
type Report struct {
	Entities          int                       `json:"entities"`
	Relationships     int                       `json:"relationships"`
	Density           float64                   `json:"density"`
	AverageDegree     float64                   `json:"average_degree"`
	MostConnected     string                    `json:"most_connected,omitempty"`
	MaxDegree         int                       `json:"max_degree"`
	Orphans           []string                  `json:"orphans"`
	Components        [][]string                `json:"components"`
	EntityTypes       []common.TypeCount        `json:"entity_types"`
	RelationshipTypes []common.TypeCount        `json:"relationship_types"`
	Verification      common.VerificationCounts `json:"verification"`
	DegradedSections  int                       `json:"degraded_sections"`
	Dropped           int                       `json:"dropped_relationships"`
	Issues            []string                  `json:"issues"`
}

// Validate computes the structural report of g.
func Validate(g common.OntologyGraph) Report {
	r := Report{
		Entities:         len(g.Entities),
		Relationships:    len(g.Relationships),
		DegradedSections: len(g.Metadata.DegradedSections),
		Dropped:          g.Metadata.DroppedRelationships,
		Orphans:          []string{},
		Components:       [][]string{},
		Issues:           []string{},
	}
	if r.Entities == 0 {
		r.Issues = append(r.Issues, "graph is empty")
		return r
	}

	adjacency := make(map[string]mapset.Set[string], len(g.Entities))
	degree := make(map[string]int, len(g.Entities))
	entityTypes := make(map[string]int)
	for _, e := range g.Entities {
		adjacency[e.ID] = mapset.NewThreadUnsafeSet[string]()
		entityTypes[e.Type]++
		for _, a := range e.Anchors {
			r.Verification.Add(a.Tier)
		}
	}
	relTypes := make(map[string]int)
	for _, rel := range g.Relationships {
		relTypes[rel.Type]++
		degree[rel.SourceID]++
		degree[rel.TargetID]++
		if s, ok := adjacency[rel.SourceID]; ok {
			s.Add(rel.TargetID)
		}
		if s, ok := adjacency[rel.TargetID]; ok {
			s.Add(rel.SourceID)
		}
	}
	r.EntityTypes = common.SortedCounts(entityTypes)
	r.RelationshipTypes = common.SortedCounts(relTypes)

	n := float64(r.Entities)
	if r.Entities > 1 {
		r.Density = float64(r.Relationships) / (n * (n - 1))
	}
	total := 0
	for _, e := range g.Entities {
		d := degree[e.ID]
		total += d
		if d == 0 {
			r.Orphans = append(r.Orphans, e.ID)
		}
		if d > r.MaxDegree {
			r.MaxDegree = d
			r.MostConnected = e.ID
		}
	}
	r.AverageDegree = float64(total) / n

	visited := mapset.NewThreadUnsafeSet[string]()
	for _, e := range g.Entities {
		if visited.Contains(e.ID) {
			continue
		}
		var comp []string
		queue := []string{e.ID}
		visited.Add(e.ID)
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			comp = append(comp, cur)
			for next := range adjacency[cur].Iter() {
				if !visited.Contains(next) {
					visited.Add(next)
					queue = append(queue, next)
				}
			}
		}
		slices.Sort(comp)
		r.Components = append(r.Components, comp)
	}
	slices.SortStableFunc(r.Components, func(a, b []string) int {
		return cmp.Or(cmp.Compare(len(b), len(a)), cmp.Compare(a[0], b[0]))
	})

	if len(r.Orphans) > 0 {
		r.Issues = append(r.Issues, fmt.Sprintf("%d orphan entities without relationships", len(r.Orphans)))
	}
	if len(r.Components) > 1 {
		r.Issues = append(r.Issues, fmt.Sprintf("graph is fragmented into %d components", len(r.Components)))
	}
	if r.Verification.Unverified > 0 {
		r.Issues = append(r.Issues, fmt.Sprintf("%d source anchors could not be verified", r.Verification.Unverified))
	}
	if r.DegradedSections > 0 {
		r.Issues = append(r.Issues, fmt.Sprintf("%d sections degraded during extraction", r.DegradedSections))
	}
	if r.Dropped > 0 {
		r.Issues = append(r.Issues, fmt.Sprintf("%d relationships dropped during merge", r.Dropped))
	}
	return r
}

// Write renders the report as plain text.
func (r Report) Write(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Entities: %d\nRelationships: %d\n", r.Entities, r.Relationships)
	fmt.Fprintf(&sb, "Density: %.3f\nAverage degree: %.1f\n", r.Density, r.AverageDegree)
	if r.MostConnected != "" {
		fmt.Fprintf(&sb, "Most connected: %s (%d connections)\n", r.MostConnected, r.MaxDegree)
	}
	fmt.Fprintf(&sb, "Orphans: %d\nConnected components: %d\n", len(r.Orphans), len(r.Components))

	sb.WriteString("\nEntity types:\n")
	for _, tc := range r.EntityTypes {
		fmt.Fprintf(&sb, "  %s: %d\n", tc.Type, tc.Count)
	}
	sb.WriteString("\nRelationship types:\n")
	for _, tc := range r.RelationshipTypes {
		fmt.Fprintf(&sb, "  %s: %d\n", tc.Type, tc.Count)
	}

	v := r.Verification
	fmt.Fprintf(&sb, "\nAnchors: exact %d, normalized %d, fuzzy %d, unverified %d\n",
		v.Exact, v.Normalized, v.Fuzzy, v.Unverified)

	if len(r.Issues) > 0 {
		sb.WriteString("\nIssues:\n")
		for _, issue := range r.Issues {
			fmt.Fprintf(&sb, "  - %s\n", issue)
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
