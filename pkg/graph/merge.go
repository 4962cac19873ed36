package graph

import (
	"cmp"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"
)

// MergeOptions configures Merge.
type MergeOptions struct {
	Vocabulary     *Vocabulary
	FuzzyThreshold float64
}

// Merge folds per-section results into one graph. It is deterministic: the
// order of results and of entities within a result does not matter.
func (g *GraphClient) Merge(results []common.SectionResult, doc string) common.OntologyGraph {
	return Merge(results, doc, MergeOptions{
		Vocabulary:     g.vocabulary,
		FuzzyThreshold: g.fuzzyThreshold,
	})
}

// member is one pre-merge entity. id is unique across the whole run; it
// equals the local ID unless another section already claimed that ID.
type member struct {
	id      string
	entity  common.ExtractedEntity
	section string
}

type relKey struct {
	source, target, typ string
}

func Merge(results []common.SectionResult, doc string, opts MergeOptions) common.OntologyGraph {
	if opts.Vocabulary == nil {
		opts.Vocabulary = DefaultVocabulary()
	}
	if opts.FuzzyThreshold <= 0 || opts.FuzzyThreshold > 1 {
		opts.FuzzyThreshold = defaultFuzzyThreshold
	}

	sorted := slices.Clone(results)
	slices.SortStableFunc(sorted, func(a, b common.SectionResult) int {
		return cmp.Compare(a.Section.ID, b.Section.ID)
	})

	meta := common.RunMetadata{DocumentChars: len(doc)}
	sections := make([]common.DocumentSection, 0, len(sorted))
	sectionByID := make(map[string]common.DocumentSection, len(sorted))
	// section ID -> local ID -> member ID
	local := make(map[string]map[string]string, len(sorted))
	taken := make(map[string]bool)
	for _, res := range results {
		for _, e := range res.Entities {
			taken[e.LocalID] = true
		}
	}
	owner := make(map[string]string)

	var members []member
	for _, res := range sorted {
		sections = append(sections, res.Section)
		sectionByID[res.Section.ID] = res.Section
		meta.RejectedEntities += res.RejectedEntities
		if res.Degraded != nil {
			meta.DegradedSections = append(meta.DegradedSections, common.SectionDegradation{
				SectionID: res.Section.ID,
				Kind:      res.Degraded.Kind,
				Reason:    res.Degraded.Message,
				Attempts:  res.Attempts,
			})
		}

		ids := local[res.Section.ID]
		if ids == nil {
			ids = make(map[string]string, len(res.Entities))
			local[res.Section.ID] = ids
		}
		entities := slices.Clone(res.Entities)
		slices.SortStableFunc(entities, func(a, b common.ExtractedEntity) int {
			return cmp.Compare(a.LocalID, b.LocalID)
		})
		for _, e := range entities {
			if e.LocalID == "" {
				continue
			}
			id, ok := ids[e.LocalID]
			if !ok {
				id = e.LocalID
				if sec, claimed := owner[id]; claimed && sec != res.Section.ID {
					id = uniqueID(e.LocalID, taken)
					logger.Debug("[Merge] Local ID used by two sections", "id", e.LocalID, "section", res.Section.ID, "renamed", id)
				} else {
					owner[id] = res.Section.ID
				}
				ids[e.LocalID] = id
			}
			members = append(members, member{id: id, entity: e, section: res.Section.ID})
		}
		meta.PreMergeRelationships += len(res.Relationships)
	}
	meta.PreMergeEntities = len(members)
	meta.SectionCount = len(sections)

	slices.SortStableFunc(sections, func(a, b common.DocumentSection) int {
		return cmp.Or(cmp.Compare(a.CharStart, b.CharStart), cmp.Compare(a.ID, b.ID))
	})
	slices.SortStableFunc(meta.DegradedSections, func(a, b common.SectionDegradation) int {
		return cmp.Compare(sectionByID[a.SectionID].CharStart, sectionByID[b.SectionID].CharStart)
	})

	uf := groupMembers(members)

	byRoot := make(map[string][]member)
	for _, m := range members {
		r := uf.find(m.id)
		byRoot[r] = append(byRoot[r], m)
	}

	verify := newVerifier(doc, opts.FuzzyThreshold)
	canonical := make(map[string]string, len(members))
	types := make(map[string]string, len(byRoot))
	entities := make([]common.Entity, 0, len(byRoot))
	for _, group := range byRoot {
		e := buildEntity(group, verify, sectionByID)
		for _, m := range group {
			canonical[m.id] = e.ID
		}
		types[e.ID] = e.Type
		for _, a := range e.Anchors {
			meta.Verification.Add(a.Tier)
		}
		entities = append(entities, e)
	}
	slices.SortFunc(entities, func(a, b common.Entity) int {
		return cmp.Compare(a.ID, b.ID)
	})
	meta.MergedEntities = len(members) - len(entities)

	relationships := mergeRelationships(sorted, local, canonical, types, opts.Vocabulary, &meta)

	if meta.DroppedRelationships > 0 {
		logger.Warn("[Merge] Dropped relationships with unresolved endpoints", "count", meta.DroppedRelationships)
	}
	logger.Info("[Merge] Graph merged",
		"entities", len(entities),
		"relationships", len(relationships),
		"merged", meta.MergedEntities,
		"dropped_relationships", meta.DroppedRelationships,
	)

	return common.OntologyGraph{
		Version:       common.GraphVersion,
		Sections:      sections,
		Entities:      entities,
		Relationships: relationships,
		Metadata:      meta,
	}
}

// groupMembers unions entities that share an ID without their section
// prefix and a type, or a normalized name and a type.
func groupMembers(members []member) *unionFind {
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = m.id
	}
	uf := newUnionFind(keys)

	byStripped := make(map[[2]string]string)
	byName := make(map[[2]string]string)
	for _, m := range members {
		id := m.id
		if stripped, ok := strings.CutPrefix(m.entity.LocalID, m.section+"_"); ok && stripped != "" {
			k := [2]string{stripped, m.entity.Type}
			if first, ok := byStripped[k]; ok {
				uf.union(first, id)
			} else {
				byStripped[k] = id
			}
		}
		if name := NormalizeName(m.entity.Name); name != "" {
			k := [2]string{name, m.entity.Type}
			if first, ok := byName[k]; ok {
				uf.union(first, id)
			} else {
				byName[k] = id
			}
		}
	}
	return uf
}

func buildEntity(group []member, v *verifier, sections map[string]common.DocumentSection) common.Entity {
	slices.SortStableFunc(group, func(a, b member) int {
		return cmp.Or(cmp.Compare(a.id, b.id), cmp.Compare(a.section, b.section))
	})

	baseMember := group[0]
	for _, m := range group[1:] {
		if len(m.entity.Description) > len(baseMember.entity.Description) {
			baseMember = m
		}
	}
	base := baseMember.entity

	var attrs common.Attributes
	for _, m := range group {
		for _, k := range m.entity.Attributes.Keys() {
			val, _ := m.entity.Attributes.Get(k)
			cur, ok := attrs.Get(k)
			if !ok || len(common.FormatValue(val)) > len(common.FormatValue(cur)) {
				attrs.Set(k, val)
			}
		}
	}

	type anchorKey struct{ text, section string }
	seen := make(map[anchorKey]bool, len(group))
	anchors := make([]common.SourceAnchor, 0, len(group))
	ids := make([]string, 0, len(group))
	for _, m := range group {
		if len(ids) == 0 || ids[len(ids)-1] != m.id {
			ids = append(ids, m.id)
		}
		a := m.entity.Anchor
		if a.SectionID == "" {
			a.SectionID = m.section
		}
		k := anchorKey{a.Text, a.SectionID}
		if seen[k] {
			continue
		}
		seen[k] = true
		anchors = append(anchors, v.verify(a, sections[a.SectionID]))
	}

	e := common.Entity{
		ID:          baseMember.id,
		Type:        base.Type,
		Name:        base.Name,
		Description: base.Description,
		Attributes:  attrs,
		Anchors:     anchors,
	}
	if len(ids) > 1 {
		e.MergedFrom = ids
	}
	return e
}

func mergeRelationships(
	results []common.SectionResult,
	local map[string]map[string]string,
	canonical map[string]string,
	types map[string]string,
	vocab *Vocabulary,
	meta *common.RunMetadata,
) []common.Relationship {
	merged := make(map[relKey]*common.Relationship)
	var order []relKey

	for _, res := range results {
		rels := slices.Clone(res.Relationships)
		slices.SortStableFunc(rels, func(a, b common.Relationship) int {
			return cmp.Or(
				cmp.Compare(a.SourceID, b.SourceID),
				cmp.Compare(a.TargetID, b.TargetID),
				cmp.Compare(a.Type, b.Type),
				cmp.Compare(a.Description, b.Description),
			)
		})
		ids := local[res.Section.ID]
		for _, r := range rels {
			origin := r.SectionID
			if origin == "" {
				origin = res.Section.ID
			}
			src, srcOK := resolveEndpoint(r.SourceID, ids, canonical)
			tgt, tgtOK := resolveEndpoint(r.TargetID, ids, canonical)
			if !srcOK || !tgtOK {
				meta.DroppedRelationships++
				if len(meta.DroppedRelationshipSamples) < droppedSampleLimit {
					r.SectionID = origin
					meta.DroppedRelationshipSamples = append(meta.DroppedRelationshipSamples, r)
				}
				logger.Debug("[Merge] Dropping relationship", "section", origin, "source", r.SourceID, "target", r.TargetID, "type", r.Type)
				continue
			}

			typ := strings.TrimSpace(r.Type)
			if def, ok := vocab.RelationshipType(typ); ok {
				typ = def.Name
			}
			if warn := vocab.CheckRelationship(typ, types[src], types[tgt]); warn != "" {
				meta.SchemaWarnings++
				logger.Debug("[Merge] Schema warning", "source", src, "target", tgt, "warning", warn)
			}

			k := relKey{src, tgt, typ}
			if existing, ok := merged[k]; ok {
				meta.DuplicateRelationships++
				if len(r.Description) > len(existing.Description) {
					existing.Description = r.Description
				}
				if !slices.Contains(existing.SectionIDs, origin) {
					existing.SectionIDs = append(existing.SectionIDs, origin)
				}
				continue
			}
			merged[k] = &common.Relationship{
				SourceID:    src,
				TargetID:    tgt,
				Type:        typ,
				Description: r.Description,
				SectionID:   origin,
				SectionIDs:  []string{origin},
			}
			order = append(order, k)
		}
	}

	out := make([]common.Relationship, 0, len(order))
	for _, k := range order {
		r := merged[k]
		slices.Sort(r.SectionIDs)
		r.SectionID = r.SectionIDs[0]
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b common.Relationship) int {
		return cmp.Or(
			cmp.Compare(a.SourceID, b.SourceID),
			cmp.Compare(a.Type, b.Type),
			cmp.Compare(a.TargetID, b.TargetID),
		)
	})
	return out
}

func resolveEndpoint(id string, sectionIDs map[string]string, canonical map[string]string) (string, bool) {
	memberID, ok := sectionIDs[id]
	if !ok {
		return "", false
	}
	c, ok := canonical[memberID]
	return c, ok
}
