package pgx

import (
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/policygraph/internal/util"
	"github.com/OFFIS-RIT/policygraph/pkg/common"
)

var (
	sectionColumns      = []string{"graph_id", "id", "position", "header", "number", "level", "parent_id", "char_start", "char_end", "list_hints"}
	entityColumns       = []string{"graph_id", "id", "position", "type", "name", "description", "attributes", "anchors", "merged_from"}
	relationshipColumns = []string{"graph_id", "position", "source_id", "target_id", "type", "description", "section_id", "section_ids"}
)

func marshalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	return data, nil
}

func unmarshalJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return nil
}

func sectionRows(g common.OntologyGraph) ([][]any, error) {
	rows := make([][]any, len(g.Sections))
	for i, s := range g.Sections {
		hints, err := marshalJSON(s.ListHints)
		if err != nil {
			return nil, err
		}
		rows[i] = []any{g.ID, s.ID, i, util.SanitizePostgresText(s.Header), s.Number, s.Level, s.ParentID, s.CharStart, s.CharEnd, hints}
	}
	return rows, nil
}

func entityRows(g common.OntologyGraph) ([][]any, error) {
	rows := make([][]any, len(g.Entities))
	for i, e := range g.Entities {
		attrs, err := marshalJSON(e.Attributes)
		if err != nil {
			return nil, err
		}
		anchors, err := marshalJSON(e.Anchors)
		if err != nil {
			return nil, err
		}
		mergedFrom := e.MergedFrom
		if mergedFrom == nil {
			mergedFrom = []string{}
		}
		rows[i] = []any{g.ID, e.ID, i, e.Type, util.SanitizePostgresText(e.Name), util.SanitizePostgresText(e.Description), attrs, anchors, mergedFrom}
	}
	return rows, nil
}

func relationshipRows(g common.OntologyGraph) [][]any {
	rows := make([][]any, len(g.Relationships))
	for i, r := range g.Relationships {
		sectionIDs := r.SectionIDs
		if sectionIDs == nil {
			sectionIDs = []string{}
		}
		rows[i] = []any{g.ID, i, r.SourceID, r.TargetID, r.Type, util.SanitizePostgresText(r.Description), r.SectionID, sectionIDs}
	}
	return rows
}

func decodeEntity(e *common.Entity, attrs, anchors []byte) error {
	if err := unmarshalJSON(attrs, &e.Attributes); err != nil {
		return err
	}
	if err := unmarshalJSON(anchors, &e.Anchors); err != nil {
		return err
	}
	if len(e.MergedFrom) == 0 {
		e.MergedFrom = nil
	}
	return nil
}

const insertGraphSQL = `
INSERT INTO graphs (id, version, document_name, created_at, metadata)
VALUES ($1, $2, $3, $4, $5);
`

const deleteGraphSQL = `
DELETE FROM graphs WHERE id = $1;
`

const selectGraphSQL = `
SELECT version, created_at, metadata FROM graphs WHERE id = $1;
`

const selectSectionsSQL = `
SELECT id, header, number, level, parent_id, char_start, char_end, list_hints
FROM graph_sections
WHERE graph_id = $1
ORDER BY position;
`

const selectEntitiesSQL = `
SELECT id, type, name, description, attributes, anchors, merged_from
FROM graph_entities
WHERE graph_id = $1
ORDER BY position;
`

const selectRelationshipsSQL = `
SELECT source_id, target_id, type, description, section_id, section_ids
FROM graph_relationships
WHERE graph_id = $1
ORDER BY position;
`

const listGraphsSQL = `
SELECT g.id, g.document_name, g.created_at,
       (SELECT count(*) FROM graph_entities e WHERE e.graph_id = g.id),
       (SELECT count(*) FROM graph_relationships r WHERE r.graph_id = g.id)
FROM graphs g
ORDER BY g.created_at DESC;
`
