// Package neo4j exports a merged policy graph into a Neo4j database for
// visual exploration. Every graph is stored under its own graph_id, so several
// documents can share one database.
package neo4j

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"
	"github.com/OFFIS-RIT/policygraph/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
)

const batchSize = 500

// Exporter writes graphs through a Neo4j driver.
type Exporter struct {
	driver   neo4j.Driver
	database string
}

// ExportStats counts what ExportGraph wrote.
type ExportStats struct {
	Sections      int `json:"sections"`
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
}

func NewExporter(uri, username, password, database string) (*Exporter, error) {
	driver, err := neo4j.NewDriver(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	return &Exporter{driver: driver, database: database}, nil
}

func (e *Exporter) Close() error {
	return e.driver.Close()
}

// Verify checks that the database is reachable.
func (e *Exporter) Verify() error {
	return e.driver.VerifyConnectivity()
}

// ExportGraph replaces everything stored for g.ID with the contents of g in
// a single write transaction.
func (e *Exporter) ExportGraph(ctx context.Context, g common.OntologyGraph) (ExportStats, error) {
	if g.ID == "" {
		return ExportStats{}, fmt.Errorf("graph has no id")
	}
	if err := ctx.Err(); err != nil {
		return ExportStats{}, err
	}

	session := e.driver.NewSession(neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: e.database,
	})
	defer session.Close()

	_, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		if _, err := tx.Run(deleteGraphCypher, map[string]interface{}{"graph_id": g.ID}); err != nil {
			return nil, fmt.Errorf("failed to clear graph: %w", err)
		}
		if _, err := tx.Run(graphCypher, map[string]interface{}{
			"graph_id":   g.ID,
			"version":    g.Version,
			"created_at": g.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			"document":   g.Metadata.DocumentName,
		}); err != nil {
			return nil, fmt.Errorf("failed to write graph node: %w", err)
		}

		batches := []struct {
			name   string
			cypher string
			rows   []map[string]interface{}
		}{
			{"sections", sectionsCypher, sectionRows(g.Sections)},
			{"section links", sectionLinksCypher, sectionRows(g.Sections)},
			{"entities", entitiesCypher, entityRows(g.Entities)},
			{"relationships", relationshipsCypher, relationshipRows(g.Relationships)},
		}
		for _, b := range batches {
			err := store.ChunkRange(len(b.rows), batchSize, func(start, end int) error {
				_, err := tx.Run(b.cypher, map[string]interface{}{
					"graph_id": g.ID,
					"rows":     b.rows[start:end],
				})
				return err
			})
			if err != nil {
				return nil, fmt.Errorf("failed to write %s: %w", b.name, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return ExportStats{}, err
	}

	stats := ExportStats{
		Sections:      len(g.Sections),
		Entities:      len(g.Entities),
		Relationships: len(g.Relationships),
	}
	logger.Info("[Neo4j] Exported graph", "graph_id", g.ID, "entities", stats.Entities, "relationships", stats.Relationships)
	return stats, nil
}

func sectionRows(sections []common.DocumentSection) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(sections))
	for i, s := range sections {
		rows[i] = map[string]interface{}{
			"id":         s.ID,
			"header":     s.Header,
			"number":     s.Number,
			"level":      int64(s.Level),
			"parent_id":  s.ParentID,
			"char_start": int64(s.CharStart),
			"char_end":   int64(s.CharEnd),
		}
	}
	return rows
}

// entityRows flattens attributes into attr_ prefixed node properties, since
// Neo4j properties cannot hold maps.
func entityRows(entities []common.Entity) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(entities))
	for i, e := range entities {
		props := map[string]interface{}{
			"name":        e.Name,
			"type":        e.Type,
			"description": e.Description,
			"merged_from": stringList(e.MergedFrom),
		}
		for _, k := range e.Attributes.Keys() {
			v, _ := e.Attributes.Get(k)
			props["attr_"+k] = propertyValue(v)
		}

		sections := make([]string, 0, len(e.Anchors))
		quotes := make([]string, 0, len(e.Anchors))
		for _, a := range e.Anchors {
			sections = append(sections, a.SectionID)
			quotes = append(quotes, a.Text)
		}
		props["source_quotes"] = quotes

		rows[i] = map[string]interface{}{
			"id":       e.ID,
			"props":    props,
			"sections": sections,
		}
	}
	return rows
}

func relationshipRows(rels []common.Relationship) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(rels))
	for i, r := range rels {
		rows[i] = map[string]interface{}{
			"source_id":   r.SourceID,
			"target_id":   r.TargetID,
			"type":        r.Type,
			"description": r.Description,
			"section_id":  r.SectionID,
			"section_ids": stringList(r.SectionIDs),
		}
	}
	return rows
}

func stringList(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func propertyValue(v any) interface{} {
	switch val := v.(type) {
	case string, bool, float64, int64:
		return val
	case int:
		return int64(val)
	case []any, map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return common.FormatValue(val)
		}
		return string(b)
	default:
		return common.FormatValue(val)
	}
}

const deleteGraphCypher = `
MATCH (n {graph_id: $graph_id})
DETACH DELETE n
`

const graphCypher = `
CREATE (:PolicyGraph {graph_id: $graph_id, version: $version, created_at: $created_at, document: $document})
`

const sectionsCypher = `
UNWIND $rows AS row
CREATE (s:Section {graph_id: $graph_id, id: row.id})
SET s.header = row.header, s.number = row.number, s.level = row.level,
    s.parent_id = row.parent_id, s.char_start = row.char_start, s.char_end = row.char_end
`

const sectionLinksCypher = `
UNWIND $rows AS row
MATCH (s:Section {graph_id: $graph_id, id: row.id})
MATCH (p:Section {graph_id: $graph_id, id: row.parent_id})
MERGE (s)-[:PART_OF]->(p)
`

const entitiesCypher = `
UNWIND $rows AS row
CREATE (e:Entity {graph_id: $graph_id, id: row.id})
SET e += row.props
WITH e, row
UNWIND row.sections AS section_id
MATCH (s:Section {graph_id: $graph_id, id: section_id})
MERGE (e)-[:DEFINED_IN]->(s)
`

const relationshipsCypher = `
UNWIND $rows AS row
MATCH (a:Entity {graph_id: $graph_id, id: row.source_id})
MATCH (b:Entity {graph_id: $graph_id, id: row.target_id})
CREATE (a)-[r:RELATES {type: row.type}]->(b)
SET r.description = row.description, r.section_id = row.section_id, r.section_ids = row.section_ids
`
