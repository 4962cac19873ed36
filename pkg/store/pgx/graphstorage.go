// Package pgx persists graphs in PostgreSQL. The schema lives in
// internal/db/migrations.
package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrGraphNotFound = errors.New("graph not found")

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStorage stores whole graphs. A graph is written once and replaced
// as a unit; there are no partial updates.
type GraphDBStorage struct {
	conn pgxIConn
}

// GraphInfo is a graph listing entry.
type GraphInfo struct {
	ID            string    `json:"id"`
	DocumentName  string    `json:"document_name"`
	CreatedAt     time.Time `json:"created_at"`
	Entities      int       `json:"entities"`
	Relationships int       `json:"relationships"`
}

func NewGraphDBStorageWithConnection(conn pgxIConn) *GraphDBStorage {
	return &GraphDBStorage{conn: conn}
}

// SaveGraph writes g in one transaction, replacing a stored graph with the
// same ID.
func (s *GraphDBStorage) SaveGraph(ctx context.Context, g common.OntologyGraph) error {
	if g.ID == "" {
		return errors.New("graph has no ID")
	}
	meta, err := marshalJSON(g.Metadata)
	if err != nil {
		return err
	}
	sectionRows, err := sectionRows(g)
	if err != nil {
		return err
	}
	entityRows, err := entityRows(g)
	if err != nil {
		return err
	}
	relRows := relationshipRows(g)

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, deleteGraphSQL, g.ID); err != nil {
		return fmt.Errorf("failed to replace graph %s: %w", g.ID, err)
	}
	if _, err := tx.Exec(ctx, insertGraphSQL, g.ID, g.Version, g.Metadata.DocumentName, g.CreatedAt, meta); err != nil {
		return fmt.Errorf("failed to insert graph %s: %w", g.ID, err)
	}
	copies := []struct {
		table   string
		columns []string
		rows    [][]any
	}{
		{"graph_sections", sectionColumns, sectionRows},
		{"graph_entities", entityColumns, entityRows},
		{"graph_relationships", relationshipColumns, relRows},
	}
	for _, c := range copies {
		if len(c.rows) == 0 {
			continue
		}
		n, err := tx.CopyFrom(ctx, pgxv5.Identifier{c.table}, c.columns, pgxv5.CopyFromRows(c.rows))
		if err != nil {
			return fmt.Errorf("failed to copy %s: %w", c.table, err)
		}
		logger.Debug("[Store] Copied rows", "table", c.table, "rows", n)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit graph %s: %w", g.ID, err)
	}
	logger.Info("[Store] Graph saved", "graph_id", g.ID, "entities", len(g.Entities), "relationships", len(g.Relationships))
	return nil
}

// LoadGraph reads a stored graph. Entities, relationships and sections come
// back in the order they were saved.
func (s *GraphDBStorage) LoadGraph(ctx context.Context, id string) (common.OntologyGraph, error) {
	g := common.OntologyGraph{ID: id}
	var meta []byte
	err := s.conn.QueryRow(ctx, selectGraphSQL, id).Scan(&g.Version, &g.CreatedAt, &meta)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return common.OntologyGraph{}, ErrGraphNotFound
		}
		return common.OntologyGraph{}, fmt.Errorf("failed to load graph %s: %w", id, err)
	}
	if err := unmarshalJSON(meta, &g.Metadata); err != nil {
		return common.OntologyGraph{}, err
	}
	g.CreatedAt = g.CreatedAt.UTC()

	if g.Sections, err = s.loadSections(ctx, id); err != nil {
		return common.OntologyGraph{}, err
	}
	if g.Entities, err = s.loadEntities(ctx, id); err != nil {
		return common.OntologyGraph{}, err
	}
	if g.Relationships, err = s.loadRelationships(ctx, id); err != nil {
		return common.OntologyGraph{}, err
	}
	return g, nil
}

func (s *GraphDBStorage) loadSections(ctx context.Context, id string) ([]common.DocumentSection, error) {
	rows, err := s.conn.Query(ctx, selectSectionsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load sections: %w", err)
	}
	defer rows.Close()

	var out []common.DocumentSection
	for rows.Next() {
		var sec common.DocumentSection
		var hints []byte
		if err := rows.Scan(&sec.ID, &sec.Header, &sec.Number, &sec.Level, &sec.ParentID, &sec.CharStart, &sec.CharEnd, &hints); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		if err := unmarshalJSON(hints, &sec.ListHints); err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

func (s *GraphDBStorage) loadEntities(ctx context.Context, id string) ([]common.Entity, error) {
	rows, err := s.conn.Query(ctx, selectEntitiesSQL, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}
	defer rows.Close()

	var out []common.Entity
	for rows.Next() {
		var e common.Entity
		var attrs, anchors []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.Name, &e.Description, &attrs, &anchors, &e.MergedFrom); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		if err := decodeEntity(&e, attrs, anchors); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *GraphDBStorage) loadRelationships(ctx context.Context, id string) ([]common.Relationship, error) {
	rows, err := s.conn.Query(ctx, selectRelationshipsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load relationships: %w", err)
	}
	defer rows.Close()

	var out []common.Relationship
	for rows.Next() {
		var r common.Relationship
		if err := rows.Scan(&r.SourceID, &r.TargetID, &r.Type, &r.Description, &r.SectionID, &r.SectionIDs); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		if len(r.SectionIDs) == 0 {
			r.SectionIDs = nil
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListGraphs returns all stored graphs, newest first.
func (s *GraphDBStorage) ListGraphs(ctx context.Context) ([]GraphInfo, error) {
	rows, err := s.conn.Query(ctx, listGraphsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	defer rows.Close()

	out := []GraphInfo{}
	for rows.Next() {
		var info GraphInfo
		if err := rows.Scan(&info.ID, &info.DocumentName, &info.CreatedAt, &info.Entities, &info.Relationships); err != nil {
			return nil, fmt.Errorf("failed to scan graph: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteGraph removes a graph and everything it owns.
func (s *GraphDBStorage) DeleteGraph(ctx context.Context, id string) error {
	tag, err := s.conn.Exec(ctx, deleteGraphSQL, id)
	if err != nil {
		return fmt.Errorf("failed to delete graph %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGraphNotFound
	}
	return nil
}
