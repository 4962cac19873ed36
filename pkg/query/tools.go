package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/policygraph/internal/util"
	"github.com/OFFIS-RIT/policygraph/pkg/ai"
	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"
	"github.com/OFFIS-RIT/policygraph/pkg/store"

	"github.com/tidwall/gjson"
)

// ErrInvalidArguments is returned by tool handlers for malformed or missing
// arguments.
var ErrInvalidArguments = errors.New("invalid arguments")

const (
	defaultSearchLimit = 20
	maxPathsShown      = 5
	listDescription    = 160
)

// Tools returns the graph tools bound to s. Every entity ID a tool reports
// is recorded on trace.
func Tools(s *store.Store, trace Tracer) []ai.Tool {
	return []ai.Tool{
		toolListEntityTypes(s),
		toolFindEntities(s, trace),
		toolSearchEntities(s, trace),
		toolGetEntity(s, trace),
		toolGetNeighbors(s, trace),
		toolFindPaths(s, trace),
		toolGetGraphSummary(s),
	}
}

func parseArgs(args string) (gjson.Result, error) {
	if a := strings.TrimSpace(args); a == "" || a == "null" {
		return gjson.Parse("{}"), nil
	}
	if !gjson.Valid(args) {
		return gjson.Result{}, fmt.Errorf("%w: arguments are not valid JSON", ErrInvalidArguments)
	}
	res := gjson.Parse(args)
	if !res.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: arguments must be a JSON object", ErrInvalidArguments)
	}
	return res, nil
}

func requiredString(params gjson.Result, key string) (string, error) {
	v := params.Get(key)
	if !v.Exists() || v.Type != gjson.String || strings.TrimSpace(v.String()) == "" {
		return "", fmt.Errorf("%w: %s is required and must be a string", ErrInvalidArguments, key)
	}
	return strings.TrimSpace(v.String()), nil
}

func optionalInt(params gjson.Result, key string, def int) int {
	v := params.Get(key)
	if v.Type != gjson.Number || v.Int() <= 0 {
		return def
	}
	return int(v.Int())
}

func entityLine(sb *strings.Builder, e common.Entity, withType bool) {
	desc := util.Truncate(strings.ReplaceAll(e.Description, "\n", " "), listDescription)
	if withType {
		fmt.Fprintf(sb, "- %s [%s]: %s -- %s\n", e.ID, e.Type, e.Name, desc)
		return
	}
	fmt.Fprintf(sb, "- %s: %s -- %s\n", e.ID, e.Name, desc)
}

func entityIDs(entities []common.Entity) []string {
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	return ids
}

func toolListEntityTypes(s *store.Store) ai.Tool {
	return ai.Tool{
		Name:        "list_entity_types",
		Description: "List all entity types in the graph and how many of each exist. Use this first to understand what kinds of information the graph contains.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			logger.Debug("[Tool] list_entity_types")

			types := s.EntityTypes()
			if len(types) == 0 {
				return "Graph is empty.", nil
			}
			var result strings.Builder
			for _, tc := range types {
				fmt.Fprintf(&result, "- %s: %d entities\n", tc.Type, tc.Count)
			}
			return strings.TrimRight(result.String(), "\n"), nil
		},
	}
}

func toolFindEntities(s *store.Store, trace Tracer) ai.Tool {
	return ai.Tool{
		Name:        "find_entities",
		Description: "Find all entities of a given type, optionally only those carrying an attribute (and whose value contains a given text). Returns their IDs, names, and descriptions.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"entity_type": map[string]any{
					"type":        "string",
					"description": "The entity type to filter by (e.g. 'PolicyRule', 'RiskLevel', 'Role').",
				},
				"attribute": map[string]any{
					"type":        "string",
					"description": "Only return entities that have this attribute key.",
				},
				"value": map[string]any{
					"type":        "string",
					"description": "Case-insensitive text the attribute value must contain. Requires attribute.",
				},
			},
			"required": []string{"entity_type"},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			params, err := parseArgs(args)
			if err != nil {
				return "", err
			}
			typ, err := requiredString(params, "entity_type")
			if err != nil {
				return "", err
			}
			attr := strings.TrimSpace(params.Get("attribute").String())
			value := strings.TrimSpace(params.Get("value").String())

			logger.Debug("[Tool] find_entities", "type", typ, "attribute", attr, "value", value)
			RecordQueriedEntityTypes(trace, typ)

			entities := s.FindEntities(typ, attr, value)
			if len(entities) == 0 {
				if attr != "" {
					return fmt.Sprintf("No entities of type '%s' with attribute '%s' found.", typ, attr), nil
				}
				return fmt.Sprintf("No entities of type '%s' found.", typ), nil
			}
			RecordQueriedEntityIDs(trace, entityIDs(entities)...)

			var result strings.Builder
			for _, e := range entities {
				entityLine(&result, e, false)
			}
			return strings.TrimRight(result.String(), "\n"), nil
		},
	}
}

func toolSearchEntities(s *store.Store, trace Tracer) ai.Tool {
	return ai.Tool{
		Name:        "search_entities",
		Description: "Search for entities by keyword across IDs, names, descriptions, and attribute values. Use this when you don't know the exact entity type or want to find something by content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"keyword": map[string]any{
					"type":        "string",
					"description": "Keyword to search for (case-insensitive).",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum number of entities to return (default: %d).", defaultSearchLimit),
					"default":     defaultSearchLimit,
				},
			},
			"required": []string{"keyword"},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			params, err := parseArgs(args)
			if err != nil {
				return "", err
			}
			keyword, err := requiredString(params, "keyword")
			if err != nil {
				return "", err
			}
			limit := optionalInt(params, "limit", defaultSearchLimit)

			logger.Debug("[Tool] search_entities", "keyword", keyword, "limit", limit)

			entities := s.Search(keyword, limit)
			if len(entities) == 0 {
				return fmt.Sprintf("No entities matching '%s' found.", keyword), nil
			}
			RecordQueriedEntityIDs(trace, entityIDs(entities)...)

			var result strings.Builder
			for _, e := range entities {
				entityLine(&result, e, true)
			}
			return strings.TrimRight(result.String(), "\n"), nil
		},
	}
}

func toolGetEntity(s *store.Store, trace Tracer) ai.Tool {
	return ai.Tool{
		Name:        "get_entity",
		Description: "Get full details of a specific entity: its type, name, description, all attributes, source quotes, the entities it was merged from, and all relationships (incoming and outgoing).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"entity_id": map[string]any{
					"type":        "string",
					"description": "The ID of the entity to retrieve.",
				},
			},
			"required": []string{"entity_id"},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			params, err := parseArgs(args)
			if err != nil {
				return "", err
			}
			id, err := requiredString(params, "entity_id")
			if err != nil {
				return "", err
			}

			logger.Debug("[Tool] get_entity", "id", id)

			e, err := s.Entity(id)
			if err != nil {
				return "", fmt.Errorf("%w: '%s'", err, id)
			}
			RecordQueriedEntityIDs(trace, id)

			var result strings.Builder
			fmt.Fprintf(&result, "ID: %s\nType: %s\nName: %s\nDescription: %s\n", e.ID, e.Type, e.Name, e.Description)

			if e.Attributes.Len() > 0 {
				result.WriteString("Attributes:\n")
				for _, k := range e.Attributes.Keys() {
					v, _ := e.Attributes.Get(k)
					fmt.Fprintf(&result, "  %s: %s\n", k, common.FormatValue(v))
				}
			}

			if len(e.Anchors) > 0 {
				result.WriteString("Sources:\n")
				for _, a := range e.Anchors {
					header := a.SectionID
					if sec, ok := s.Section(a.SectionID); ok && sec.Header != "" {
						header = fmt.Sprintf("%s %s", a.SectionID, sec.Header)
					}
					offset := "unlocated"
					if a.CharOffset != nil {
						offset = fmt.Sprintf("@%d", *a.CharOffset)
					}
					fmt.Fprintf(&result, "  [%s %s, %s] %q\n", a.Tier, offset, header, util.Truncate(a.Text, 240))
				}
			}

			if len(e.MergedFrom) > 0 {
				fmt.Fprintf(&result, "Merged from: %s\n", strings.Join(e.MergedFrom, ", "))
			}

			if out := s.Outgoing(id); len(out) > 0 {
				result.WriteString("Outgoing relationships:\n")
				for _, r := range out {
					RecordQueriedEntityIDs(trace, r.TargetID)
					fmt.Fprintf(&result, "  --[%s]--> %s (%s): %s\n", r.Type, s.Name(r.TargetID), r.TargetID, r.Description)
				}
			}
			if in := s.Incoming(id); len(in) > 0 {
				result.WriteString("Incoming relationships:\n")
				for _, r := range in {
					RecordQueriedEntityIDs(trace, r.SourceID)
					fmt.Fprintf(&result, "  <--[%s]-- %s (%s): %s\n", r.Type, s.Name(r.SourceID), r.SourceID, r.Description)
				}
			}

			return strings.TrimRight(result.String(), "\n"), nil
		},
	}
}

func toolGetNeighbors(s *store.Store, trace Tracer) ai.Tool {
	return ai.Tool{
		Name:        "get_neighbors",
		Description: "Get all entities connected to a given entity within a number of hops, in either direction. Shows the relationship types and directions.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"entity_id": map[string]any{
					"type":        "string",
					"description": "The ID of the starting entity.",
				},
				"depth": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("How many hops to traverse (1 = direct neighbors, at most %d). Default 1.", store.MaxNeighborDepth),
					"default":     1,
				},
			},
			"required": []string{"entity_id"},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			params, err := parseArgs(args)
			if err != nil {
				return "", err
			}
			id, err := requiredString(params, "entity_id")
			if err != nil {
				return "", err
			}
			depth := optionalInt(params, "depth", 1)

			logger.Debug("[Tool] get_neighbors", "id", id, "depth", depth)

			nb, err := s.Neighbors(id, depth)
			if err != nil {
				return "", fmt.Errorf("%w: '%s'", err, id)
			}
			RecordQueriedEntityIDs(trace, entityIDs(nb.Entities)...)

			var result strings.Builder
			fmt.Fprintf(&result, "Neighborhood of '%s' (depth=%d): %d entities\n\n", id, nb.Depth, len(nb.Entities))
			result.WriteString("Entities:\n")
			for _, e := range nb.Entities {
				marker := ""
				if e.ID == id {
					marker = " (start)"
				}
				fmt.Fprintf(&result, "  - %s [%s]: %s%s\n", e.ID, e.Type, e.Name, marker)
			}
			result.WriteString("\nRelationships:\n")
			for _, r := range nb.Relationships {
				fmt.Fprintf(&result, "  %s --[%s]--> %s\n", s.Name(r.SourceID), r.Type, s.Name(r.TargetID))
			}
			return strings.TrimRight(result.String(), "\n"), nil
		},
	}
}

func toolFindPaths(s *store.Store, trace Tracer) ai.Tool {
	return ai.Tool{
		Name:        "find_paths",
		Description: "Find paths between two entities in the graph, ignoring relationship direction. Shows the chain of relationships connecting them.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"source_id": map[string]any{
					"type":        "string",
					"description": "The ID of the starting entity.",
				},
				"target_id": map[string]any{
					"type":        "string",
					"description": "The ID of the target entity.",
				},
				"max_depth": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum number of hops per path (default and maximum: %d).", store.DefaultPathDepth),
					"default":     store.DefaultPathDepth,
				},
			},
			"required": []string{"source_id", "target_id"},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			params, err := parseArgs(args)
			if err != nil {
				return "", err
			}
			source, err := requiredString(params, "source_id")
			if err != nil {
				return "", err
			}
			target, err := requiredString(params, "target_id")
			if err != nil {
				return "", err
			}
			maxDepth := min(optionalInt(params, "max_depth", store.DefaultPathDepth), store.DefaultPathDepth)

			logger.Debug("[Tool] find_paths", "source", source, "target", target, "max_depth", maxDepth)

			if !s.Has(source) {
				return "", fmt.Errorf("source %w: '%s'", store.ErrEntityNotFound, source)
			}
			if !s.Has(target) {
				return "", fmt.Errorf("target %w: '%s'", store.ErrEntityNotFound, target)
			}
			RecordQueriedEntityIDs(trace, source, target)

			paths, total, err := s.Paths(source, target, maxDepth, maxPathsShown)
			if err != nil {
				return "", err
			}
			if total == 0 {
				return fmt.Sprintf("No path found between '%s' and '%s'.", source, target), nil
			}

			var result strings.Builder
			fmt.Fprintf(&result, "Found %d path(s):\n\n", total)
			for i, p := range paths {
				fmt.Fprintf(&result, "Path %d:\n", i+1)
				for _, h := range p {
					RecordQueriedEntityIDs(trace, h.From, h.To)
					if h.Forward {
						fmt.Fprintf(&result, "  %s --[%s]--> %s\n", s.Name(h.From), h.Type, s.Name(h.To))
					} else {
						fmt.Fprintf(&result, "  %s <--[%s]-- %s\n", s.Name(h.From), h.Type, s.Name(h.To))
					}
				}
				result.WriteString("\n")
			}
			return strings.TrimRight(result.String(), "\n"), nil
		},
	}
}

func toolGetGraphSummary(s *store.Store) ai.Tool {
	return ai.Tool{
		Name:        "get_graph_summary",
		Description: "Get a high-level summary of the entire graph: total entities, relationships, entity types, and relationship types. Use this to orient yourself.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			logger.Debug("[Tool] get_graph_summary")

			sum := s.Summary()
			var result strings.Builder
			fmt.Fprintf(&result, "Total entities: %d\nTotal relationships: %d\n\n", sum.Entities, sum.Relationships)
			result.WriteString("Entity types:\n")
			for _, tc := range sum.EntityTypes {
				fmt.Fprintf(&result, "  %s: %d\n", tc.Type, tc.Count)
			}
			result.WriteString("\nRelationship types:\n")
			for _, tc := range sum.RelationshipTypes {
				fmt.Fprintf(&result, "  %s: %d\n", tc.Type, tc.Count)
			}
			return strings.TrimRight(result.String(), "\n"), nil
		},
	}
}
