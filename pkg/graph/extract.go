package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/policygraph/internal/metrics"
	"github.com/OFFIS-RIT/policygraph/internal/util"
	"github.com/OFFIS-RIT/policygraph/pkg/ai"
	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Sections with a body at most this long are not retried when they yield
// no entities.
const zeroEntityMinChars = 100

var errUnparseable = errors.New("extraction output is not JSON")

type extractPayload struct {
	Entities      []map[string]any `json:"entities"`
	Relationships []map[string]any `json:"relationships"`
}

// ExtractAll extracts every section concurrently. The result slice always has
// one entry per section, in section order. When ctx is cancelled the
// unfinished sections are reported as degraded and ctx.Err() is returned.
func (g *GraphClient) ExtractAll(
	ctx context.Context,
	oracle ai.CompletionOracle,
	sections []common.DocumentSection,
	doc string,
) ([]common.SectionResult, error) {
	results := make([]common.SectionResult, len(sections))
	done := make([]bool, len(sections))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelAiRequests)
	for i, section := range sections {
		eg.Go(func() error {
			select {
			case <-gCtx.Done():
				return nil
			default:
				results[i] = g.ExtractSection(gCtx, oracle, section, sections, doc)
				done[i] = true
				return nil
			}
		})
	}
	_ = eg.Wait()

	for i := range results {
		if !done[i] {
			results[i] = canceledResult(sections[i], ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func canceledResult(section common.DocumentSection, err error) common.SectionResult {
	msg := "extraction canceled"
	if err != nil {
		msg = err.Error()
	}
	return common.SectionResult{
		Section:  section,
		Degraded: &common.DegradedReason{Kind: common.DegradedCanceled, Message: msg},
	}
}

// ExtractSection runs extraction for one section. It never fails: oracle
// failures degrade the section instead.
func (g *GraphClient) ExtractSection(
	ctx context.Context,
	oracle ai.CompletionOracle,
	section common.DocumentSection,
	sections []common.DocumentSection,
	doc string,
) common.SectionResult {
	text := section.Text(doc)
	prompt := g.extractPrompt(section, sections, text)

	res := common.SectionResult{Section: section}
	payload, cached, attempts, err := g.requestExtraction(ctx, oracle, section, prompt)
	res.Attempts = attempts
	if err != nil {
		return degradeSection(ctx, res, err)
	}

	res.Entities, res.Relationships, res.RejectedEntities = g.parsePayload(payload, section, text)
	res.Cached = cached

	if len(res.Entities) == 0 && len(strings.TrimSpace(text)) > zeroEntityMinChars {
		logger.Warn("[Extract] Zero entities, retrying with directive", "section", section.ID)
		res.ZeroEntityRetry = true
		payload, cached, attempts, err = g.requestExtraction(ctx, oracle, section, ai.ZeroEntityDirective+prompt)
		res.Attempts += attempts
		if err != nil {
			// the first, empty answer stands
			if ctx.Err() != nil {
				return degradeSection(ctx, res, err)
			}
			logger.Warn("[Extract] Zero entity retry failed", "section", section.ID, "err", err)
		} else {
			var rejected int
			res.Entities, res.Relationships, rejected = g.parsePayload(payload, section, text)
			res.RejectedEntities += rejected
			res.Cached = res.Cached && cached
		}
	}

	status := "ok"
	if res.Cached {
		status = "cached"
	}
	metrics.SectionsExtracted.WithLabelValues(status).Inc()
	metrics.RejectedEntities.Add(float64(res.RejectedEntities))
	logger.Debug("[Extract] Section extracted",
		"section", section.ID,
		"entities", len(res.Entities),
		"relationships", len(res.Relationships),
		"rejected", res.RejectedEntities,
		"attempts", res.Attempts,
	)
	return res
}

// degradeSection marks res as degraded. Only cancellation of the run's own
// ctx counts as canceled; a timed out request is a transport failure.
func degradeSection(ctx context.Context, res common.SectionResult, err error) common.SectionResult {
	kind := common.DegradedTransport
	switch {
	case ctx.Err() != nil:
		kind = common.DegradedCanceled
	case errors.Is(err, errUnparseable):
		kind = common.DegradedParse
	}
	res.Entities = nil
	res.Relationships = nil
	res.Degraded = &common.DegradedReason{Kind: kind, Message: err.Error()}
	metrics.SectionsExtracted.WithLabelValues("degraded").Inc()
	logger.Warn("[Extract] Section degraded", "section", res.Section.ID, "kind", kind, "attempts", res.Attempts, "err", err)
	return res
}

// requestExtraction returns the parsed payload for prompt, from the cache
// when possible.
func (g *GraphClient) requestExtraction(
	ctx context.Context,
	oracle ai.CompletionOracle,
	section common.DocumentSection,
	prompt string,
) (extractPayload, bool, int, error) {
	key := cacheKey(g.vocabulary, prompt)
	if g.cache != nil {
		if raw, ok := g.cache.Get(key); ok {
			if payload, err := parseExtraction(raw); err == nil {
				return payload, true, 0, nil
			}
		}
	}

	backoff := g.backoff
	backoff.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.OracleRetries.WithLabelValues("extract").Inc()
		logger.Warn("[Extract] Retrying section", "section", section.ID, "attempt", attempt, "delay", delay, "err", err)
	}
	raw, attempts, err := util.RetryWithBackoff(ctx, backoff, func(ctx context.Context) (string, error) {
		if err := g.wait(ctx); err != nil {
			return "", err
		}
		return oracle.GenerateCompletion(ctx, prompt, ai.WithTemperature(0.1))
	})
	if err != nil {
		return extractPayload{}, false, attempts, err
	}

	payload, err := parseExtraction(raw)
	if err != nil {
		return extractPayload{}, false, attempts, err
	}
	if g.cache != nil {
		if err := g.cache.Put(key, raw); err != nil {
			logger.Debug("[Extract] Failed to cache response", "section", section.ID, "err", err)
		}
	}
	return payload, false, attempts, nil
}

func (g *GraphClient) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

func cacheKey(v *Vocabulary, prompt string) string {
	h := sha256.New()
	h.Write([]byte("extract\x00"))
	h.Write([]byte(v.EntityTypesPrompt()))
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}

// parseExtraction accepts an object with entities and relationships or a
// bare array of entities, possibly wrapped in prose or markdown.
func parseExtraction(raw string) (extractPayload, error) {
	body := ai.ExtractJSONPayload(raw)
	if !strings.HasPrefix(body, "{") && !strings.HasPrefix(body, "[") {
		return extractPayload{}, fmt.Errorf("%w: %s", errUnparseable, util.Truncate(body, 80))
	}

	var payload extractPayload
	if strings.HasPrefix(body, "[") {
		if err := ai.UnmarshalFlexible(body, &payload.Entities); err != nil {
			return extractPayload{}, fmt.Errorf("%w: %w", errUnparseable, err)
		}
		return payload, nil
	}
	if err := ai.UnmarshalFlexible(body, &payload); err != nil {
		return extractPayload{}, fmt.Errorf("%w: %w", errUnparseable, err)
	}
	return payload, nil
}

var entityFields = map[string]bool{
	"id": true, "type": true, "name": true, "description": true,
	"source_text": true, "source_anchor": true, "attributes": true,
}

// parsePayload converts the raw payload into section scoped entities and
// relationships. IDs are forced into the section namespace and entities of
// unknown type are rejected.
func (g *GraphClient) parsePayload(
	payload extractPayload,
	section common.DocumentSection,
	text string,
) ([]common.ExtractedEntity, []common.Relationship, int) {
	prefix := section.ID
	renamed := make(map[string]string, len(payload.Entities))
	seen := make(map[string]bool, len(payload.Entities))
	entities := make([]common.ExtractedEntity, 0, len(payload.Entities))
	rejected := 0

	for i, raw := range payload.Entities {
		name := strings.TrimSpace(stringField(raw, "name"))
		origID := strings.TrimSpace(stringField(raw, "id"))
		id := namespacedID(prefix, origID, name, i)
		if origID != "" {
			renamed[origID] = id
		}

		typ, ok := g.vocabulary.CanonicalEntityType(stringField(raw, "type"))
		if !ok {
			rejected++
			logger.Warn("[Extract] Dropping entity with unknown type", "section", section.ID, "id", id, "type", stringField(raw, "type"))
			continue
		}
		if seen[id] {
			logger.Debug("[Extract] Duplicate entity id in section", "section", section.ID, "id", id)
			continue
		}
		seen[id] = true

		quote := strings.TrimSpace(stringField(raw, "source_text"))
		if quote == "" {
			if anchor, ok := raw["source_anchor"].(map[string]any); ok {
				quote = strings.TrimSpace(stringField(anchor, "source_text"))
			}
		}
		if quote == "" {
			quote = firstLine(text)
			logger.Debug("[Extract] Entity without source text, using section opening", "section", section.ID, "id", id)
		}

		var attrs common.Attributes
		if m, ok := raw["attributes"].(map[string]any); ok {
			for k, v := range m {
				attrs.Set(k, v)
			}
		}
		for k, v := range raw {
			if !entityFields[k] {
				if _, exists := attrs.Get(k); !exists {
					attrs.Set(k, v)
				}
			}
		}

		entities = append(entities, common.ExtractedEntity{
			LocalID:     id,
			Type:        typ,
			Name:        name,
			Description: strings.TrimSpace(stringField(raw, "description")),
			Attributes:  attrs,
			Anchor: common.SourceAnchor{
				Text:      quote,
				SectionID: section.ID,
			},
		})
	}

	relationships := make([]common.Relationship, 0, len(payload.Relationships))
	for _, raw := range payload.Relationships {
		src := strings.TrimSpace(stringField(raw, "source_id"))
		tgt := strings.TrimSpace(stringField(raw, "target_id"))
		typ := strings.TrimSpace(stringField(raw, "type"))
		if src == "" || tgt == "" || typ == "" {
			continue
		}
		relationships = append(relationships, common.Relationship{
			SourceID:    resolveLocal(prefix, src, renamed),
			TargetID:    resolveLocal(prefix, tgt, renamed),
			Type:        typ,
			Description: strings.TrimSpace(stringField(raw, "description")),
			SectionID:   section.ID,
		})
	}
	return entities, relationships, rejected
}

// namespacedID makes sure id carries the "<section>_" prefix.
func namespacedID(prefix, id, name string, index int) string {
	if id == "" {
		id = slug(name)
		if id == "" {
			id = fmt.Sprintf("entity_%d", index+1)
		}
	}
	if strings.HasPrefix(id, prefix+"_") {
		return id
	}
	return prefix + "_" + slug(id)
}

func resolveLocal(prefix, id string, renamed map[string]string) string {
	if r, ok := renamed[id]; ok {
		return r
	}
	if strings.HasPrefix(id, prefix+"_") {
		return id
	}
	return prefix + "_" + slug(id)
}

func slug(s string) string {
	return strings.Trim(strings.ToLower(reNonAlnum.ReplaceAllString(s, "_")), "_")
}

func firstLine(text string) string {
	for line := range strings.SplitSeq(text, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return l
		}
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return common.FormatValue(v)
	}
}

// extractPrompt renders the extraction prompt for section.
func (g *GraphClient) extractPrompt(
	section common.DocumentSection,
	sections []common.DocumentSection,
	text string,
) string {
	return fmt.Sprintf(
		ai.ExtractPrompt,
		text,
		sectionOutline(sections, section.ID),
		section.Number,
		section.Header,
		parentContext(section, sections),
		section.ID,
		listInstructions(section.ListHints),
		section.ID,
		section.ID,
		g.vocabulary.EntityTypesPrompt(),
		g.vocabulary.RelationshipTypesPrompt(),
	)
}

func sectionOutline(sections []common.DocumentSection, current string) string {
	var sb strings.Builder
	for _, s := range sections {
		sb.WriteString(strings.Repeat("  ", max(s.Level-1, 0)))
		fmt.Fprintf(&sb, "- %s: %s", s.Number, s.Header)
		if s.ID == current {
			sb.WriteString("  <-- this section")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func parentContext(section common.DocumentSection, sections []common.DocumentSection) string {
	byID := make(map[string]common.DocumentSection, len(sections))
	for _, s := range sections {
		byID[s.ID] = s
	}

	var chain []string
	visited := map[string]bool{section.ID: true}
	for p := section.ParentID; p != "" && !visited[p]; {
		visited[p] = true
		parent, ok := byID[p]
		if !ok {
			break
		}
		chain = append([]string{fmt.Sprintf("%s %s", parent.Number, parent.Header)}, chain...)
		p = parent.ParentID
	}
	if len(chain) == 0 {
		return "Top-level"
	}
	return strings.Join(chain, " > ")
}

func listInstructions(hints []common.EnumeratedList) string {
	if len(hints) == 0 {
		return "No enumerated lists were detected in this section."
	}
	var sb strings.Builder
	sb.WriteString("The following lists were detected. Create a SEPARATE entity for EACH item.\n")
	for i, h := range hints {
		listType := h.ListType
		if listType == "" {
			listType = "enumerated"
		}
		fmt.Fprintf(&sb, "%d. The %s list starting %q has exactly %d items: create %d entities.\n",
			i+1, listType, h.Preview, h.ItemCount, h.ItemCount)
	}
	return sb.String()
}
