package common

import (
	"cmp"
	"slices"
	"time"
)

// GraphVersion is written into every serialized OntologyGraph.
const GraphVersion = "1"

// DocumentSection is a contiguous span of the source document produced by
// segmentation. Sections are immutable once created and are kept in document
// order.
//
// CharStart and CharEnd are byte offsets into the document text (half open).
type DocumentSection struct {
	ID        string           `json:"id"`
	Header    string           `json:"header"`
	Number    string           `json:"number"`
	Level     int              `json:"level"`
	ParentID  string           `json:"parent_id,omitempty"`
	CharStart int              `json:"char_start"`
	CharEnd   int              `json:"char_end"`
	ListHints []EnumeratedList `json:"list_hints,omitempty"`
}

// Text returns the section's span of doc. Out of range spans are clamped.
func (s DocumentSection) Text(doc string) string {
	start := min(max(s.CharStart, 0), len(doc))
	end := min(max(s.CharEnd, start), len(doc))
	return doc[start:end]
}

// Len is the span length in bytes.
func (s DocumentSection) Len() int {
	return s.CharEnd - s.CharStart
}

// EnumeratedList is a hint that a section contains a list with a known number
// of items. Extraction uses it as a completeness target.
type EnumeratedList struct {
	ItemCount int    `json:"item_count"`
	ListType  string `json:"list_type"`
	Preview   string `json:"preview"`
}

// VerificationTier records how an anchor quote was matched against the source.
type VerificationTier string

const (
	TierExact      VerificationTier = "exact"
	TierNormalized VerificationTier = "normalized"
	TierFuzzy      VerificationTier = "fuzzy"
	TierUnverified VerificationTier = "unverified"
)

// SourceAnchor is a verbatim quote supporting an entity.
//
// CharOffset stays nil until verification finds the quote in the document.
type SourceAnchor struct {
	Text       string           `json:"text"`
	SectionID  string           `json:"section_id"`
	CharOffset *int             `json:"char_offset"`
	Tier       VerificationTier `json:"tier,omitempty"`
	Similarity float64          `json:"similarity,omitempty"`
}

// ExtractedEntity is an entity as returned for a single section, before merge.
// LocalID carries the section prefix, e.g. "s2_role_ed".
type ExtractedEntity struct {
	LocalID     string       `json:"id"`
	Type        string       `json:"type"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Attributes  Attributes   `json:"attributes"`
	Anchor      SourceAnchor `json:"anchor"`
}

// Entity is a canonical, merged graph node.
type Entity struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Attributes  Attributes     `json:"attributes"`
	Anchors     []SourceAnchor `json:"anchors"`
	MergedFrom  []string       `json:"merged_from,omitempty"`
}

// Relationship is a directed, typed edge. Before merge SourceID and TargetID
// are section local IDs, afterwards canonical entity IDs.
type Relationship struct {
	SourceID    string   `json:"source_id"`
	TargetID    string   `json:"target_id"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	SectionID   string   `json:"section_id"`
	SectionIDs  []string `json:"section_ids,omitempty"`
}

// DegradedKind classifies why a section produced no usable extraction.
type DegradedKind string

const (
	DegradedTransport DegradedKind = "transport"
	DegradedParse     DegradedKind = "parse"
	DegradedCanceled  DegradedKind = "canceled"
)

type DegradedReason struct {
	Kind    DegradedKind `json:"kind"`
	Message string       `json:"message"`
}

// SectionResult is the outcome of extracting a single section. It is always
// produced, even when extraction failed (Degraded != nil).
type SectionResult struct {
	Section          DocumentSection   `json:"section"`
	Entities         []ExtractedEntity `json:"entities"`
	Relationships    []Relationship    `json:"relationships"`
	Degraded         *DegradedReason   `json:"degraded,omitempty"`
	Attempts         int               `json:"attempts"`
	RejectedEntities int               `json:"rejected_entities,omitempty"`
	ZeroEntityRetry  bool              `json:"zero_entity_retry,omitempty"`
	Cached           bool              `json:"-"`
}

// SectionDegradation is the metadata record of a degraded section.
type SectionDegradation struct {
	SectionID string       `json:"section_id"`
	Kind      DegradedKind `json:"kind"`
	Reason    string       `json:"reason"`
	Attempts  int          `json:"attempts"`
}

type VerificationCounts struct {
	Exact      int `json:"exact"`
	Normalized int `json:"normalized"`
	Fuzzy      int `json:"fuzzy"`
	Unverified int `json:"unverified"`
}

// Add counts one anchor of the given tier.
func (v *VerificationCounts) Add(tier VerificationTier) {
	switch tier {
	case TierExact:
		v.Exact++
	case TierNormalized:
		v.Normalized++
	case TierFuzzy:
		v.Fuzzy++
	default:
		v.Unverified++
	}
}

type OracleUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	Requests         int64 `json:"requests"`
}

// RunMetadata describes how a graph was built and everything that was
// dropped or degraded along the way.
type RunMetadata struct {
	DocumentName               string               `json:"document_name,omitempty"`
	DocumentChars              int                  `json:"document_chars"`
	SectionCount               int                  `json:"section_count"`
	SegmentationFallback       bool                 `json:"segmentation_fallback,omitempty"`
	DegradedSections           []SectionDegradation `json:"degraded_sections,omitempty"`
	PreMergeEntities           int                  `json:"pre_merge_entities"`
	PreMergeRelationships      int                  `json:"pre_merge_relationships"`
	MergedEntities             int                  `json:"merged_entities"`
	DroppedRelationships       int                  `json:"dropped_relationships"`
	DroppedRelationshipSamples []Relationship       `json:"dropped_relationship_samples,omitempty"`
	DuplicateRelationships     int                  `json:"duplicate_relationships"`
	RejectedEntities           int                  `json:"rejected_entities"`
	SchemaWarnings             int                  `json:"schema_warnings"`
	Verification               VerificationCounts   `json:"verification"`
	StageTimings               map[string]int64     `json:"stage_timings_ms,omitempty"`
	OracleUsage                *OracleUsage         `json:"oracle_usage,omitempty"`
}

// OntologyGraph is the merged, immutable output of the pipeline.
type OntologyGraph struct {
	Version       string            `json:"version"`
	ID            string            `json:"id"`
	CreatedAt     time.Time         `json:"created_at"`
	Sections      []DocumentSection `json:"sections"`
	Entities      []Entity          `json:"entities"`
	Relationships []Relationship    `json:"relationships"`
	Metadata      RunMetadata       `json:"metadata"`
}

// AgentState is the state of a reasoning loop.
type AgentState string

const (
	StateAwaitingDecision AgentState = "awaiting_decision"
	StateExecutingTool    AgentState = "executing_tool"
	StateDone             AgentState = "done"
	StateForcedAnswer     AgentState = "forced_answer"
)

// ToolInvocation records one tool call made by the agent.
type ToolInvocation struct {
	Turn      int    `json:"turn"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Error     string `json:"error,omitempty"`
}

// AgentResponse is the result of answering one question.
//
// ReferencedEntities is ordered by first touch and holds canonical IDs only.
type AgentResponse struct {
	Answer             string           `json:"answer"`
	ReferencedEntities []string         `json:"referenced_entities"`
	TurnCount          int              `json:"turn_count"`
	State              AgentState       `json:"state"`
	Forced             bool             `json:"forced"`
	ToolCalls          []ToolInvocation `json:"tool_calls,omitempty"`
}

// TypeCount is the number of entities or relationships of one type.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// SortedCounts orders counts by count descending, then type.
func SortedCounts(m map[string]int) []TypeCount {
	out := make([]TypeCount, 0, len(m))
	for t, c := range m {
		out = append(out, TypeCount{Type: t, Count: c})
	}
	slices.SortFunc(out, func(a, b TypeCount) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), cmp.Compare(a.Type, b.Type))
	})
	return out
}
