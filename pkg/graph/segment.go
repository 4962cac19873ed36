package graph

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/OFFIS-RIT/policygraph/internal/util"
	"github.com/OFFIS-RIT/policygraph/pkg/ai"
	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"
)

// ErrEmptyDocument is returned when there is no text to build a graph from.
var ErrEmptyDocument = errors.New("document is empty")

// FallbackHeader is the header of the single section produced when no
// outline header could be located in the document.
const FallbackHeader = "[Document]"

type segmentList struct {
	ItemCount int    `json:"item_count" jsonschema_description:"Number of items actually present in the list"`
	ListType  string `json:"list_type" jsonschema_description:"numbered, lettered or bulleted"`
	Preview   string `json:"preview" jsonschema_description:"First few words of the first item"`
}

type segmentEntry struct {
	Header          string        `json:"header" jsonschema_description:"Heading exactly as written in the document"`
	SectionNumber   string        `json:"section_number" jsonschema_description:"Hierarchical number such as 2.1"`
	Level           int           `json:"level" jsonschema_description:"Depth in the hierarchy, 1 for top level"`
	ParentSection   string        `json:"parent_section" jsonschema_description:"section_number of the parent or empty"`
	StartOffset     int           `json:"start_offset" jsonschema_description:"Estimated start byte offset"`
	EndOffset       int           `json:"end_offset" jsonschema_description:"Estimated end byte offset"`
	EnumeratedLists []segmentList `json:"enumerated_lists" jsonschema_description:"Lists inside the section"`
}

type segmentResponse struct {
	Sections []segmentEntry `json:"sections" jsonschema_description:"Sections in document order"`
}

// Segment splits doc into sections. The oracle proposes an outline; section
// spans are derived by locating each header in the text.
func (g *GraphClient) Segment(
	ctx context.Context,
	oracle ai.StructuredOracle,
	doc string,
) ([]common.DocumentSection, error) {
	sections, _, err := g.segment(ctx, oracle, doc)
	return sections, err
}

func (g *GraphClient) segment(
	ctx context.Context,
	oracle ai.StructuredOracle,
	doc string,
) ([]common.DocumentSection, bool, error) {
	if strings.TrimSpace(doc) == "" {
		return nil, false, ErrEmptyDocument
	}

	prompt := fmt.Sprintf(ai.SegmentPrompt, len(doc), doc)
	backoff := g.backoff
	backoff.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("[Segment] Retrying outline request", "attempt", attempt, "delay", delay, "err", err)
	}
	res, _, err := util.RetryWithBackoff(ctx, backoff, func(ctx context.Context) (segmentResponse, error) {
		if err := g.wait(ctx); err != nil {
			return segmentResponse{}, err
		}
		var res segmentResponse
		err := oracle.GenerateCompletionWithFormat(
			ctx,
			"segment_document",
			"Identify the logical sections of a policy document.",
			prompt,
			&res,
			ai.WithTemperature(0),
		)
		return res, err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		logger.Warn("[Segment] Outline request failed, using whole document", "err", err)
		return g.splitOversized(fallbackSection(doc), doc), true, nil
	}

	sections, located := buildSections(res.Sections, doc)
	if located == 0 {
		logger.Warn("[Segment] No outline header located, using whole document", "outline_entries", len(res.Sections))
		return g.splitOversized(fallbackSection(doc), doc), true, nil
	}

	sections = g.splitOversized(sections, doc)
	logger.Debug("[Segment] Document segmented", "outline_entries", len(res.Sections), "located", located, "sections", len(sections))
	return sections, false, nil
}

func fallbackSection(doc string) []common.DocumentSection {
	return []common.DocumentSection{{
		ID:        "s1",
		Header:    FallbackHeader,
		Number:    "1",
		Level:     1,
		CharStart: 0,
		CharEnd:   len(doc),
	}}
}

type locatedHeader struct {
	entry segmentEntry
	pos   int
	hints []common.EnumeratedList
}

// buildSections turns an outline into a complete, ordered cover of doc and
// returns the number of headers that were located.
func buildSections(entries []segmentEntry, doc string) ([]common.DocumentSection, int) {
	folded, offsets := foldText(doc, unicode.ToLower)

	located := make([]locatedHeader, 0, len(entries))
	var leading []segmentEntry
	cursor := 0
	for _, e := range entries {
		hints := toHints(e.EnumeratedLists)
		pos, end, ok := locateHeader(doc, folded, offsets, e.Header, cursor, e.StartOffset)
		if !ok {
			if len(located) == 0 {
				leading = append(leading, e)
				continue
			}
			last := &located[len(located)-1]
			last.hints = append(last.hints, hints...)
			logger.Debug("[Segment] Header not found, folded into previous section", "header", e.Header, "into", last.entry.Header)
			continue
		}
		located = append(located, locatedHeader{entry: e, pos: pos, hints: hints})
		cursor = end
	}
	if len(located) == 0 {
		return nil, 0
	}

	// Unlocated entries before the first header describe the leading text.
	// They become their own section only when there is text to carry.
	if len(leading) > 0 {
		if strings.TrimSpace(doc[:located[0].pos]) != "" {
			first := locatedHeader{entry: leading[0], pos: 0, hints: toHints(leading[0].EnumeratedLists)}
			for _, e := range leading[1:] {
				first.hints = append(first.hints, toHints(e.EnumeratedLists)...)
			}
			located = append([]locatedHeader{first}, located...)
		} else {
			for _, e := range leading {
				located[0].hints = append(located[0].hints, toHints(e.EnumeratedLists)...)
			}
		}
	}

	sections := make([]common.DocumentSection, len(located))
	for i, l := range located {
		start := l.pos
		if i == 0 {
			start = 0
		}
		end := len(doc)
		if i+1 < len(located) {
			end = located[i+1].pos
		}
		number := strings.TrimSpace(l.entry.SectionNumber)
		if number == "" {
			number = strconv.Itoa(i + 1)
		}
		sections[i] = common.DocumentSection{
			Header:    strings.TrimSpace(l.entry.Header),
			Number:    number,
			Level:     sectionLevel(l.entry.Level, number),
			CharStart: start,
			CharEnd:   end,
			ListHints: l.hints,
		}
	}

	assignIDs(sections)
	parents := make(map[string]string, len(sections))
	for i := range sections {
		if _, ok := parents[sections[i].Number]; !ok {
			parents[sections[i].Number] = sections[i].ID
		}
	}
	for i, l := range located {
		if p := strings.TrimSpace(l.entry.ParentSection); p != "" {
			if id, ok := parents[p]; ok && id != sections[i].ID {
				sections[i].ParentID = id
			}
		}
	}
	return sections, len(located)
}

// locateHeader finds header in doc at or after cursor and returns its start
// and end byte offsets. Exact matches win over whitespace and case
// insensitive ones. With several candidates the one closest to the advisory
// offset is taken.
func locateHeader(doc, folded string, offsets []int, header string, cursor, advisory int) (int, int, bool) {
	header = strings.TrimSpace(header)
	if header == "" || cursor >= len(doc) {
		return 0, 0, false
	}

	var starts []int
	for i := cursor; i <= len(doc)-len(header); {
		j := strings.Index(doc[i:], header)
		if j < 0 {
			break
		}
		starts = append(starts, i+j)
		i += j + 1
	}
	if len(starts) > 0 {
		pos := pickCandidate(doc, starts, advisory)
		return pos, pos + len(header), true
	}

	needle, _ := foldText(header, unicode.ToLower)
	from := sort.SearchInts(offsets, cursor)
	var ends []int
	for i := from; i <= len(folded)-len(needle); {
		j := strings.Index(folded[i:], needle)
		if j < 0 {
			break
		}
		starts = append(starts, offsets[i+j])
		ends = append(ends, offsets[i+j+len(needle)])
		i += j + 1
	}
	if len(starts) == 0 {
		return 0, 0, false
	}
	pos := pickCandidate(doc, starts, advisory)
	for i, s := range starts {
		if s == pos {
			return pos, ends[i], true
		}
	}
	return 0, 0, false
}

// pickCandidate prefers occurrences at the start of a line, then the one
// nearest the advisory offset. Without an advisory offset the first wins.
func pickCandidate(doc string, starts []int, advisory int) int {
	var lineStarts []int
	for _, s := range starts {
		if atLineStart(doc, s) {
			lineStarts = append(lineStarts, s)
		}
	}
	if len(lineStarts) > 0 {
		starts = lineStarts
	}
	if advisory <= 0 || len(starts) == 1 {
		return starts[0]
	}
	best := starts[0]
	for _, s := range starts[1:] {
		if math.Abs(float64(s-advisory)) < math.Abs(float64(best-advisory)) {
			best = s
		}
	}
	return best
}

func atLineStart(doc string, pos int) bool {
	for i := pos - 1; i >= 0; i-- {
		switch doc[i] {
		case '\n':
			return true
		case ' ', '\t', '#', '*':
			continue
		default:
			return false
		}
	}
	return true
}

func toHints(lists []segmentList) []common.EnumeratedList {
	var hints []common.EnumeratedList
	for _, l := range lists {
		if l.ItemCount <= 0 {
			continue
		}
		hints = append(hints, common.EnumeratedList{
			ItemCount: l.ItemCount,
			ListType:  l.ListType,
			Preview:   strings.TrimSpace(l.Preview),
		})
	}
	return hints
}

func sectionLevel(level int, number string) int {
	if level > 0 {
		return level
	}
	return strings.Count(strings.TrimSuffix(number, "."), ".") + 1
}

var reNonAlnum = regexp.MustCompile(`[^A-Za-z0-9]+`)

// SectionID derives the section ID from its number: "2.1" -> "s2_1".
func SectionID(number string) string {
	slug := strings.Trim(reNonAlnum.ReplaceAllString(number, "_"), "_")
	return "s" + slug
}

func assignIDs(sections []common.DocumentSection) {
	used := make(map[string]bool, len(sections))
	for i := range sections {
		id := SectionID(sections[i].Number)
		if id == "s" {
			id = "s" + strconv.Itoa(i+1)
		}
		sections[i].ID = uniqueID(id, used)
	}
}

var reParagraphBreak = regexp.MustCompile(`\n\n+`)

// splitOversized re-splits sections longer than the size ceiling at
// paragraph boundaries. A paragraph longer than the ceiling stays whole.
func (g *GraphClient) splitOversized(sections []common.DocumentSection, doc string) []common.DocumentSection {
	return splitSections(sections, doc, g.maxSectionChars)
}

func splitSections(sections []common.DocumentSection, doc string, limit int) []common.DocumentSection {
	used := make(map[string]bool, len(sections))
	for _, sec := range sections {
		used[sec.ID] = true
	}

	out := make([]common.DocumentSection, 0, len(sections))
	for _, sec := range sections {
		if limit <= 0 || sec.Len() <= limit {
			out = append(out, sec)
			continue
		}

		text := sec.Text(doc)
		cuts := []int{sec.CharStart}
		for _, m := range reParagraphBreak.FindAllStringIndex(text, -1) {
			if p := sec.CharStart + m[1]; p < sec.CharEnd {
				cuts = append(cuts, p)
			}
		}
		cuts = append(cuts, sec.CharEnd)

		partStart := sec.CharStart
		partEnd := sec.CharStart
		var parts [][2]int
		for _, next := range cuts[1:] {
			if partEnd > partStart && next-partStart > limit {
				parts = append(parts, [2]int{partStart, partEnd})
				partStart = partEnd
			}
			partEnd = next
		}
		parts = append(parts, [2]int{partStart, partEnd})

		for k, p := range parts {
			part := sec
			part.CharStart, part.CharEnd = p[0], p[1]
			if k > 0 {
				part.Number = fmt.Sprintf("%s.p%d", sec.Number, k+1)
				part.Header = fmt.Sprintf("%s (part %d)", sec.Header, k+1)
				part.ListHints = nil
				part.ID = uniqueID(SectionID(part.Number), used)
			}
			out = append(out, part)
		}
	}
	return out
}

func uniqueID(id string, used map[string]bool) string {
	candidate := id
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", id, n)
	}
	used[candidate] = true
	return candidate
}
