package graph

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/OFFIS-RIT/policygraph/pkg/common"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Quotes of at most this many runes are never matched fuzzily.
const fuzzyMinRunes = 20

// verifier locates anchor quotes in the source document.
type verifier struct {
	doc       string
	threshold float64

	norm        string
	normOffsets []int
	normRunes   []rune
	// runeStarts[i] is the byte offset in norm of normRunes[i]
	runeStarts []int

	dmp *diffmatchpatch.DiffMatchPatch
}

func newVerifier(doc string, threshold float64) *verifier {
	norm, offsets := foldText(doc, foldPunctuation)
	runes := make([]rune, 0, len(norm))
	starts := make([]int, 0, len(norm)+1)
	for i, r := range norm {
		runes = append(runes, r)
		starts = append(starts, i)
	}
	starts = append(starts, len(norm))

	return &verifier{
		doc:         doc,
		threshold:   threshold,
		norm:        norm,
		normOffsets: offsets,
		normRunes:   runes,
		runeStarts:  starts,
		dmp:         diffmatchpatch.New(),
	}
}

// verify fills CharOffset, Tier and Similarity of anchor. The section span
// is searched first, then the whole document.
func (v *verifier) verify(anchor common.SourceAnchor, span common.DocumentSection) common.SourceAnchor {
	anchor.CharOffset = nil
	anchor.Tier = common.TierUnverified
	anchor.Similarity = 0

	quote := strings.TrimSpace(anchor.Text)
	if quote == "" {
		return anchor
	}
	start := min(max(span.CharStart, 0), len(v.doc))
	end := min(max(span.CharEnd, start), len(v.doc))

	if off, ok := indexIn(v.doc, quote, start, end); ok {
		return located(anchor, off, common.TierExact, 1)
	}

	nq, _ := foldText(quote, foldPunctuation)
	nq = strings.TrimSpace(nq)
	nStart, nEnd := v.normRange(start, end)
	if i, ok := indexIn(v.norm, nq, nStart, nEnd); ok {
		return located(anchor, v.normOffsets[i], common.TierNormalized, 1)
	}

	qr := []rune(nq)
	if len(qr) <= fuzzyMinRunes {
		return anchor
	}
	rStart, rEnd := v.runeIndex(nStart), v.runeIndex(nEnd)
	idx, score := v.bestWindow(qr, rStart, rEnd)
	if score < v.threshold && (rStart > 0 || rEnd < len(v.normRunes)) {
		idx, score = v.bestWindow(qr, 0, len(v.normRunes))
	}
	if score >= v.threshold && idx >= 0 {
		return located(anchor, v.normOffsets[v.runeStarts[idx]], common.TierFuzzy, score)
	}
	anchor.Similarity = score
	return anchor
}

func located(anchor common.SourceAnchor, off int, tier common.VerificationTier, score float64) common.SourceAnchor {
	anchor.CharOffset = &off
	anchor.Tier = tier
	anchor.Similarity = score
	return anchor
}

// indexIn searches needle in s[start:end] first, then in all of s.
func indexIn(s, needle string, start, end int) (int, bool) {
	if needle == "" {
		return 0, false
	}
	if start < end {
		if i := strings.Index(s[start:end], needle); i >= 0 {
			return start + i, true
		}
	}
	if i := strings.Index(s, needle); i >= 0 {
		return i, true
	}
	return 0, false
}

// normRange maps an original byte range onto the normalized text.
func (v *verifier) normRange(start, end int) (int, int) {
	offs := v.normOffsets[:len(v.norm)]
	return sort.SearchInts(offs, start), sort.SearchInts(offs, end)
}

func (v *verifier) runeIndex(byteOff int) int {
	return sort.SearchInts(v.runeStarts[:len(v.normRunes)], byteOff)
}

// bestWindow slides a window of len(quote) runes over normRunes[from:to].
// A coarse pass with step len/4 is refined with step 1 around the best hit.
// Equal scores resolve to the earliest window.
func (v *verifier) bestWindow(quote []rune, from, to int) (int, float64) {
	n := len(quote)
	if to-from <= 0 {
		return -1, 0
	}
	last := to - n
	if last < from {
		return from, v.similarity(quote, v.normRunes[from:to])
	}

	step := max(1, n/4)
	bestIdx, best := -1, -1.0
	for i := from; i <= last; i += step {
		if s := v.similarity(quote, v.normRunes[i:i+n]); s > best {
			bestIdx, best = i, s
		}
	}
	if (last-from)%step != 0 {
		if s := v.similarity(quote, v.normRunes[last:last+n]); s > best {
			bestIdx, best = last, s
		}
	}

	lo, hi := max(from, bestIdx-step+1), min(last, bestIdx+step-1)
	for i := lo; i <= hi; i++ {
		if s := v.similarity(quote, v.normRunes[i:i+n]); s > best || (s == best && i < bestIdx) {
			bestIdx, best = i, s
		}
	}
	return bestIdx, best
}

// similarity is 2*M/T where M counts runes common to both texts and T is the
// total rune count.
func (v *verifier) similarity(a []rune, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	diffs := v.dmp.DiffMainRunes(a, b, false)
	matches := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			matches += utf8.RuneCountInString(d.Text)
		}
	}
	return 2 * float64(matches) / float64(total)
}

// Similarity returns the similarity ratio of a and b in [0, 1].
func Similarity(a, b string) float64 {
	v := &verifier{dmp: diffmatchpatch.New()}
	return v.similarity([]rune(a), []rune(b))
}
