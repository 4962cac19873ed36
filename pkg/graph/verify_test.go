package graph

import (
	"strings"
	"testing"

	"github.com/OFFIS-RIT/policygraph/pkg/common"
)

func TestVerifyTiers(t *testing.T) {
	doc := "Section 4. The threshold is $500,000 for all purchases.\n" +
		"Requests are “approved” – in writing – by the board.\n"
	span := common.DocumentSection{ID: "s4", CharStart: 0, CharEnd: len(doc)}
	v := newVerifier(doc, defaultFuzzyThreshold)

	tests := []struct {
		name       string
		quote      string
		wantTier   common.VerificationTier
		wantOffset int
	}{
		{
			name:       "exact",
			quote:      "The threshold is $500,000",
			wantTier:   common.TierExact,
			wantOffset: strings.Index(doc, "The threshold"),
		},
		{
			name:       "double spacing",
			quote:      "The threshold  is $500,000",
			wantTier:   common.TierNormalized,
			wantOffset: strings.Index(doc, "The threshold"),
		},
		{
			name:       "line break inside quote",
			quote:      "The threshold\nis $500,000",
			wantTier:   common.TierNormalized,
			wantOffset: strings.Index(doc, "The threshold"),
		},
		{
			name:       "ascii quotes and dashes",
			quote:      `are "approved" - in writing -`,
			wantTier:   common.TierNormalized,
			wantOffset: strings.Index(doc, "are "),
		},
		{
			name:       "paraphrase close enough",
			quote:      "The threshold is 500,000",
			wantTier:   common.TierFuzzy,
			wantOffset: strings.Index(doc, "The threshold"),
		},
		{
			name:     "unrelated statement",
			quote:    "Employees may book business class on long flights",
			wantTier: common.TierUnverified,
		},
		{
			name:     "short mismatch is never fuzzy",
			quote:    "threshold $750,000",
			wantTier: common.TierUnverified,
		},
		{
			name:     "empty quote",
			quote:    "  ",
			wantTier: common.TierUnverified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.verify(common.SourceAnchor{Text: tt.quote, SectionID: "s4"}, span)
			if got.Tier != tt.wantTier {
				t.Fatalf("verify(%q).Tier = %s, want %s (similarity %.3f)", tt.quote, got.Tier, tt.wantTier, got.Similarity)
			}
			if tt.wantTier == common.TierUnverified {
				if got.CharOffset != nil {
					t.Errorf("verify(%q).CharOffset = %d, want nil", tt.quote, *got.CharOffset)
				}
				return
			}
			if got.CharOffset == nil {
				t.Fatalf("verify(%q).CharOffset = nil, want %d", tt.quote, tt.wantOffset)
			}
			if *got.CharOffset != tt.wantOffset {
				t.Errorf("verify(%q).CharOffset = %d, want %d", tt.quote, *got.CharOffset, tt.wantOffset)
			}
			if got.Tier == common.TierFuzzy && got.Similarity < defaultFuzzyThreshold {
				t.Errorf("verify(%q).Similarity = %.3f, want >= %.2f", tt.quote, got.Similarity, defaultFuzzyThreshold)
			}
		})
	}
}

func TestVerifyThresholdDecidesFuzzy(t *testing.T) {
	doc := "The threshold is $500,000 for all purchases."
	span := common.DocumentSection{CharStart: 0, CharEnd: len(doc)}
	quote := common.SourceAnchor{Text: "The threshold is 500,000"}

	if got := newVerifier(doc, 0.85).verify(quote, span); got.Tier != common.TierFuzzy {
		t.Errorf("threshold 0.85: Tier = %s, want fuzzy", got.Tier)
	}
	if got := newVerifier(doc, 0.99).verify(quote, span); got.Tier != common.TierUnverified {
		t.Errorf("threshold 0.99: Tier = %s, want unverified", got.Tier)
	}
}

func TestVerifyPrefersSectionSpan(t *testing.T) {
	doc := "Approval by the CFO.\n\nApproval by the CFO.\n"
	second := strings.LastIndex(doc, "Approval")
	span := common.DocumentSection{CharStart: second, CharEnd: len(doc)}

	got := newVerifier(doc, defaultFuzzyThreshold).verify(common.SourceAnchor{Text: "Approval by the CFO."}, span)
	if got.CharOffset == nil || *got.CharOffset != second {
		t.Errorf("verify() offset = %v, want %d", got.CharOffset, second)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"abcd", "abcd", 1},
		{"abcd", "wxyz", 0},
		{"", "", 1},
		{"ab", "abcd", 2 * 2.0 / 6},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); got != tt.want {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
