package ai

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
	"github.com/pkoukk/tiktoken-go"
)

func stripDuplicateLeadingBrace(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		rest := strings.TrimSpace(s[1:])
		if strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}

// GenerateSchema creates a JSON Schema from the given Go type for use with
// structured output.
func GenerateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	v := reflect.New(t).Interface()
	return reflector.Reflect(v)
}

// UnmarshalFlexible attempts to unmarshal JSON into the target with multiple fallback strategies.
// It first tries standard JSON unmarshaling, then handles double-encoded JSON strings,
// and finally attempts to repair malformed JSON before parsing.
//
// Example:
//
//	var result MyStruct
//	UnmarshalFlexible(`{"name": "test"}`, &result)           // standard JSON
//	UnmarshalFlexible(`"{\"name\": \"test\"}"`, &result)     // double-encoded
//	UnmarshalFlexible(`{name: "test"}`, &result)             // malformed (repaired)
func UnmarshalFlexible(input string, out any) error {
	input = strings.TrimSpace(input)

	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var asString string
	if err := json.Unmarshal([]byte(input), &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if err := json.Unmarshal([]byte(asString), out); err == nil {
			return nil
		}
		input = asString
	}

	input = stripDuplicateLeadingBrace(input)
	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("json repair failed: %w (input: %s)", err, input)
	}

	if err := json.Unmarshal([]byte(repaired), out); err == nil {
		return nil
	}

	return fmt.Errorf(
		"unmarshal failed after repair: input=%s repaired=%s",
		input, repaired,
	)
}

var (
	reAnalysisBlock = regexp.MustCompile(`(?s)<(extraction_analysis|analysis|thinking)>.*?</(extraction_analysis|analysis|thinking)>`)
	reFencedBlock   = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n(.*?)```")
)

// ExtractJSONPayload pulls the structured payload out of a free text reply.
// Reasoning blocks and markdown fences are removed, then the outermost JSON
// object or array, whichever opens first, is returned.
func ExtractJSONPayload(raw string) string {
	cleaned := reAnalysisBlock.ReplaceAllString(raw, "")
	if m := reFencedBlock.FindStringSubmatch(cleaned); m != nil {
		cleaned = m[1]
	}
	cleaned = strings.TrimSpace(cleaned)

	start := strings.IndexAny(cleaned, "{[")
	if start < 0 {
		return cleaned
	}
	closer := "}"
	if cleaned[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(cleaned, closer)
	if end > start {
		return cleaned[start : end+1]
	}
	// truncated output, leave the rest to jsonrepair
	return cleaned[start:]
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// EstimateTokens counts o200k tokens of text. When the encoding cannot be
// loaded it falls back to four bytes per token.
func EstimateTokens(text string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("o200k_base")
		if err == nil {
			enc = e
		}
	})
	if enc == nil {
		return len(text)/4 + 1
	}
	return len(enc.Encode(text, nil, nil))
}
