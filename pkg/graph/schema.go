package graph

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

// EntityTypeDef describes one accepted entity type.
type EntityTypeDef struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Attributes  []string `yaml:"attributes,omitempty"`
}

// RelationshipTypeDef describes one accepted relationship type. Empty Sources
// or Targets accept any entity type.
type RelationshipTypeDef struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Sources     []string `yaml:"sources,omitempty"`
	Targets     []string `yaml:"targets,omitempty"`
}

// Vocabulary is the closed set of entity and relationship types used by
// extraction and checked by the merger.
type Vocabulary struct {
	EntityTypes       []EntityTypeDef       `yaml:"entity_types"`
	RelationshipTypes []RelationshipTypeDef `yaml:"relationship_types"`

	entities      map[string]string
	relationships map[string]int
}

// DefaultVocabulary returns the embedded policy vocabulary.
func DefaultVocabulary() *Vocabulary {
	v, err := ParseVocabulary(defaultVocabulary)
	if err != nil {
		panic(fmt.Sprintf("embedded vocabulary: %v", err))
	}
	return v
}

// LoadVocabulary reads a vocabulary from a YAML file.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	return ParseVocabulary(data)
}

func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary: %w", err)
	}
	if len(v.EntityTypes) == 0 {
		return nil, fmt.Errorf("vocabulary has no entity types")
	}

	v.entities = make(map[string]string, len(v.EntityTypes))
	for _, et := range v.EntityTypes {
		key := strings.ToLower(strings.TrimSpace(et.Name))
		if key == "" {
			return nil, fmt.Errorf("vocabulary entity type without name")
		}
		if _, dup := v.entities[key]; dup {
			return nil, fmt.Errorf("duplicate entity type %q", et.Name)
		}
		v.entities[key] = et.Name
	}
	v.relationships = make(map[string]int, len(v.RelationshipTypes))
	for i, rt := range v.RelationshipTypes {
		v.relationships[strings.ToLower(strings.TrimSpace(rt.Name))] = i
	}
	return &v, nil
}

// CanonicalEntityType matches t case-insensitively and returns the declared
// spelling.
func (v *Vocabulary) CanonicalEntityType(t string) (string, bool) {
	name, ok := v.entities[strings.ToLower(strings.TrimSpace(t))]
	return name, ok
}

func (v *Vocabulary) RelationshipType(t string) (RelationshipTypeDef, bool) {
	i, ok := v.relationships[strings.ToLower(strings.TrimSpace(t))]
	if !ok {
		return RelationshipTypeDef{}, false
	}
	return v.RelationshipTypes[i], true
}

// CheckRelationship reports why a relationship of type rel between entities
// of srcType and tgtType does not fit the vocabulary. An empty string means
// it fits.
func (v *Vocabulary) CheckRelationship(rel, srcType, tgtType string) string {
	def, ok := v.RelationshipType(rel)
	if !ok {
		return fmt.Sprintf("unknown relationship type %q", rel)
	}
	if len(def.Sources) > 0 && !slices.Contains(def.Sources, srcType) {
		return fmt.Sprintf("%s cannot start at %s", def.Name, srcType)
	}
	if len(def.Targets) > 0 && !slices.Contains(def.Targets, tgtType) {
		return fmt.Sprintf("%s cannot end at %s", def.Name, tgtType)
	}
	return ""
}

// EntityTypesPrompt renders the entity types as a markdown list.
func (v *Vocabulary) EntityTypesPrompt() string {
	var sb strings.Builder
	for _, et := range v.EntityTypes {
		fmt.Fprintf(&sb, "- **%s**: %s", et.Name, et.Description)
		if len(et.Attributes) > 0 {
			fmt.Fprintf(&sb, " Typical attributes: %s.", strings.Join(et.Attributes, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// RelationshipTypesPrompt renders the relationship types with their allowed
// endpoint types.
func (v *Vocabulary) RelationshipTypesPrompt() string {
	var sb strings.Builder
	for _, rt := range v.RelationshipTypes {
		fmt.Fprintf(&sb, "- **%s**: %s", rt.Name, rt.Description)
		if len(rt.Sources) > 0 || len(rt.Targets) > 0 {
			fmt.Fprintf(&sb, " (%s -> %s)", typesOrAny(rt.Sources), typesOrAny(rt.Targets))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func typesOrAny(types []string) string {
	if len(types) == 0 {
		return "any"
	}
	return strings.Join(types, "|")
}
