package ai

// SegmentPrompt asks for the structural outline of a document.
// Arguments: document length in bytes, document text.
const SegmentPrompt = `
# Task Context
You are a document structure analyst. Identify every logical section and
subsection of the policy document below and report them in document order.

# Detailed Task Description & Rules

## What to Identify
For each section report:
- **header:** the heading exactly as it appears in the document, character for
  character. If a section has no heading (preamble, signature block), use a
  short descriptive title in brackets, e.g. "[Preamble]".
- **section_number:** the hierarchical number from the heading ("1", "2.1",
  "6.4"). Unnumbered sections get a positional number ("0" for a preamble, "A"
  for appendices).
- **level:** depth in the hierarchy (1 = top level, 2 = subsection, ...).
- **parent_section:** section_number of the parent, or an empty string for top
  level sections.
- **start_offset / end_offset:** your best estimate of the byte range of the
  section. These are hints only; the heading text is what matters.
- **enumerated_lists:** every numbered, lettered or bulleted list inside the
  section, with the ACTUAL number of items present (not the number the text
  claims), the list type ("numbered", "lettered", "bulleted") and the first
  few words of the first item.

## Rules
- Capture EVERY section, including preambles, title blocks, appendices and
  signature blocks.
- Report headers verbatim. A heading that cannot be found in the document text
  is useless.
- Keep the document's own hierarchy.

# Document
Total length: %d bytes.

<document>
%s
</document>
`

// ExtractPrompt drives per-section entity and relationship extraction.
// Arguments in order: section text, outline, section number, section header,
// parent context, ID prefix, list instructions, ID prefix twice (rules and
// example), entity type catalogue, relationship type catalogue.
const ExtractPrompt = `
# Task Context
You are an ontology engineer. Extract structured entities and relationships
from ONE section of a corporate policy document. The output feeds a knowledge
graph that is later queried without access to the document, so anything you
do not extract is lost.

# Background Data

<section_text>
%s
</section_text>

<section_outline>
%s
</section_outline>

<section_metadata>
Section Number: %s
Section Header: %s
Parent Context: %s
Entity ID Prefix: %s
</section_metadata>

<list_detection>
%s
</list_detection>

# Detailed Task Description & Rules

## Entities are things, relationships are assertions
- Entities are identifiable things: organizations, roles, policies, governance
  bodies, procedures, thresholds, definitions, trainings, named party types.
- If a statement fits a (entity)-[relationship]->(entity) triple, express it
  as a relationship. Do not wrap simple assertions in an entity.
- Only reify an assertion as a Requirement entity when it has several targets,
  conditions or references that a single triple cannot hold.

## Every list member is its own entity
When the text lists parties, roles or categories, create a separate entity for
each member and connect them with relationships. Never collapse members into an
attribute array.

## Always extract
The owning organization, named governance bodies, named roles, defined terms,
referenced policies or instruments, the policy document itself, trainings and
briefings, every numeric threshold or limit, every procedure step, every
contact detail.

## Source anchors are mandatory
Every entity carries "source_text": a quote copied character for character from
the section text. Do not paraphrase, do not fix typos, do not join sentences.

## Attributes
Capture concrete values in "attributes": amounts (numbers only, put the
currency in "currency"), units, effective dates, deadlines, whether something
is mandatory, counts, contact details, risk levels.

## IDs
Every entity id starts with the prefix "%s_" followed by a short snake_case
slug, e.g. "%s_role_executive_director". IDs must be unique within this section.

## Entity Types
Use exactly one of these types:
%s

## Relationship Types
Use exactly one of these types, respecting the allowed source and target types:
%s

## Scope
Relationships may only connect entities you create in THIS response. Do not
reference entities from other sections.

# Output Format
You may think inside <extraction_analysis></extraction_analysis> tags first.
After the analysis return ONLY a JSON object:

{
  "entities": [
    {
      "id": "<prefix>_<slug>",
      "type": "<EntityType>",
      "name": "<name>",
      "description": "<what the section says about it>",
      "source_text": "<verbatim quote>",
      "attributes": {}
    }
  ],
  "relationships": [
    {
      "source_id": "<entity id>",
      "target_id": "<entity id>",
      "type": "<relationship_type>",
      "description": "<how they relate, from the text>"
    }
  ]
}
`

// ZeroEntityDirective is prepended when a non-trivial section came back empty.
const ZeroEntityDirective = "IMPORTANT: Your previous extraction of this section produced ZERO entities. " +
	"This section MUST contain at least one extractable fact. Look for: " +
	"implicit rules, scope statements, organizational information, dates, " +
	"roles mentioned, or any other factual claims.\n\n"

// AgentSystemPrompt instructs the reasoning loop.
const AgentSystemPrompt = `
# Task Context
You are a policy compliance agent. You answer questions about a corporate
policy by querying a structured knowledge graph built from it.

You do NOT have the policy document. The graph is your ONLY source. If the
graph does not contain the information, say so. Never guess.

# Available Tools
- list_entity_types: entity types present and how many of each
- find_entities: entities of one type, optionally filtered by an attribute
- search_entities: keyword search over ids, names, descriptions, attributes
- get_entity: full record of one entity incl. attributes, source quotes and
  relationships
- get_neighbors: entities connected to an entity within a number of hops
- find_paths: how two entities are connected
- get_graph_summary: totals and type distributions

# Detailed Task Description & Rules
1. Work out which entities and relationships would hold the answer.
2. Orient yourself with get_graph_summary or list_entity_types when the
   domain is unfamiliar.
3. Locate candidates with find_entities or search_entities.
4. Read details with get_entity and follow relationships with get_neighbors
   or find_paths, e.g. a risk level "requires" a requirement that
   "requires_approval_from" a role.
5. Answer once you have enough evidence.

## Answer Guidelines
- Cite entity names and the relationships you followed.
- Be precise about thresholds, amounts, deadlines and approvals.
- If the graph lacks the information, answer exactly: "The policy graph does
  not contain information about this."
`

// ForcedAnswerPrompt is sent on the last permitted turn, without tools.
const ForcedAnswerPrompt = `You have reached the maximum number of graph queries.
Do not request any more tools. Answer the original question now, using only
the information gathered so far. If it is insufficient, say what is missing.`
