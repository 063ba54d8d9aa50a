package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cortexhub/cortexd/internal/llm"
)

// Concept is a key idea extracted from text.
type Concept struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Relationship links two concepts by their IDs.
type Relationship struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// KnowledgeGraph is the structured view of a text's concepts and how they
// relate.
type KnowledgeGraph struct {
	Concepts      []Concept      `json:"concepts"`
	Relationships []Relationship `json:"relationships"`
}

var graphSchema = &llm.Schema{
	Type: "object",
	Properties: map[string]llm.Schema{
		"concepts": {
			Type: "array",
			Items: &llm.Schema{
				Type: "object",
				Properties: map[string]llm.Schema{
					"id":          {Type: "string"},
					"name":        {Type: "string"},
					"description": {Type: "string"},
				},
				Required: []string{"id", "name"},
			},
		},
		"relationships": {
			Type: "array",
			Items: &llm.Schema{
				Type: "object",
				Properties: map[string]llm.Schema{
					"source":      {Type: "string"},
					"target":      {Type: "string"},
					"type":        {Type: "string"},
					"description": {Type: "string"},
				},
				Required: []string{"source", "target", "type"},
			},
		},
	},
	Required: []string{"concepts", "relationships"},
}

const graphPromptTemplate = `You are an expert at extracting and structuring knowledge from text. Analyze the following context and identify key concepts and their relationships.

Rules:
1. Identify 3 to 5 key concepts.
2. Give each concept a unique id, a name, and a short description.
3. Identify relationships between the concepts: source concept id, target concept id, and a relationship type such as "is_a" or "uses".

Context:
%s`

// GenerateGraph asks the LLM for a knowledge graph of the given text.
func (o *Orchestrator) GenerateGraph(ctx context.Context, text string) (KnowledgeGraph, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return KnowledgeGraph{}, fmt.Errorf("empty context text")
	}

	raw, err := o.synth.GenerateJSON(ctx, fmt.Sprintf(graphPromptTemplate, text), graphSchema)
	if err != nil {
		return KnowledgeGraph{}, err
	}

	var graph KnowledgeGraph
	if err := json.Unmarshal([]byte(raw), &graph); err != nil {
		return KnowledgeGraph{}, fmt.Errorf("decoding graph response: %w", err)
	}
	return graph, nil
}
