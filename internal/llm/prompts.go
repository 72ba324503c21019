// Package llm talks to chat completion providers for the reasoning pipeline.
// It holds the provider clients, the circuit breaker and rate limiter that
// guard them, the prompt templates, and tolerant decoding of the JSON the
// model sends back.
package llm

import (
	"fmt"
	"strings"
)

// SystemPrompt is the fixed system role sent with every completion.
const SystemPrompt = "You are a professional corporate relationship analyst. " +
	"You are skilled at analysing shareholding structures, control chains and " +
	"relationships between companies, people and institutions."

// Intent query type labels offered to the model.
var intentQueryTypes = []string{"shareholder", "control_chain", "relationship", "entity_info"}

// BuildIntentPrompt asks the model to identify the query type, key entity and
// goal of a natural-language question.
func BuildIntentPrompt(query string) string {
	return fmt.Sprintf(`TASK: Identify the intent of a question about corporate relationships.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks.

QUESTION: %s

Identify:
1. query_type: one of %s
2. entity: the name of the key entity, exactly as written in the question
3. goal: what the question wants to know, in one short sentence

REQUIRED JSON STRUCTURE:
{"query_type": "...", "entity": "...", "goal": "..."}`,
		query, strings.Join(intentQueryTypes, ", "))
}

// AnswerContext is the material the synthesis prompt is built from.
type AnswerContext struct {
	Query     string
	Entity    string
	QueryType string

	// Steps are one-line summaries of the previous reasoning steps.
	Steps []string

	// Paths are reasoning strings of the strongest candidate paths, each
	// paired with its confidence.
	Paths []PathLine
}

// PathLine is one candidate path shown to the model.
type PathLine struct {
	Reasoning  string
	Confidence float64
}

// BuildAnswerPrompt asks the model for a final answer grounded in the
// reasoning steps and candidate paths.
func BuildAnswerPrompt(c AnswerContext) string {
	var b strings.Builder
	for _, step := range c.Steps {
		b.WriteString(step)
		b.WriteByte('\n')
	}
	for i, p := range c.Paths {
		fmt.Fprintf(&b, "  Path %d: %s (confidence: %.2f)\n", i+1, p.Reasoning, p.Confidence)
	}

	return fmt.Sprintf(`TASK: Answer the user's question using ONLY the reasoning below.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks.

QUESTION: %s
ENTITY: %s
QUERY TYPE: %s

REASONING:
%s
Provide:
1. answer: a concise, direct answer, in the language of the question
2. confidence: your confidence in the answer, a number between 0 and 1
3. explanation: a short explanation of how the reasoning supports the answer

If the reasoning contains no relevant path, say so and use a low confidence.

REQUIRED JSON STRUCTURE:
{"answer": "...", "confidence": 0.0, "explanation": "..."}`,
		c.Query, c.Entity, c.QueryType, b.String())
}
