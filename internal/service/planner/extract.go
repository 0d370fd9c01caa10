package planner

import (
	"encoding/json"
	"regexp"
	"strings"

	"datachat/internal/domain"
)

// The reasoning service promises JSON but delivers prose around it, code
// fences, half-filled templates, or nothing at all. Extraction is a pure
// function so every one of those shapes is testable without HTTP.

var (
	fenceRE = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	// Unresolved template placeholders like {{table}} or <NOME_DA_TABELA>.
	placeholderRE = regexp.MustCompile(`\{\{[^}]*\}\}|<[A-Za-z_][A-Za-z0-9_ ]*>`)
	// Leaked dialogue markers at line starts in prose fallbacks.
	dialogueMarkerRE = regexp.MustCompile(`(?im)^\s*(usuario|usuário|user|assistente|assistant|pergunta|resposta)\s*:\s*`)
)

// ExtractDocument finds the largest syntactically valid JSON object in the
// text that carries an "action" or "type" key and decodes it. Objects with
// unresolved template placeholders are rejected. Returns false when the
// text contains no usable object.
func ExtractDocument(text string) (*domain.PlanDocument, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}
	if m := fenceRE.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	best := ""
	for _, candidate := range balancedObjects(text) {
		if len(candidate) <= len(best) {
			continue
		}
		if placeholderRE.MatchString(candidate) {
			continue
		}
		if !json.Valid([]byte(candidate)) {
			continue
		}
		var keys map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &keys); err != nil {
			continue
		}
		if _, ok := keys["action"]; !ok {
			if _, ok := keys["type"]; !ok {
				continue
			}
		}
		best = candidate
	}
	if best == "" {
		return nil, false
	}

	var doc domain.PlanDocument
	if err := json.Unmarshal([]byte(best), &doc); err != nil {
		return nil, false
	}
	return &doc, true
}

// StripDialogueMarkers cleans prose that leaked conversation scaffolding,
// for use as a chat fallback.
func StripDialogueMarkers(text string) string {
	return strings.TrimSpace(dialogueMarkerRE.ReplaceAllString(text, ""))
}

// balancedObjects returns every brace-balanced substring at any nesting
// depth, respecting JSON string quoting so braces inside values don't
// split objects.
func balancedObjects(text string) []string {
	var out []string
	var starts []int
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if len(starts) > 0 {
				inString = true
			}
		case '{':
			starts = append(starts, i)
		case '}':
			if n := len(starts); n > 0 {
				out = append(out, text[starts[n-1]:i+1])
				starts = starts[:n-1]
			}
		}
	}
	return out
}
