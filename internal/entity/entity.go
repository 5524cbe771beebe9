// Package entity is a pattern-driven recognizer over chunk text and its
// extracted artifacts that emits a typed vocabulary:
// FILE/FUNCTION/BUG/FEATURE/TOOL/ERROR/DECISION.
package entity

import (
	"path/filepath"
	"regexp"
	"strings"

	"memoryweave/internal/artifact"
)

// Type is the entity category.
type Type string

const (
	TypeFile     Type = "FILE"
	TypeFunction Type = "FUNCTION"
	TypeBug      Type = "BUG"
	TypeFeature  Type = "FEATURE"
	TypeTool     Type = "TOOL"
	TypeError    Type = "ERROR"
	TypeDecision Type = "DECISION"
	TypeOther    Type = "OTHER"
)

// Entity is a typed, canonicalized mention extracted from a memory.
// (type, canonical_form) is its uniqueness key.
type Entity struct {
	Type          Type
	SurfaceForm   string
	CanonicalForm string
}

// Key returns the (type, canonical_form) uniqueness key.
func (e Entity) Key() string { return string(e.Type) + "\x00" + e.CanonicalForm }

var (
	funcDeclRe = regexp.MustCompile(`\b(?:func|def|function)\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

	decisionMarkerRe = regexp.MustCompile(`(?i)\b(decided to|chose|will use|going with)\b[^.?!]*`)
	learningMarkerRe = regexp.MustCompile(`(?i)\b(learned|discovered|turns out|realized)\b[^.?!]*`)
	bugMarkerRe      = regexp.MustCompile(`(?i)\b(bug|issue|broken|regression)\b[^.?!]*`)
	featureMarkerRe  = regexp.MustCompile(`(?i)\b(add(?:ed|ing)?\s+support for|implement(?:ed|ing)?|new feature)\b[^.?!]*`)

	knownTools = map[string]bool{
		"git": true, "go": true, "npm": true, "yarn": true, "pytest": true,
		"docker": true, "make": true, "cargo": true, "pip": true, "node": true,
		"python": true, "python3": true, "kubectl": true, "terraform": true,
	}
)

// Extract recognizes entities from chunk text and its pre-extracted artifact
// bundle. Pure, never errors — unrecognized text simply yields no entities.
func Extract(text string, bundle artifact.Bundle) []Entity {
	var out []Entity
	seen := make(map[string]bool)

	add := func(e Entity) {
		if e.CanonicalForm == "" {
			return
		}
		k := e.Key()
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, e)
	}

	for _, f := range bundle.Files {
		add(Entity{Type: TypeFile, SurfaceForm: f, CanonicalForm: canonicalFile(f)})
	}

	for _, snip := range bundle.CodeSnippets {
		for _, m := range funcDeclRe.FindAllStringSubmatch(snip.Text, -1) {
			add(Entity{Type: TypeFunction, SurfaceForm: m[1], CanonicalForm: strings.ToLower(m[1])})
		}
	}

	for _, errText := range bundle.Errors {
		first := strings.SplitN(errText, "\n", 2)[0]
		add(Entity{Type: TypeError, SurfaceForm: first, CanonicalForm: canonicalError(first)})
	}

	for _, cmd := range bundle.Commands {
		fields := strings.Fields(cmd)
		if len(fields) == 0 {
			continue
		}
		bin := fields[0]
		if knownTools[bin] {
			add(Entity{Type: TypeTool, SurfaceForm: bin, CanonicalForm: bin})
		}
	}

	for _, m := range decisionMarkerRe.FindAllString(text, -1) {
		add(Entity{Type: TypeDecision, SurfaceForm: m, CanonicalForm: canonicalFreeText(m)})
	}
	for _, m := range bugMarkerRe.FindAllString(text, -1) {
		add(Entity{Type: TypeBug, SurfaceForm: m, CanonicalForm: canonicalFreeText(m)})
	}
	for _, m := range featureMarkerRe.FindAllString(text, -1) {
		add(Entity{Type: TypeFeature, SurfaceForm: m, CanonicalForm: canonicalFreeText(m)})
	}
	_ = learningMarkerRe // consumed by the scorer's own signal detection; kept here for symmetry/reference.

	return out
}

func canonicalFile(path string) string {
	return strings.ToLower(filepath.ToSlash(path))
}

var errorNoiseRe = regexp.MustCompile(`[:\s]*\d+[:\d]*\s*$`)

func canonicalError(line string) string {
	s := strings.ToLower(strings.TrimSpace(line))
	s = errorNoiseRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func canonicalFreeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
