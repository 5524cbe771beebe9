// Package artifact runs a pattern-driven scan of chunk text for code blocks,
// file paths, shell commands, errors/tracebacks, and architecture/design
// mentions.
package artifact

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// CodeSnippet is one fenced code block found in the text.
type CodeSnippet struct {
	Language string
	Text     string
}

// Bundle is the structured artifact set attached to a Memory.
type Bundle struct {
	CodeSnippets []CodeSnippet
	Files        []string // normalized, deduplicated, sorted
	Commands     []string
	Errors       []string
	Architecture []string
}

var (
	fencedCodeRe = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)\\n(.*?)```")

	// Common source-file path token: a relative-looking path ending in a known
	// extension. Deliberately conservative to avoid matching prose ("e.g.").
	filePathRe = regexp.MustCompile(`\b[\w./-]+\.(go|py|js|jsx|ts|tsx|java|rb|rs|c|h|cpp|hpp|cs|php|sh|yaml|yml|json|toml|md|sql|proto)\b`)

	shellPromptRe = regexp.MustCompile(`(?m)^\s*[$>]\s+(.+)$`)

	errorLineRe = regexp.MustCompile(`(?m)^(Error:|Traceback|Exception:|panic:|FAIL\b).*$`)
	// Continuation lines following an error/traceback: indented, or a
	// Python-style "  File "..."" frame, or a Go "\tgoroutine"/"at " frame.
	continuationRe = regexp.MustCompile(`^(\s+|\tat\s|at\s|  File ")`)

	architectureKeywordRe = regexp.MustCompile(`(?i)\b(architecture|design pattern|decided|design|strategy)\b`)

	shellLangs = map[string]bool{"bash": true, "sh": true, "shell": true, "zsh": true, "console": true}
)

var languageKeywords = []struct {
	lang     string
	patterns []*regexp.Regexp
}{
	{"go", []*regexp.Regexp{regexp.MustCompile(`\bfunc\s+\w`), regexp.MustCompile(`\bpackage\s+\w`)}},
	{"python", []*regexp.Regexp{regexp.MustCompile(`\bdef\s+\w+\(`), regexp.MustCompile(`\bimport\s+\w`)}},
	{"javascript", []*regexp.Regexp{regexp.MustCompile(`\bconst\s+\w+\s*=`), regexp.MustCompile(`=>`)}},
	{"rust", []*regexp.Regexp{regexp.MustCompile(`\bfn\s+\w+\(`), regexp.MustCompile(`\blet mut\b`)}},
	{"sql", []*regexp.Regexp{regexp.MustCompile(`(?i)\bselect\b.+\bfrom\b`)}},
}

// Extract runs every recognizer over text and returns the combined bundle.
// Pure function, never errors: unparseable input degrades to an empty-field
// bundle, never a failure.
func Extract(text string) Bundle {
	b := Bundle{}

	snippets := fencedCodeRe.FindAllStringSubmatch(text, -1)
	fileSet := make(map[string]struct{})
	for _, m := range snippets {
		lang := strings.ToLower(strings.TrimSpace(m[1]))
		body := m[2]
		if lang == "" {
			lang = detectLanguage(body)
		}
		b.CodeSnippets = append(b.CodeSnippets, CodeSnippet{Language: lang, Text: strings.TrimRight(body, "\n")})

		if shellLangs[lang] {
			for _, line := range strings.Split(body, "\n") {
				line = strings.TrimSpace(line)
				if line != "" && !strings.HasPrefix(line, "#") {
					b.Commands = append(b.Commands, line)
				}
			}
		}
	}

	// File paths: scan the whole text (not just code), normalize + dedup.
	for _, m := range filePathRe.FindAllString(text, -1) {
		norm := filepath.ToSlash(m)
		fileSet[norm] = struct{}{}
	}
	for f := range fileSet {
		b.Files = append(b.Files, f)
	}
	sort.Strings(b.Files)

	// Shell commands outside fences: lines with a shell prompt marker.
	for _, m := range shellPromptRe.FindAllStringSubmatch(text, -1) {
		b.Commands = append(b.Commands, strings.TrimSpace(m[1]))
	}

	b.Errors = extractErrors(text)

	for _, line := range strings.Split(text, ".") {
		if architectureKeywordRe.MatchString(line) {
			b.Architecture = append(b.Architecture, strings.TrimSpace(line))
		}
	}

	return b
}

// extractErrors finds error/traceback headers and greedily consumes the
// indented or continuation lines that follow, joining each occurrence into
// one entry.
func extractErrors(text string) []string {
	lines := strings.Split(text, "\n")
	var errs []string
	i := 0
	for i < len(lines) {
		if errorLineRe.MatchString(lines[i]) {
			var block []string
			block = append(block, strings.TrimSpace(lines[i]))
			j := i + 1
			for j < len(lines) {
				if continuationRe.MatchString(lines[j]) {
					block = append(block, strings.TrimSpace(lines[j]))
					j++
					continue
				}
				if strings.TrimSpace(lines[j]) == "" && j+1 < len(lines) && continuationRe.MatchString(lines[j+1]) {
					j++
					continue
				}
				break
			}
			errs = append(errs, strings.Join(block, "\n"))
			i = j
			continue
		}
		i++
	}
	return errs
}

// detectLanguage heuristically guesses a language when no fence tag is given.
func detectLanguage(body string) string {
	for _, lk := range languageKeywords {
		for _, re := range lk.patterns {
			if re.MatchString(body) {
				return lk.lang
			}
		}
	}
	return ""
}
