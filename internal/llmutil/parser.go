// internal/llmutil/parser.go
package llmutil

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// MaxListItems caps the number of items ExtractList returns.
const MaxListItems = 10

var (
	// \x60 is a backtick; raw strings cannot contain one.

	// codeBlockRegex extracts content wrapped in markdown, with or without a language tag.
	codeBlockRegex = regexp.MustCompile("(?s)^\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60$")

	// listItemRegex matches a bullet or numbered list marker at the start of a trimmed line.
	listItemRegex = regexp.MustCompile(`^(?:[-*•]\s+|\d+\.\s+)`)

	// sectionPatterns caches the compiled header patterns per section name.
	sectionPatterns sync.Map // map[string][3]*regexp.Regexp
)

// StripFence removes a markdown code fence that wraps the whole response.
func StripFence(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if matches := codeBlockRegex.FindStringSubmatch(content); len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}
	return content
}

func patternsFor(name string) ([3]*regexp.Regexp, error) {
	if cached, ok := sectionPatterns.Load(name); ok {
		return cached.([3]*regexp.Regexp), nil
	}
	quoted := regexp.QuoteMeta(name)
	sources := [3]string{
		// NAME: body, up to a blank line or the next NAME: header.
		`(?is)` + quoted + `:\s*(.*?)(?:\n\n|\n[A-Z_]+:|$)`,
		// **NAME** body, colon optional.
		`(?is)\*\*` + quoted + `\*\*:?\s*(.*?)(?:\n\n|\n\*\*|$)`,
		// ## NAME body.
		`(?is)## ` + quoted + `\s*(.*?)(?:\n\n|\n##|$)`,
	}
	var p [3]*regexp.Regexp
	for i, src := range sources {
		re, err := regexp.Compile(src)
		if err != nil {
			return p, err
		}
		p[i] = re
	}
	sectionPatterns.Store(name, p)
	return p, nil
}

// ExtractSection returns the body of the named section, trying the plain
// "NAME:" header, then "**NAME**", then "## NAME". The first non-empty
// capture wins. It returns "" when no style yields text.
func ExtractSection(text, name string) string {
	if text == "" || strings.TrimSpace(name) == "" || !utf8.ValidString(name) {
		return ""
	}
	patterns, err := patternsFor(name)
	if err != nil {
		return ""
	}
	text = StripFence(text)
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		if body := strings.TrimSpace(m[1]); body != "" {
			return body
		}
	}
	return ""
}

// ExtractList returns the bullet or numbered items of the named section with
// their markers removed. Lines without a marker are ignored and at most
// MaxListItems items are returned.
func ExtractList(text, name string) []string {
	section := ExtractSection(text, name)
	if section == "" {
		return nil
	}
	var items []string
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		loc := listItemRegex.FindStringIndex(line)
		if loc == nil {
			continue
		}
		item := strings.TrimSpace(line[loc[1]:])
		if item == "" {
			continue
		}
		items = append(items, item)
		if len(items) == MaxListItems {
			break
		}
	}
	return items
}

// Truncate shortens s to at most maxRunes runes for logging.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "..."
}
