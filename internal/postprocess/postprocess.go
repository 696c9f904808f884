// Package postprocess implements the Content Post-Processor: idempotent
// prefix/suffix stripping, content-type-aware cleanup, adjacent-block
// dedup, and a never-empty-output invariant — generated content is always
// placement-ready once it passes through Clean.
package postprocess

import (
	"regexp"
	"strings"

	"github.com/normanking/aura-orchestrator/internal/types"
)

const maxPasses = 3

var unwantedPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*here(?:'s| is)?\s+(?:the\s+)?code:?\s*\n?`),
	regexp.MustCompile(`(?i)^\s*here(?:'s| is)?\s+(?:your|the)\s+(?:answer|summary|response):?\s*\n?`),
	regexp.MustCompile("^```[a-zA-Z0-9_+-]*\\n?"),
	regexp.MustCompile(`^#{1,6}\s+.*\n`),
}

var unwantedSuffixes = []*regexp.Regexp{
	regexp.MustCompile("\\n?```\\s*$"),
	regexp.MustCompile(`(?i)\n?\s*end of code\.?\s*$`),
	regexp.MustCompile(`(?i)\n?\s*(?:let me know if|feel free to ask|hope this helps)[^\n]*\.?\s*$`),
}

// Clean runs the full pipeline against raw and returns placement-ready
// text. If the pipeline would otherwise return an empty string, Clean
// falls back to the original, whitespace-trimmed input instead.
func Clean(raw string, contentType types.ContentType) string {
	if strings.TrimSpace(raw) == "" {
		return raw
	}

	cleaned := stripAdornmentsUntilStable(raw)

	switch contentType {
	case types.ContentCode:
		cleaned = cleanCode(cleaned)
	case types.ContentText:
		cleaned = cleanText(cleaned)
	}

	cleaned = dedupAdjacentBlocks(cleaned)
	cleaned = finalCleanup(cleaned)

	if strings.TrimSpace(cleaned) == "" {
		return finalCleanup(raw)
	}
	return cleaned
}

// stripAdornmentsUntilStable repeatedly strips unwanted prefixes/suffixes
// until a pass changes nothing, capped at maxPasses to bound nested
// adornments without looping forever on pathological input.
func stripAdornmentsUntilStable(s string) string {
	for i := 0; i < maxPasses; i++ {
		next := stripOnce(s)
		if next == s {
			return s
		}
		s = next
	}
	return s
}

func stripOnce(s string) string {
	for _, re := range unwantedPrefixes {
		s = re.ReplaceAllString(s, "")
	}
	for _, re := range unwantedSuffixes {
		s = re.ReplaceAllString(s, "")
	}
	return s
}

var fencedBlock = regexp.MustCompile("(?m)^```[a-zA-Z0-9_+-]*\\s*$")

// cleanCode removes any remaining fenced code-block markers, expands tabs
// to 4 spaces (the indentation width used throughout the rest of the
// toolchain), and heuristically expands code the model collapsed onto a
// single line.
func cleanCode(s string) string {
	s = fencedBlock.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\t", "    ")
	s = expandCollapsedLine(s)
	return s
}

// collapsedLineThreshold is the minimum length a single logical line must
// reach before expandCollapsedLine bothers rewriting it; short one-liners
// are usually genuine single statements, not a collapsed block.
const collapsedLineThreshold = 40

// topLevelBreak separates two top-level declarations the model ran
// together on one line with a blank line, the way real source files
// space them apart.
var topLevelBreak = regexp.MustCompile(`\s+(def |class |func |function )`)

// clauseKeywordBreak starts a new line before a clause that continues a
// preceding block at the same level (Python's else/elif, or a
// try/except/finally chain).
var clauseKeywordBreak = regexp.MustCompile(`\s+(else|elif|except|finally)\b`)

// semicolonBreak starts a new line after a C-family statement separator.
var semicolonBreak = regexp.MustCompile(`;\s*`)

// colonKeywordBreak starts a new line after a block-opening colon
// (Python-style "if x: return y").
var colonKeywordBreak = regexp.MustCompile(`:\s+(if|elif|else|for|while|try|except|finally|return|def|class)\b`)

// expandCollapsedLine detects a single long logical line that actually
// holds several statements (e.g. "def f(x): if x > 0: return x else:
// return -x") and heuristically breaks it at statement boundaries,
// inserting a blank line between top-level declarations. It does not
// attempt to re-derive indentation — that requires a real parser for the
// target language — so the result still needs a pass through an
// auto-formatter to look idiomatic; it exists to keep collapsed output
// from being unreadable and unplaceable as a single unbroken line.
// Code that already spans multiple lines, or a single line too short to
// plausibly be a collapsed block, is returned unchanged.
func expandCollapsedLine(s string) string {
	trimmed := strings.Trim(s, "\n")
	lines := strings.Split(trimmed, "\n")
	nonBlank := 0
	var longest string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		nonBlank++
		if len(l) > len(longest) {
			longest = l
		}
	}
	if nonBlank != 1 || len(longest) < collapsedLineThreshold {
		return s
	}
	hasSeparator := topLevelBreak.MatchString(longest) ||
		clauseKeywordBreak.MatchString(longest) ||
		semicolonBreak.MatchString(longest) ||
		colonKeywordBreak.MatchString(longest)
	if !hasSeparator {
		return s
	}

	expanded := topLevelBreak.ReplaceAllString(longest, "\n\n$1")
	expanded = clauseKeywordBreak.ReplaceAllString(expanded, "\n$1")
	expanded = semicolonBreak.ReplaceAllString(expanded, ";\n")
	expanded = colonKeywordBreak.ReplaceAllString(expanded, ":\n$1")

	out := make([]string, 0, strings.Count(expanded, "\n")+1)
	for _, stmt := range strings.Split(expanded, "\n") {
		out = append(out, strings.TrimSpace(stmt))
	}
	return runOfBlankLines.ReplaceAllString(strings.Join(out, "\n"), "\n\n")
}

var runOfBlankLines = regexp.MustCompile(`\n{3,}`)

// cleanText collapses runs of 3+ newlines (2+ blank lines) to a single
// paragraph break.
func cleanText(s string) string {
	return runOfBlankLines.ReplaceAllString(s, "\n\n")
}

// dedupAdjacentBlocks collapses a paragraph-or-longer block that the
// model echoed twice in a row, a known repetition failure mode.
func dedupAdjacentBlocks(s string) string {
	blocks := strings.Split(s, "\n\n")
	var out []string
	for i, b := range blocks {
		if i > 0 && strings.TrimSpace(b) != "" && strings.TrimSpace(b) == strings.TrimSpace(blocks[i-1]) {
			continue
		}
		out = append(out, b)
	}
	return strings.Join(out, "\n\n")
}

// finalCleanup trims trailing whitespace from every line and ensures
// exactly one trailing newline.
func finalCleanup(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	s = strings.Join(lines, "\n")
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return s
	}
	return s + "\n"
}
