package delivery

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Fillers is the fixed filler vocabulary removed from transcripts.
var Fillers = []string{"uhm", "uh", "uhh", "uhhh", "umm", "um", "umh", "erm", "ah", "ahh", "er", "hmm"}

// periodThreshold is the length a cleaned transcript must exceed to get a terminal period.
const periodThreshold = 20

var (
	fillerPattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(Fillers, "|") + `)\b`)
	wordPattern   = regexp.MustCompile(`\w+`)
)

// Cleanup normalizes a raw transcript. It is deterministic and idempotent.
func Cleanup(text string) string {
	processed := strings.TrimSpace(text)
	if processed == "" {
		return ""
	}

	processed = fillerPattern.ReplaceAllString(processed, "")
	processed = collapseRepeatedWords(processed)
	processed = strings.Join(strings.Fields(processed), " ")
	if processed == "" {
		return ""
	}

	first, size := utf8.DecodeRuneInString(processed)
	processed = string(unicode.ToUpper(first)) + processed[size:]

	if utf8.RuneCountInString(processed) > periodThreshold && !strings.ContainsAny(processed[len(processed)-1:], ".!?") {
		processed += "."
	}
	return processed
}

// collapseRepeatedWords keeps the first of a run of identical words (case-insensitive)
// separated only by whitespace.
func collapseRepeatedWords(text string) string {
	matches := wordPattern.FindAllStringIndex(text, -1)
	if len(matches) < 2 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	prev := matches[0]
	for _, m := range matches[1:] {
		gap := text[prev[1]:m[0]]
		if gap != "" && strings.TrimSpace(gap) == "" && strings.EqualFold(text[prev[0]:prev[1]], text[m[0]:m[1]]) {
			b.WriteString(text[cursor:prev[1]])
			cursor = m[1]
		}
		prev = m
	}
	b.WriteString(text[cursor:])
	return b.String()
}
