package dialogue

import (
	"strings"
)

// backgroundKeywords mark lines that describe sounds rather than speech.
var backgroundKeywords = []string{
	"pause", "typing", "keyboard", "phone ringing", "background",
	"sound of", "noise", "ambient", "beeping", "clicking",
	"rustling", "footsteps", "door", "muffled", "distant",
}

// Spoken reports whether line is dialogue to be spoken. Lines holding a
// parenthesised span are stage directions. Lines naming a background
// sound are descriptions unless they carry a quote character.
func Spoken(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	lower := strings.ToLower(line)
	if strings.Contains(lower, "(") && strings.Contains(lower, ")") {
		return false
	}
	if strings.ContainsAny(lower, `"'`) {
		return true
	}
	for _, kw := range backgroundKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	return true
}

// Filter keeps the lines that are Spoken.
func Filter(lines []string) []string {
	var out []string
	for _, l := range lines {
		if Spoken(l) {
			out = append(out, l)
		}
	}
	return out
}

// Parse splits a model response into lines, strips list markers and
// drops everything that is not Spoken.
func Parse(content string) []string {
	var lines []string
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "-*•"))
		lines = append(lines, line)
	}
	return Filter(lines)
}
