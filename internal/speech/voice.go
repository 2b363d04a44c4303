// Package speech speaks dialogue lines in order with persona-tuned voices.
package speech

import (
	"strings"

	"github.com/keshucs12345/callsim/internal/persona"
)

// Voice is a voice offered by a synthesizer.
type Voice struct {
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Gender  string `json:"gender,omitempty"`
	Default bool   `json:"default,omitempty"`
}

// Profile tunes speech for a persona. Pitch and Rate are multipliers on the
// synthesizer's natural voice. Preferences are tried in order: a preference
// matches a voice whose name contains it, whose gender equals it, or, for
// "default", the synthesizer's default voice.
type Profile struct {
	Pitch       float64
	Rate        float64
	Preferences []string
}

var profiles = map[persona.Persona]Profile{
	persona.Mum: {
		Pitch:       1.15,
		Rate:        0.7,
		Preferences: []string{"Karen", "Susan", "Victoria", "Samantha", "nova", "hera", "female"},
	},
	persona.Boss: {
		Pitch:       0.85,
		Rate:        0.8,
		Preferences: []string{"Daniel", "Alex", "David", "onyx", "orion", "male"},
	},
	persona.Friend: {
		Pitch:       1.05,
		Rate:        0.85,
		Preferences: []string{"Zoe", "Tessa", "Allison", "alloy", "luna", "female"},
	},
	persona.Custom: {
		Pitch:       1.0,
		Rate:        0.8,
		Preferences: []string{"Samantha", "Alex", "shimmer", "asteria", "default"},
	},
}

// ProfileFor returns the voice profile of p. Unknown personas get the custom
// profile.
func ProfileFor(p persona.Persona) Profile {
	if vp, ok := profiles[p]; ok {
		return vp
	}
	return profiles[persona.Custom]
}

// SelectVoice picks a voice by preference, then by language prefix, then
// the first voice available. It reports false only when voices is empty.
func SelectVoice(voices []Voice, preferences []string, lang string) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}
	for _, pref := range preferences {
		for _, v := range voices {
			if matches(v, pref) {
				return v, true
			}
		}
	}
	if lang != "" {
		lang = strings.ToLower(lang)
		for _, v := range voices {
			if strings.HasPrefix(strings.ToLower(v.Lang), lang) {
				return v, true
			}
		}
	}
	return voices[0], true
}

func matches(v Voice, pref string) bool {
	pref = strings.ToLower(pref)
	if pref == "default" {
		return v.Default
	}
	if strings.Contains(strings.ToLower(v.Name), pref) {
		return true
	}
	return v.Gender != "" && strings.EqualFold(v.Gender, pref)
}
