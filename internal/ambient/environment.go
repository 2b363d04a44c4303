// Package ambient generates procedural background soundscapes for a call.
package ambient

import (
	"fmt"
	"strings"
	"time"

	"github.com/keshucs12345/callsim/internal/audio"
	"github.com/keshucs12345/callsim/internal/persona"
)

// Environment names a background soundscape.
type Environment string

const (
	Office     Environment = "office"
	Home       Environment = "home"
	Street     Environment = "street"
	Restaurant Environment = "restaurant"
	Car        Environment = "car"
	Hospital   Environment = "hospital"
	None       Environment = "none"
)

// Environments lists every known environment.
var Environments = []Environment{Office, Home, Street, Restaurant, Car, Hospital, None}

// ParseEnvironment parses an environment name, ignoring case.
func ParseEnvironment(s string) (Environment, error) {
	e := Environment(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Environments {
		if e == known {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown environment %q", s)
}

// Profile selects an environment and its master volume in [0, 1].
type Profile struct {
	Environment Environment `json:"environment"`
	Volume      float64     `json:"volume"`
}

// ProfileFor returns the ambience that matches a caller persona.
func ProfileFor(p persona.Persona) Profile {
	switch p {
	case persona.Mum:
		return Profile{Environment: Home, Volume: 0.3}
	case persona.Boss:
		return Profile{Environment: Office, Volume: 0.4}
	case persona.Friend:
		return Profile{Environment: Street, Volume: 0.5}
	}
	return Profile{Environment: None, Volume: 0}
}

// Rand is the randomness an Engine draws on. *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
}

func between(r Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

type drone struct {
	waveform audio.Waveform
	minFreq  float64
	maxFreq  float64
	gain     float64
}

func (d drone) tone(r Rand) audio.Tone {
	freq := d.minFreq
	if d.maxFreq > d.minFreq {
		freq = between(r, d.minFreq, d.maxFreq)
	}
	return audio.Tone{Waveform: d.waveform, Frequency: freq, Gain: d.gain}
}

// event is a randomized sound checked every interval and played with the
// given probability.
type event struct {
	name        string
	interval    time.Duration
	probability float64
	sounds      func(r Rand) []audio.Tone
}

type soundscape struct {
	mix    float64
	drones []drone
	events []event
}

var soundscapes = map[Environment]soundscape{
	Office: {
		mix: 0.4,
		drones: []drone{
			{waveform: audio.Sawtooth, minFreq: 120, maxFreq: 120, gain: 0.3},
			{waveform: audio.Triangle, minFreq: 200, maxFreq: 300, gain: 0.1},
		},
		events: []event{
			{name: "phone_ring", interval: 8 * time.Second, probability: 0.1, sounds: officePhone},
			{name: "typing", interval: 3 * time.Second, probability: 0.4, sounds: typing},
		},
	},
	Home: {
		mix: 0.3,
		drones: []drone{
			{waveform: audio.Triangle, minFreq: 180, maxFreq: 220, gain: 0.4},
		},
		events: []event{
			{name: "kitchen", interval: 6 * time.Second, probability: 0.2, sounds: kitchen},
			{name: "creak", interval: 12 * time.Second, probability: 0.1, sounds: creak},
		},
	},
	Street: {
		mix: 0.4,
		drones: []drone{
			{waveform: audio.Sawtooth, minFreq: 80, maxFreq: 120, gain: 1},
		},
	},
	Restaurant: {
		mix: 0.5,
		drones: []drone{
			{waveform: audio.Triangle, minFreq: 200, maxFreq: 500, gain: 0.3},
		},
		events: []event{
			{name: "dish_clink", interval: 3 * time.Second, probability: 0.2, sounds: restaurantClink},
		},
	},
	Car: {
		mix: 0.4,
		drones: []drone{
			{waveform: audio.Sawtooth, minFreq: 120, maxFreq: 150, gain: 0.6},
		},
	},
	Hospital: {
		mix: 0.3,
		events: []event{
			{name: "monitor_beep", interval: 4 * time.Second, probability: 0.4, sounds: monitorBeep},
		},
	},
}

func burst(w audio.Waveform, freq, gain float64, d time.Duration) audio.Tone {
	return audio.Tone{Waveform: w, Frequency: freq, Gain: gain, Duration: d, Decay: true}
}

func officePhone(Rand) []audio.Tone {
	t := burst(audio.Sine, 800, 0.2, 1500*time.Millisecond)
	t.SweepTo = 640
	return []audio.Tone{t}
}

// typing is a 1 to 3 second burst of key clicks 80 to 120ms apart.
func typing(r Rand) []audio.Tone {
	length := time.Duration(between(r, 1, 3) * float64(time.Second))
	var clicks []audio.Tone
	for at := time.Duration(0); at < length; {
		t := burst(audio.Square, between(r, 1200, 2000), 0.3*between(r, 0.5, 1), 50*time.Millisecond)
		t.Delay = at
		clicks = append(clicks, t)
		at += time.Duration(between(r, 80, 120) * float64(time.Millisecond))
	}
	return clicks
}

func kitchen(r Rand) []audio.Tone {
	if r.Float64() < 0.5 {
		return []audio.Tone{burst(audio.Sine, between(r, 1500, 2500), 0.4, 300*time.Millisecond)}
	}
	return []audio.Tone{burst(audio.Sawtooth, between(r, 400, 600), 0.4*0.6, 2*time.Second)}
}

func creak(r Rand) []audio.Tone {
	return []audio.Tone{burst(audio.Sawtooth, between(r, 80, 120), 0.3, 800*time.Millisecond)}
}

func restaurantClink(r Rand) []audio.Tone {
	return []audio.Tone{burst(audio.Sine, between(r, 1200, 2000), 0.3, 200*time.Millisecond)}
}

func monitorBeep(Rand) []audio.Tone {
	return []audio.Tone{burst(audio.Sine, 800, 0.2, 300*time.Millisecond)}
}
