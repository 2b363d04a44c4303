package audio

import (
	"math"
	"sync"
	"time"
)

// Mixer sums active voices into mono 16-bit frames. It is driven by a
// device loop calling Render and is safe for concurrent Play/Stop.
type Mixer struct {
	sampleRate float64

	mu     sync.Mutex
	voices []*mixVoice
	pos    int64 // samples rendered so far
	closed bool
}

// NewMixer returns a mixer producing frames at sampleRate.
func NewMixer(sampleRate float64) *Mixer {
	return &Mixer{sampleRate: sampleRate}
}

type mixVoice struct {
	m     *Mixer
	start int64

	tone  *Tone
	phase float64

	pcm     []int16
	step    float64
	cursor  float64
	pcmGain float64

	done chan struct{}
	once sync.Once
}

func (v *mixVoice) Stop() {
	v.m.remove(v)
	v.finish()
}

func (v *mixVoice) Done() <-chan struct{} { return v.done }

func (v *mixVoice) finish() { v.once.Do(func() { close(v.done) }) }

// Play schedules a tone. A closed mixer returns a finished voice.
func (m *Mixer) Play(t Tone) Voice {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return doneVoice{}
	}
	v := &mixVoice{
		m:     m,
		start: m.pos + m.samples(t.Delay),
		tone:  &t,
		done:  make(chan struct{}),
	}
	m.voices = append(m.voices, v)
	return v
}

// Stream schedules a PCM buffer, resampled from sampleRate to the mixer rate.
func (m *Mixer) Stream(samples []int16, sampleRate float64, gain float64) Voice {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return doneVoice{}
	}
	v := &mixVoice{
		m:       m,
		start:   m.pos,
		pcm:     samples,
		step:    sampleRate / m.sampleRate,
		pcmGain: gain,
		done:    make(chan struct{}),
	}
	if len(samples) == 0 || sampleRate <= 0 {
		v.finish()
		return v
	}
	m.voices = append(m.voices, v)
	return v
}

// Close finishes every voice and makes later Play and Stream calls return
// finished voices. The device loop calls it when it stops rendering.
func (m *Mixer) Close() {
	m.mu.Lock()
	voices := m.voices
	m.voices = nil
	m.closed = true
	m.mu.Unlock()

	for _, v := range voices {
		v.finish()
	}
}

// Active returns the number of voices still playing or scheduled.
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Render fills buf with the next len(buf) samples.
func (m *Mixer) Render(buf []int16) {
	m.mu.Lock()
	var finished []*mixVoice
	for i := range buf {
		pos := m.pos + int64(i)
		var sum float64
		for _, v := range m.voices {
			sum += v.next(pos, m.sampleRate)
		}
		buf[i] = toInt16(sum)
	}
	m.pos += int64(len(buf))

	live := m.voices[:0]
	for _, v := range m.voices {
		if v.ended(m.pos, m.sampleRate) {
			finished = append(finished, v)
			continue
		}
		live = append(live, v)
	}
	for i := len(live); i < len(m.voices); i++ {
		m.voices[i] = nil
	}
	m.voices = live
	m.mu.Unlock()

	for _, v := range finished {
		v.finish()
	}
}

func (v *mixVoice) next(pos int64, rate float64) float64 {
	if pos < v.start {
		return 0
	}
	if v.pcm != nil {
		i := int(v.cursor)
		if i >= len(v.pcm) {
			return 0
		}
		v.cursor += v.step
		return float64(v.pcm[i]) / 32768 * v.pcmGain
	}
	elapsed := time.Duration(float64(pos-v.start) / rate * float64(time.Second))
	gain := v.tone.GainAt(elapsed)
	if gain == 0 && !v.tone.Sustained() {
		return 0
	}
	s := v.tone.Waveform.sample(v.phase) * gain
	v.phase += v.tone.FrequencyAt(elapsed) / rate
	v.phase -= math.Floor(v.phase)
	return s
}

func (v *mixVoice) ended(pos int64, rate float64) bool {
	if v.pcm != nil {
		return int(v.cursor) >= len(v.pcm)
	}
	if v.tone.Sustained() {
		return false
	}
	return pos >= v.start+int64(v.tone.Duration.Seconds()*rate)
}

func (m *Mixer) remove(v *mixVoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.voices {
		if x == v {
			m.voices = append(m.voices[:i], m.voices[i+1:]...)
			return
		}
	}
}

func (m *Mixer) samples(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d.Seconds() * m.sampleRate)
}

func toInt16(x float64) int16 {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return int16(x * 32767)
}
