package audio

// SampleRate is the device rate for all rendered audio.
const SampleRate = 16000

// Voice is a sound that is playing or scheduled to play.
type Voice interface {
	// Stop silences the voice immediately. Stopping a finished voice is a no-op.
	Stop()
	// Done is closed once the voice has finished or been stopped.
	Done() <-chan struct{}
}

// Output accepts tones and PCM buffers for playback.
type Output interface {
	Play(t Tone) Voice
	// Stream plays mono 16-bit PCM recorded at sampleRate, scaled by gain.
	Stream(samples []int16, sampleRate float64, gain float64) Voice
}

// Discard is an Output with no device behind it. Every voice is finished
// as soon as it is created.
var Discard Output = discard{}

type discard struct{}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type doneVoice struct{}

func (doneVoice) Stop() {}
func (doneVoice) Done() <-chan struct{} { return closedCh }

func (discard) Play(Tone) Voice { return doneVoice{} }
func (discard) Stream([]int16, float64, float64) Voice { return doneVoice{} }

// Finished reports whether v has finished without blocking.
func Finished(v Voice) bool {
	select {
	case <-v.Done():
		return true
	default:
		return false
	}
}
