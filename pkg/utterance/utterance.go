// Package utterance holds finished speech segments and the FIFO that carries
// them from the capture goroutine to the transcription worker.
package utterance

import (
	"time"

	"github.com/google/uuid"
)

// Utterance is one contiguous span of captured speech. It is never modified
// after the detector hands it over.
type Utterance struct {
	id         string
	pcm        []byte
	sampleRate int
	start      time.Time
	duration   time.Duration
}

// New takes ownership of pcm.
func New(pcm []byte, sampleRate int, start time.Time, duration time.Duration) Utterance {
	return Utterance{
		id:         uuid.NewString(),
		pcm:        pcm,
		sampleRate: sampleRate,
		start:      start,
		duration:   duration,
	}
}

func (u Utterance) ID() string              { return u.id }
func (u Utterance) SampleRate() int         { return u.sampleRate }
func (u Utterance) Start() time.Time        { return u.start }
func (u Utterance) Duration() time.Duration { return u.duration }
func (u Utterance) Size() int               { return len(u.pcm) }

// PCM returns a copy of the mono PCM16 little-endian samples.
func (u Utterance) PCM() []byte { return append([]byte(nil), u.pcm...) }
