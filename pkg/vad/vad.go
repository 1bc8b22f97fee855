// Package vad segments a stream of PCM16 frames into utterances using an RMS
// energy gate with a silence hangover.
package vad

import (
	"time"

	"github.com/harunnryd/aide/pkg/audio"
	"github.com/harunnryd/aide/pkg/frames"
	"github.com/harunnryd/aide/pkg/utterance"
)

// Event is what a frame did to the segmenter.
type Event int

const (
	EventNone Event = iota
	EventSpeechStart
	EventSpeechEnd
	// EventDiscarded ends a segment too short to transcribe.
	EventDiscarded
)

func (e Event) String() string {
	switch e {
	case EventSpeechStart:
		return "speech_start"
	case EventSpeechEnd:
		return "speech_end"
	case EventDiscarded:
		return "discarded"
	default:
		return "none"
	}
}

// Config tunes the gate. Zero fields take the DefaultConfig value.
type Config struct {
	Threshold    float64       `mapstructure:"threshold"`
	Hangover     time.Duration `mapstructure:"hangover"`
	MinUtterance time.Duration `mapstructure:"min_utterance"`
	MaxUtterance time.Duration `mapstructure:"max_utterance"`
	MinBytes     int           `mapstructure:"min_bytes"`
}

// DefaultConfig suits a laptop microphone at 16 kHz.
func DefaultConfig() Config {
	return Config{
		Threshold:    0.02,
		Hangover:     450 * time.Millisecond,
		MinUtterance: 350 * time.Millisecond,
		MaxUtterance: 15 * time.Second,
		MinBytes:     1600,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.Hangover <= 0 {
		c.Hangover = d.Hangover
	}
	if c.MinUtterance <= 0 {
		c.MinUtterance = d.MinUtterance
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = d.MaxUtterance
	}
	if c.MinBytes <= 0 {
		c.MinBytes = d.MinBytes
	}
	return c
}

// Detector is driven by a single goroutine. Time comes from frame timestamps,
// so replaying the same frames always yields the same segmentation.
//
// MinUtterance is measured on the voiced span, from the first loud frame to
// the end of the last one. The hangover tail does not count towards it, but
// it is kept in the emitted audio, so Duration() of an utterance is the
// voiced span plus roughly the hangover.
type Detector struct {
	cfg Config

	inSpeech     bool
	speechStart  time.Time
	lastVoice    time.Time
	lastVoiceEnd time.Time
	sampleRate   int
	buf          []byte
	lastLevel    float64
}

// New returns an idle detector.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

func (d *Detector) Config() Config { return d.cfg }

// InSpeech reports whether an utterance is being accumulated.
func (d *Detector) InSpeech() bool { return d.inSpeech }

// Level is the RMS of the most recent frame.
func (d *Detector) Level() float64 { return d.lastLevel }

// ProcessFrame classifies one frame. A non-nil utterance is returned only with
// EventSpeechEnd.
func (d *Detector) ProcessFrame(f frames.AudioFrame) (*utterance.Utterance, Event) {
	payload := f.RawPayload()
	now := f.Time()
	level := audio.RMS(payload)
	d.lastLevel = level
	loud := level >= d.cfg.Threshold

	if !d.inSpeech {
		if !loud {
			return nil, EventNone
		}
		d.inSpeech = true
		d.speechStart = now
		d.lastVoice = now
		d.lastVoiceEnd = now.Add(f.Duration())
		d.sampleRate = f.Rate()
		d.buf = append(d.buf[:0], payload...)
		return nil, EventSpeechStart
	}

	d.buf = append(d.buf, payload...)
	if loud {
		d.lastVoice = now
		d.lastVoiceEnd = now.Add(f.Duration())
	}

	speechDur := now.Sub(d.speechStart)
	silence := now.Sub(d.lastVoice)
	if speechDur > d.cfg.MaxUtterance || silence > d.cfg.Hangover {
		return d.finish()
	}
	return nil, EventNone
}

// Flush finalises an utterance in progress, for example when capture stops.
func (d *Detector) Flush() (*utterance.Utterance, Event) {
	if !d.inSpeech {
		return nil, EventNone
	}
	return d.finish()
}

// Reset drops any partial utterance.
func (d *Detector) Reset() {
	d.inSpeech = false
	d.buf = d.buf[:0]
}

func (d *Detector) finish() (*utterance.Utterance, Event) {
	d.inSpeech = false
	voiced := d.lastVoiceEnd.Sub(d.speechStart)
	if voiced < d.cfg.MinUtterance || len(d.buf) < d.cfg.MinBytes {
		d.buf = d.buf[:0]
		return nil, EventDiscarded
	}
	pcm := make([]byte, len(d.buf))
	copy(pcm, d.buf)
	d.buf = d.buf[:0]
	rate := d.sampleRate
	if rate <= 0 {
		rate = 16000
	}
	dur := time.Duration(len(pcm)/2) * time.Second / time.Duration(rate)
	u := utterance.New(pcm, rate, d.speechStart, dur)
	return &u, EventSpeechEnd
}
