//go:build !portaudio

package audio

import (
	"fmt"
	"log/slog"

	"github.com/harunnryd/aide/pkg/errorsx"
)

// newPortAudioSource returns an error when built without the portaudio tag.
func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, errorsx.Wrap(fmt.Errorf("audio: microphone capture requires building with -tags portaudio"), errorsx.ReasonAudioSource)
}
