// Package engines defines the interfaces to the external speech services
// and provides HTTP client implementations for them. The services are
// opaque: the pipeline hands over an audio reference and gets timed
// segments back, it never touches audio bytes itself.
package engines

import (
	"context"
	"time"

	"github.com/meetbrief/meetbrief/pkg/meeting"
)

// TranscribeRequest asks the speech-to-text service for a transcript.
type TranscribeRequest struct {
	// AudioRef is the opaque reference to the stored recording.
	AudioRef string `json:"audio_ref"`

	// Language is an optional hint ("en", "de", ...); empty means
	// auto-detect.
	Language string `json:"language,omitempty"`
}

// TranscribeResult is the timed transcript returned by the service.
type TranscribeResult struct {
	Segments []meeting.TranscriptSegment `json:"segments"`

	// Language is the language the service detected or was told.
	Language string `json:"language,omitempty"`
}

// DiarizeRequest asks the diarization service for speaker turns.
type DiarizeRequest struct {
	AudioRef string `json:"audio_ref"`

	// NumSpeakers is an optional expected-speaker-count hint; zero means
	// let the service decide.
	NumSpeakers int `json:"num_speakers,omitempty"`
}

// DiarizeResult is the set of speaker turns returned by the service.
type DiarizeResult struct {
	Segments []meeting.SpeakerSegment `json:"segments"`
}

// TranscriptionEngine converts a stored recording into timed text.
type TranscriptionEngine interface {
	Transcribe(ctx context.Context, req *TranscribeRequest) (*TranscribeResult, error)
}

// DiarizationEngine detects who spoke when in a stored recording.
type DiarizationEngine interface {
	Diarize(ctx context.Context, req *DiarizeRequest) (*DiarizeResult, error)
}

// Config holds the connection settings for one engine service.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns settings suitable for a local engine service.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 10 * time.Minute,
	}
}
