// Package align combines transcription segments and diarization segments
// into a single speaker-attributed transcript.
package align

import (
	"fmt"
	"sort"

	mberrors "github.com/meetbrief/meetbrief/pkg/errors"
	"github.com/meetbrief/meetbrief/pkg/meeting"
)

// Merge assigns each transcript segment the label of the speaker segment
// with the greatest overlap duration, ties broken by the earlier speaker
// segment start. Segments no speaker overlaps get the unknown sentinel, so
// a failed or empty diarization never blocks having a transcript.
//
// Adjacent output segments with identical speakers are kept separate to
// preserve the original utterance boundaries for editing.
//
// An empty transcript is an alignment failure: there is nothing to
// attribute and nothing downstream to summarize.
func Merge(transcript []meeting.TranscriptSegment, speakers []meeting.SpeakerSegment) ([]meeting.MergedSegment, error) {
	if len(transcript) == 0 {
		return nil, fmt.Errorf("empty transcript: %w", mberrors.ErrValidation)
	}
	if err := validateTranscript(transcript); err != nil {
		return nil, err
	}
	if err := validateSpeakers(speakers); err != nil {
		return nil, err
	}

	merged := make([]meeting.MergedSegment, 0, len(transcript))
	for _, t := range transcript {
		merged = append(merged, meeting.MergedSegment{
			Speaker: dominantSpeaker(t, speakers),
			Start:   t.Start,
			End:     t.End,
			Text:    t.Text,
		})
	}
	return merged, nil
}

// dominantSpeaker picks the label with the greatest summed overlap against
// the transcript segment. Overlap is accumulated per label because one
// speaker may cover a segment in several diarization spans.
func dominantSpeaker(t meeting.TranscriptSegment, speakers []meeting.SpeakerSegment) string {
	overlap := make(map[string]float64)
	earliest := make(map[string]float64)

	for _, s := range speakers {
		start := maxf(t.Start, s.Start)
		end := minf(t.End, s.End)
		if start >= end {
			continue
		}
		if _, seen := overlap[s.Speaker]; !seen || s.Start < earliest[s.Speaker] {
			earliest[s.Speaker] = s.Start
		}
		overlap[s.Speaker] += end - start
	}

	if len(overlap) == 0 {
		return meeting.SpeakerUnknown
	}

	best := ""
	for speaker, dur := range overlap {
		if best == "" {
			best = speaker
			continue
		}
		switch {
		case dur > overlap[best]:
			best = speaker
		case dur == overlap[best] && earliest[speaker] < earliest[best]:
			// Equal overlap: the earlier-starting speaker segment wins.
			best = speaker
		}
	}
	return best
}

func validateTranscript(segments []meeting.TranscriptSegment) error {
	for i, s := range segments {
		if s.Start < 0 || s.End < 0 {
			return fmt.Errorf("transcript segment %d has negative timestamp: %w", i, mberrors.ErrValidation)
		}
		if s.End < s.Start {
			return fmt.Errorf("transcript segment %d ends before it starts (%.3f < %.3f): %w",
				i, s.End, s.Start, mberrors.ErrValidation)
		}
	}
	return nil
}

func validateSpeakers(segments []meeting.SpeakerSegment) error {
	for i, s := range segments {
		if s.Start < 0 || s.End < 0 {
			return fmt.Errorf("speaker segment %d has negative timestamp: %w", i, mberrors.ErrValidation)
		}
		if s.End < s.Start {
			return fmt.Errorf("speaker segment %d ends before it starts (%.3f < %.3f): %w",
				i, s.End, s.Start, mberrors.ErrValidation)
		}
	}
	return nil
}

// Stats computes per-speaker talk time over a merged transcript, ordered by
// descending duration.
func Stats(merged []meeting.MergedSegment) []meeting.SpeakerStats {
	if len(merged) == 0 {
		return nil
	}

	durations := make(map[string]float64)
	counts := make(map[string]int)
	var total float64
	for _, seg := range merged {
		d := seg.End - seg.Start
		durations[seg.Speaker] += d
		counts[seg.Speaker]++
		total += d
	}

	stats := make([]meeting.SpeakerStats, 0, len(durations))
	for speaker, dur := range durations {
		pct := 0.0
		if total > 0 {
			pct = dur / total * 100
		}
		stats = append(stats, meeting.SpeakerStats{
			Speaker:      speaker,
			Duration:     dur,
			Percentage:   pct,
			SegmentCount: counts[speaker],
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Duration != stats[j].Duration {
			return stats[i].Duration > stats[j].Duration
		}
		return stats[i].Speaker < stats[j].Speaker
	})
	return stats
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
