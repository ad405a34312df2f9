// Package speech adapts a streaming speech recognizer into the single
// (transcript, confidence) pair the interpreter consumes. Recognition
// itself is an external collaborator behind the Recognizer interface.
package speech

import (
	"context"
	"errors"
	"strings"
	"time"

	"aide/internal/logging"
)

// ErrNoSpeech is returned when a capture session ends with no final
// transcript segments.
var ErrNoSpeech = errors.New("speech: no speech recognized")

// Transcript is one incremental recognition result. Interim segments
// (Final=false) are progress updates; only final segments contribute to the
// session result.
type Transcript struct {
	Text       string
	Confidence float64
	Final      bool
}

// Recognizer streams incremental transcripts until the context is cancelled
// or the utterance ends, then closes the channel.
type Recognizer interface {
	Recognize(ctx context.Context) (<-chan Transcript, error)
}

// Result is the aggregated output of one capture session. Confidence is the
// minimum over all final segments, so one garbled stretch taints the whole
// command and the downstream confidence floor catches it.
type Result struct {
	Text       string
	Confidence float64
}

// Session captures one spoken command through a recognizer, bounded by a
// hard duration ceiling.
type Session struct {
	rec         Recognizer
	maxDuration time.Duration
}

// NewSession wraps the recognizer with the given capture ceiling.
func NewSession(rec Recognizer, maxDuration time.Duration) *Session {
	return &Session{rec: rec, maxDuration: maxDuration}
}

// Capture runs one capture session: final segments are concatenated in
// arrival order and the lowest segment confidence becomes the result
// confidence. Hitting the ceiling finalizes whatever has been recognized
// rather than failing.
func (s *Session) Capture(ctx context.Context) (*Result, error) {
	timer := logging.StartTimer(logging.CategorySpeech, "Capture")
	defer timer.Stop()

	ctx, cancel := context.WithTimeout(ctx, s.maxDuration)
	defer cancel()

	stream, err := s.rec.Recognize(ctx)
	if err != nil {
		return nil, err
	}

	var segments []string
	minConf := 1.0

	for {
		select {
		case <-ctx.Done():
			logging.Speech("capture ended by ceiling/cancel with %d segments", len(segments))
			return s.finalize(segments, minConf)
		case t, ok := <-stream:
			if !ok {
				return s.finalize(segments, minConf)
			}
			if !t.Final {
				logging.SpeechDebug("interim: %q", t.Text)
				continue
			}
			text := strings.TrimSpace(t.Text)
			if text == "" {
				continue
			}
			segments = append(segments, text)
			if t.Confidence < minConf {
				minConf = t.Confidence
			}
		}
	}
}

func (s *Session) finalize(segments []string, minConf float64) (*Result, error) {
	if len(segments) == 0 {
		return nil, ErrNoSpeech
	}
	res := &Result{
		Text:       strings.Join(segments, " "),
		Confidence: minConf,
	}
	logging.Speech("captured %q (confidence %.2f)", res.Text, res.Confidence)
	return res, nil
}
