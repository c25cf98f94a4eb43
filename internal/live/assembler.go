package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/ami/domain/entities"
	"github.com/satriahrh/ami/domain/repositories"
	"github.com/satriahrh/ami/internal/audio"
	"github.com/satriahrh/ami/internal/reply"
)

type assemblerState int

const (
	stateAwaitingFrames assemblerState = iota
	stateTurnComplete
)

// Turn is everything the model produced between two turn boundaries
type Turn struct {
	Frames         []repositories.Frame
	Text           string
	Transcript     string
	AudioFragments []repositories.AudioFragment
	// Audio is nil when the turn carried no audio
	Audio *audio.Container
	Reply entities.StructuredReply
	// ParseFallback is set when the reply text was not the expected JSON envelope
	ParseFallback bool
	// Interrupted is set when the model was cut off before completing the turn
	Interrupted bool
}

// HasAudio reports whether an audio container was produced
func (t *Turn) HasAudio() bool {
	return t.Audio != nil
}

// TurnAssembler drains a FrameQueue until the model signals the end of its turn
type TurnAssembler struct {
	queue  *FrameQueue
	alive  func() bool
	logger *zap.Logger

	state      assemblerState
	frames     []repositories.Frame
	text       strings.Builder
	transcript strings.Builder
	fragments  []repositories.AudioFragment
	demux      *audio.Demuxer
}

// NewTurnAssembler creates an assembler reading from queue. alive is consulted
// before every popped frame is acted upon; a nil alive means always alive.
func NewTurnAssembler(queue *FrameQueue, alive func() bool, logger *zap.Logger) *TurnAssembler {
	if alive == nil {
		alive = func() bool { return true }
	}
	return &TurnAssembler{
		queue:  queue,
		alive:  alive,
		logger: logger,
		demux:  audio.NewDemuxer(),
	}
}

// Reset clears all per-turn accumulators
func (a *TurnAssembler) Reset() {
	a.state = stateAwaitingFrames
	a.frames = nil
	a.text.Reset()
	a.transcript.Reset()
	a.fragments = nil
	a.demux.Reset()
}

// Assemble collects one turn. A positive timeout bounds the wait for the
// turn boundary.
func (a *TurnAssembler) Assemble(ctx context.Context, timeout time.Duration) (*Turn, error) {
	a.Reset()

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for a.state == stateAwaitingFrames {
		frame, err := a.queue.Next(waitCtx)
		if err != nil {
			switch {
			case errors.Is(err, ErrQueueClosed):
				return nil, ErrSessionUnavailable
			case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
				return nil, fmt.Errorf("%w after %s (%d frames received)", ErrTurnTimeout, timeout, len(a.frames))
			default:
				return nil, err
			}
		}

		if !a.alive() {
			return nil, ErrSessionUnavailable
		}
		if frame.Err != nil {
			return nil, &TransportError{Op: "receive", Err: frame.Err}
		}

		a.accept(frame)
	}

	return a.finalize(), nil
}

func (a *TurnAssembler) accept(frame repositories.Frame) {
	a.frames = append(a.frames, frame)

	if frame.Text != "" {
		a.text.WriteString(frame.Text)
	}
	if frame.Transcript != "" {
		a.transcript.WriteString(frame.Transcript)
	}
	if frame.Audio != nil {
		if err := a.demux.Add(frame.Audio.Data, frame.Audio.MIMEType); err != nil {
			a.logger.Warn("Dropping audio fragment",
				zap.String("mimeType", frame.Audio.MIMEType),
				zap.Error(err))
		} else {
			a.fragments = append(a.fragments, *frame.Audio)
		}
	}

	if frame.TurnComplete || frame.Interrupted {
		a.state = stateTurnComplete
	}
}

func (a *TurnAssembler) finalize() *Turn {
	turn := &Turn{
		Frames:         a.frames,
		Text:           a.text.String(),
		Transcript:     a.transcript.String(),
		AudioFragments: a.fragments,
		Audio:          a.demux.Encode(),
	}
	for _, frame := range a.frames {
		if frame.Interrupted {
			turn.Interrupted = true
		}
	}

	// Native audio models speak their answer; the words only arrive as
	// output transcription.
	replyText := turn.Text
	if strings.TrimSpace(replyText) == "" {
		replyText = turn.Transcript
	}
	turn.Reply, turn.ParseFallback = reply.ParseWithStatus(replyText)

	a.logger.Debug("Turn assembled",
		zap.Int("frames", len(turn.Frames)),
		zap.Int("textLength", len(turn.Text)),
		zap.Int("audioFragments", len(turn.AudioFragments)),
		zap.Bool("parseFallback", turn.ParseFallback))

	return turn
}
