package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/keepsake/internal/apperr"
)

// maxMalformedInRow aborts a stream that produces nothing but undecodable fragments.
const maxMalformedInRow = 8

// Collect drains a streamed completion into one string. Malformed fragments are
// logged and skipped; any other error ends the stream.
func Collect(ctx context.Context, s Streamer, req GenerateRequest, log *zap.Logger) (string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	stream, err := s.StreamGenerate(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var (
		sb        strings.Builder
		malformed int
	)
	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			if apperr.IsKind(err, apperr.KindMalformedPayload) {
				malformed++
				log.Warn("skipping malformed stream fragment", zap.Int("in_row", malformed), zap.Error(err))
				if malformed >= maxMalformedInRow {
					return sb.String(), err
				}
				continue
			}
			return sb.String(), err
		}
		malformed = 0
		sb.WriteString(frag)
	}
}

// pipeStream adapts callback-driven SDK streams to Stream.
type pipeStream struct {
	ch     chan string
	err    error
	cancel context.CancelFunc
}

func newPipeStream(ctx context.Context, run func(ctx context.Context, emit func(string) bool) error) *pipeStream {
	ctx, cancel := context.WithCancel(ctx)
	p := &pipeStream{ch: make(chan string, 16), cancel: cancel}
	go func() {
		defer close(p.ch)
		p.err = run(ctx, func(frag string) bool {
			select {
			case p.ch <- frag:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return p
}

func (p *pipeStream) Recv() (string, error) {
	frag, ok := <-p.ch
	if ok {
		return frag, nil
	}
	if p.err != nil {
		return "", p.err
	}
	return "", io.EOF
}

func (p *pipeStream) Close() error {
	p.cancel()
	return nil
}
