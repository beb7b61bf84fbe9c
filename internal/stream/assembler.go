// Package stream assembles a streamed chat answer from newline-delimited
// "data: <json>" frames.
//
// Frames:
//
//	data: {"chunk": "partial text"}
//	data: {"done": true, "source_chunks": [...], "confidence": "high", "grounding_warning": "..."}
//
// Chunks are concatenated in arrival order. The terminal frame only sets
// metadata; the finished message is emitted when the body reaches EOF.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"docchat/internal/model"
)

const (
	dataPrefix = "data: "

	initialBufferSize = 64 * 1024
	maxLineSize       = 2 * 1024 * 1024
)

// ErrStreamInterrupted is reported when the body fails before EOF. Any
// partial text is discarded.
var ErrStreamInterrupted = errors.New("answer stream interrupted")

// Observer receives the assembler's output. OnPartial may be called any
// number of times; exactly one of OnFinal or OnError is called last.
type Observer interface {
	OnPartial(text string)
	OnFinal(msg model.ChatMessage)
	OnError(err error)
}

// Metrics counts frames. All methods must be safe to call from the
// assembling goroutine.
type Metrics interface {
	FrameReceived()
	FrameMalformed()
	StreamCompleted(outcome string)
}

type Assembler struct {
	metrics Metrics
}

func NewAssembler(metrics Metrics) *Assembler {
	return &Assembler{metrics: metrics}
}

type frame struct {
	Chunk            *string         `json:"chunk"`
	Done             bool            `json:"done"`
	SourceChunks     *[]model.Source `json:"source_chunks"`
	Confidence       *string         `json:"confidence"`
	GroundingWarning *string         `json:"grounding_warning"`
}

// pending holds terminal metadata until EOF so it is applied in one step.
type pending struct {
	sources    []model.Source
	confidence model.Confidence
	warning    string
}

// Run reads r until EOF, context cancellation, or a read error. If r is an
// io.Closer it is closed when ctx is cancelled so a blocked read returns.
func (a *Assembler) Run(ctx context.Context, r io.Reader, obs Observer) {
	if closer, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() {
			_ = closer.Close()
		})
		defer stop()
	}

	var (
		text strings.Builder
		meta = pending{confidence: model.DefaultConfidence}
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialBufferSize), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			a.complete("canceled")
			obs.OnError(err)
			return
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		a.frameReceived()

		var f frame
		if err := json.Unmarshal([]byte(line[len(dataPrefix):]), &f); err != nil {
			a.frameMalformed()
			continue
		}

		if f.Chunk != nil && *f.Chunk != "" {
			text.WriteString(*f.Chunk)
			obs.OnPartial(text.String())
		}
		if f.Done {
			meta.apply(f)
		}
	}

	if err := ctx.Err(); err != nil {
		a.complete("canceled")
		obs.OnError(err)
		return
	}
	if err := scanner.Err(); err != nil {
		a.complete("interrupted")
		obs.OnError(fmt.Errorf("%w: %v", ErrStreamInterrupted, err))
		return
	}

	a.complete("completed")
	obs.OnFinal(model.NewAssistantMessage(text.String(), meta.sources, meta.confidence, meta.warning))
}

func (p *pending) apply(f frame) {
	if f.SourceChunks != nil {
		p.sources = *f.SourceChunks
	}
	if f.Confidence != nil {
		if c, ok := model.ParseConfidence(*f.Confidence); ok {
			p.confidence = c
		}
	}
	if f.GroundingWarning != nil {
		p.warning = *f.GroundingWarning
	}
}

func (a *Assembler) frameReceived() {
	if a.metrics != nil {
		a.metrics.FrameReceived()
	}
}

func (a *Assembler) frameMalformed() {
	if a.metrics != nil {
		a.metrics.FrameMalformed()
	}
}

func (a *Assembler) complete(outcome string) {
	if a.metrics != nil {
		a.metrics.StreamCompleted(outcome)
	}
}
