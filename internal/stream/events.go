package stream

import (
	"context"
	"io"

	"docchat/internal/model"
)

// Event is one item of the lazy sequence produced by Events. Exactly one
// field is set.
type Event struct {
	Partial string
	Final   *model.ChatMessage
	Err     error
}

func (e Event) IsTerminal() bool {
	return e.Final != nil || e.Err != nil
}

// Events runs the assembler in a goroutine and delivers its output on a
// channel. The channel is closed after the terminal event. Cancelling ctx
// stops delivery even if nobody is reading.
func (a *Assembler) Events(ctx context.Context, r io.Reader) <-chan Event {
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		a.Run(ctx, r, &chanObserver{ctx: ctx, ch: ch})
	}()
	return ch
}

type chanObserver struct {
	ctx context.Context
	ch  chan<- Event
}

func (o *chanObserver) OnPartial(text string) {
	o.send(Event{Partial: text})
}

func (o *chanObserver) OnFinal(msg model.ChatMessage) {
	o.send(Event{Final: &msg})
}

func (o *chanObserver) OnError(err error) {
	ev := Event{Err: err}
	select {
	case o.ch <- ev:
	case <-o.ctx.Done():
		select {
		case o.ch <- ev:
		default:
		}
	}
}

func (o *chanObserver) send(ev Event) {
	select {
	case o.ch <- ev:
	case <-o.ctx.Done():
	}
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Partial func(text string)
	Final   func(msg model.ChatMessage)
	Error   func(err error)
}

func (f ObserverFuncs) OnPartial(text string) {
	if f.Partial != nil {
		f.Partial(text)
	}
}

func (f ObserverFuncs) OnFinal(msg model.ChatMessage) {
	if f.Final != nil {
		f.Final(msg)
	}
}

func (f ObserverFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}
