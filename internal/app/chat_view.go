package app

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"docchat/internal/backend"
	"docchat/internal/model"
	"docchat/internal/session"
	"docchat/internal/stream"
)

type QueryBackend interface {
	Query(ctx context.Context, token string, in backend.QueryRequest) (io.ReadCloser, error)
	Generate(ctx context.Context, token string, in backend.GenerateRequest) (model.GeneratedContent, error)
}

// Recorder receives each finished exchange (the user message and the
// assistant answer).
type Recorder interface {
	Record(ctx context.Context, target model.Target, messages ...model.ChatMessage) error
}

// ChatSnapshot is a consistent copy of the view state. Partial is only
// non-empty while Streaming is true.
type ChatSnapshot struct {
	Messages  []model.ChatMessage    `json:"messages"`
	Partial   string                 `json:"partial,omitempty"`
	Streaming bool                   `json:"streaming"`
	Mode      model.IntelligenceMode `json:"mode"`
	Error     string                 `json:"error,omitempty"`
	Redirect  Redirect               `json:"redirect,omitempty"`
}

type ChatViewConfig struct {
	Backend   QueryBackend
	Tokens    session.TokenSource
	Target    model.Target
	Mode      model.IntelligenceMode
	Grounding model.GroundingMode
	History   []model.ChatMessage
	Listener  func(ChatSnapshot)
	Recorder  Recorder
	Metrics   stream.Metrics
	Logger    logrus.FieldLogger
}

// ChatView owns one conversation's message list for as long as its host
// view is mounted.
type ChatView struct {
	backend   QueryBackend
	tokens    session.TokenSource
	target    model.Target
	grounding model.GroundingMode
	listener  func(ChatSnapshot)
	recorder  Recorder
	assembler *stream.Assembler
	log       logrus.FieldLogger

	notifyMu sync.Mutex

	mu           sync.Mutex
	messages     []model.ChatMessage
	partial      string
	streaming    bool
	mode         model.IntelligenceMode
	errText      string
	redirect     Redirect
	closed       bool
	epoch        uint64
	cancelStream context.CancelFunc
}

func NewChatView(cfg ChatViewConfig) (*ChatView, error) {
	if !cfg.Target.Valid() {
		return nil, ErrInvalidTarget
	}
	mode := cfg.Mode
	if mode == "" {
		mode = model.DefaultMode
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ChatView{
		backend:   cfg.Backend,
		tokens:    cfg.Tokens,
		target:    cfg.Target,
		grounding: cfg.Grounding,
		listener:  cfg.Listener,
		recorder:  cfg.Recorder,
		assembler: stream.NewAssembler(cfg.Metrics),
		log:       log,
		messages:  append([]model.ChatMessage(nil), cfg.History...),
		mode:      mode,
	}, nil
}

func (v *ChatView) Target() model.Target {
	return v.target
}

func (v *ChatView) Snapshot() ChatSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *ChatView) snapshotLocked() ChatSnapshot {
	return ChatSnapshot{
		Messages:  append([]model.ChatMessage(nil), v.messages...),
		Partial:   v.partial,
		Streaming: v.streaming,
		Mode:      v.mode,
		Error:     v.errText,
		Redirect:  v.redirect,
	}
}

func (v *ChatView) Mode() model.IntelligenceMode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

func (v *ChatView) SetMode(mode model.IntelligenceMode) {
	if mode == "" {
		mode = model.DefaultMode
	}
	v.update(0, false, func() {
		v.mode = mode
	})
}

// Submit sends query and blocks until the answer is finished, the stream
// fails, or ctx is cancelled. Only one query may stream at a time.
func (v *ChatView) Submit(ctx context.Context, query string) (model.ChatMessage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return model.ChatMessage{}, ErrEmptyQuery
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return model.ChatMessage{}, ErrViewClosed
	}
	if v.streaming {
		v.mu.Unlock()
		return model.ChatMessage{}, ErrQueryInFlight
	}
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	userMsg := model.NewUserMessage(query)
	v.messages = append(v.messages, userMsg)
	v.streaming = true
	v.partial = ""
	v.errText = ""
	v.redirect = RedirectNone
	v.cancelStream = cancel
	epoch := v.epoch
	mode := v.mode
	v.mu.Unlock()
	v.notify()

	token, err := v.tokens.Token(streamCtx)
	if err != nil {
		return model.ChatMessage{}, v.fail(epoch, err)
	}

	body, err := v.backend.Query(streamCtx, token, backend.QueryRequest{
		Target:           v.target,
		UserQuery:        query,
		IntelligenceMode: mode,
		GroundingMode:    v.grounding,
	})
	if err != nil {
		return model.ChatMessage{}, v.fail(epoch, err)
	}
	defer body.Close()

	var (
		final     model.ChatMessage
		delivered bool
		streamErr error
	)
	v.assembler.Run(streamCtx, body, stream.ObserverFuncs{
		Partial: func(text string) {
			v.update(epoch, true, func() {
				v.partial = text
			})
		},
		Final: func(msg model.ChatMessage) {
			delivered = v.update(epoch, true, func() {
				v.messages = append(v.messages, msg)
				v.partial = ""
				v.streaming = false
				v.cancelStream = nil
			})
			if delivered {
				final = msg
			}
		},
		Error: func(err error) {
			streamErr = err
		},
	})
	if streamErr != nil {
		return model.ChatMessage{}, v.fail(epoch, streamErr)
	}
	if !delivered {
		// the view was reset or closed between the end of the stream and the
		// final message
		return model.ChatMessage{}, v.droppedErr()
	}

	if v.recorder != nil {
		if err := v.recorder.Record(ctx, v.target, userMsg, final); err != nil {
			v.log.WithError(err).WithField("conversation", v.target.Key()).Warn("record transcript failed")
		}
	}
	return final, nil
}

// Generate produces a study artifact for the view's target.
func (v *ChatView) Generate(ctx context.Context, output model.OutputType) (model.GeneratedContent, error) {
	if !output.Valid() {
		return model.GeneratedContent{}, ErrInvalidOutput
	}
	v.mu.Lock()
	closed := v.closed
	epoch := v.epoch
	v.mu.Unlock()
	if closed {
		return model.GeneratedContent{}, ErrViewClosed
	}

	token, err := v.tokens.Token(ctx)
	if err != nil {
		v.surface(epoch, err, true)
		return model.GeneratedContent{}, err
	}
	out, err := v.backend.Generate(ctx, token, backend.GenerateRequest{
		Target:     v.target,
		OutputType: output,
	})
	if err != nil {
		v.surface(epoch, err, true)
		return model.GeneratedContent{}, err
	}
	return out, nil
}

// Reset clears the message list and abandons any streaming answer.
func (v *ChatView) Reset() {
	v.mu.Lock()
	if v.cancelStream != nil {
		v.cancelStream()
		v.cancelStream = nil
	}
	v.epoch++
	v.messages = nil
	v.partial = ""
	v.streaming = false
	v.errText = ""
	v.redirect = RedirectNone
	v.mu.Unlock()
	v.notify()
}

// Close tears the view down. An open stream is cancelled and any callback
// that arrives afterwards is ignored.
func (v *ChatView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	v.epoch++
	if v.cancelStream != nil {
		v.cancelStream()
		v.cancelStream = nil
	}
}

func (v *ChatView) fail(epoch uint64, err error) error {
	v.surface(epoch, err, false)
	return err
}

// surface applies the error policy: redirects suppress inline text, a locked
// feature drops back to the default mode, and any partial answer is
// discarded.
func (v *ChatView) surface(epoch uint64, err error, generating bool) {
	out := classify(err)
	if out.silent {
		v.log.WithError(err).Debug("chat request cancelled")
	} else if out.redirect == RedirectNone {
		v.log.WithError(err).WithField("conversation", v.target.Key()).Warn("chat request failed")
	}
	if out.resetMode && generating {
		// generation has no mode to reset; send the user to the upgrade flow
		out = outcome{redirect: RedirectUpgrade}
	}

	v.update(epoch, true, func() {
		if !generating {
			v.partial = ""
			v.streaming = false
			v.cancelStream = nil
		}
		if out.silent {
			return
		}
		v.redirect = out.redirect
		v.errText = out.message
		if out.resetMode {
			v.mode = model.DefaultMode
		}
	})
}

// update mutates state under the lock and notifies the listener. When
// checkEpoch is set the change is dropped if the view was reset or closed
// after the operation began. It reports whether fn was applied.
func (v *ChatView) update(epoch uint64, checkEpoch bool, fn func()) bool {
	v.mu.Lock()
	if v.closed || (checkEpoch && epoch != v.epoch) {
		v.mu.Unlock()
		return false
	}
	fn()
	v.mu.Unlock()
	v.notify()
	return true
}

func (v *ChatView) droppedErr() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrViewClosed
	}
	return context.Canceled
}

func (v *ChatView) notify() {
	if v.listener == nil {
		return
	}
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()
	v.listener(v.Snapshot())
}
