package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"

	"docchat/internal/model"
)

type recorder struct {
	mu       sync.Mutex
	partials []string
	final    *model.ChatMessage
	err      error
	calls    int
}

func (r *recorder) OnPartial(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partials = append(r.partials, text)
}

func (r *recorder) OnFinal(msg model.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.final = &msg
	r.calls++
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.calls++
}

type countingMetrics struct {
	frames, malformed int
	outcomes          []string
}

func (m *countingMetrics) FrameReceived()                 { m.frames++ }
func (m *countingMetrics) FrameMalformed()                { m.malformed++ }
func (m *countingMetrics) StreamCompleted(outcome string) { m.outcomes = append(m.outcomes, outcome) }

// splitReader returns the payload in fixed-size pieces, one per Read.
type splitReader struct {
	data []byte
	size int
}

func (s *splitReader) Read(p []byte) (int, error) {
	if len(s.data) == 0 {
		return 0, io.EOF
	}
	n := s.size
	if n > len(s.data) {
		n = len(s.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, s.data[:n])
	s.data = s.data[n:]
	return n, nil
}

func run(t *testing.T, r io.Reader) (*recorder, *countingMetrics) {
	t.Helper()
	rec := &recorder{}
	m := &countingMetrics{}
	NewAssembler(m).Run(context.Background(), r, rec)
	require.Equal(t, 1, rec.calls, "exactly one terminal callback")
	return rec, m
}

const threeChunks = "data: {\"chunk\":\"Hel\"}\n" +
	"data: {\"chunk\":\"lo, \"}\n" +
	"data: {\"chunk\":\"wörld ✓\"}\n" +
	"data: {\"done\":true}\n"

func TestConcatenationIndependentOfTransportSplits(t *testing.T) {
	for _, size := range []int{1, 2, 3, 5, 7, 16, 64, len(threeChunks)} {
		rec, _ := run(t, &splitReader{data: []byte(threeChunks), size: size})
		require.NoError(t, rec.err, "size=%d", size)
		require.NotNil(t, rec.final)
		require.Equal(t, "Hello, wörld ✓", rec.final.Content, "size=%d", size)
		require.Equal(t, []string{"Hel", "Hello, ", "Hello, wörld ✓"}, rec.partials, "size=%d", size)
	}
}

func TestOneByteReads(t *testing.T) {
	rec, _ := run(t, iotest.OneByteReader(strings.NewReader(threeChunks)))
	require.Equal(t, "Hello, wörld ✓", rec.final.Content)
}

func TestMalformedFrameIsSkipped(t *testing.T) {
	body := "data: {\"chunk\":\"a\"}\n" +
		"data: {\"chunk\":\"BROKEN\n" +
		"data: {\"chunk\":\"b\"}\n"
	rec, m := run(t, strings.NewReader(body))
	require.Equal(t, "ab", rec.final.Content)
	require.NotContains(t, rec.final.Content, "BROKEN")
	require.Equal(t, 3, m.frames)
	require.Equal(t, 1, m.malformed)
	require.Equal(t, []string{"completed"}, m.outcomes)
}

func TestNonDataLinesIgnored(t *testing.T) {
	body := ": keep-alive\n\nevent: message\ndata:{\"chunk\":\"no-space\"}\ndata: {\"chunk\":\"x\"}\r\n"
	rec, m := run(t, strings.NewReader(body))
	require.Equal(t, "x", rec.final.Content)
	require.Equal(t, 1, m.frames)
}

func TestNoTerminalFrameUsesDefaults(t *testing.T) {
	rec, _ := run(t, strings.NewReader("data: {\"chunk\":\"only text\"}\n"))
	require.NotNil(t, rec.final)
	require.Equal(t, "only text", rec.final.Content)
	require.Equal(t, model.ConfidenceMedium, rec.final.Confidence)
	require.Empty(t, rec.final.Sources)
	require.NotNil(t, rec.final.Sources)
	require.Empty(t, rec.final.GroundingWarning)
	require.Equal(t, model.RoleAssistant, rec.final.Role)
}

func TestTerminalFrameMetadata(t *testing.T) {
	body := "data: {\"chunk\":\"answer\"}\n" +
		"data: {\"done\":true,\"confidence\":\"low\",\"source_chunks\":[{\"chunk_id\":\"a\",\"text\":\"x\",\"similarity\":0.42}]}\n"
	rec, _ := run(t, strings.NewReader(body))
	require.Equal(t, model.ConfidenceLow, rec.final.Confidence)
	require.Len(t, rec.final.Sources, 1)
	require.Equal(t, 0.42, rec.final.Sources[0].Similarity)
	require.Equal(t, "a", rec.final.Sources[0].ChunkID)
	require.Nil(t, rec.final.Sources[0].Page)
}

func TestTerminalFrameWarningAndPage(t *testing.T) {
	body := "data: {\"done\":true,\"grounding_warning\":\"weak support\",\"source_chunks\":[{\"chunk_id\":\"c\",\"text\":\"t\",\"similarity\":0.9,\"page_number\":4,\"document_id\":\"d1\"}]}"
	rec, _ := run(t, strings.NewReader(body))
	require.Equal(t, "", rec.final.Content)
	require.Equal(t, "weak support", rec.final.GroundingWarning)
	require.Equal(t, model.ConfidenceMedium, rec.final.Confidence)
	require.NotNil(t, rec.final.Sources[0].Page)
	require.Equal(t, 4, *rec.final.Sources[0].Page)
	require.Equal(t, "d1", rec.final.Sources[0].DocumentID)
}

func TestLaterTerminalFieldsOverwriteOnlyWhenPresent(t *testing.T) {
	body := "data: {\"done\":true,\"confidence\":\"high\",\"grounding_warning\":\"w\"}\n" +
		"data: {\"done\":true,\"source_chunks\":[]}\n"
	rec, _ := run(t, strings.NewReader(body))
	require.Equal(t, model.ConfidenceHigh, rec.final.Confidence)
	require.Equal(t, "w", rec.final.GroundingWarning)
	require.Empty(t, rec.final.Sources)
}

func TestConfidenceIsNormalized(t *testing.T) {
	body := "data: {\"done\":true,\"confidence\":\"HIGH\"}\n" +
		"data: {\"done\":true,\"confidence\":\"bogus\"}\n"
	rec, _ := run(t, strings.NewReader(body))
	require.Equal(t, model.ConfidenceHigh, rec.final.Confidence)

	rec, _ = run(t, strings.NewReader("data: {\"done\":true,\"confidence\":\"certain\"}\n"))
	require.Equal(t, model.ConfidenceMedium, rec.final.Confidence)
}

func TestReadErrorDiscardsPartial(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("data: {\"chunk\":\"half\"}\n"), iotest.ErrReader(boom))
	rec, m := run(t, r)
	require.Nil(t, rec.final)
	require.ErrorIs(t, rec.err, ErrStreamInterrupted)
	require.Contains(t, rec.err.Error(), "connection reset")
	require.Equal(t, []string{"half"}, rec.partials)
	require.Equal(t, []string{"interrupted"}, m.outcomes)
}

func TestCancelClosesBlockedBody(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	done := make(chan struct{})
	go func() {
		NewAssembler(nil).Run(ctx, pr, rec)
		close(done)
	}()

	_, err := pw.Write([]byte("data: {\"chunk\":\"partial\"}\n"))
	require.NoError(t, err)
	cancel()
	<-done

	require.Nil(t, rec.final)
	require.ErrorIs(t, rec.err, context.Canceled)
}
