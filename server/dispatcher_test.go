package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mbocsi/airlink/generator"
	"github.com/mbocsi/airlink/handler"
	"github.com/mbocsi/airlink/proto"
	"github.com/mbocsi/airlink/ur"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockPrompter records every alert raised by a dispatcher.
type MockPrompter struct {
	mu          sync.Mutex
	unknown     []proto.Envelope
	unsupported []proto.Envelope
	scanAgain   []float64
}

func (p *MockPrompter) UnknownMessage(_ context.Context, env proto.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unknown = append(p.unknown, env)
}

func (p *MockPrompter) UnsupportedType(_ context.Context, env proto.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unsupported = append(p.unsupported, env)
}

func (p *MockPrompter) ScanAgain(_ context.Context, progress float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scanAgain = append(p.scanAgain, progress)
}

// MockRelayer records relayed strings or fails with err.
type MockRelayer struct {
	mu      sync.Mutex
	relayed []string
	err     error
}

func (r *MockRelayer) Relay(_ context.Context, raw string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.relayed = append(r.relayed, raw)
	return nil
}

func (r *MockRelayer) Copy(ctx context.Context, raw string) error {
	return r.Relay(ctx, raw)
}

// MockHandler accepts inputs with a prefix and completes immediately.
type MockHandler struct {
	prefix  string
	panics  bool
	batch   proto.Batch
	resets  int
	receive int
}

func (h *MockHandler) Name() string { return "mock" }

func (h *MockHandler) CanHandle(input string) bool {
	if h.panics {
		panic("canHandle exploded")
	}
	return strings.HasPrefix(input, h.prefix)
}

func (h *MockHandler) Receive(string) (proto.Outcome, error) {
	h.receive++
	return proto.Success(), nil
}

func (h *MockHandler) Progress() float64            { return 1 }
func (h *MockHandler) Result() (proto.Batch, error) { return h.batch, nil }
func (h *MockHandler) SingleForm() (string, bool)   { return "", false }
func (h *MockHandler) Reset()                       { h.resets++ }

// urFrames returns the plain fragments of batch; feeding all of them in
// order completes the payload on the last one.
func urFrames(t *testing.T, batch proto.Batch, maxFragment int) []string {
	t.Helper()
	g := generator.NewURGenerator()
	require.NoError(t, g.Create(batch, maxFragment, maxFragment))
	frames := make([]string, g.PartCount())
	for i := range frames {
		frames[i] = g.NextPart()
	}
	return frames
}

func longSignBatch() proto.Batch {
	return proto.Batch{signRequest(7, strings.Repeat("sign me ", 200))}
}

func newTestDispatcher(prompter Prompter, progress *[]float64) (*Dispatcher, *MockKindSink) {
	sink := NewMockKindSink()
	d := NewDispatcher(DispatcherOptions{
		Prompter:  prompter,
		SessionID: "session-test",
		OnProgress: func(p float64) {
			if progress != nil {
				*progress = append(*progress, p)
			}
		},
	})
	d.Router().Register(proto.KindMessageSignRequest, sink.Handler(proto.KindMessageSignRequest))
	return d, sink
}

func TestDispatcher_AnimatedScan(t *testing.T) {
	prompter := &MockPrompter{}
	var progress []float64
	d, sink := newTestDispatcher(prompter, &progress)

	frames := urFrames(t, longSignBatch(), 100)
	require.Greater(t, len(frames), 2)

	ctx := context.Background()
	for i, frame := range frames[:len(frames)-1] {
		outcome := d.Handle(ctx, frame, proto.TransportQRScanner)
		require.Equal(t, proto.StatusPartial, outcome.Status, "frame %d", i)
	}
	outcome := d.Handle(ctx, frames[len(frames)-1], proto.TransportQRScanner)
	require.Equal(t, proto.StatusSuccess, outcome.Status)
	d.Router().Wait()

	got := sink.Received(proto.KindMessageSignRequest)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(7), got[0].ID)
	assert.Equal(t, strings.Repeat("sign me ", 200), got[0].Payload.(proto.MessageSignRequest).Message)

	require.Len(t, progress, len(frames)-1)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
	assert.Empty(t, prompter.scanAgain, "a live scanner needs no prompt")
	assert.Empty(t, prompter.unknown)

	env, ok := d.Last()
	require.True(t, ok)
	assert.Equal(t, "session-test", env.Context.SessionID)
	assert.Equal(t, proto.TransportQRScanner, env.Context.Transport)
}

func TestDispatcher_DeepLinkPartialAsksForMore(t *testing.T) {
	prompter := &MockPrompter{}
	d, _ := newTestDispatcher(prompter, nil)

	frames := urFrames(t, longSignBatch(), 100)
	link := "airgap-wallet://?ur=" + frames[0]
	outcome := d.Handle(context.Background(), link, proto.TransportDeepLink)

	require.Equal(t, proto.StatusPartial, outcome.Status)
	require.Len(t, prompter.scanAgain, 1)
	assert.InDelta(t, outcome.Progress, prompter.scanAgain[0], 1e-9)
}

func TestDispatcher_DuplicateFrameKeepsProgress(t *testing.T) {
	d, _ := newTestDispatcher(&MockPrompter{}, nil)
	frames := urFrames(t, longSignBatch(), 100)

	first := d.Handle(context.Background(), frames[0], proto.TransportQRScanner)
	second := d.Handle(context.Background(), frames[1], proto.TransportQRScanner)
	again := d.Handle(context.Background(), frames[0], proto.TransportQRScanner)

	require.Equal(t, proto.StatusPartial, again.Status)
	assert.Greater(t, second.Progress, first.Progress)
	assert.Equal(t, second.Progress, again.Progress)
}

func TestDispatcher_UnknownInputResetsEverything(t *testing.T) {
	prompter := &MockPrompter{}
	urHandler := handler.NewURHandler()
	mock := &MockHandler{prefix: "custom:"}
	d := NewDispatcher(DispatcherOptions{
		Handlers: []handler.Handler{urHandler},
		Extra:    []handler.Handler{mock},
		Prompter: prompter,
	})

	frames := urFrames(t, longSignBatch(), 100)
	require.Equal(t, proto.StatusPartial, d.Handle(context.Background(), frames[0], proto.TransportQRScanner).Status)
	require.Greater(t, urHandler.Progress(), 0.0)

	outcome := d.Handle(context.Background(), "definitely not a frame", proto.TransportPaste)
	assert.Equal(t, proto.StatusUnsupported, outcome.Status)
	assert.Zero(t, urHandler.Progress(), "partial state is dropped on total failure")
	assert.Equal(t, 1, mock.resets)
	require.Len(t, prompter.unknown, 1)
	assert.Equal(t, "definitely not a frame", prompter.unknown[0].RawSingleForm)
	assert.Equal(t, proto.TransportPaste, prompter.unknown[0].Context.Transport)
}

func TestDispatcher_NewCodeAfterMixedFrame(t *testing.T) {
	prompter := &MockPrompter{}
	d, sink := newTestDispatcher(prompter, nil)
	ctx := context.Background()

	data, err := proto.EncodeBatch(proto.Batch{signRequest(1, strings.Repeat("old ", 200))})
	require.NoError(t, err)
	u, err := ur.New(proto.URType, data)
	require.NoError(t, err)
	old, err := ur.NewEncoder(u, 100, 10)
	require.NoError(t, err)
	for i := 0; i < old.SeqLen()+3; i++ {
		old.NextPart()
	}
	outcome := d.Handle(ctx, strings.ToUpper(old.NextPart()), proto.TransportQRScanner)
	require.Equal(t, proto.StatusPartial, outcome.Status)

	frames := urFrames(t, longSignBatch(), 100)
	for i, frame := range frames[:len(frames)-1] {
		outcome = d.Handle(ctx, frame, proto.TransportQRScanner)
		require.Equal(t, proto.StatusPartial, outcome.Status, "frame %d", i)
	}
	outcome = d.Handle(ctx, frames[len(frames)-1], proto.TransportQRScanner)
	require.Equal(t, proto.StatusSuccess, outcome.Status)
	d.Router().Wait()

	assert.Empty(t, prompter.unknown)
	got := sink.Received(proto.KindMessageSignRequest)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(7), got[0].ID)
}

func TestDispatcher_LastTracksRejectedInput(t *testing.T) {
	d, _ := newTestDispatcher(&MockPrompter{}, nil)
	ctx := context.Background()

	frames := urFrames(t, proto.Batch{signRequest(2, "short")}, 1000)
	require.Len(t, frames, 1)
	require.Equal(t, proto.StatusSuccess, d.Handle(ctx, frames[0], proto.TransportQRScanner).Status)
	d.Router().Wait()

	require.Equal(t, proto.StatusUnsupported, d.Handle(ctx, "not for us", proto.TransportPaste).Status)
	env, ok := d.Last()
	require.True(t, ok)
	assert.Equal(t, "not for us", env.RawSingleForm)
	assert.Empty(t, env.Batch)
	assert.Equal(t, proto.TransportPaste, env.Context.Transport)
}

func TestDispatcher_UnroutableBatchKeepsRawForm(t *testing.T) {
	prompter := &MockPrompter{}
	d, sink := newTestDispatcher(prompter, nil)

	batch := proto.Batch{accountRequest(1)}
	frames := urFrames(t, batch, 1000)
	require.Len(t, frames, 1)

	outcome := d.Handle(context.Background(), frames[0], proto.TransportQRScanner)
	d.Router().Wait()

	assert.Equal(t, proto.StatusUnsupported, outcome.Status)
	assert.Zero(t, sink.Calls())
	require.Len(t, prompter.unsupported, 1)
	assert.True(t, strings.HasPrefix(prompter.unsupported[0].RawSingleForm, "UR:AIRGAP-MESSAGE/"))
	assert.Len(t, prompter.unsupported[0].Batch, 1)
}

func TestDispatcher_UndecodablePayloadSurfacesSingleForm(t *testing.T) {
	prompter := &MockPrompter{}
	d, _ := newTestDispatcher(prompter, nil)

	u, err := ur.New("bytes", []byte{0x43, 0x01, 0x02, 0x03})
	require.NoError(t, err)
	frame := strings.ToUpper(ur.EncodeSingle(u))

	outcome := d.Handle(context.Background(), frame, proto.TransportQRScanner)

	assert.Equal(t, proto.StatusUnsupported, outcome.Status)
	require.Len(t, prompter.unknown, 1)
	assert.Equal(t, frame, prompter.unknown[0].RawSingleForm)
	env, ok := d.Last()
	require.True(t, ok)
	assert.Empty(t, env.Batch)
}

func TestDispatcher_PanickingHandlerIsSkipped(t *testing.T) {
	sink := NewMockKindSink()
	d := NewDispatcher(DispatcherOptions{
		Handlers: []handler.Handler{&MockHandler{panics: true}, handler.NewURHandler()},
	})
	d.Router().Register(proto.KindAccountShareRequest, sink.Handler(proto.KindAccountShareRequest))

	frames := urFrames(t, proto.Batch{accountRequest(3)}, 1000)
	outcome := d.Handle(context.Background(), frames[0], proto.TransportPaste)
	d.Router().Wait()

	assert.Equal(t, proto.StatusSuccess, outcome.Status)
	assert.Len(t, sink.Received(proto.KindAccountShareRequest), 1)
}

func TestDispatcher_ExtraHandler(t *testing.T) {
	mock := &MockHandler{prefix: "custom:", batch: proto.Batch{signRequest(9, "hi")}}
	d := NewDispatcher(DispatcherOptions{Extra: []handler.Handler{mock}})
	sink := NewMockKindSink()
	d.Router().Register(proto.KindMessageSignRequest, sink.Handler(proto.KindMessageSignRequest))

	outcome := d.Handle(context.Background(), "custom:payload", proto.TransportPaste)
	d.Router().Wait()

	assert.Equal(t, proto.StatusSuccess, outcome.Status)
	assert.Equal(t, 1, mock.receive)
	assert.Equal(t, 1, mock.resets)
	assert.Len(t, sink.Received(proto.KindMessageSignRequest), 1)
}

func TestDispatcher_SharedRouter(t *testing.T) {
	router := NewRouter(nil)
	var unsupported int
	router.OnUnsupported(func(context.Context, proto.Envelope) { unsupported++ })
	prompter := &MockPrompter{}
	d := NewDispatcher(DispatcherOptions{Router: router, Prompter: prompter})

	frames := urFrames(t, proto.Batch{accountRequest(1)}, 1000)
	assert.Equal(t, proto.StatusUnsupported, d.Handle(context.Background(), frames[0], proto.TransportQRScanner).Status)
	assert.Equal(t, 1, unsupported)
	assert.Empty(t, prompter.unsupported, "a supplied router keeps its own fallback")
}

func TestDispatcher_RelayAndCopy(t *testing.T) {
	relayer := &MockRelayer{}
	metrics := NewMetrics()
	d := NewDispatcher(DispatcherOptions{Relayer: relayer, Clipboard: relayer, Metrics: metrics})
	env := proto.Envelope{RawSingleForm: "UR:BYTES/AEADAOLAZMJENDEOTI"}

	require.NoError(t, d.Relay(context.Background(), env))
	require.NoError(t, d.Copy(context.Background(), env))
	assert.Equal(t, []string{env.RawSingleForm, env.RawSingleForm}, relayer.relayed)

	assert.ErrorIs(t, d.Relay(context.Background(), proto.Envelope{}), ErrNothingToRelay)

	relayer.err = errors.New("peer gone")
	err := d.Relay(context.Background(), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "peer gone")

	bare := NewDispatcher(DispatcherOptions{})
	assert.ErrorIs(t, bare.Relay(context.Background(), env), ErrNoRelay)
	assert.ErrorIs(t, bare.Copy(context.Background(), env), ErrNoClipboard)
}

func TestDispatcher_Reset(t *testing.T) {
	urHandler := handler.NewURHandler()
	d := NewDispatcher(DispatcherOptions{Handlers: []handler.Handler{urHandler}})
	frames := urFrames(t, longSignBatch(), 100)

	d.Handle(context.Background(), frames[0], proto.TransportQRScanner)
	d.Reset()

	assert.Zero(t, urHandler.Progress())
	_, ok := d.Last()
	assert.False(t, ok)
}
