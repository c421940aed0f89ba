package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/netfoor/nao-translation-webapp/internal/audio"
	"github.com/netfoor/nao-translation-webapp/internal/pipeline"
	"github.com/netfoor/nao-translation-webapp/internal/setup"
	"github.com/netfoor/nao-translation-webapp/internal/transcribe"
	"github.com/netfoor/nao-translation-webapp/internal/vad"
)

type fakeCreator struct {
	err   error
	calls int32
}

func (f *fakeCreator) CreateSession(ctx context.Context, req setup.Request) (setup.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return setup.Response{}, f.err
	}
	return setup.Response{SessionID: "sess-1", SignedURL: "wss://stream.example/transcribe?signature=s", ExpiresIn: 300}, nil
}

type fakeStream struct {
	mu         sync.Mutex
	connectErr error
	connected  bool
	closeCalls int32
	sent       [][]byte

	results chan transcribe.Result
	errs    chan error
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		results: make(chan transcribe.Result, 16),
		errs:    make(chan error, 1),
	}
}

func (f *fakeStream) Connect(ctx context.Context, url string) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) SendPCM(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, pcm)
	return nil
}

func (f *fakeStream) Results() <-chan transcribe.Result { return f.results }
func (f *fakeStream) Errs() <-chan error                { return f.errs }

// serviceClose ends the result stream the way a service-side closure does:
// the results channel closes with no fatal error queued.
func (f *fakeStream) serviceClose() {
	if atomic.AddInt32(&f.closeCalls, 1) == 1 {
		close(f.results)
	}
}

func (f *fakeStream) Close() error {
	f.serviceClose()
	return nil
}

func (f *fakeStream) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeRunner struct {
	mu      sync.Mutex
	outcome pipeline.Outcome
	err     error
	block   chan struct{}
	texts   []string
}

func (f *fakeRunner) Run(ctx context.Context, text string) (pipeline.Outcome, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.outcome, f.err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached within deadline")
}

func newTestSession(stream *fakeStream, runner *fakeRunner, hooks Hooks) (*Session, *audio.PushSource) {
	src := audio.NewPushSource(16000)
	s := New(&fakeCreator{}, func() Transcriber { return stream }, runner, src, "en", "es", "user-1", hooks)
	return s, src
}

func TestStart_TransitionsToRecording(t *testing.T) {
	stream := newFakeStream()
	s, _ := newTestSession(stream, &fakeRunner{}, Hooks{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := s.Status(); got != StatusRecording {
		t.Fatalf("status = %q, want recording", got)
	}
	// Starting again while recording is a no-op.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	s.Stop()
}

func TestStart_SetupFailure(t *testing.T) {
	src := audio.NewPushSource(16000)
	s := New(&fakeCreator{err: errors.New("403")}, func() Transcriber { return newFakeStream() }, &fakeRunner{}, src, "en", "es", "u", Hooks{})
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected error from failed setup")
	}
	if got := s.Status(); got != StatusError {
		t.Fatalf("status = %q, want error", got)
	}
}

func TestPartial_OverwritesNeverAppends(t *testing.T) {
	stream := newFakeStream()
	s, _ := newTestSession(stream, &fakeRunner{}, Hooks{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	stream.results <- transcribe.Result{Text: "the pat", IsPartial: true}
	stream.results <- transcribe.Result{Text: "the patient has", IsPartial: true}
	waitFor(t, func() bool { return s.Snapshot().Partial == "the patient has" })

	snap := s.Snapshot()
	if len(snap.Finals) != 0 {
		t.Fatalf("partials must not append to finals: %v", snap.Finals)
	}
}

func TestFinal_AppendsAndAlignsSlots(t *testing.T) {
	stream := newFakeStream()
	runner := &fakeRunner{block: make(chan struct{})}
	s, _ := newTestSession(stream, runner, Hooks{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	stream.results <- transcribe.Result{Text: "the patient has chest", IsPartial: true}
	stream.results <- transcribe.Result{Text: "The patient has chest pain", IsPartial: false}
	waitFor(t, func() bool { return len(s.Snapshot().Finals) == 1 })

	snap := s.Snapshot()
	if snap.Partial != "" {
		t.Fatalf("final must clear the partial, got %q", snap.Partial)
	}
	if len(snap.Translations) != 1 || len(snap.AudioRefs) != 1 {
		t.Fatalf("slots not reserved: translations=%d audioRefs=%d", len(snap.Translations), len(snap.AudioRefs))
	}
	if snap.Translations[0] != "" {
		t.Fatalf("translation slot should be pending while pipeline runs")
	}
	close(runner.block)
}

func TestPipeline_FillsAlignedSlots(t *testing.T) {
	stream := newFakeStream()
	runner := &fakeRunner{outcome: pipeline.Outcome{
		Translation: "El paciente presenta dolor torácico",
		AudioURL:    "https://cdn.example/clip.wav",
	}}
	var gotIndex int32 = -1
	s, _ := newTestSession(stream, runner, Hooks{
		OnTranslation: func(i int, text string) { atomic.StoreInt32(&gotIndex, int32(i)) },
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	stream.results <- transcribe.Result{Text: "The patient has chest pain", IsPartial: false}
	waitFor(t, func() bool {
		snap := s.Snapshot()
		return len(snap.Translations) == 1 && snap.Translations[0] != ""
	})

	snap := s.Snapshot()
	if snap.Translations[0] != "El paciente presenta dolor torácico" {
		t.Fatalf("translation = %q", snap.Translations[0])
	}
	if snap.AudioRefs[0] != "https://cdn.example/clip.wav" {
		t.Fatalf("audio ref = %q", snap.AudioRefs[0])
	}
	if atomic.LoadInt32(&gotIndex) != 0 {
		t.Fatalf("translation hook index = %d, want 0", gotIndex)
	}
}

func TestPipeline_FailureLeavesSlotEmpty(t *testing.T) {
	stream := newFakeStream()
	runner := &fakeRunner{err: errors.New("translate down")}
	s, _ := newTestSession(stream, runner, Hooks{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	stream.results <- transcribe.Result{Text: "hello", IsPartial: false}
	waitFor(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return len(runner.texts) == 1
	})
	time.Sleep(20 * time.Millisecond)

	snap := s.Snapshot()
	if len(snap.Finals) != 1 || snap.Translations[0] != "" || snap.AudioRefs[0] != "" {
		t.Fatalf("failed pipeline must leave empty aligned slots: %+v", snap)
	}
}

func TestAudioPath_GatedFramesReachStream(t *testing.T) {
	stream := newFakeStream()
	s, src := newTestSession(stream, &fakeRunner{}, Hooks{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	loud := make([]float32, 160)
	for i := range loud {
		loud[i] = 0.5
	}
	for i := 0; i < 5; i++ {
		src.Push(loud)
	}
	if stream.sentCount() == 0 {
		t.Fatalf("loud frames should pass the gate and reach the stream")
	}

	before := stream.sentCount()
	quiet := make([]float32, 160)
	// Trailing silence padding passes, then the gate closes.
	for i := 0; i < 40; i++ {
		src.Push(quiet)
	}
	after := stream.sentCount()
	if after-before >= 40 {
		t.Fatalf("sustained silence must stop being transmitted, sent %d silence frames", after-before)
	}
}

func TestStop_IsIdempotent(t *testing.T) {
	stream := newFakeStream()
	s, src := newTestSession(stream, &fakeRunner{}, Hooks{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream.results <- transcribe.Result{Text: "hello", IsPartial: false}
	waitFor(t, func() bool { return len(s.Snapshot().Finals) == 1 })

	s.Stop()
	s.Stop()
	s.Stop()
	if got := s.Status(); got != StatusStopped {
		t.Fatalf("status = %q, want stopped", got)
	}
	snap := s.Snapshot()
	if len(snap.Finals) != 1 {
		t.Fatalf("finals must survive stop: %v", snap.Finals)
	}
	// Audio pushed after stop must not reach anything.
	sent := stream.sentCount()
	src.Push(make([]float32, 160))
	if stream.sentCount() != sent {
		t.Fatalf("audio transmitted after stop")
	}
}

func TestServiceClose_TransitionsToStopped(t *testing.T) {
	stream := newFakeStream()
	s, src := newTestSession(stream, &fakeRunner{}, Hooks{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream.results <- transcribe.Result{Text: "hello", IsPartial: false}
	waitFor(t, func() bool { return len(s.Snapshot().Finals) == 1 })

	stream.serviceClose()
	waitFor(t, func() bool { return s.Status() == StatusStopped })

	// Capture is released: frames after the close go nowhere.
	sent := stream.sentCount()
	loud := make([]float32, 160)
	for i := range loud {
		loud[i] = 0.5
	}
	src.Push(loud)
	if stream.sentCount() != sent {
		t.Fatalf("audio transmitted after service-side close")
	}
	snap := s.Snapshot()
	if len(snap.Finals) != 1 {
		t.Fatalf("finals must survive a service-side close: %v", snap.Finals)
	}
}

func TestFinal_WhitespaceOnlyIsDiscarded(t *testing.T) {
	stream := newFakeStream()
	s, _ := newTestSession(stream, &fakeRunner{}, Hooks{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	stream.results <- transcribe.Result{Text: "   ", IsPartial: false}
	stream.results <- transcribe.Result{Text: "The patient has chest pain", IsPartial: false}
	waitFor(t, func() bool { return len(s.Snapshot().Finals) == 1 })

	snap := s.Snapshot()
	if snap.Finals[0] != "The patient has chest pain" {
		t.Fatalf("whitespace-only final must not be appended: %v", snap.Finals)
	}
	if len(snap.Translations) != 1 || len(snap.AudioRefs) != 1 {
		t.Fatalf("slots reserved for a blank utterance: translations=%d audioRefs=%d",
			len(snap.Translations), len(snap.AudioRefs))
	}
}

func TestWithGate_UsesInjectedGate(t *testing.T) {
	stream := newFakeStream()
	s, src := newTestSession(stream, &fakeRunner{}, Hooks{})
	// A gate nothing can open: every frame reads as silence past the padding.
	s.WithGate(&vad.Gate{Threshold: 10, MinSpeechFrames: 1, MaxSilencePadFrames: 0})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	loud := make([]float32, 160)
	for i := range loud {
		loud[i] = 0.5
	}
	for i := 0; i < 10; i++ {
		src.Push(loud)
	}
	if got := stream.sentCount(); got != 0 {
		t.Fatalf("injected gate ignored: %d frames transmitted", got)
	}
}

func TestStreamError_MovesToErrorState(t *testing.T) {
	stream := newFakeStream()
	s, _ := newTestSession(stream, &fakeRunner{}, Hooks{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream.errs <- errors.New("BadRequestException: bad frame")
	waitFor(t, func() bool { return s.Status() == StatusError })

	snap := s.Snapshot()
	if snap.ErrMessage == "" {
		t.Fatalf("error state must carry a user-facing message")
	}
}

func TestClear_DiscardsInFlightResults(t *testing.T) {
	stream := newFakeStream()
	runner := &fakeRunner{
		outcome: pipeline.Outcome{Translation: "hola"},
		block:   make(chan struct{}),
	}
	s, _ := newTestSession(stream, runner, Hooks{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	stream.results <- transcribe.Result{Text: "hello", IsPartial: false}
	waitFor(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return len(runner.texts) == 1
	})

	s.Clear()
	close(runner.block)
	time.Sleep(20 * time.Millisecond)

	snap := s.Snapshot()
	if len(snap.Finals) != 0 || len(snap.Translations) != 0 {
		t.Fatalf("cleared transcript must stay empty: %+v", snap)
	}
}

func TestUserMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{audio.ErrPermissionDenied, "Microphone access was denied. Allow microphone permission and try again."},
		{audio.ErrDeviceNotFound, "No microphone was found. Connect a microphone and try again."},
		{audio.ErrDeviceUnsupported, "The microphone does not support the required audio format."},
		{errors.New("anything else"), "The translation session hit an error. Stop and start a new session."},
	}
	for _, tc := range cases {
		if got := UserMessage(tc.err); got != tc.want {
			t.Fatalf("UserMessage(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
