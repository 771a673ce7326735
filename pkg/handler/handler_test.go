package handler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"aura/pkg/api"
	"aura/pkg/config"
	"aura/pkg/llm"
	"aura/pkg/session"
	"aura/pkg/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRunner answers instantly and remembers its inputs.
type recordingRunner struct {
	mu     sync.Mutex
	inputs []string
	final  string
}

func (r *recordingRunner) Run(ctx context.Context, history []llm.Message, userInput string, invocation map[string]any, events chan<- api.Event) ([]llm.Message, string, error) {
	r.mu.Lock()
	r.inputs = append(r.inputs, userInput)
	r.mu.Unlock()

	events <- api.NewFinalEvent(r.final)
	h := append(history, llm.NewUserMessage(userInput), llm.NewAssistantMessage(r.final))
	return h, r.final, nil
}

func (r *recordingRunner) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.inputs...)
}

type nullClient struct{}

func (nullClient) StreamChat(ctx context.Context, messages []llm.Message, tools []llm.Tool) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}
func (nullClient) Chat(ctx context.Context, messages []llm.Message) (llm.Message, error) {
	return llm.Message{}, nil
}
func (nullClient) IsTransientError(err error) bool { return false }

type recordingResponder struct {
	mu      sync.Mutex
	replies []string
	signals []string
	streams int
}

func (f *recordingResponder) SendReply(session api.SessionContext, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, content)
	return nil
}

func (f *recordingResponder) StreamEvents(session api.SessionContext, events <-chan api.Event) error {
	f.mu.Lock()
	f.streams++
	f.mu.Unlock()
	for range events {
	}
	return nil
}

func (f *recordingResponder) SendSignal(session api.SessionContext, signal string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, signal)
	return nil
}

func (f *recordingResponder) lastReply() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

func setup(t *testing.T) (*ChatHandler, *recordingRunner, *recordingResponder, *session.Orchestrator) {
	t.Helper()
	sys := config.DefaultSystemConfig()
	sys.SessionsFile = filepath.Join(t.TempDir(), "sessions.json")

	runner := &recordingRunner{final: "answered"}
	orch := session.NewOrchestrator(runner, nullClient{}, sys)

	reg := tools.NewRegistry("", nil)
	reg.Register(tools.Spec{
		Name:        "echo",
		Description: "Echoes.",
		Params:      []tools.Param{{Name: "text", Type: "string"}},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "ok", nil
		},
	})

	h := NewChatHandler(orch, reg)
	resp := &recordingResponder{}
	h.SetResponder(resp)
	return h, runner, resp, orch
}

func sessionCtx() api.SessionContext {
	return api.SessionContext{ChannelID: "telegram", UserID: "9", ChatID: "9", Username: "tester"}
}

func waitForRun(t *testing.T, runner *recordingRunner, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(runner.seen()) >= n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPlainMessageTriggersRun(t *testing.T) {
	h, runner, resp, _ := setup(t)

	h.OnMessage(&api.UnifiedMessage{Session: sessionCtx(), Content: "what time is it"})

	waitForRun(t, runner, 1)
	assert.Equal(t, []string{"what time is it"}, runner.seen())
	assert.Contains(t, resp.signals, "thinking")
}

func TestEmptyMessageIsIgnored(t *testing.T) {
	h, runner, resp, _ := setup(t)

	h.OnMessage(&api.UnifiedMessage{Session: sessionCtx(), Content: "   "})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, runner.seen())
	assert.Empty(t, resp.replies)
}

func TestStartCommand(t *testing.T) {
	h, _, resp, orch := setup(t)
	sctx := sessionCtx()

	orch.AppendUserNote(sctx.SessionID(), "old context")
	h.OnMessage(&api.UnifiedMessage{Session: sctx, Content: "/start"})

	assert.Equal(t, greeting, resp.lastReply())
	assert.Empty(t, orch.HistoryFor(sctx.SessionID()))
}

func TestClearCommandResetsHistoryAndUsage(t *testing.T) {
	h, runner, resp, orch := setup(t)
	sctx := sessionCtx()

	h.OnMessage(&api.UnifiedMessage{Session: sctx, Content: "hello"})
	waitForRun(t, runner, 1)
	require.Eventually(t, func() bool {
		return orch.UsageFor(sctx.SessionID()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	h.OnMessage(&api.UnifiedMessage{Session: sctx, Content: "/clear"})

	assert.Equal(t, "Memory cleared.", resp.lastReply())
	assert.Empty(t, orch.HistoryFor(sctx.SessionID()))
	assert.Equal(t, 0, orch.UsageFor(sctx.SessionID()))
}

func TestStopCommandWithNothingRunning(t *testing.T) {
	h, _, resp, _ := setup(t)

	h.OnMessage(&api.UnifiedMessage{Session: sessionCtx(), Content: "/stop"})
	assert.Equal(t, "Nothing is running.", resp.lastReply())
}

func TestUsageCommand(t *testing.T) {
	h, runner, resp, orch := setup(t)
	sctx := sessionCtx()

	h.OnMessage(&api.UnifiedMessage{Session: sctx, Content: "hello"})
	waitForRun(t, runner, 1)
	require.Eventually(t, func() bool {
		return orch.UsageFor(sctx.SessionID()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	h.OnMessage(&api.UnifiedMessage{Session: sctx, Content: "/usage"})
	assert.Regexp(t, `^Current usage: \d+ tokens\.$`, resp.lastReply())
}

func TestToolsCommand(t *testing.T) {
	h, _, resp, _ := setup(t)

	h.OnMessage(&api.UnifiedMessage{Session: sessionCtx(), Content: "/tools"})
	assert.Contains(t, resp.lastReply(), "- echo(text): Echoes.")
}

func TestReloadCommand(t *testing.T) {
	h, _, resp, _ := setup(t)

	h.OnMessage(&api.UnifiedMessage{Session: sessionCtx(), Content: "/reload"})
	// No modules are bound in this registry, so a reload empties it.
	assert.Equal(t, "Modules reloaded. 0 tools available.", resp.lastReply())
}

func TestUnknownCommandGoesToModel(t *testing.T) {
	h, runner, _, _ := setup(t)

	h.OnMessage(&api.UnifiedMessage{Session: sessionCtx(), Content: "/dance"})
	waitForRun(t, runner, 1)
	assert.Equal(t, []string{"/dance"}, runner.seen())
}

func TestUploadRecordsNoteAndDerivesPrompt(t *testing.T) {
	h, runner, _, orch := setup(t)
	sctx := sessionCtx()

	h.OnMessage(&api.UnifiedMessage{
		Session: sctx,
		Content: "",
		Files: []api.FileAttachment{
			{Filename: "photo.jpg", MimeType: "image/jpeg", Path: "downloads/9/1_photo.jpg"},
		},
	})

	waitForRun(t, runner, 1)
	assert.Equal(t, []string{"Analyze this image."}, runner.seen())

	hist := orch.HistoryFor(sctx.SessionID())
	require.NotEmpty(t, hist)
	assert.Equal(t, "[Image uploaded to downloads/9/1_photo.jpg]. Caption: ", hist[0].Content)
}

func TestUploadCaptionBecomesPrompt(t *testing.T) {
	h, runner, _, _ := setup(t)

	h.OnMessage(&api.UnifiedMessage{
		Session: sessionCtx(),
		Content: "What breed is this dog?",
		Files: []api.FileAttachment{
			{Filename: "dog.jpg", MimeType: "image/jpeg", Path: "downloads/9/2_dog.jpg"},
		},
	})

	waitForRun(t, runner, 1)
	assert.Equal(t, []string{"What breed is this dog?"}, runner.seen())
}

func TestVoiceUploadPrompt(t *testing.T) {
	h, runner, _, orch := setup(t)
	sctx := sessionCtx()

	h.OnMessage(&api.UnifiedMessage{
		Session: sctx,
		Content: "from the meeting",
		Files: []api.FileAttachment{
			{Filename: "voice.ogg", MimeType: "audio/ogg", Path: "downloads/9/3_voice.ogg"},
		},
	})

	waitForRun(t, runner, 1)
	assert.Equal(t, []string{"Please transcribe this voice message. Context: from the meeting"}, runner.seen())

	hist := orch.HistoryFor(sctx.SessionID())
	require.NotEmpty(t, hist)
	assert.Contains(t, hist[0].Content, "[Voice file uploaded to downloads/9/3_voice.ogg]")
}

func TestDocumentUploadPrompt(t *testing.T) {
	h, runner, _, _ := setup(t)

	h.OnMessage(&api.UnifiedMessage{
		Session: sessionCtx(),
		Files: []api.FileAttachment{
			{Filename: "report.pdf", MimeType: "application/pdf", Path: "downloads/9/4_report.pdf"},
		},
	})

	waitForRun(t, runner, 1)
	assert.Equal(t, []string{"Analyze this file."}, runner.seen())
}
