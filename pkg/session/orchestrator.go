package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"aura/pkg/api"
	"aura/pkg/config"
	"aura/pkg/llm"
	"aura/pkg/tools"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const summaryPrompt = "Summarize the following conversation concisely in 2-3 sentences, preserving key facts and context:"

// Session is one conversation's durable state.
type Session struct {
	ID      string        `json:"id"`
	History []llm.Message `json:"history"`
	Usage   int           `json:"usage"`
}

// Runner abstracts the agent loop so the orchestrator can be tested
// against a scripted implementation.
type Runner interface {
	Run(ctx context.Context, history []llm.Message, userInput string, invocation map[string]any, events chan<- api.Event) ([]llm.Message, string, error)
}

// run tracks one in-flight agent execution.
type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator owns every conversation: histories, token budgets, the
// single-active-run rule and the persisted snapshot. All state lives
// here; nothing is ambient.
type Orchestrator struct {
	mu       sync.Mutex
	sessions map[string]*Session
	runs     map[string]*run

	runner Runner
	client llm.LLMClient
	sys    *config.SystemConfig
	file   string
}

// NewOrchestrator builds the orchestrator and loads the persisted
// sessions. An unreadable or corrupt snapshot degrades to an empty map.
func NewOrchestrator(runner Runner, client llm.LLMClient, sys *config.SystemConfig) *Orchestrator {
	o := &Orchestrator{
		sessions: make(map[string]*Session),
		runs:     make(map[string]*run),
		runner:   runner,
		client:   client,
		sys:      sys,
		file:     sys.SessionsFile,
	}
	o.load()
	return o
}

func (o *Orchestrator) load() {
	data, err := os.ReadFile(o.file)
	if err != nil {
		return
	}
	var sessions map[string]*Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		slog.Warn("Session snapshot is corrupt, starting empty", "file", o.file, "error", err)
		return
	}
	for id, s := range sessions {
		s.ID = id
	}
	o.sessions = sessions
	slog.Info("Loaded sessions", "count", len(sessions), "file", o.file)
}

// persistLocked writes the full session map. Caller holds o.mu.
func (o *Orchestrator) persistLocked() {
	data, err := json.MarshalIndent(o.sessions, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal sessions", "error", err)
		return
	}
	if dir := filepath.Dir(o.file); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create session dir", "dir", dir, "error", err)
			return
		}
	}
	if err := os.WriteFile(o.file, data, 0644); err != nil {
		slog.Error("Failed to persist sessions", "file", o.file, "error", err)
	}
}

func (o *Orchestrator) sessionLocked(id string) *Session {
	s, ok := o.sessions[id]
	if !ok {
		s = &Session{ID: id}
		o.sessions[id] = s
	}
	return s
}

// Process handles one user utterance end to end: quota gate, history
// compaction, preemption of the previous run, the agent loop itself and
// the final commit. Progress streams to the responder while the run is
// in flight.
func (o *Orchestrator) Process(ctx context.Context, sctx api.SessionContext, userInput string, responder api.MessageResponder) {
	id := sctx.SessionID()

	o.mu.Lock()
	sess := o.sessionLocked(id)

	if sess.Usage > o.sys.UsageQuota {
		o.mu.Unlock()
		notice := fmt.Sprintf("⚠️ Session usage quota exceeded (%d tokens). Please use /clear to reset.", o.sys.UsageQuota)
		if err := responder.SendReply(sctx, notice); err != nil {
			slog.Error("Failed to send quota notice", "session", id, "error", err)
		}
		return
	}

	// Claim the session's run slot before touching the history. Preempting
	// an active run means dropping the lock while it drains, so loop until
	// the slot is observed empty under the lock and install the new record
	// in the same critical section; the last claimant wins.
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	for {
		prev := o.runs[id]
		if prev == nil {
			o.runs[id] = r
			break
		}
		o.mu.Unlock()
		prev.cancel()
		<-prev.done
		o.mu.Lock()
	}

	sess = o.sessionLocked(id)
	o.compactLocked(ctx, sess)

	// Pre-run snapshot; the commit is based on this, not on whatever the
	// working history grows into. Taken after the slot is claimed so a
	// finishing run's commit is never lost.
	snapshot := append([]llm.Message(nil), sess.History...)
	o.mu.Unlock()

	defer func() {
		cancel()
		close(r.done)
		o.mu.Lock()
		if o.runs[id] == r {
			delete(o.runs, id)
		}
		o.mu.Unlock()
	}()

	events := make(chan api.Event, o.sys.InternalChannelBuffer)
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		if err := responder.StreamEvents(sctx, events); err != nil {
			slog.Error("Event streaming failed", "session", id, "error", err)
			for range events {
				// Drain so the run never blocks on a dead consumer
			}
		}
	}()

	invocation := map[string]any{
		tools.CtxChatID:    sctx.ChatID,
		tools.CtxResponder: responder,
	}

	working := append([]llm.Message(nil), snapshot...)
	_, final, err := o.runner.Run(runCtx, working, userInput, invocation, events)
	close(events)
	<-streamDone

	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("Run cancelled", "session", id)
			return
		}
		slog.Error("Agent run failed", "session", id, "error", err)
		if sendErr := responder.SendReply(sctx, fmt.Sprintf("Error: %v", err)); sendErr != nil {
			slog.Error("Failed to send error reply", "session", id, "error", sendErr)
		}
		return
	}
	if final == "" {
		return
	}

	turnUsage := EstimateTokens(userInput) + EstimateTokens(final) + o.sys.TurnOverheadTokens

	// Commit: snapshot + the user turn + the final answer. Intermediate
	// tool traffic stays out of the durable history.
	o.mu.Lock()
	sess = o.sessionLocked(id)
	newHist := append([]llm.Message(nil), snapshot...)
	newHist = append(newHist, llm.NewUserMessage(userInput))
	newHist = append(newHist, llm.NewAssistantMessage(final))
	sess.History = newHist
	sess.Usage += turnUsage
	o.persistLocked()
	o.mu.Unlock()
}

// compactLocked folds the older part of an oversized history into a
// one-message summary. Failure leaves the history untouched; the run
// proceeds uncompacted. Caller holds o.mu.
func (o *Orchestrator) compactLocked(ctx context.Context, sess *Session) {
	totalTokens := 0
	for _, m := range sess.History {
		totalTokens += EstimateTokens(m.Content)
	}

	if len(sess.History) <= o.sys.HistoryMaxMessages && totalTokens <= o.sys.HistoryMaxTokens {
		return
	}
	if len(sess.History) <= o.sys.HistoryKeepRecent {
		return
	}

	cut := len(sess.History) - o.sys.HistoryKeepRecent
	toSummarize := sess.History[:cut]
	kept := sess.History[cut:]

	summary, err := o.summarize(ctx, toSummarize)
	if err != nil || summary == "" {
		slog.Warn("Summarization failed, keeping full history", "session", sess.ID, "error", err)
		return
	}

	newHist := make([]llm.Message, 0, len(kept)+1)
	newHist = append(newHist, llm.NewSystemMessage("[Previous Conversation Summary]: "+summary))
	newHist = append(newHist, kept...)
	sess.History = newHist
	o.persistLocked()
	slog.Info("Summarized history", "session", sess.ID, "kept", len(kept))
}

func (o *Orchestrator) summarize(ctx context.Context, slice []llm.Message) (string, error) {
	msgs := make([]llm.Message, 0, len(slice)+1)
	msgs = append(msgs, llm.NewSystemMessage(summaryPrompt))
	for _, m := range slice {
		msgs = append(msgs, llm.NewUserMessage(fmt.Sprintf("%s: %s", m.Role, m.Content)))
	}

	resp, err := o.client.Chat(ctx, msgs)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// AppendUserNote records a user-authored event (such as a file upload)
// directly into the history so the next run sees it as context.
func (o *Orchestrator) AppendUserNote(id, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess := o.sessionLocked(id)
	sess.History = append(sess.History, llm.NewUserMessage(text))
	o.persistLocked()
}

// StopRun cancels the active run for a session. Reports whether
// anything was running.
func (o *Orchestrator) StopRun(id string) bool {
	o.mu.Lock()
	r := o.runs[id]
	o.mu.Unlock()

	if r == nil {
		return false
	}
	r.cancel()
	<-r.done
	return true
}

// ClearHistory wipes the conversation but keeps the usage counter; the
// budget covers the session, not one conversation thread.
func (o *Orchestrator) ClearHistory(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess := o.sessionLocked(id)
	sess.History = nil
	o.persistLocked()
}

// ResetUsage zeroes the session's token counter.
func (o *Orchestrator) ResetUsage(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess := o.sessionLocked(id)
	sess.Usage = 0
	o.persistLocked()
}

// UsageFor returns the accumulated token usage of a session.
func (o *Orchestrator) UsageFor(id string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionLocked(id).Usage
}

// HistoryFor returns a copy of a session's history.
func (o *Orchestrator) HistoryFor(id string) []llm.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]llm.Message(nil), o.sessionLocked(id).History...)
}
