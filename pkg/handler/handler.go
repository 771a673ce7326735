package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"aura/pkg/api"
	"aura/pkg/session"
	"aura/pkg/tools"
)

const greeting = "Hello! I am your AI assistant. I can help you with tasks, manage your diary, and more."

// ChatHandler is the bridge between the gateway and the session
// orchestrator. It interprets slash commands locally and forwards
// everything else into an agent run.
type ChatHandler struct {
	orch      *session.Orchestrator
	registry  *tools.Registry
	responder api.MessageResponder
}

func NewChatHandler(orch *session.Orchestrator, registry *tools.Registry) *ChatHandler {
	return &ChatHandler{
		orch:     orch,
		registry: registry,
	}
}

// SetResponder implements api.ResponderAware; the gateway injects itself
// here during Build().
func (h *ChatHandler) SetResponder(responder api.MessageResponder) {
	h.responder = responder
}

// OnMessage implements api.MessageProcessor. Runs are launched in their
// own goroutine so the channel's update loop is never blocked and /stop
// can always get through.
func (h *ChatHandler) OnMessage(msg *api.UnifiedMessage) {
	if h.responder == nil {
		slog.Error("No responder configured, dropping message", "session", msg.Session.SessionID())
		return
	}

	if len(msg.Files) > 0 {
		h.handleUpload(msg)
		return
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return
	}

	if strings.HasPrefix(content, "/") {
		h.handleCommand(msg.Session, content)
		return
	}

	h.startRun(msg.Session, content)
}

// handleUpload records each saved file in the history, then triggers a
// run with a prompt derived from the attachment type and caption.
func (h *ChatHandler) handleUpload(msg *api.UnifiedMessage) {
	id := msg.Session.SessionID()
	caption := strings.TrimSpace(msg.Content)

	var prompt string
	for _, f := range msg.Files {
		switch {
		case strings.HasPrefix(f.MimeType, "image/"):
			h.orch.AppendUserNote(id, fmt.Sprintf("[Image uploaded to %s]. Caption: %s", f.Path, caption))
			prompt = "Analyze this image."
			if caption != "" {
				prompt = caption
			}
		case strings.HasPrefix(f.MimeType, "audio/"):
			h.orch.AppendUserNote(id, fmt.Sprintf("[Voice file uploaded to %s]. Caption: %s", f.Path, caption))
			prompt = "Please transcribe this voice message."
			if caption != "" {
				prompt += " Context: " + caption
			}
		default:
			h.orch.AppendUserNote(id, fmt.Sprintf("[File uploaded to %s]. Caption: %s", f.Path, caption))
			prompt = "Analyze this file."
			if caption != "" {
				prompt = caption
			}
		}
	}

	h.startRun(msg.Session, prompt)
}

func (h *ChatHandler) handleCommand(sctx api.SessionContext, content string) {
	id := sctx.SessionID()
	command := strings.Fields(content)[0]

	switch command {
	case "/start":
		h.orch.ClearHistory(id)
		h.reply(sctx, greeting)
	case "/clear":
		h.orch.ClearHistory(id)
		h.orch.ResetUsage(id)
		h.reply(sctx, "Memory cleared.")
	case "/stop":
		if h.orch.StopRun(id) {
			h.reply(sctx, "Stopped.")
		} else {
			h.reply(sctx, "Nothing is running.")
		}
	case "/usage":
		h.reply(sctx, fmt.Sprintf("Current usage: %d tokens.", h.orch.UsageFor(id)))
	case "/tools":
		desc := h.registry.Descriptions()
		if desc == "" {
			h.reply(sctx, "No tools loaded.")
		} else {
			h.reply(sctx, "Available tools:\n"+desc)
		}
	case "/reload":
		h.registry.Reload()
		h.reply(sctx, fmt.Sprintf("Modules reloaded. %d tools available.", h.registry.Count()))
	default:
		// Unknown commands go to the model; it may know what to do.
		h.startRun(sctx, content)
	}
}

func (h *ChatHandler) startRun(sctx api.SessionContext, userInput string) {
	if err := h.responder.SendSignal(sctx, string(api.EventThinking)); err != nil {
		slog.Debug("Thinking signal failed", "session", sctx.SessionID(), "error", err)
	}

	go h.orch.Process(context.Background(), sctx, userInput, h.responder)
}

func (h *ChatHandler) reply(sctx api.SessionContext, text string) {
	if err := h.responder.SendReply(sctx, text); err != nil {
		slog.Error("Failed to send reply", "session", sctx.SessionID(), "error", err)
	}
}
