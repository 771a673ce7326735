package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"aura/pkg/api"
	"aura/pkg/config"
	"aura/pkg/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramConfig encapsulates the credentials required to authenticate with
// the Telegram Bot API.
type TelegramConfig struct {
	Token string `json:"token"` // The secret BOT API string provided by @BotFather
}

// TelegramChannel is the production implementation of api.Channel for the
// Telegram platform. It handles multi-modal message reception (text,
// documents, photos, voice), saves uploads to local disk, and renders
// agent progress through rate-limited message edits.
type TelegramChannel struct {
	config       TelegramConfig
	bot          *tgbotapi.BotAPI
	messageLimit int           // Maximum character count per single message bubble
	editInterval time.Duration // Minimum delay between consecutive edits of a status message
	downloadsDir string        // Root directory for user uploads
	httpClient   *http.Client  // Client for downloading remote media from Telegram
	stopCtx      context.Context
	stopCancel   context.CancelFunc
}

// NewTelegramChannel authenticates with the Bot API and prepares the
// long-polling transport. The dedicated HTTP client ties its dials to
// stopCtx so an active long-poll request is aborted the moment Stop()
// is called, preventing a 409 Conflict on restart.
func NewTelegramChannel(cfg TelegramConfig, system *config.SystemConfig) (api.Channel, error) {
	ctx, cancel := context.WithCancel(context.Background())

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	botHTTPClient := &http.Client{
		Timeout: 90 * time.Second,
		Transport: &http.Transport{
			DialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
				mergedCtx, mergedCancel := context.WithCancel(dialCtx)
				go func() {
					select {
					case <-ctx.Done():
						mergedCancel()
					case <-mergedCtx.Done():
					}
				}()
				return dialer.DialContext(mergedCtx, network, addr)
			},
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, botHTTPClient)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	return &TelegramChannel{
		config:       cfg,
		bot:          bot,
		messageLimit: system.TelegramMessageLimit,
		editInterval: time.Duration(system.EditIntervalMs) * time.Millisecond,
		downloadsDir: system.DownloadsDir,
		httpClient: &http.Client{
			Timeout: time.Duration(system.DownloadTimeoutMs) * time.Millisecond,
		},
		stopCtx:    ctx,
		stopCancel: cancel,
	}, nil
}

// ID returns the unique platform identifier "telegram".
func (t *TelegramChannel) ID() string {
	return "telegram"
}

// Start initiates the long-polling update loop in a background goroutine,
// mapping platform-specific update types into the internal UnifiedMessage
// format. Slash commands pass through as plain content for the handler to
// interpret.
func (t *TelegramChannel) Start(ctx api.ChannelContext) error {
	offset := 0

	go func() {
		for {
			select {
			case <-t.stopCtx.Done():
				return
			default:
			}

			// Native GetUpdates instead of GetUpdatesChan so we control
			// the offset and can abort the request via our transport.
			reqConfig := tgbotapi.NewUpdate(offset)
			reqConfig.Timeout = 60

			updates, err := t.bot.GetUpdates(reqConfig)
			if err != nil {
				select {
				case <-t.stopCtx.Done():
					return
				default:
					slog.Debug("Failed to get telegram updates", "error", err)
					time.Sleep(3 * time.Second)
					continue
				}
			}

			for _, update := range updates {
				if update.UpdateID >= offset {
					offset = update.UpdateID + 1

					if update.Message == nil {
						continue
					}

					t.dispatchMessage(ctx, update.Message)
				}
			}
		}
	}()

	return nil
}

// dispatchMessage converts one incoming Telegram message into a
// UnifiedMessage. Messages carrying attachments are processed in a
// goroutine so downloads never block the update loop.
func (t *TelegramChannel) dispatchMessage(ctx api.ChannelContext, m *tgbotapi.Message) {
	session := api.SessionContext{
		ChannelID: "telegram",
		UserID:    strconv.FormatInt(m.From.ID, 10),
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		Username:  m.From.UserName,
	}

	content := m.Text
	if content == "" {
		content = m.Caption
	}

	type pendingFile struct {
		fileID   string
		filename string
		mime     string
		kind     string
	}

	var pending []pendingFile

	if m.Document != nil {
		pending = append(pending, pendingFile{
			fileID:   m.Document.FileID,
			filename: m.Document.FileName,
			mime:     m.Document.MimeType,
			kind:     "document",
		})
	}
	if len(m.Photo) > 0 {
		// Telegram sends several resolutions; the last is the largest.
		pending = append(pending, pendingFile{
			fileID: m.Photo[len(m.Photo)-1].FileID,
			kind:   "photo",
		})
	}
	if m.Voice != nil {
		pending = append(pending, pendingFile{
			fileID: m.Voice.FileID,
			mime:   m.Voice.MimeType,
			kind:   "voice",
		})
	}

	if len(pending) == 0 {
		ctx.OnMessage(t.ID(), &api.UnifiedMessage{
			Session: session,
			Content: content,
			Raw:     m,
		})
		return
	}

	go func() {
		var files []api.FileAttachment
		for _, p := range pending {
			file, err := t.downloadFile(p.fileID, p.filename, p.mime, session.ChatID)
			if err != nil {
				slog.Error("Telegram download failed", "kind", p.kind, "error", err)
				continue
			}
			files = append(files, *file)
		}

		ctx.OnMessage(t.ID(), &api.UnifiedMessage{
			Session: session,
			Content: content,
			Files:   files,
			Raw:     m,
		})
	}()
}

// downloadFile streams one Telegram file to
// <downloadsDir>/<chat_id>/<timestamp>_<filename>.
func (t *TelegramChannel) downloadFile(fileID, filename, mimeType, chatID string) (*api.FileAttachment, error) {
	fileInfo, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	if filename == "" {
		filename = filepath.Base(fileInfo.FilePath)
	}

	dir := filepath.Join(t.downloadsDir, chatID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create downloads directory: %w", err)
	}

	localPath := filepath.Join(dir, utils.GenerateTimestampPrefix()+filename)

	// Build the download URL directly from the token to save a round trip.
	fileURL := fileInfo.Link(t.config.Token)

	resp, err := t.httpClient.Get(fileURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file: status code %d", resp.StatusCode)
	}

	outFile, err := os.Create(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create local file: %w", err)
	}
	defer outFile.Close()

	if _, err := io.Copy(outFile, resp.Body); err != nil {
		return nil, fmt.Errorf("failed to save file to disk: %w", err)
	}

	if mimeType == "" {
		mimeType, _ = utils.DetectFileMimeAndExt(localPath)
	}

	return &api.FileAttachment{
		Filename: filename,
		MimeType: mimeType,
		Path:     localPath,
	}, nil
}

// Stop aborts the long-polling loop and clears the connection pool.
func (t *TelegramChannel) Stop() error {
	t.stopCancel()

	if httpClient, ok := t.bot.Client.(*http.Client); ok && httpClient != nil {
		if transport, ok := httpClient.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}

	return nil
}

// SendSignal implements api.SignalingChannel. A "thinking" signal maps to
// the native typing indicator.
func (t *TelegramChannel) SendSignal(session api.SessionContext, signal string) error {
	if signal == string(api.EventThinking) {
		chatID, err := strconv.ParseInt(session.ChatID, 10, 64)
		if err != nil {
			return err
		}
		action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
		_, err = t.bot.Send(action)
		return err
	}
	return nil
}

// Send delivers a plain message, splitting it into chunks when it exceeds
// the per-bubble limit. Each chunk is attempted with Markdown formatting
// first, then as plain text.
func (t *TelegramChannel) Send(session api.SessionContext, message string) error {
	chatID, err := strconv.ParseInt(session.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id for telegram: %s", session.ChatID)
	}

	msgRunes := []rune(message)
	totalLen := len(msgRunes)

	if totalLen <= t.messageLimit {
		if err := t.sendChunk(chatID, message); err != nil {
			return fmt.Errorf("telegram send failed: %w", err)
		}
		return nil
	}

	for i := 0; i < totalLen; i += t.messageLimit {
		end := i + t.messageLimit
		if end > totalLen {
			end = totalLen
		}
		chunk := string(msgRunes[i:end])
		if err := t.sendChunk(chatID, chunk); err != nil {
			return fmt.Errorf("telegram send chunk failed at index %d: %w", i, err)
		}
	}

	return nil
}

// sendChunk sends one message bubble, falling back to plain text when
// Telegram rejects the Markdown variant (unbalanced entities etc.).
func (t *TelegramChannel) sendChunk(chatID int64, chunk string) error {
	msg := tgbotapi.NewMessage(chatID, chunk)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.bot.Send(msg); err == nil {
		return nil
	}

	plain := tgbotapi.NewMessage(chatID, chunk)
	_, err := t.bot.Send(plain)
	return err
}

// Stream renders an agent progress stream as a single status message that
// is edited in place. Edits are rate limited to one per editInterval and
// deduplicated, matching Telegram's flood control expectations. The final
// answer replaces the status message, spilling into follow-up bubbles
// when it exceeds the per-message limit.
func (t *TelegramChannel) Stream(session api.SessionContext, events <-chan api.Event) error {
	chatID, err := strconv.ParseInt(session.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id for telegram: %s", session.ChatID)
	}

	var (
		statusMsgID  int
		lastStatus   string
		lastEditTime time.Time
		streamedText strings.Builder
		finalText    string
	)

	safeEdit := func(text string, force bool) {
		if !force && time.Since(lastEditTime) < t.editInterval {
			return
		}
		if text == lastStatus {
			return
		}

		displayText := text
		if runes := []rune(displayText); len(runes) > t.messageLimit {
			displayText = "... " + string(runes[len(runes)-(t.messageLimit-4):])
		}

		if statusMsgID == 0 {
			msg := tgbotapi.NewMessage(chatID, displayText)
			sent, err := t.bot.Send(msg)
			if err != nil {
				slog.Warn("Status message send failed", "error", err)
				return
			}
			statusMsgID = sent.MessageID
		} else {
			edit := tgbotapi.NewEditMessageText(chatID, statusMsgID, displayText)
			if _, err := t.bot.Send(edit); err != nil {
				slog.Warn("Status edit failed (non-fatal)", "error", err)
				return
			}
		}

		lastStatus = text
		lastEditTime = time.Now()
	}

	for ev := range events {
		switch ev.Type {
		case api.EventThinking:
			safeEdit("Thinking: "+ev.Message, false)
		case api.EventToolUse:
			safeEdit(fmt.Sprintf("Executing: %s...", ev.Tool), false)
		case api.EventFinalStream:
			streamedText.WriteString(ev.Content)
			safeEdit(streamedText.String()+" ▌", false)
		case api.EventFinal:
			finalText = ev.Content
		}
	}

	if finalText == "" {
		// Run was preempted or produced no answer. Freeze whatever was
		// streamed so the cursor does not linger.
		if streamedText.Len() > 0 {
			safeEdit(streamedText.String(), true)
		}
		return nil
	}

	return t.deliverFinal(chatID, statusMsgID, finalText)
}

// deliverFinal replaces the status message with the first chunk of the
// answer and sends the remainder as separate bubbles.
func (t *TelegramChannel) deliverFinal(chatID int64, statusMsgID int, finalText string) error {
	runes := []rune(finalText)
	var chunks []string
	for i := 0; i < len(runes); i += t.messageLimit {
		end := i + t.messageLimit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	if len(chunks) == 0 {
		chunks = []string{finalText}
	}

	first := chunks[0]
	if statusMsgID != 0 {
		edit := tgbotapi.NewEditMessageText(chatID, statusMsgID, first)
		edit.ParseMode = tgbotapi.ModeMarkdown
		if _, err := t.bot.Send(edit); err != nil {
			plain := tgbotapi.NewEditMessageText(chatID, statusMsgID, first)
			if _, err := t.bot.Send(plain); err != nil {
				if err := t.sendChunk(chatID, first); err != nil {
					return fmt.Errorf("telegram final send failed: %w", err)
				}
			}
		}
	} else {
		if err := t.sendChunk(chatID, first); err != nil {
			return fmt.Errorf("telegram final send failed: %w", err)
		}
	}

	for _, chunk := range chunks[1:] {
		if err := t.sendChunk(chatID, chunk); err != nil {
			return fmt.Errorf("telegram final chunk failed: %w", err)
		}
	}

	return nil
}
