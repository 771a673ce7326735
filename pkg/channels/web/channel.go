package web

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"aura/pkg/api"
	"aura/pkg/config"
	"aura/pkg/utils"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for decoupled UI
	},
}

// WebConfig holds the listener settings for the websocket channel.
type WebConfig struct {
	Port int `json:"port"`
}

// incomingMessage is the JSON frame a UI client sends. Plain (non-JSON)
// frames are accepted as bare text for backward compatibility.
type incomingMessage struct {
	Text  string `json:"text"`
	Files []struct {
		Name string `json:"name"`
		Mime string `json:"mime"`
		Data string `json:"data"` // Base64 encoded
	} `json:"files"`
}

// safeConn serializes writes; gorilla/websocket allows only one
// concurrent writer per connection.
type safeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *safeConn) WriteMessage(messageType int, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(messageType, data)
}

// WebChannel exposes the agent over a websocket endpoint. Agent progress
// events are forwarded to the client as typed JSON frames, so a browser
// UI can render thinking states, tool activity and token streaming live.
type WebChannel struct {
	config       WebConfig
	server       *http.Server
	downloadsDir string
	connections  map[string]*safeConn // UserID -> connection
	mu           sync.RWMutex
}

func NewWebChannel(cfg WebConfig, system *config.SystemConfig) *WebChannel {
	return &WebChannel{
		config:       cfg,
		downloadsDir: system.DownloadsDir,
		connections:  make(map[string]*safeConn),
	}
}

func (c *WebChannel) ID() string {
	return "web"
}

func (c *WebChannel) Start(ctx api.ChannelContext) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		c.handleWebSocket(w, r, ctx)
	})

	addr := fmt.Sprintf(":%d", c.config.Port)
	c.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	slog.Info("Web channel listening", "port", c.config.Port)

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Web channel server error", "error", err)
		}
	}()

	return nil
}

func (c *WebChannel) Stop() error {
	if c.server != nil {
		return c.server.Close()
	}
	return nil
}

func (c *WebChannel) conn(userID string) (*safeConn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.connections[userID]
	return conn, ok
}

func (c *WebChannel) writeFrame(userID string, frame map[string]any) error {
	conn, ok := c.conn(userID)
	if !ok {
		return fmt.Errorf("web user %s not connected", userID)
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WebChannel) Send(session api.SessionContext, message string) error {
	return c.writeFrame(session.UserID, map[string]any{
		"type":    "message",
		"content": message,
	})
}

// SendSignal implements api.SignalingChannel.
func (c *WebChannel) SendSignal(session api.SessionContext, signal string) error {
	return c.writeFrame(session.UserID, map[string]any{
		"type":  "signal",
		"value": signal,
	})
}

// Stream forwards each agent event verbatim as a JSON frame, then a
// terminating done frame.
func (c *WebChannel) Stream(session api.SessionContext, events <-chan api.Event) error {
	conn, ok := c.conn(session.UserID)
	if !ok {
		// Client disconnected mid-run; drain so the producer never blocks.
		for range events {
		}
		return fmt.Errorf("web user %s not connected", session.UserID)
	}

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("Failed to marshal stream event", "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			for range events {
			}
			return err
		}
	}

	return conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"done"}`))
}

func (c *WebChannel) handleWebSocket(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WS upgrade failed", "error", err)
		return
	}

	conn := &safeConn{Conn: rawConn}
	userID := r.RemoteAddr

	c.mu.Lock()
	c.connections[userID] = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.connections, userID)
		c.mu.Unlock()
		conn.Close()
	}()

	session := api.SessionContext{
		ChannelID: "web",
		UserID:    userID,
		ChatID:    "global", // Web UI shares one global conversation
		Username:  "WebUser",
	}

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var content string
		var files []api.FileAttachment

		var incoming incomingMessage
		if err := json.Unmarshal(msgBytes, &incoming); err == nil {
			content = incoming.Text
			for _, f := range incoming.Files {
				saved, err := c.saveUpload(session.ChatID, f.Name, f.Mime, f.Data)
				if err != nil {
					slog.Error("Failed to save upload", "name", f.Name, "error", err)
					continue
				}
				files = append(files, *saved)
			}
		} else {
			content = string(msgBytes)
		}

		ctx.OnMessage(c.ID(), &api.UnifiedMessage{
			Session: session,
			Content: content,
			Files:   files,
		})
	}
}

// saveUpload decodes a base64 payload and writes it under the downloads
// directory, named by content hash so repeated uploads are deduplicated.
func (c *WebChannel) saveUpload(chatID, name, mimeType, b64 string) (*api.FileAttachment, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 payload: %w", err)
	}

	dir := filepath.Join(c.downloadsDir, chatID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create downloads directory: %w", err)
	}

	hash := sha256.Sum256(data)
	detectedMime, ext := utils.DetectMimeAndExt(data)
	if mimeType == "" {
		mimeType = detectedMime
	}

	localPath := filepath.Join(dir, utils.GenerateTimestampPrefix()+hex.EncodeToString(hash[:8])+ext)
	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		if err := os.WriteFile(localPath, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write upload to disk: %w", err)
		}
	}

	return &api.FileAttachment{
		Filename: name,
		MimeType: mimeType,
		Path:     localPath,
	}, nil
}
