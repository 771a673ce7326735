package monitor

import (
	"fmt"
	"io"
	"os"
)

// timeLayout matches the slog handler so monitor lines and log lines
// read uniformly when interleaved on one terminal.
const timeLayout = "2006-01-02 15:04:05"

// CLIMonitor mirrors gateway traffic to the terminal, one line per
// message: user turns tagged with channel and username, agent turns
// with [AI].
type CLIMonitor struct {
	writer io.Writer
}

func NewCLIMonitor() *CLIMonitor {
	return &CLIMonitor{writer: os.Stdout}
}

func (m *CLIMonitor) Start() error {
	fmt.Fprintln(m.writer, "💬 Monitoring channel traffic")
	return nil
}

func (m *CLIMonitor) Stop() error {
	return nil
}

func (m *CLIMonitor) OnMessage(msg MonitorMessage) {
	// Timestamp in dim gray so the message itself stands out.
	fmt.Fprintf(m.writer, "\033[90m[%s]\033[0m %s\n",
		msg.Timestamp.Format(timeLayout), renderLine(msg))
}

func renderLine(msg MonitorMessage) string {
	if msg.MessageType == "ASSISTANT" {
		return "[AI] " + msg.Content
	}
	return fmt.Sprintf("[%s/%s] %s", msg.ChannelID, msg.Username, msg.Content)
}
