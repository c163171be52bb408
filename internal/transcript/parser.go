// Package transcript loads recent conversation for a checkpoint and
// condenses it into prompt-sized text.
package transcript

import (
	"bufio"
	"encoding/json"
	"os"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// Message is one turn of conversation with its content flattened to text.
type Message struct {
	Role string `json:"role"` // "user", "assistant", "system", "context"
	Text string `json:"content"`
}

// wireMessage accepts content as a plain string or a list of blocks.
type wireMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentItem is a single content block (text, tool_use, tool_result).
type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// jsonlEntry is one line of an agent JSONL transcript.
type jsonlEntry struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

var systemReminderRe = regexp.MustCompile(`<system-reminder>[\s\S]*?</system-reminder>`)

// ParseSession decodes a session-context document: an object holding
// "recent_messages" or, failing that, "messages".
func ParseSession(data []byte) ([]Message, error) {
	var doc struct {
		RecentMessages []wireMessage `json:"recent_messages"`
		Messages       []wireMessage `json:"messages"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode session context")
	}
	wire := doc.RecentMessages
	if wire == nil {
		wire = doc.Messages
	}

	msgs := make([]Message, 0, len(wire))
	for _, w := range wire {
		if m, ok := toMessage(w); ok {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

// ParseJSONL reads an agent JSONL transcript, one entry per line.
// Malformed lines are skipped.
func ParseJSONL(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open transcript")
	}
	defer f.Close()

	var msgs []Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB line buffer

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry jsonlEntry
		if err := json.Unmarshal(line, &entry); err != nil || entry.Message == nil {
			continue
		}
		var w wireMessage
		if err := json.Unmarshal(entry.Message, &w); err != nil {
			continue
		}
		if w.Role == "" {
			w.Role = entry.Type
		}
		if m, ok := toMessage(w); ok {
			msgs = append(msgs, m)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan transcript")
	}
	return msgs, nil
}

// toMessage flattens content and drops entries with nothing worth keeping:
// fewer than 5 characters, or raw JSON payloads.
func toMessage(w wireMessage) (Message, bool) {
	text := extractText(w.Content)
	text = systemReminderRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if len(text) < 5 || strings.HasPrefix(text, "{") {
		return Message{}, false
	}
	role := w.Role
	if role == "" {
		role = "user"
	}
	return Message{Role: role, Text: text}, true
}

// extractText handles the polymorphic content field.
func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var items []contentItem
	if err := json.Unmarshal(raw, &items); err == nil {
		var texts []string
		for _, item := range items {
			if item.Type == "text" && item.Text != "" {
				texts = append(texts, item.Text)
			}
		}
		return strings.Join(texts, "\n")
	}
	return ""
}
