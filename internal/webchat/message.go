package webchat

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/omnichat/webchat/utils"
)

type Origin int

const (
	OriginVisitor Origin = iota
	OriginCounterpart
)

func (o Origin) String() string {
	if o == OriginCounterpart {
		return "counterpart"
	}
	return "visitor"
}

const defaultSenderType = "customer"

var counterpartSenders = map[string]struct{}{
	"agent":  {},
	"user":   {},
	"staff":  {},
	"admin":  {},
	"bot":    {},
	"ai":     {},
	"system": {},
}

// Message is one transcript entry. ID is unique within a transcript.
type Message struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	SenderType string `json:"senderType"`
	CreatedAt  string `json:"createdAt"`
}

// Origin classifies the sender. Unrecognised roles count as the visitor.
func (m Message) Origin() Origin {
	if _, ok := counterpartSenders[strings.ToLower(strings.TrimSpace(m.SenderType))]; ok {
		return OriginCounterpart
	}
	return OriginVisitor
}

func (m Message) FromVisitor() bool {
	return m.Origin() == OriginVisitor
}

// CreatedTime parses CreatedAt, returning the zero time when it is not RFC 3339.
func (m Message) CreatedTime() time.Time {
	t, err := time.Parse(time.RFC3339Nano, m.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// flexString accepts a JSON string or number; anything else decodes to "".
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*f = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		*f = flexString(data)
	default:
		*f = ""
	}
	return nil
}

type rawMessage struct {
	ID         flexString `json:"id"`
	Content    flexString `json:"content"`
	SenderType flexString `json:"senderType"`
	CreatedAt  flexString `json:"createdAt"`
	SentAt     flexString `json:"sentAt"`
}

func normalizeMessage(raw *rawMessage, now time.Time) (Message, bool) {
	if raw == nil {
		return Message{}, false
	}

	stamp := firstNonEmpty(string(raw.CreatedAt), string(raw.SentAt))

	id := string(raw.ID)
	if id == "" {
		sender := string(raw.SenderType)
		if sender == "" {
			sender = "unknown"
		}
		suffix := stamp
		if suffix == "" {
			suffix = utils.RandomToken(12)
		}
		id = sender + "-" + suffix
	}

	senderType := string(raw.SenderType)
	if senderType == "" {
		senderType = defaultSenderType
	}

	createdAt := stamp
	if createdAt == "" {
		createdAt = now.UTC().Format(time.RFC3339Nano)
	}

	return Message{
		ID:         id,
		Content:    string(raw.Content),
		SenderType: senderType,
		CreatedAt:  createdAt,
	}, true
}

// decodeMessage normalises a single JSON message record; null yields false.
func decodeMessage(data []byte, now time.Time) (Message, bool, error) {
	var raw *rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Message{}, false, err
	}
	msg, ok := normalizeMessage(raw, now)
	return msg, ok, nil
}

// decodeMessageList is lenient: a non-array value yields an empty list and
// elements that are not objects are skipped.
func decodeMessageList(data json.RawMessage, now time.Time) []Message {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return []Message{}
	}

	out := make([]Message, 0, len(items))
	for _, item := range items {
		msg, ok, err := decodeMessage(item, now)
		if err != nil || !ok {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
