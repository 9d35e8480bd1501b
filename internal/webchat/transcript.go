package webchat

// transcript is the ordered, id-unique message list. Callers hold the session lock.
type transcript struct {
	messages []Message
	ids      map[string]struct{}
}

func newTranscript() *transcript {
	return &transcript{ids: make(map[string]struct{})}
}

// add appends m unless a message with the same id is already present.
func (t *transcript) add(m Message) bool {
	if _, seen := t.ids[m.ID]; seen {
		return false
	}
	t.ids[m.ID] = struct{}{}
	t.messages = append(t.messages, m)
	return true
}

// reset replaces the whole list, keeping the first occurrence of each id.
func (t *transcript) reset(messages []Message) {
	t.messages = make([]Message, 0, len(messages))
	t.ids = make(map[string]struct{}, len(messages))
	for _, m := range messages {
		t.add(m)
	}
}

func (t *transcript) contains(id string) bool {
	_, ok := t.ids[id]
	return ok
}

func (t *transcript) len() int {
	return len(t.messages)
}

func (t *transcript) snapshot() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}
