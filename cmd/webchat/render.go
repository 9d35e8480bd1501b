package main

import (
	"fmt"
	"io"

	"github.com/omnichat/webchat/internal/webchat"
)

// renderer prints only what changed since the previous snapshot.
type renderer struct {
	out       io.Writer
	printed   int
	lastError string
	lastPhase webchat.Phase
	saved     bool
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

func (r *renderer) render(snap webchat.Snapshot) {
	if snap.Phase != r.lastPhase && snap.Phase == webchat.PhaseReady {
		fmt.Fprintf(r.out, "-- connected (conversation %s)\n", snap.ConversationID)
	}
	r.lastPhase = snap.Phase

	if len(snap.Messages) < r.printed {
		r.printed = 0
	}
	for _, m := range snap.Messages[r.printed:] {
		fmt.Fprintf(r.out, "[%s] %s: %s\n", m.CreatedAt, speaker(m), m.Content)
	}
	r.printed = len(snap.Messages)

	if snap.Error != "" && snap.Error != r.lastError {
		fmt.Fprintf(r.out, "!! %s\n", snap.Error)
	}
	r.lastError = snap.Error

	if snap.ProfileSaved && !r.saved {
		fmt.Fprintln(r.out, "-- contact details saved")
	}
	r.saved = snap.ProfileSaved
}

func speaker(m webchat.Message) string {
	if m.Origin() == webchat.OriginCounterpart {
		return "support"
	}
	return "you"
}
