package web

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/hud-worker/internal/logic"
	"github.com/sweeney/hud-worker/internal/mqtt"
	"github.com/sweeney/hud-worker/internal/status"
)

// Envelope is the wire format of every /events frame.
type Envelope struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// Frame types sent on /events.
const (
	FrameStatus = "status" // full status snapshot, sent on connect
	FrameChange = "change" // one published change event
)

func formatFrame(typ string, at time.Time, data []byte) ([]byte, error) {
	return json.Marshal(Envelope{Type: typ, Ts: at.UTC(), Data: data})
}

func formatChange(ev logic.ChangeEvent, at time.Time) ([]byte, error) {
	data, err := mqtt.FormatPayload(ev)
	if err != nil {
		return nil, fmt.Errorf("format change frame: %w", err)
	}
	return formatFrame(FrameChange, at, data)
}

func formatStatus(snap status.Snapshot) ([]byte, error) {
	return formatFrame(FrameStatus, snap.Now, status.FormatJSON(snap))
}
