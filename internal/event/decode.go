package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Defaults fill in fields the payload itself does not carry.
type Defaults struct {
	Sender string
	Time   time.Time
}

type payload struct {
	Module        string            `json:"module"`
	Time          *float64          `json:"time"`
	Sender        string            `json:"sender"`
	Users         []UserEntry       `json:"users"`
	Stats         []json.RawMessage `json:"stats"`
	Provider      string            `json:"provider"`
	Stations      []Station         `json:"stations"`
	RemoteAddress Address           `json:"remote_address"`
}

// Decode turns a generic payload map (as produced by a transport decoder)
// into a Record.
func Decode(fields map[string]any, d Defaults) (Record, error) {
	if len(fields) == 0 {
		return nil, ErrNoPayload
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return DecodeJSON(data, d)
}

// DecodeJSON decodes a JSON object payload into a Record.
func DecodeJSON(data []byte, d Defaults) (Record, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	ts := d.Time
	if p.Time != nil {
		ts = FromEpochSeconds(*p.Time)
	}
	sender := p.Sender
	if sender == "" {
		sender = d.Sender
	}

	switch Kind(p.Module) {
	case KindUsers:
		return UserEvent{Time: ts, Sender: sender, Entries: p.Users}, nil
	case KindStats:
		return StatEvent{Time: ts, Sender: sender, Entries: p.Stats}, nil
	case KindSpeeds:
		return SpeedEvent{
			Time:     ts,
			Sender:   sender,
			Provider: p.Provider,
			Stations: p.Stations,
			Client:   p.RemoteAddress,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, p.Module)
	}
}
