// Package event defines the decoded records delivered to the recorder.
package event

import (
	"encoding/json"
	"errors"
	"math"
	"time"
)

// Kind names the log a record belongs to.
type Kind string

const (
	KindUsers  Kind = "users"
	KindStats  Kind = "stats"
	KindSpeeds Kind = "speeds"
)

// Kinds lists every log kind the recorder persists.
var Kinds = []Kind{KindUsers, KindStats, KindSpeeds}

var (
	// ErrUnknownModule reports a payload whose module is not users, stats or speeds.
	ErrUnknownModule = errors.New("unknown module")
	// ErrNoPayload reports a payload with no fields at all.
	ErrNoPayload = errors.New("empty payload")
)

// Record is one decoded application payload. Implementations are UserEvent,
// StatEvent and SpeedEvent.
type Record interface {
	Kind() Kind
	Timestamp() time.Time
}

// UserEvent reports the users currently connected to a station.
type UserEvent struct {
	Time    time.Time
	Sender  string
	Entries []UserEntry
}

// StatEvent carries opaque message counters.
type StatEvent struct {
	Time    time.Time
	Sender  string
	Entries []json.RawMessage
}

// SpeedEvent carries round-trip samples measured by a client against a set
// of stations.
type SpeedEvent struct {
	Time     time.Time
	Sender   string
	Provider string
	Stations []Station
	Client   Address
}

func (e UserEvent) Kind() Kind           { return KindUsers }
func (e UserEvent) Timestamp() time.Time { return e.Time }

func (e StatEvent) Kind() Kind           { return KindStats }
func (e StatEvent) Timestamp() time.Time { return e.Time }

func (e SpeedEvent) Kind() Kind           { return KindSpeeds }
func (e SpeedEvent) Timestamp() time.Time { return e.Time }

// Station is one measured station in a SpeedEvent.
type Station struct {
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	ResponseTime *float64 `json:"response_time,omitempty"`
}

// FromEpochSeconds converts a producer timestamp (seconds, possibly
// fractional) to a time.Time.
func FromEpochSeconds(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}

// EpochSeconds is the inverse of FromEpochSeconds.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// SenderOf returns the submitting identity of rec, if any.
func SenderOf(rec Record) string {
	switch r := rec.(type) {
	case UserEvent:
		return r.Sender
	case StatEvent:
		return r.Sender
	case SpeedEvent:
		return r.Sender
	default:
		return ""
	}
}
