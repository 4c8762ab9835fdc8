package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingUserID rejects a structured user entry without a "U" field.
var ErrMissingUserID = errors.New("user entry without id")

// UserEntry is either a legacy bare user id or a structured entry carrying
// the addresses the user connected from.
type UserEntry struct {
	ID     string
	IPs    []string
	legacy bool
}

// LegacyUser builds the bare-id form written by older stations.
func LegacyUser(id string) UserEntry { return UserEntry{ID: id, legacy: true} }

// User builds a structured entry.
func User(id string, ips ...string) UserEntry { return UserEntry{ID: id, IPs: ips} }

// Legacy reports whether the entry was a bare id.
func (e UserEntry) Legacy() bool { return e.legacy }

type userObject struct {
	U  string          `json:"U"`
	IP json.RawMessage `json:"IP,omitempty"`
}

// MarshalJSON writes legacy entries as a string and structured entries as
// {"U": id, "IP": [...]}. IP is never null.
func (e UserEntry) MarshalJSON() ([]byte, error) {
	if e.legacy {
		return json.Marshal(e.ID)
	}
	ips := e.IPs
	if ips == nil {
		ips = []string{}
	}
	return json.Marshal(struct {
		U  string   `json:"U"`
		IP []string `json:"IP"`
	}{U: e.ID, IP: ips})
}

// UnmarshalJSON accepts a bare id string, or an object whose IP field is
// absent, null, a single string or a list of strings.
func (e *UserEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*e = LegacyUser(id)
		return nil
	}

	var obj userObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("user entry: %w", err)
	}
	if obj.U == "" {
		return ErrMissingUserID
	}
	ips, err := decodeIPs(obj.IP)
	if err != nil {
		return fmt.Errorf("user entry %q: %w", obj.U, err)
	}
	*e = User(obj.U, ips...)
	return nil
}

func decodeIPs(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var ip string
		if err := json.Unmarshal(raw, &ip); err != nil {
			return nil, err
		}
		if ip == "" {
			return nil, nil
		}
		return []string{ip}, nil
	}
	var ips []string
	if err := json.Unmarshal(raw, &ips); err != nil {
		return nil, err
	}
	return ips, nil
}
