package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrBadAddress reports a client address that is neither a string nor a
// (host, port) pair.
var ErrBadAddress = errors.New("socket address error")

// Address is a client socket address as sent by producers: either a
// "host:port" string or a [host, port] pair.
type Address struct {
	text   string
	pair   []string
	isPair bool
}

// HostPort wraps an already joined "host:port" string.
func HostPort(s string) Address { return Address{text: s} }

// Pair wraps a (host, port) tuple. Only pairs of exactly two parts are valid.
func Pair(parts ...string) Address { return Address{pair: parts, isPair: true} }

// Normalize returns the "host:port" form. A pair whose length is not two is
// rejected with ErrBadAddress.
func (a Address) Normalize() (string, error) {
	if !a.isPair {
		return a.text, nil
	}
	if len(a.pair) != 2 {
		return "", fmt.Errorf("%w: %v", ErrBadAddress, a.pair)
	}
	return net.JoinHostPort(a.pair[0], a.pair[1]), nil
}

func (a *Address) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*a = Address{}
		return nil
	case len(data) > 0 && data[0] == '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			s, err := scalarString(p)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrBadAddress, data)
			}
			out = append(out, s)
		}
		*a = Pair(out...)
		return nil
	default:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %s", ErrBadAddress, data)
		}
		*a = HostPort(s)
		return nil
	}
}

func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}
