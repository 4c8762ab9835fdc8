package recorder

import (
	"encoding/json"
	"net"
	"strconv"

	"monitor.chat/stat-recorder-backend/internal/event"
)

// userIPs groups (user, ip) pairs by user, keeping first-seen order for both
// users and addresses.
type userIPs struct {
	order []string
	ips   map[string][]string
	seen  map[string]map[string]struct{}
}

func newUserIPs() *userIPs {
	return &userIPs{
		ips:  make(map[string][]string),
		seen: make(map[string]map[string]struct{}),
	}
}

// add records the pair (id, ip). An empty ip only registers the user.
func (u *userIPs) add(id, ip string) {
	set, ok := u.seen[id]
	if !ok {
		set = make(map[string]struct{})
		u.seen[id] = set
		u.order = append(u.order, id)
	}
	if ip == "" {
		return
	}
	if _, dup := set[ip]; dup {
		return
	}
	set[ip] = struct{}{}
	u.ips[id] = append(u.ips[id], ip)
}

func (u *userIPs) addEntry(e event.UserEntry) {
	if len(e.IPs) == 0 {
		u.add(e.ID, "")
		return
	}
	for _, ip := range e.IPs {
		u.add(e.ID, ip)
	}
}

func (u *userIPs) entries() []event.UserEntry {
	out := make([]event.UserEntry, 0, len(u.order))
	for _, id := range u.order {
		out = append(out, event.User(id, u.ips[id]...))
	}
	return out
}

// MergeUsers folds incoming entries into the items already stored under a
// tag and returns the regrouped list: one structured item per user whose IP
// list is the union of every address seen for that user. Legacy bare-id items
// are read as users without addresses. A stored item that cannot be decoded
// is left out of the result and reported to skip, which may be nil.
func MergeUsers(existing []json.RawMessage, incoming []event.UserEntry, skip func(raw json.RawMessage, err error)) ([]json.RawMessage, error) {
	acc := newUserIPs()
	for _, raw := range existing {
		var e event.UserEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			if skip != nil {
				skip(raw, err)
			}
			continue
		}
		acc.addEntry(e)
	}
	for _, e := range incoming {
		acc.addEntry(e)
	}

	merged := acc.entries()
	out := make([]json.RawMessage, 0, len(merged))
	for _, e := range merged {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// SpeedItems builds one persisted item per measured station.
func SpeedItems(ev event.SpeedEvent) ([]json.RawMessage, error) {
	client, err := ev.Client.Normalize()
	if err != nil {
		return nil, err
	}

	out := make([]json.RawMessage, 0, len(ev.Stations))
	for _, st := range ev.Stations {
		b, err := json.Marshal(event.SpeedItem{
			U:            ev.Sender,
			Provider:     ev.Provider,
			Station:      net.JoinHostPort(st.Host, strconv.Itoa(st.Port)),
			Client:       client,
			ResponseTime: st.ResponseTime,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
