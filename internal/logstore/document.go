package logstore

import (
	"encoding/json"
	"sort"
)

// Document is one persisted shard: minute tag -> items appended under it.
// Items are kept raw so that formats written by older producers survive a
// read-modify-write cycle untouched.
type Document map[string][]json.RawMessage

// Items returns the items stored under tag.
func (d Document) Items(tag string) []json.RawMessage { return d[tag] }

// Set replaces the items stored under tag.
func (d Document) Set(tag string, items []json.RawMessage) {
	if items == nil {
		items = []json.RawMessage{}
	}
	d[tag] = items
}

// Append adds items after the ones already stored under tag.
func (d Document) Append(tag string, items ...json.RawMessage) {
	d.Set(tag, append(d[tag], items...))
}

// Tags returns the tags in ascending (chronological) order.
func (d Document) Tags() []string {
	tags := make([]string, 0, len(d))
	for tag := range d {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
