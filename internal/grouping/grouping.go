// Package grouping partitions billable records by the party an invoice is
// addressed to. Membership depends only on each record's own fields, so the
// same selection always yields the same groups whatever order it arrives in.
package grouping

import (
	"sort"
	"strings"

	"github.com/pesio-ai/be-ar-invoicing/internal/billing"
)

// Key identifies a recipient group: "{side}|{normalized email or name}".
type Key string

// KeyOf computes the group key of a record.
func KeyOf(r billing.Record) Key {
	side, party := r.Recipient()
	id := normalize(party.Email)
	if id == "" {
		id = normalize(party.Name)
	}
	return Key(string(side) + "|" + id)
}

func partyLess(a, b billing.Party) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.Email < b.Email
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Group is one recipient and the records addressed to it, in input order.
type Group struct {
	Key       Key
	Side      billing.Side
	Recipient billing.Party
	Records   []billing.Record
}

// RecordIDs returns the ids of the group's records in order.
func (g *Group) RecordIDs() []string {
	ids := make([]string, len(g.Records))
	for i, r := range g.Records {
		ids[i] = r.ID
	}
	return ids
}

// Groups is an ordered partition of a selection.
type Groups struct {
	order []Key
	byKey map[Key]*Group
}

// Partition groups records by recipient. Every record lands in exactly one
// group. When records of a group spell the recipient differently, the
// smallest (name, email) pair wins.
func Partition(records []billing.Record) *Groups {
	gs := &Groups{byKey: make(map[Key]*Group)}
	for _, r := range records {
		k := KeyOf(r)
		side, party := r.Recipient()
		g, ok := gs.byKey[k]
		if !ok {
			g = &Group{Key: k, Side: side, Recipient: party}
			gs.byKey[k] = g
			gs.order = append(gs.order, k)
		} else if partyLess(party, g.Recipient) {
			g.Recipient = party
		}
		g.Records = append(g.Records, r)
	}
	sort.Slice(gs.order, func(i, j int) bool { return gs.order[i] < gs.order[j] })
	return gs
}

// Len returns the number of groups.
func (g *Groups) Len() int {
	return len(g.order)
}

// Keys returns the group keys in ascending order.
func (g *Groups) Keys() []Key {
	return append([]Key(nil), g.order...)
}

func (g *Groups) get(k Key) (*Group, bool) {
	grp, ok := g.byKey[k]
	return grp, ok
}

// All returns the groups in key order.
func (g *Groups) All() []*Group {
	out := make([]*Group, len(g.order))
	for i, k := range g.order {
		out[i] = g.byKey[k]
	}
	return out
}

func (g *Groups) size() int {
	n := 0
	for _, grp := range g.byKey {
		n += len(grp.Records)
	}
	return n
}
