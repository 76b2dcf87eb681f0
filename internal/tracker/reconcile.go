package tracker

import (
	"sort"

	"github.com/jo-hoe/insightboard/internal/jobs"
)

// Options tunes reconciliation.
type Options struct {
	// StaleAfter is the number of reconciliations a placeholder may survive
	// before it is flagged stale. Zero disables the flag.
	StaleAfter int
}

// Reconcile merges a fresh authoritative list into current. Placeholders the
// incoming list supersedes are dropped, the authoritative subset is replaced
// wholesale, and the result lists surviving placeholders first and then the
// authoritative records, each newest first. current is not modified.
//
// A status already observed for an id never regresses, and a cached insight
// is carried over while the record stays DONE.
func Reconcile(current, authoritative []jobs.Record, opts Options) []jobs.Record {
	var placeholders []jobs.Record
	prev := make(map[string]jobs.Record)
	for _, r := range current {
		switch {
		case r.ID.IsSynthetic():
			placeholders = append(placeholders, r)
		case r.ID.IsAuthoritative():
			prev[r.ID.String()] = r
		}
	}

	incoming := make([]jobs.Record, 0, len(authoritative))
	seen := make(map[string]bool, len(authoritative))
	for _, r := range authoritative {
		id := r.ID.String()
		if !r.ID.IsAuthoritative() || seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := prev[id]; ok {
			r.Status = jobs.MergeStatus(p.Status, r.Status)
			if r.Insight == nil && r.Status == jobs.StatusDone {
				r.Insight = p.Insight
			}
		}
		incoming = append(incoming, r)
	}

	replacedBy := supersededPlaceholders(placeholders, incoming)

	out := make([]jobs.Record, 0, len(placeholders)+len(incoming))
	for i, p := range placeholders {
		if k := replacedBy[i]; k >= 0 {
			// The placeholder was already shown as p.Status.
			incoming[k].Status = jobs.MergeStatus(p.Status, incoming[k].Status)
			continue
		}
		p.MissedPolls++
		if opts.StaleAfter > 0 && p.MissedPolls >= opts.StaleAfter {
			p.Stale = true
		}
		out = append(out, p)
	}
	sortNewestFirst(out)
	sortNewestFirst(incoming)
	return append(out, incoming...)
}

// supersededPlaceholders returns, per placeholder, the index of the incoming
// record that now represents it, or -1. A placeholder that knows its server
// id matches by id only; the others are matched by Supersedes, oldest
// placeholder first, each incoming record standing in for at most one
// placeholder.
func supersededPlaceholders(placeholders, incoming []jobs.Record) []int {
	replacedBy := make([]int, len(placeholders))
	byID := make(map[string]int, len(incoming))
	for k, r := range incoming {
		byID[r.ID.String()] = k
	}
	claimed := make([]bool, len(incoming))

	var byName []int
	for i, p := range placeholders {
		replacedBy[i] = -1
		if p.ExpectedID == "" {
			byName = append(byName, i)
			continue
		}
		if k, ok := byID[p.ExpectedID]; ok {
			replacedBy[i] = k
			claimed[k] = true
		}
	}
	if len(byName) == 0 {
		return replacedBy
	}

	sort.SliceStable(byName, func(a, b int) bool {
		return placeholders[byName[a]].CreatedAt.Before(placeholders[byName[b]].CreatedAt)
	})
	candidates := make([]int, len(incoming))
	for k := range candidates {
		candidates[k] = k
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return incoming[candidates[a]].CreatedAt.Before(incoming[candidates[b]].CreatedAt)
	})

	for _, i := range byName {
		for _, k := range candidates {
			if claimed[k] {
				continue
			}
			if jobs.Supersedes(incoming[k], placeholders[i]) {
				replacedBy[i] = k
				claimed[k] = true
				break
			}
		}
	}
	return replacedBy
}

// Project prepends placeholder to current. If current already holds the
// record with the placeholder's server id (a poll can land before the
// acknowledgment), current is returned unchanged. Name matches are left to
// the next reconciliation.
func Project(current []jobs.Record, placeholder jobs.Record) []jobs.Record {
	if placeholder.ExpectedID != "" {
		if _, ok := Find(current, placeholder.ExpectedID); ok {
			return current
		}
	}
	out := make([]jobs.Record, 0, len(current)+1)
	out = append(out, placeholder)
	return append(out, current...)
}

// RemoveByID drops the records whose id string is one of ids.
func RemoveByID(current []jobs.Record, ids ...string) []jobs.Record {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			drop[id] = true
		}
	}
	out := make([]jobs.Record, 0, len(current))
	for _, r := range current {
		if !drop[r.ID.String()] {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the record with the given id string.
func Find(current []jobs.Record, id string) (jobs.Record, bool) {
	for _, r := range current {
		if r.ID.String() == id {
			return r, true
		}
	}
	return jobs.Record{}, false
}

func sortNewestFirst(recs []jobs.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
}
