package services

import (
	"container/heap"
	"encoding/base64"
	"encoding/json"

	"github.com/sightline-obs/sightline-core/internal/models"
)

// Merger interleaves per-source item streams into one timestamp-descending
// result. Ties on the timestamp rank traces above logs above metrics, then
// fall back to id order so pagination stays deterministic.
type Merger struct{}

func NewMerger() *Merger {
	return &Merger{}
}

// Merge combines the per-source streams (each already sorted newest first)
// and applies the limit to the combined stream, not per source.
func (m *Merger) Merge(streams map[models.SourceType][]models.SearchItem, limit int) []models.SearchItem {
	h := &mergeHeap{}
	for _, items := range streams {
		if len(items) > 0 {
			h.entries = append(h.entries, mergeEntry{items: items})
		}
	}
	heap.Init(h)

	out := make([]models.SearchItem, 0, limit)
	for h.Len() > 0 && len(out) < limit {
		e := &h.entries[0]
		out = append(out, e.items[e.pos])
		e.pos++
		if e.pos == len(e.items) {
			heap.Pop(h)
		} else {
			heap.Fix(h, 0)
		}
	}
	return out
}

type mergeEntry struct {
	items []models.SearchItem
	pos   int
}

type mergeHeap struct {
	entries []mergeEntry
}

func (h *mergeHeap) Len() int { return len(h.entries) }

func (h *mergeHeap) Less(i, j int) bool {
	a, b := h.entries[i].items[h.entries[i].pos], h.entries[j].items[h.entries[j].pos]
	return itemBefore(a, b)
}

func (h *mergeHeap) Swap(i, j int) { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }

func (h *mergeHeap) Push(x any) { h.entries = append(h.entries, x.(mergeEntry)) }

func (h *mergeHeap) Pop() any {
	old := h.entries
	n := len(old)
	e := old[n-1]
	h.entries = old[:n-1]
	return e
}

// itemBefore is the global result ordering: newest first, ties broken by
// source priority and then id.
func itemBefore(a, b models.SearchItem) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	pa, pb := models.SourcePriority(a.Source), models.SourcePriority(b.Source)
	if pa != pb {
		return pa < pb
	}
	return a.ID < b.ID
}

// EncodeCursor packs the per-source backend resume positions into an opaque
// continuation token. An empty map yields an empty token, meaning the result
// set is exhausted.
func EncodeCursor(positions map[models.SourceType]string) string {
	if len(positions) == 0 {
		return ""
	}
	raw, err := json.Marshal(positions)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(raw)
}

// DecodeCursor unpacks a continuation token. Tokens that do not decode to a
// per-source position map are rejected as stale or malformed.
func DecodeCursor(cursor string) (map[models.SourceType]string, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, &models.ValidationError{Reason: "cursor is not a valid continuation token"}
	}
	positions := make(map[models.SourceType]string)
	if err := json.Unmarshal(raw, &positions); err != nil {
		return nil, &models.ValidationError{Reason: "cursor is not a valid continuation token"}
	}
	for s := range positions {
		switch s {
		case models.SourceLogs, models.SourceMetrics, models.SourceTraces:
		default:
			return nil, &models.ValidationError{Reason: "cursor references an unknown source"}
		}
	}
	return positions, nil
}
