// Package search ranks a warehouse's items against a free-text query.
// The scoring ladder is fixed: the first matching rule wins, zero-scoring
// items are dropped, and ties order by name then recency.
package search

import (
	"sort"
	"strings"

	"github.com/bodega-app/bodega-api/internal/model"
)

// Scoring ladder, first match wins.
const (
	ScoreNameExact   = 100
	ScoreNamePrefix  = 90
	ScoreNameSub     = 80
	ScoreAlias       = 70
	ScoreTag         = 60
	ScoreContext     = 50 // description, box path, physical location
)

// Score rates item against the lowercased query q. pathText is the item's
// box path joined with " > ", already lowercased.
func Score(item *model.Item, q, pathText string) int {
	name := strings.ToLower(item.Name)

	switch {
	case name == q:
		return ScoreNameExact
	case strings.HasPrefix(name, q):
		return ScoreNamePrefix
	case strings.Contains(name, q):
		return ScoreNameSub
	}

	for _, alias := range item.Aliases {
		if strings.Contains(strings.ToLower(alias), q) {
			return ScoreAlias
		}
	}
	for _, tag := range item.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return ScoreTag
		}
	}

	desc := ""
	if item.Description != nil {
		desc = strings.ToLower(*item.Description)
	}
	loc := ""
	if item.PhysicalLocation != nil {
		loc = strings.ToLower(*item.PhysicalLocation)
	}
	if strings.Contains(desc, q) || strings.Contains(pathText, q) || strings.Contains(loc, q) {
		return ScoreContext
	}
	return 0
}

// Rank filters and orders items for query q: score desc, then name asc
// (case-insensitive), then created_at desc. pathOf supplies each item's
// lowercased box-path text.
func Rank(items []model.Item, q string, pathOf func(item *model.Item) string) []model.Item {
	q = strings.ToLower(strings.TrimSpace(q))

	type scored struct {
		score int
		item  model.Item
	}
	ranked := make([]scored, 0, len(items))
	for i := range items {
		s := Score(&items[i], q, pathOf(&items[i]))
		if s > 0 {
			ranked = append(ranked, scored{score: s, item: items[i]})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		ni, nj := strings.ToLower(ranked[i].item.Name), strings.ToLower(ranked[j].item.Name)
		if ni != nj {
			return ni < nj
		}
		return ranked[i].item.CreatedAt.After(ranked[j].item.CreatedAt)
	})

	out := make([]model.Item, len(ranked))
	for i := range ranked {
		out[i] = ranked[i].item
	}
	return out
}

// SortNewestFirst is the no-query ordering: created_at desc.
func SortNewestFirst(items []model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

// FilterTag keeps items carrying tag (case-insensitive exact match).
func FilterTag(items []model.Item, tag string) []model.Item {
	needle := strings.ToLower(strings.TrimSpace(tag))
	if needle == "" {
		return items
	}
	out := items[:0:0]
	for _, item := range items {
		for _, t := range item.Tags {
			if strings.ToLower(t) == needle {
				out = append(out, item)
				break
			}
		}
	}
	return out
}
