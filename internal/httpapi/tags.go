package httpapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bodega-app/bodega-api/internal/store"
)

type tagResp struct {
	Name string `json:"name"`
}

// ListTags handles GET /warehouses/{w}/tags: the distinct trimmed tags of
// the warehouse's live items, sorted.
func (s *Server) ListTags(w http.ResponseWriter, r *http.Request) {
	counts, err := s.tagCounts(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := make([]tagResp, 0, len(names))
	for _, name := range names {
		resp = append(resp, tagResp{Name: name})
	}
	writeJSON(w, 200, resp)
}

type tagCloudResp struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// TagCloud handles GET /warehouses/{w}/tags/cloud: tags with usage counts,
// most used first.
func (s *Server) TagCloud(w http.ResponseWriter, r *http.Request) {
	counts, err := s.tagCounts(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := make([]tagCloudResp, 0, len(counts))
	for tag, count := range counts {
		resp = append(resp, tagCloudResp{Tag: tag, Count: count})
	}
	sort.Slice(resp, func(i, j int) bool {
		if resp[i].Count != resp[j].Count {
			return resp[i].Count > resp[j].Count
		}
		return strings.ToLower(resp[i].Tag) < strings.ToLower(resp[j].Tag)
	})
	writeJSON(w, 200, resp)
}

func (s *Server) tagCounts(r *http.Request) (map[string]int, error) {
	items, err := store.ListItems(r.Context(), s.DB, chi.URLParam(r, "warehouseID"), store.ItemFilter{})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, it := range items {
		for _, tag := range it.Tags {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				counts[tag]++
			}
		}
	}
	return counts, nil
}
