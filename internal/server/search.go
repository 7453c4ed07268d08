package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

// searchRequest is the /api/search/similarity body.
type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// searchResult is one ranked hit.
type searchResult struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// handleSearch ranks stored documents against the query. The scoring here is
// a plain token-overlap baseline; production deployments point this at an
// external vector search service.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	docs, err := s.documents.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list documents", "err", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	queryTokens := tokenize(req.Query)
	results := make([]searchResult, 0, len(docs))
	for _, doc := range docs {
		score := overlap(queryTokens, tokenize(doc.Title+" "+doc.Content))
		if score == 0 {
			continue
		}
		results = append(results, searchResult{
			ID:      doc.ID,
			Title:   doc.Title,
			Score:   score,
			Snippet: truncate(doc.Content, 200),
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if len(f) > 2 {
			tokens[f] = struct{}{}
		}
	}
	return tokens
}

func overlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	matches := 0
	for tok := range query {
		if _, ok := doc[tok]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}
