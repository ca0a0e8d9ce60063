package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/sensorthings-bridge/internal/entity"
)

// entityResponse is one entity with its live state.
type entityResponse struct {
	UniqueID string       `json:"unique_id"`
	Name     string       `json:"name"`
	Kind     string       `json:"kind"`
	ThingID  string       `json:"thing_id"`
	Category string       `json:"category,omitempty"`
	State    entity.State `json:"state"`
}

func toEntityResponse(e entity.Entity) entityResponse {
	rec := e.Record()
	return entityResponse{
		UniqueID: rec.UniqueID,
		Name:     rec.Name,
		Kind:     string(rec.Kind),
		ThingID:  rec.ThingID,
		Category: rec.Category,
		State:    e.State(),
	}
}

// handleListEntities returns every entity with its current state.
func (s *Server) handleListEntities(w http.ResponseWriter, _ *http.Request) {
	entities := s.manager.Entities()

	out := make([]entityResponse, 0, len(entities))
	for _, e := range entities {
		out = append(out, toEntityResponse(e))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entities": out,
		"count":    len(out),
	})
}

// handleGetEntity returns one entity by unique ID.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	uniqueID := chi.URLParam(r, "uniqueID")

	e, ok := s.manager.Get(uniqueID)
	if !ok {
		writeNotFound(w, "entity not found: "+uniqueID)
		return
	}

	writeJSON(w, http.StatusOK, toEntityResponse(e))
}
