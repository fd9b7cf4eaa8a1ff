package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.reg.ListSources())
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var spec model.SourceSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, model.Wrap(model.ErrConfigParse, "decode source", err))
		return
	}
	if err := s.reg.CreateSource(spec); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, spec)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	info, err := s.reg.GetSource(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, info)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.DeleteSource(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleStartSource(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.StartSource(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleStopSource(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.StopSource(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}
