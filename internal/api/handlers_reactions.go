package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func (s *Server) handleListReactions(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.reg.ListReactions())
}

func (s *Server) handleCreateReaction(w http.ResponseWriter, r *http.Request) {
	var spec model.ReactionSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, model.Wrap(model.ErrConfigParse, "decode reaction", err))
		return
	}
	if err := s.reg.CreateReaction(spec); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, spec)
}

func (s *Server) handleGetReaction(w http.ResponseWriter, r *http.Request) {
	info, err := s.reg.GetReaction(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, info)
}

func (s *Server) handleDeleteReaction(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.DeleteReaction(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleStartReaction(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.StartReaction(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleStopReaction(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.StopReaction(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}
