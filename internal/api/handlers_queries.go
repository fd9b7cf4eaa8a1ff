package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.reg.ListQueries())
}

func (s *Server) handleCreateQuery(w http.ResponseWriter, r *http.Request) {
	var spec model.QuerySpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, model.Wrap(model.ErrConfigParse, "decode query", err))
		return
	}
	if err := s.reg.CreateQuery(spec); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, spec)
}

func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	info, err := s.reg.GetQuery(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, info)
}

func (s *Server) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.DeleteQuery(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleStartQuery(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.StartQuery(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleStopQuery(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.StopQuery(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleQueryResults(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reg.GetQueryResults(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, rows)
}
