package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmarch/polymarket-trader/pkg/types"
)

func (s *Server) handleAccountList(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Accounts.List())
}

func (s *Server) handleAccountCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	acct, err := s.cfg.Accounts.Create(req.Name)
	if err != nil {
		s.writeError(w, accountErrStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, acct)
}

func (s *Server) handleAccountRename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	acct, err := s.cfg.Accounts.Rename(id, req.Name)
	if err != nil {
		s.writeError(w, accountErrStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleAccountDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.cfg.Accounts.Delete(id); err != nil {
		s.writeError(w, accountErrStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func accountErrStatus(err error) int {
	if types.IsKind(err, types.KindValidation) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
