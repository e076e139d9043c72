package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/boshu2/cuti-queue/internal/accounts"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	includeBackups := r.URL.Query().Get("include_backups") == "true"
	profiles, err := s.accts.List(includeBackups)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) handleUseAccount(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.accts.Use(name); err != nil {
		if err == accounts.ErrNotFound {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type saveAccountRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSaveAccount(w http.ResponseWriter, r *http.Request) {
	var req saveAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.accts.Save(req.Name); err != nil {
		if err == accounts.ErrNoActiveCredentials {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleNewAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.accts.New(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.accts.Delete(name); err != nil {
		if err == accounts.ErrNotFound {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	profile, err := s.accts.GetInfo(name)
	if err != nil {
		if err == accounts.ErrNotFound {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
