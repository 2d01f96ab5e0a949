package web

import (
	"encoding/json"
	"net/http"

	"github.com/mtzanidakis/agentcrew/internal/natsbus"
	"github.com/mtzanidakis/agentcrew/internal/store"
)

func (s *Server) registerSecretsAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/secrets", s.listSecrets)
	mux.HandleFunc("POST /api/secrets", s.saveSecret)
	mux.HandleFunc("DELETE /api/secrets/{name}", s.deleteSecret)
}

// requireVault answers 503 when no passphrase was configured.
func (s *Server) requireVault(w http.ResponseWriter) bool {
	if s.vault == nil {
		jsonError(w, "vault not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (s *Server) listSecrets(w http.ResponseWriter, r *http.Request) {
	if !s.requireVault(w) {
		return
	}
	secrets, err := s.vault.List()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if secrets == nil {
		secrets = []store.Secret{}
	}
	jsonResponse(w, secrets)
}

// saveSecret creates or replaces a secret. The value is never echoed back.
func (s *Server) saveSecret(w http.ResponseWriter, r *http.Request) {
	if !s.requireVault(w) {
		return
	}
	var body struct {
		Name        string `json:"name" validate:"required,max=128,excludesall=:"`
		Description string `json:"description"`
		Value       string `json:"value" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(body); err != nil {
		jsonError(w, "name and value are required, name may not contain colons", http.StatusBadRequest)
		return
	}

	if err := s.vault.Set(body.Name, body.Description, body.Value); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.events.Publish(natsbus.EventSecretSaved, map[string]string{"name": body.Name})

	jsonResponse(w, map[string]string{
		"name":        body.Name,
		"description": body.Description,
	})
}

func (s *Server) deleteSecret(w http.ResponseWriter, r *http.Request) {
	if !s.requireVault(w) {
		return
	}
	name := r.PathValue("name")
	deleted, err := s.vault.Delete(name)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !deleted {
		jsonError(w, "secret not found", http.StatusNotFound)
		return
	}
	s.events.Publish(natsbus.EventSecretDeleted, map[string]string{"name": name})
	jsonResponse(w, map[string]string{"status": "deleted"})
}
