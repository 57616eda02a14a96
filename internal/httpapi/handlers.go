package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"messagely/internal/auth"
	"messagely/internal/service"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleRegister creates the account and logs it in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	profile, err := s.users.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := s.tokens.Issue(profile.Username)
	if err != nil {
		writeError(w, r, fmt.Errorf("issue token: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.users.Login(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, r, err)
		return
	}

	token, err := s.tokens.Issue(req.Username)
	if err != nil {
		writeError(w, r, fmt.Errorf("issue token: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.All(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Get(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (s *Server) handleMessagesTo(w http.ResponseWriter, r *http.Request) {
	messages, err := s.users.MessagesTo(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

func (s *Server) handleMessagesFrom(w http.ResponseWriter, r *http.Request) {
	messages, err := s.users.MessagesFrom(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := messageID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	message, err := s.messages.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": message})
}

// handleCreateMessage sends a message from the caller.
func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.CurrentUser(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req service.CreateMessageInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	message, err := s.messages.Create(r.Context(), caller.Username, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"message": message})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := messageID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	receipt, err := s.messages.MarkRead(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": receipt})
}
