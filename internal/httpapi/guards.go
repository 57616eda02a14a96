package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"messagely/internal/apperrors"
	"messagely/internal/auth"
)

// guardFor builds the guard of a route from the request path.
type guardFor func(r *http.Request) (auth.Guard, error)

// protect runs the route guards before h. The first rejection ends the
// request.
func (s *Server) protect(h http.HandlerFunc, builders ...guardFor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guards := make([]auth.Guard, 0, len(builders))
		for _, build := range builders {
			g, err := build(r)
			if err != nil {
				writeError(w, r, err)
				return
			}
			guards = append(guards, g)
		}
		if err := auth.Enforce(r.Context(), guards...); err != nil {
			writeError(w, r, err)
			return
		}
		h(w, r)
	}
}

func loggedIn(*http.Request) (auth.Guard, error) {
	return auth.RequireLoggedIn(), nil
}

func sameUser(r *http.Request) (auth.Guard, error) {
	return auth.RequireSameUser(mux.Vars(r)["username"]), nil
}

func (s *Server) participant(r *http.Request) (auth.Guard, error) {
	id, err := messageID(r)
	if err != nil {
		return auth.Guard{}, err
	}
	return s.authz.RequireMessageParticipant(id), nil
}

func (s *Server) recipient(r *http.Request) (auth.Guard, error) {
	id, err := messageID(r)
	if err != nil {
		return auth.Guard{}, err
	}
	return s.authz.RequireMessageRecipient(id), nil
}

func messageID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, apperrors.InvalidInput("Invalid message ID")
	}
	return id, nil
}
