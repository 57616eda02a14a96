package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"messagely/internal/apperrors"
	"messagely/internal/auth"
	"messagely/internal/logutil"
)

type errorPayload struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func errorBody(message string, status int) map[string]errorPayload {
	return map[string]errorPayload{"error": {Message: message, Status: status}}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps err to its status. Internal errors are logged and replaced
// by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log := logutil.GetOrDefault(r.Context())
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, status, errorBody(apperrors.Message(err), status))
}

// decodeBody reads a JSON or url-encoded form body into dst. The token field
// is ignored.
func decodeBody(r *http.Request, dst interface{}) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return apperrors.InvalidInput("Malformed form body")
		}
		fields := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			if k != auth.TokenField {
				fields[k] = r.PostForm.Get(k)
			}
		}
		raw, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dst)
	}

	if r.Body == nil || r.Body == http.NoBody {
		return apperrors.InvalidInput("Request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.InvalidInput("Request body is required")
		}
		return apperrors.InvalidInput("Malformed JSON body")
	}
	return nil
}
