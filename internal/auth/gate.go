package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"

	"messagely/internal/logutil"
	"messagely/internal/metrics"
)

// TokenField names the query parameter and body field that carry the token.
const TokenField = "_token"

// maxTokenBody bounds how much of a request body the gate reads while
// looking for the token field.
const maxTokenBody = 1 << 20

// Gate resolves the caller identity of inbound calls. It never rejects: an
// absent or invalid token leaves the call anonymous and the guards decide
// what anonymous callers may do.
type Gate struct {
	tokens TokenVerifier
}

// NewGate creates a gate verifying tokens with v.
func NewGate(v TokenVerifier) *Gate {
	return &Gate{tokens: v}
}

// Resolve verifies token and returns the identity it names. It returns
// false for an empty, malformed, forged or expired token.
func (g *Gate) Resolve(token string) (*Identity, bool) {
	if token == "" {
		metrics.GateResolutions.WithLabelValues(metrics.GateAnonymous).Inc()
		return nil, false
	}
	claims, err := g.tokens.Verify(token)
	if err != nil {
		metrics.GateResolutions.WithLabelValues(metrics.GateInvalid).Inc()
		return nil, false
	}
	metrics.GateResolutions.WithLabelValues(metrics.GateIdentified).Inc()
	return identityFromClaims(claims), true
}

// Middleware attaches the resolved identity, if any, to the request context
// and always calls next.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := g.Resolve(TokenFromRequest(r))
		if ok {
			r = r.WithContext(WithIdentity(r.Context(), id))
		} else {
			log := logutil.GetOrDefault(r.Context())
			log.Debug().Msg("Continuing without identity")
		}
		next.ServeHTTP(w, r)
	})
}

// TokenFromRequest returns the token from the query string or, failing
// that, from the JSON or form body. The whole body, including any part past
// maxTokenBody, is left readable for the next handler.
func TokenFromRequest(r *http.Request) string {
	if tok := r.URL.Query().Get(TokenField); tok != "" {
		return tok
	}
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxTokenBody))
	r.Body = replayBody{Reader: io.MultiReader(bytes.NewReader(raw), r.Body), Closer: r.Body}
	if err != nil || len(raw) == 0 || len(raw) >= maxTokenBody {
		return ""
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return ""
		}
		return values.Get(TokenField)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	var tok string
	if err := json.Unmarshal(body[TokenField], &tok); err != nil {
		return ""
	}
	return tok
}

// replayBody serves the bytes already read ahead of the rest of the
// original body and closes the original.
type replayBody struct {
	io.Reader
	io.Closer
}
