package handlers

import (
	"net/http"

	"github.com/google/uuid"
)

const sessionCookie = "goesview_session"

// viewerSession returns the caller's viewer session id and issues a new one
// when the cookie is missing or malformed. Call it before writing the body.
func viewerSession(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
