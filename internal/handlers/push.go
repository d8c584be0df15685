package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// PushServer upgrades a request into a push channel for one platform
type PushServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, platform string)
}

// PushHandler handles GET /ws/{platform}
func PushHandler(server PushServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		server.ServeWS(w, r, chi.URLParam(r, "platform"))
	}
}
