package httpapi

import (
	"encoding/json"
	"net/http"

	app "github.com/concord-network/substrate/internal/app"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func handleDescriptors(application *app.Application) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(application.Descriptors()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
