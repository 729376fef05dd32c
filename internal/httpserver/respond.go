package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope is the standard response shape for every control-plane endpoint:
// {status: "success"|"failed", message, data?}.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// RespondOK writes a success envelope with the given HTTP status and data.
func RespondOK(w http.ResponseWriter, status int, message string, data any) {
	respond(w, status, Envelope{Status: "success", Message: message, Data: data})
}

// RespondErr writes a failed envelope with the given HTTP status and message.
func RespondErr(w http.ResponseWriter, status int, message string) {
	respond(w, status, Envelope{Status: "failed", Message: message})
}

func respond(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("encoding response", "error", err)
	}
}
