package server

import (
  "encoding/json"
  "net/http"

  "github.com/go-chi/chi/v5/middleware"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
  w.Header().Set("Content-Type", "application/json")
  w.WriteHeader(status)
  if payload != nil {
    _ = json.NewEncoder(w).Encode(payload)
  }
}

type apiError struct {
  Error string `json:"error"`
  RequestID string `json:"request_id,omitempty"`
}

// writeError answers with the message and the request id so a failing call
// can be matched to its log line.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
  writeJSON(w, status, apiError{Error: message, RequestID: middleware.GetReqID(r.Context())})
}
