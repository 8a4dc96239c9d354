package handler

import (
	"encoding/json"
	"net/http"
)

// Envelope is the response wrapper for every endpoint.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type redirectData struct {
	RedirectURL string `json:"redirectUrl"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Envelope{Success: true, Message: msg})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, Envelope{Success: false, Code: code, Message: msg})
}

// decode reads a JSON body into v, rejecting unknown shapes with 400.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return false
	}
	return true
}
