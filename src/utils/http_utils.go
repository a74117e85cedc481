package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/username/taxfolio/ledger/src/logger"
)

// GenerateETag creates a SHA256 hash of the JSON representation of the data.
func GenerateETag(data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data for ETag generation: %w", err)
	}
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}

// SendJSONError sends a JSON formatted error response.
func SendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	logger.L.Warn("Sending JSON error to client", "message", message, "statusCode", statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// SendJSONErrorKind sends a JSON error that also names the error kind, so clients can branch on it.
func SendJSONErrorKind(w http.ResponseWriter, kind, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	logger.L.Warn("Sending JSON error to client", "kind", kind, "message", message, "statusCode", statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "kind": kind})
}

// SendJSON writes data as JSON with the given status code.
func SendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L.Error("Failed to encode JSON response", "error", err)
	}
}
