package handler

import (
	"encoding/json"
	"net/http"
)

// writeJSON сериализует ответ; ошибки кодирования на этом этапе уже не
// исправить, статус отправлен
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError отвечает JSON-ошибкой; детали остаются в логах сервера
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// NotFound — JSON 404 для неизвестных endpoint'ов
func NotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}
