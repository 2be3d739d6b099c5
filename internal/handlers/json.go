package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

const maxBody = 2 << 20 // signatures arrive as data URLs

var errMalformed = errors.New("malformed JSON body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// readJSON reads a JSON body into v. An empty body leaves v untouched.
func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return errors.Wrap(errMalformed, err.Error())
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrap(errMalformed, err.Error())
	}
	return nil
}

// readObject returns the raw body after checking it is a JSON object.
func readObject(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	var obj map[string]json.RawMessage
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return nil, errors.Wrap(errMalformed, err.Error())
	}
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return nil, errMalformed
	}
	return body, nil
}
