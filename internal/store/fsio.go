package store

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/natefinch/atomic"
)

// ReadJSON loads a JSON file into out. A missing or empty file is not an
// error; out is left untouched.
func ReadJSON(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// WriteJSON persists v as indented JSON via an atomic rename.
func WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}
