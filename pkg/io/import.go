package io

import (
	"encoding/json"
	"os"

	"github.com/tailscale/hujson"

	"github.com/talusfx/hab/pkg/errors"
)

// Standardize converts relaxed JSON (comments, trailing commas) into
// strict JSON. Already-strict input is returned unchanged.
func Standardize(data []byte) ([]byte, error) {
	out, err := hujson.Standardize(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid json")
	}
	return out, nil
}

// LoadJSON reads the file at path and returns its contents as strict
// JSON bytes.
//
// Errors carry the file path so callers can surface which of many
// globbed files failed to parse.
func LoadJSON(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "unable to read %s", path)
	}
	out, err := hujson.Standardize(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid json in %s", path)
	}
	return out, nil
}

// DecodeJSON reads the file at path and unmarshals it into v.
func DecodeJSON(path string, v any) error {
	data, err := LoadJSON(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid json in %s", path)
	}
	return nil
}
