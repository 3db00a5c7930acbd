package io

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/talusfx/hab/pkg/errors"
)

// DumpsJSON encodes v as canonical JSON: map keys sorted, no
// insignificant whitespace. Freeze encoding depends on this form being
// stable for a given input.
func DumpsJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "unable to encode json")
	}
	return data, nil
}

// WriteJSON writes v to path as indented JSON for human consumption.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "unable to encode json")
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "unable to write %s", path)
	}
	return nil
}

// WriteFileAtomic writes data to path so readers never observe a
// partial file. The content is staged in a uniquely named temp file in
// the same directory and renamed into place.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "unable to stage %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(errors.ErrCodeInternal, err, "unable to replace %s", path)
	}
	return nil
}
