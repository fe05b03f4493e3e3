package storage

import (
	"encoding/json"
	"fmt"
)

// Documents are stored as JSON. JSON keeps the values inspectable with the
// pebble tooling and tolerant of field additions.

func encodeDoc(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

func decodeDoc(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return nil
}
