package cache

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Key derives a stable cache key from an arbitrary request payload. The
// payload is serialized with sorted map keys before hashing, so equivalent
// requests hash identically regardless of field construction order.
func Key(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize cache payload: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}
