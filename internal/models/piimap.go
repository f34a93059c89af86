package models

import (
	"strconv"
	"strings"
)

// RawMap is the unencrypted association from tag key ("{TYPE}_{id}") to the
// original matched text. Keys are unique within one map; a later write with
// the same key overwrites the earlier value. A RawMap is transient: it exists
// in memory only between decryption and re-encryption.
type RawMap map[string]string

// Clone returns a shallow copy. A nil map clones to an empty, writable map.
func (m RawMap) Clone() RawMap {
	out := make(RawMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MaxID returns the highest entity ID present in the map's keys, or 0 when
// the map is empty. Keys that do not end in "_<digits>" are ignored.
func (m RawMap) MaxID() int {
	max := 0
	for k := range m {
		idx := strings.LastIndexByte(k, '_')
		if idx < 0 {
			continue
		}
		id, err := strconv.Atoi(k[idx+1:])
		if err != nil {
			continue
		}
		if id > max {
			max = id
		}
	}
	return max
}

// EncryptedMap is the encrypted wire format: three independently
// base64-encoded fields. The IV decodes to 12 bytes and the auth tag to
// 16 bytes (128 bits).
type EncryptedMap struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
}

// StoredMap is an encrypted map plus its persistence metadata. Timestamps are
// integer unix milliseconds. CreatedAt is sticky: once set, only an explicit
// override changes it. UpdatedAt advances on every successful write.
type StoredMap struct {
	EncryptedMap
	CreatedAt    int64          `json:"created_at"`
	UpdatedAt    int64          `json:"updated_at"`
	EntityCounts map[string]int `json:"entity_counts,omitempty"`
	ModelVersion string         `json:"model_version,omitempty"`
}

// SumCounts returns the elementwise sum of two entity-count maps.
// Returns nil when both inputs are empty.
func SumCounts(a, b map[string]int) map[string]int {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]int, len(a)+len(b))
	for k, v := range a {
		out[k] += v
	}
	for k, v := range b {
		out[k] += v
	}
	return out
}
