package contract

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
)

// BatchKey is the deterministic fingerprint of an ordered descriptor
// sequence plus any extra components (page parameter, block override).
// Structurally identical batches hash to the same key; reordering the
// descriptors changes it.
type BatchKey string

// KeyOf computes the batch key. Descriptors must be valid: calldata
// encoding is part of the fingerprint, so an unencodable descriptor is a
// configuration error.
func KeyOf(calls []CallDescriptor, extra ...interface{}) (BatchKey, error) {
	h := sha256.New()

	var idx [8]byte
	for i, c := range calls {
		binary.BigEndian.PutUint64(idx[:], uint64(i))
		h.Write(idx[:])
		h.Write(c.Address.Bytes())
		h.Write([]byte(c.Method))

		data, err := c.CallData()
		if err != nil {
			return "", NewConfigError("call %d (%s): %v", i, c.Method, err)
		}
		h.Write(data)

		binary.BigEndian.PutUint64(idx[:], c.ChainID)
		h.Write(idx[:])
	}

	for _, e := range extra {
		// JSON is canonical enough here: extras are page params and
		// block numbers, not arbitrary maps.
		raw, err := json.Marshal(e)
		if err != nil {
			return "", NewConfigError("unencodable key component: %v", err)
		}
		h.Write([]byte{0x00})
		h.Write(raw)
	}

	sum := h.Sum(nil)
	return BatchKey("batch:" + hex.EncodeToString(sum[:12])), nil
}
