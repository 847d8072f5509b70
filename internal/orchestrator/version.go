package orchestrator

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// VersionLength is the number of hex characters in a deployment version.
const VersionLength = 8

const maxVersionAttempts = 16

// NewVersion reads random bytes from r until their hex form differs from
// prev. Skaffold compares it against the run-id of the last rollout.
func NewVersion(r io.Reader, prev string) (string, error) {
	buf := make([]byte, VersionLength/2)
	for i := 0; i < maxVersionAttempts; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("generate deployment version: %w", err)
		}
		if v := hex.EncodeToString(buf); v != prev {
			return v, nil
		}
	}
	return "", errors.New("generate deployment version: random source keeps repeating the previous version")
}
