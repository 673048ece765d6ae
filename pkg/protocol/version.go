package protocol

import (
	"fmt"

	"github.com/Masterminds/semver"
)

// Version is the protocol version spoken by this package. Peers are
// compatible when they share the major version.
const Version = "1.0.0"

// HealthStatus is the body returned by the health endpoint.
type HealthStatus struct {
	Status   string `json:"status"`
	Protocol string `json:"protocol"`
}

// EncodeHealth encodes a health body for the current protocol version.
func EncodeHealth() ([]byte, error) {
	return json.Marshal(HealthStatus{Status: "ok", Protocol: Version})
}

// DecodeHealth decodes a health body.
func DecodeHealth(data []byte) (HealthStatus, error) {
	var h HealthStatus
	if err := json.Unmarshal(data, &h); err != nil {
		return HealthStatus{}, fmt.Errorf("protocol: malformed health body: %w", err)
	}
	return h, nil
}

// CheckCompatible returns an error unless version is a release sharing the
// major version of Version.
func CheckCompatible(version string) error {
	own := semver.MustParse(Version)
	peer, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("protocol: invalid peer version %q: %w", version, err)
	}
	if peer.Prerelease() != "" || peer.Major() != own.Major() {
		return fmt.Errorf("protocol: peer version %s is incompatible with %s", peer, own)
	}
	return nil
}
