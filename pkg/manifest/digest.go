package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	digest "github.com/opencontainers/go-digest"
)

// HashFunction is the content hash algorithm used for file entries (spec
// §3.1: "Hash is a hex-encoded SHA-256 when present").
const HashFunction = digest.SHA256

// Digest wraps github.com/opencontainers/go-digest's algorithm-tagged
// digest type. Internally it carries the algorithm, but its JSON wire
// representation is the bare hex string specified in spec §6.1, so a
// manifest file never shows the "sha256:" prefix.
type Digest struct {
	digest.Digest
}

// EmptyDigest is the zero value, representing an absent hash (spec §3.1:
// "may be absent on freshly scanned local entries").
var EmptyDigest Digest

// IsEmpty reports whether the digest is absent.
func (d Digest) IsEmpty() bool {
	return d.Digest == ""
}

// NewDigest wraps a raw hex-encoded SHA-256 string as a Digest.
func NewDigest(hexString string) (Digest, error) {
	if hexString == "" {
		return EmptyDigest, nil
	}
	d := digest.NewDigestFromEncoded(HashFunction, hexString)
	if err := d.Validate(); err != nil {
		return EmptyDigest, err
	}
	return Digest{d}, nil
}

// HashFile computes the SHA-256 digest of r's content.
func HashFile(r io.Reader) (Digest, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return EmptyDigest, err
	}
	return Digest{digest.NewDigestFromBytes(HashFunction, h.Sum(nil))}, nil
}

// Hex returns the bare hex-encoded digest value, without the algorithm
// prefix, matching the wire format of spec §6.1.
func (d Digest) Hex() string {
	if d.IsEmpty() {
		return ""
	}
	return d.Digest.Encoded()
}

// Equal reports whether two digests represent the same content. Two empty
// digests are considered equal (both represent "no hash computed"), per
// spec §3.5's fallback-to-metadata rule, which is handled one level up by
// Entry.Equal.
func (d Digest) Equal(other Digest) bool {
	return d.Digest == other.Digest
}

// MarshalJSON implements json.Marshaler, emitting the bare hex digest (or
// an empty string) as specified in spec §6.1.
func (d Digest) MarshalJSON() ([]byte, error) {
	if d.IsEmpty() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.Hex() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler, parsing a bare hex digest.
func (d *Digest) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("digest must be a JSON string")
	}
	raw := string(data[1 : len(data)-1])
	if raw == "" {
		*d = EmptyDigest
		return nil
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return errors.New("digest is not valid hex")
	}
	parsed, err := NewDigest(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
