// Package storage defines the content-addressed payload store abstraction.
//
// Structural imports reference per-node payloads by content address; the
// store resolves those references. Blob payloads for actual learning content
// live in an external system and are tracked here only by checksum.
package storage

// Provider is the interface for content-addressed payload operations.
type Provider interface {
	// Read returns the raw bytes of the payload identified by ref
	// (e.g. "abc123.json").
	Read(ref string) ([]byte, error)
	// Write atomically stores data and returns its content-address
	// reference with the given extension.
	Write(data []byte, ext string) (string, error)
	// Exists reports whether the payload identified by ref is stored.
	Exists(ref string) bool
	// Missing filters refs down to those not present in the store.
	Missing(refs []string) []string
	// Delete removes the payload identified by ref.
	Delete(ref string) error
}
