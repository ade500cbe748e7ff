// Package metadata holds the header map carried alongside every bound message.
// Every helper returns a fresh map so headers are copied between pipeline
// stages, never shared.
package metadata

// Metadata represents the headers carried alongside a message.
type Metadata map[string]string

// Clone returns a shallow copy of the metadata map. Cloning nil yields an
// empty, writable map.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// WithDefaults returns a copy of m extended with the entries of defaults whose
// keys are not already present.
func (m Metadata) WithDefaults(defaults Metadata) Metadata {
	cloned := make(Metadata, len(m)+len(defaults))
	for k, v := range defaults {
		cloned[k] = v
	}
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}
