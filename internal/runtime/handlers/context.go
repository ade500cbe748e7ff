package handlers

import (
	"strconv"

	loggingpkg "github.com/drblury/sqsbinder/internal/runtime/logging"
	metadatapkg "github.com/drblury/sqsbinder/internal/runtime/metadata"
)

// MessageContextBase holds the headers and logger handed to typed handlers.
type MessageContextBase struct {
	Metadata metadatapkg.Metadata
	Logger   loggingpkg.ServiceLogger
}

// CloneMetadata returns a copy of the current metadata map so handlers can safely
// mutate headers for outgoing messages without touching the original map.
func (b MessageContextBase) CloneMetadata() metadatapkg.Metadata {
	return b.Metadata.Clone()
}

// Get retrieves a metadata value by key.
func (b MessageContextBase) Get(key string) string {
	return b.Metadata[key]
}

// CorrelationID returns the correlation ID from metadata, if present.
func (b MessageContextBase) CorrelationID() string {
	return b.Metadata[MetadataKeyCorrelationID]
}

// Partition returns the partition index carried in header. ok is false when the
// header is missing or not a number.
func (b MessageContextBase) Partition(header string) (partition int, ok bool) {
	v, present := b.Metadata[header]
	if !present {
		return 0, false
	}
	partition, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return partition, true
}
