package handlers

// Metadata keys set by the binder. They are reserved and should not be used
// for custom metadata.
const (
	// MetadataKeyCorrelationID tracks related messages across services.
	MetadataKeyCorrelationID = "correlation_id"

	// MetadataKeyPayloadType identifies the Go type a JSON payload was encoded from.
	MetadataKeyPayloadType = "payload_type"
)
