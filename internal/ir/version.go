package ir

// Version constants for the document encoding and the engine.
const (
	// FormatVersion is the version of the serialized Document layout.
	FormatVersion = 1

	// EngineVersion is the nexus engine version.
	EngineVersion = "0.1.0"
)
