package version

var (
	// Version is the semantic version of the pegbridge binary.
	Version = "0.1.0"

	// GitHash is set at build time via -ldflags.
	GitHash = ""

	// Timestamp is set at build time via -ldflags.
	Timestamp = ""
)
