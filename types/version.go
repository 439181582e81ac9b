package types

// Version is the canonical tool version.
// It is also the pwin tag recorded in container histories written by this tool.
const Version = "0.4.0"

// FormatVersion is the container format version written into new index files.
// Readers accept any version >= MinFormatVersion.
const FormatVersion = 4

// MinFormatVersion is the oldest container format version readers accept.
const MinFormatVersion = 4
