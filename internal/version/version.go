package version

// Version is the current release of marker-scout
const Version = "0.3.0"
