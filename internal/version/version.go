// Package version holds build identification for the station.
package version

// Version is reported to real-time clients as the "version" ack.
// Overridden at build time with -ldflags "-X .../internal/version.Version=...".
var Version = "dev"

// Product is the name reported in startup logs.
const Product = "airwave"
