package mpcgate

// Version is the release of the mpcgate binaries. Release builds override it with
// -ldflags "-X github.com/aretw0/mpcgate.Version=...".
var Version = "0.1.0-dev"
