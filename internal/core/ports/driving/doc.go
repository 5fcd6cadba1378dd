// Package driving declares the inbound ports of the core: the interfaces
// the CLI and HTTP adapters call into.
package driving
