// Package driven declares the outbound ports of the core: the interfaces
// infrastructure adapters implement so services can stay free of network
// and filesystem concerns.
package driven
