// Package registry provides clients for the on-chain box registry
// contract that anchors the custody system's authorization state.
//
// The package implements the interfaces.BoxRegistry interface, allowing
// the backend to interact with a box registry contract deployed on
// Ethereum-compatible blockchains.
//
// The contract records, per box:
//
//   - The owner wallet that registered the box
//   - The content IDs of the encrypted payload and share bundle
//   - The storage backend URIs holding encrypted replicas
//   - Whether the file key was sharded across custodians
//   - Access grants that allow other wallets to request the key
//
// It also acts as a small content store for share bundles and payloads
// (see storage.OnchainBackend), keyed by SHA-256 like every other
// backend.
//
// # Clients
//
// BoxRegistryClient talks to a deployed contract through go-ethereum's
// bind package. Read operations work immediately; state-changing
// operations require SetTransactOpts with a funded transactor:
//
//	client, err := registry.NewBoxRegistryClient(ethClient, ethClient, contractAddr)
//	client.SetTransactOpts(auth)
//	tx, err := client.RegisterBox(box)
//
// MockBoxRegistryClient keeps the same semantics in memory for tests
// and local development, including the owner's implicit grant and the
// transact-opts gate.
//
// # Factories
//
// BoxRegistryFactory and MockBoxRegistryFactory create clients per
// contract address, satisfying interfaces.BoxRegistryFactory for
// consumers like the storage backend factory.
package registry
