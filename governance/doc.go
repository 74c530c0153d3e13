// Package governance provides clients for the custodian set governance
// contract in the key custody system.
//
// The custodian set contract records which nodes act as share custodians:
// each of the fixed node identities (alpha, beta, gamma) maps to an X25519
// public key and a network endpoint, and the contract publishes the release
// threshold that callers must satisfy before a file key can be reassembled.
// Keeping this mapping on chain gives every participant the same view of
// who holds shares and how many of them must cooperate.
//
// Two implementations of the CustodianSet interface are provided:
//
//   - CustodianSetClient binds to the on-chain contract and reads custodian
//     records and the release threshold directly from it. State-modifying
//     operations require transaction options to be set first.
//   - StaticCustodianSet holds the same records in memory. It backs tests
//     and single-operator deployments that configure custodians from flags
//     rather than from a contract.
//
// The CustodianSet interface methods:
//
//	// Lookup methods
//	func (c *CustodianSetClient) CustodianPublicKey(id interfaces.NodeID) (interfaces.NodePublicKey, error)
//	func (c *CustodianSetClient) CustodianEndpoint(id interfaces.NodeID) (string, error)
//	func (c *CustodianSetClient) ReleaseThreshold() (int, int, error)
//
//	// Registration methods
//	func (c *CustodianSetClient) RegisterCustodian(id interfaces.NodeID, pubkey interfaces.NodePublicKey, endpoint string) (*types.Transaction, error)
//
// Example usage:
//
//	client, err := governance.NewCustodianSetClient(ethClient, backend, contractAddr)
//	if err != nil {
//	    log.Fatalf("Failed to create custodian set client: %v", err)
//	}
//
//	// Set transaction options for state-modifying operations
//	client.SetTransactOpts(auth)
//
//	// Look up a custodian's share encryption key
//	pubkey, err := client.CustodianPublicKey(interfaces.AlphaNode)
//
//	// Read the release policy
//	threshold, total, err := client.ReleaseThreshold()
package governance
