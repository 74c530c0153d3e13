package storage

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/key-custody-backend/interfaces"
)

// memoryRegistry keeps memory backends alive across factory calls so
// repeated memory:// URIs resolve to the same instance.
type memoryRegistry struct {
	mu       sync.Mutex
	backends map[string]*MemoryBackend
}

func (mr *memoryRegistry) get(name string, log *slog.Logger) *MemoryBackend {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	if backend, ok := mr.backends[name]; ok {
		return backend
	}
	backend := NewMemoryBackend(name, log)
	mr.backends[name] = backend
	return backend
}

// StorageBackendFactory creates storage backends from location URIs and
// manages multi-backend configurations for redundant storage.
type StorageBackendFactory struct {
	log             *slog.Logger
	registryFactory interfaces.BoxRegistryFactory
	tlsAuth         func() (tls.Certificate, error)
	memory          *memoryRegistry
}

// NewStorageBackendFactory creates a new factory instance that can create storage backends.
// If registryFactory is provided, it will be used to create OnchainBackend instances.
func NewStorageBackendFactory(logger *slog.Logger, registryFactory interfaces.BoxRegistryFactory) *StorageBackendFactory {
	return &StorageBackendFactory{
		log:             logger,
		registryFactory: registryFactory,
		memory:          &memoryRegistry{backends: make(map[string]*MemoryBackend)},
	}
}

// WithTLSAuth returns a factory that supplies the given client
// certificate to backends that authenticate over TLS, currently Vault.
// The receiver is not modified.
func (sf *StorageBackendFactory) WithTLSAuth(certFn func() (tls.Certificate, error)) interfaces.StorageBackendFactory {
	clone := *sf
	clone.tlsAuth = certFn
	return &clone
}

// StorageBackendFor creates a storage backend from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:// - Local filesystem storage
//   - memory:// - In-process storage for tests and single-node setups
//   - s3:// - Amazon S3 or compatible object storage
//   - ipfs:// - IPFS distributed storage
//   - vault:// - HashiCorp Vault KV v2 secrets engine
//   - onchain:// - Storage in the box registry contract
//   - http:// or https:// - Read-only static content mirror
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (sf *StorageBackendFactory) StorageBackendFor(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	switch strings.ToLower(location.Scheme) {
	case "onchain":
		return sf.createOnchainBackend(location)
	case "ipfs":
		return sf.createIPFSBackend(location)
	case "s3":
		return sf.createS3Backend(location)
	case "file":
		return sf.createFileBackend(location)
	case "vault":
		return sf.createVaultBackend(location)
	case "memory":
		return sf.createMemoryBackend(location)
	case "http", "https":
		return NewHTTPBackend(location.Raw, sf.log), nil
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateMultiBackend creates a multi-storage backend from a list of location URIs.
// The multi-backend aggregates all valid backends, providing redundancy for storage operations.
// It will store content to all available backends and fetch from the first one that has the content.
// Returns an error if no valid backends could be created from the provided URIs.
func (sf *StorageBackendFactory) CreateMultiBackend(locationURIs []interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locationURIs))

	for _, uri := range locationURIs {
		backend, err := sf.StorageBackendFor(uri)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("locationURI", uri.String()))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}

	return NewMultiStorageBackend(backends, sf.log), nil
}

// createOnchainBackend creates a blockchain storage backend using the box registry contract.
// URI format: onchain://0x1234567890abcdef1234567890abcdef12345678
// The host part must be a valid Ethereum contract address.
func (sf *StorageBackendFactory) createOnchainBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating onchain backend", slog.String("uri", location.String()))

	// Parse contract address from host part
	addrHex := location.Host
	if !common.IsHexAddress(addrHex) {
		return nil, fmt.Errorf("invalid contract address: %s", addrHex)
	}

	contractAddr := common.HexToAddress(addrHex)
	var contractAddrBytes interfaces.ContractAddress
	copy(contractAddrBytes[:], contractAddr.Bytes())

	// Ensure we have a registry factory
	if sf.registryFactory == nil {
		return nil, fmt.Errorf("registry factory not configured")
	}

	registry, err := sf.registryFactory.RegistryFor(contractAddrBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to get registry for contract: %w", err)
	}

	return NewOnchainBackend(registry, contractAddrBytes, sf.log), nil
}

// createIPFSBackend creates an IPFS storage backend.
// URI format: ipfs://host:port/?gateway=true&timeout=30s
// The backend can connect to either an IPFS node or a gateway.
func (sf *StorageBackendFactory) createIPFSBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating IPFS backend", slog.String("uri", location.String()))

	// Parse host and port
	host, port, err := net.SplitHostPort(location.Host)
	if err != nil {
		host = location.Host
		port = "5001" // Default IPFS API port
	}

	// Check if this is a gateway
	useGateway := location.GetParamBool("gateway")

	// Parse timeout
	timeout := location.GetParam("timeout")
	if timeout == "" {
		timeout = "30s" // Default timeout
	}

	// Create the backend
	return NewIPFSBackend(host, port, useGateway, timeout, sf.log)
}

// createS3Backend creates an S3 or S3-compatible storage backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
// The backend supports both public buckets (read-only) and authenticated access.
func (sf *StorageBackendFactory) createS3Backend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating S3 backend", slog.String("uri", location.String()))

	// Get bucket name
	bucketName := location.Host

	// Parse path - remove leading slash
	path := strings.TrimPrefix(location.Path, "/")

	// Parse region and endpoint
	region := location.GetParam("region")
	if region == "" {
		region = "us-east-1" // Default region
	}

	endpoint := location.GetParam("endpoint")

	// Parse credentials embedded in the URI
	var accessKey, secretKey string
	if location.Auth != "" {
		accessKey, secretKey, _ = strings.Cut(location.Auth, ":")
		sf.log.Debug("Using embedded credentials for write access")
	} else {
		sf.log.Debug("No credentials provided, S3 bucket assumed to be public, write operations may fail")
	}

	// Create the backend
	return NewS3Backend(bucketName, path, region, endpoint, accessKey, secretKey, sf.log)
}

// createFileBackend creates a file system storage backend.
// URI format: file:///absolute/path/ or file://./relative/path/
// The backend stores content in a directory structure organized by content type.
func (sf *StorageBackendFactory) createFileBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", location.String()))

	// Get the path, handling relative vs absolute paths
	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}

	// Make sure path is not empty
	if path == "" {
		return nil, fmt.Errorf("empty path in file URI: %s", location.String())
	}

	// Create the backend
	return NewFileBackend(path, sf.log)
}

// createVaultBackend creates a HashiCorp Vault storage backend.
// URI format: vault://host:port/mount/path?token=...&insecure=true
// The first path element is the KV mount, the rest the data path within it.
// A TLS client certificate installed via WithTLSAuth is passed through.
func (sf *StorageBackendFactory) createVaultBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating Vault backend", slog.String("uri", location.String()))

	address := fmt.Sprintf("https://%s", location.Host)
	if location.GetParamBool("insecure") {
		address = fmt.Sprintf("http://%s", location.Host)
	}

	parts := strings.SplitN(strings.Trim(location.Path, "/"), "/", 2)
	mountPath := parts[0]
	if mountPath == "" {
		return nil, fmt.Errorf("vault URI missing mount path: %s", location.String())
	}

	dataPath := "custody"
	if len(parts) == 2 && parts[1] != "" {
		dataPath = parts[1]
	}

	token := location.GetParam("token")

	var clientCert *tls.Certificate
	if sf.tlsAuth != nil {
		cert, err := sf.tlsAuth()
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS client certificate: %w", err)
		}
		clientCert = &cert
	}

	return NewVaultBackend(address, mountPath, dataPath, token, clientCert, sf.log)
}

// createMemoryBackend returns the shared in-process backend for the URI.
// URI format: memory://name
func (sf *StorageBackendFactory) createMemoryBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	name := location.Host
	if name == "" {
		name = strings.Trim(location.Path, "/")
	}

	return sf.memory.get(name, sf.log), nil
}
