package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/key-custody-backend/api/vaultapi"
	"github.com/ruteri/key-custody-backend/cmd/flags"
	"github.com/ruteri/key-custody-backend/custodianresolver"
	"github.com/ruteri/key-custody-backend/custody"
	"github.com/ruteri/key-custody-backend/governance"
	"github.com/ruteri/key-custody-backend/httpserver"
	"github.com/ruteri/key-custody-backend/interfaces"
	"github.com/ruteri/key-custody-backend/registry"
	"github.com/ruteri/key-custody-backend/storage"
	"github.com/ruteri/key-custody-backend/vaultservice"
	"github.com/urfave/cli/v2"
)

var VaultServiceLogFlag = flags.LogServiceFlagFn("vaultd")

var VaultSeedFlag = &cli.StringFlag{
	Name:    "vault-seed",
	EnvVars: []string{"VAULT_SEED"},
	Usage:   "hex-encoded 32-byte seed for the vault's sealing identity",
}

var WalletKeyFlag = &cli.StringFlag{
	Name:    "wallet-key",
	EnvVars: []string{"VAULT_WALLET_KEY"},
	Usage:   "hex-encoded private key for box registry transactions",
}

var CustodianEndpointFlag = &cli.StringSliceFlag{
	Name:  "custodian-endpoint",
	Usage: "custodian endpoint as <node>=<url>, repeat per node. Overrides DNS and registry discovery",
}

var CustodianZoneFlag = &cli.StringFlag{
	Name:  "custodian-zone",
	Usage: "DNS zone to resolve _<node>._custodian SRV records under",
}

var DevModeFlag = &cli.BoolFlag{
	Name:  "dev",
	Usage: "run self-contained with in-memory registry, storage and custodians",
}

func main() {
	app := &cli.App{
		Name:  "vaultd",
		Usage: "Serve the key custody API",
		Flags: append([]cli.Flag{
			flags.ListenAddrFlag,
			flags.RpcAddrFlag,
			flags.RegistryAddrFlag,
			flags.CustodianSetAddrFlag,
			flags.StorageFlag,
			VaultSeedFlag,
			WalletKeyFlag,
			CustodianEndpointFlag,
			CustodianZoneFlag,
			DevModeFlag,
			VaultServiceLogFlag,
		}, flags.CommonFlags...),
		Action: runVault,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runVault(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	listenAddr := cCtx.String(flags.ListenAddrFlag.Name)
	devMode := cCtx.Bool(DevModeFlag.Name)

	identity, err := vaultIdentity(cCtx, devMode)
	if err != nil {
		logger.Error("Failed to set up vault identity", "err", err)
		return err
	}

	var (
		custodians     interfaces.CustodianSet
		nodes          map[interfaces.NodeID]interfaces.ShareCustodian
		boxRegistry    interfaces.BoxRegistry
		storageFactory interfaces.StorageBackendFactory
	)

	if devMode {
		logger.Info("Running in dev mode with in-process custodians")
		custodians, nodes, boxRegistry, storageFactory, err = devWiring(logger)
	} else {
		custodians, nodes, boxRegistry, storageFactory, err = chainWiring(cCtx, logger)
	}
	if err != nil {
		return err
	}

	locations, err := storageLocations(cCtx.StringSlice(flags.StorageFlag.Name))
	if err != nil {
		logger.Error("Invalid storage configuration", "err", err)
		return err
	}

	vault, err := vaultservice.NewKeyVault(&vaultservice.KeyVaultConfig{
		Log:              logger,
		Custodians:       custodians,
		Nodes:            nodes,
		Registry:         boxRegistry,
		StorageFactory:   storageFactory,
		StorageLocations: locations,
		Identity:         identity,
	})
	if err != nil {
		logger.Error("Failed to create key vault", "err", err)
		return err
	}

	handler := vaultapi.NewHandler(vault, vaultservice.NewChallengeStore(0), logger)

	server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, listenAddr), handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")

	return nil
}

// vaultIdentity builds the vault's sealing identity. Direct-custody
// keys are sealed to this identity, so outside dev mode the seed is
// mandatory and the keypair must be stable across restarts.
func vaultIdentity(cCtx *cli.Context, devMode bool) (*custody.Identity, error) {
	seedHex := cCtx.String(VaultSeedFlag.Name)
	if seedHex == "" {
		if devMode {
			return custody.NewEphemeralIdentity()
		}
		return nil, errors.New("vault-seed is required outside dev mode")
	}

	seed, err := hex.DecodeString(seedHex)
	if err != nil || len(seed) != 32 {
		return nil, errors.New("invalid vault-seed: must be 64 hex chars (32 bytes)")
	}

	return custody.EphemeralFromSecretKey(sha256.Sum256(seed)), nil
}

// devWiring assembles an in-memory deployment: mock registry, memory
// storage factory, a static 2-of-3 custodian set, and three in-process
// custodian nodes with fresh identities.
func devWiring(logger *slog.Logger) (interfaces.CustodianSet, map[interfaces.NodeID]interfaces.ShareCustodian, interfaces.BoxRegistry, interfaces.StorageBackendFactory, error) {
	registryClient := registry.NewMockBoxRegistryClient()
	registryClient.SetTransactOpts()
	storageFactory := storage.NewStorageBackendFactory(logger, registry.NewMockBoxRegistryFactory(registryClient))

	custodians, err := governance.NewStaticCustodianSet(2, 3)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	identities, err := custody.NewIdentitySet(nil, custody.DeriveSHA256)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	nodes := make(map[interfaces.NodeID]interfaces.ShareCustodian)
	for _, id := range interfaces.AllNodeIDs() {
		identity, err := identities.Identity(id)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		node, err := vaultservice.NewCustodianNode(identity, logger)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if _, err := custodians.RegisterCustodian(id, identity.PublicKey(), ""); err != nil {
			return nil, nil, nil, nil, err
		}
		nodes[id] = node
	}

	return custodians, nodes, registryClient, storageFactory, nil
}

// chainWiring connects to the configured chain contracts and dials the
// custodian APIs discovered through endpoints, DNS, or the custodian
// set registry.
func chainWiring(cCtx *cli.Context, logger *slog.Logger) (interfaces.CustodianSet, map[interfaces.NodeID]interfaces.ShareCustodian, interfaces.BoxRegistry, interfaces.StorageBackendFactory, error) {
	rpcAddress := cCtx.String(flags.RpcAddrFlag.Name)

	registryAddr, err := interfaces.NewContractAddressFromHex(cCtx.String(flags.RegistryAddrFlag.Name))
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("invalid registry-contract: %w", err)
	}
	setAddr, err := interfaces.NewContractAddressFromHex(cCtx.String(flags.CustodianSetAddrFlag.Name))
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("invalid custodian-set-contract: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	logger.Info("Connecting to Ethereum RPC", "address", rpcAddress)
	ethClient, err := ethclient.Dial(rpcAddress)
	if err != nil {
		logger.Error("Failed to dial RPC", "err", err)
		return nil, nil, nil, nil, err
	}

	boxRegistry, err := registry.NewBoxRegistryClient(ethClient, ethClient, common.Address(registryAddr))
	if err != nil {
		logger.Error("Failed to bind box registry contract", "err", err)
		return nil, nil, nil, nil, err
	}

	if walletKeyHex := cCtx.String(WalletKeyFlag.Name); walletKeyHex != "" {
		walletKey, err := crypto.HexToECDSA(strings.TrimPrefix(walletKeyHex, "0x"))
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("invalid wallet-key: %w", err)
		}
		chainID, err := ethClient.ChainID(ctx)
		if err != nil {
			logger.Error("Failed to read chain id", "err", err)
			return nil, nil, nil, nil, err
		}
		auth, err := bind.NewKeyedTransactorWithChainID(walletKey, chainID)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		boxRegistry.SetTransactOpts(auth)
	} else {
		logger.Warn("No wallet key configured, uploads needing registry transactions will fail")
	}

	custodians, err := governance.NewCustodianSetClient(ethClient, ethClient, common.Address(setAddr))
	if err != nil {
		logger.Error("Failed to bind custodian set contract", "err", err)
		return nil, nil, nil, nil, err
	}

	storageFactory := storage.NewStorageBackendFactory(logger, registry.NewBoxRegistryFactory(ethClient, ethClient))

	resolver, err := custodianResolver(cCtx, custodians)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	nodes, err := custodianresolver.ResolveClients(ctx, resolver, 30*time.Second)
	if err != nil {
		logger.Warn("Some custodians are unavailable", "err", err, "reached", len(nodes))
	}

	threshold, _, err := custodians.ReleaseThreshold()
	if err != nil {
		logger.Error("Failed to read release threshold", "err", err)
		return nil, nil, nil, nil, err
	}
	if len(nodes) < threshold {
		logger.Warn("Fewer custodians reachable than the release threshold, releases will fail until they recover",
			"reached", len(nodes), "threshold", threshold)
	}

	return custodians, nodes, boxRegistry, storageFactory, nil
}

// custodianResolver picks the endpoint discovery scheme: explicit
// endpoints win, then a DNS zone, then the custodian set registry.
func custodianResolver(cCtx *cli.Context, custodians interfaces.CustodianSet) (custodianresolver.Resolver, error) {
	if endpoints := cCtx.StringSlice(CustodianEndpointFlag.Name); len(endpoints) > 0 {
		static := custodianresolver.StaticResolver{}
		for _, entry := range endpoints {
			node, url, found := strings.Cut(entry, "=")
			if !found {
				return nil, fmt.Errorf("invalid custodian-endpoint %q, expected <node>=<url>", entry)
			}
			id := interfaces.NodeID(node)
			if err := id.Validate(); err != nil {
				return nil, err
			}
			static[id] = url
		}
		return static, nil
	}

	if zone := cCtx.String(CustodianZoneFlag.Name); zone != "" {
		return custodianresolver.DNSResolver{Zone: zone}, nil
	}

	return custodianresolver.SetResolver{Set: custodians}, nil
}

// storageLocations parses and validates the configured replica URIs.
func storageLocations(uris []string) ([]interfaces.StorageBackendLocation, error) {
	if len(uris) == 0 {
		return nil, errors.New("at least one storage URI is required")
	}

	locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		location, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, fmt.Errorf("storage URI %q: %w", uri, err)
		}
		locations = append(locations, location)
	}
	return locations, nil
}
