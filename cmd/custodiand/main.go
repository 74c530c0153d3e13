package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/key-custody-backend/api/custodianapi"
	"github.com/ruteri/key-custody-backend/cmd/flags"
	"github.com/ruteri/key-custody-backend/cryptoutils"
	"github.com/ruteri/key-custody-backend/custody"
	"github.com/ruteri/key-custody-backend/httpserver"
	"github.com/ruteri/key-custody-backend/interfaces"
	"github.com/ruteri/key-custody-backend/vaultservice"
	"github.com/urfave/cli/v2"
)

var CustodianServiceLogFlag = flags.LogServiceFlagFn("custodiand")

var CustodianListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8181",
	Usage: "address to listen on for API",
}

var NodeIDFlag = &cli.StringFlag{
	Name:     "node-id",
	Required: true,
	Usage:    "custodian node identifier: alpha, beta or gamma",
}

var SeedFlag = &cli.StringFlag{
	Name:    "seed",
	EnvVars: []string{"CUSTODIAN_SEED"},
	Usage:   "hex-encoded identity seed. Skips admin provisioning",
}

var SeedFileFlag = &cli.StringFlag{
	Name:  "seed-file",
	Usage: "path to the sealed seed file. Read at startup, written after admin provisioning",
}

var SeedPassphraseFlag = &cli.StringFlag{
	Name:    "seed-passphrase",
	EnvVars: []string{"CUSTODIAN_SEED_PASSPHRASE"},
	Usage:   "passphrase protecting the seed file at rest",
}

var DerivationFlag = &cli.StringFlag{
	Name:  "derivation",
	Value: "hkdf",
	Usage: "seed derivation scheme for the seed flag: sha256 or hkdf",
}

var AdminKeysFileFlag = &cli.StringFlag{
	Name:  "admin-keys-file",
	Usage: "JSON file with admin public keys, enables seed provisioning over the admin API",
}

var BootstrapTimeoutFlag = &cli.IntFlag{
	Name:  "bootstrap-timeout",
	Value: 300,
	Usage: "timeout in seconds for admin seed provisioning",
}

func main() {
	app := &cli.App{
		Name:  "custodiand",
		Usage: "Serve one custodian node's share API",
		Flags: append([]cli.Flag{
			CustodianListenAddrFlag,
			NodeIDFlag,
			SeedFlag,
			SeedFileFlag,
			SeedPassphraseFlag,
			DerivationFlag,
			AdminKeysFileFlag,
			BootstrapTimeoutFlag,
			CustodianServiceLogFlag,
		}, flags.CommonFlags...),
		Action: runCustodian,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runCustodian(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	listenAddr := cCtx.String(CustodianListenAddrFlag.Name)

	nodeID := interfaces.NodeID(cCtx.String(NodeIDFlag.Name))
	if err := nodeID.Validate(); err != nil {
		logger.Error("Invalid node-id", "err", err)
		return err
	}
	logger = logger.With("node", nodeID)

	identity, err := loadIdentity(cCtx, logger, nodeID)
	if err != nil {
		logger.Error("Failed to load node identity", "err", err)
		return err
	}

	var adminHandler *custodianapi.AdminHandler
	if identity == nil {
		adminHandler, identity, err = provisionIdentity(cCtx, logger, nodeID, listenAddr)
		if err != nil {
			return err
		}
	}

	node, err := vaultservice.NewCustodianNode(identity, logger)
	if err != nil {
		logger.Error("Failed to create custodian node", "err", err)
		return err
	}
	logger.Info("Custodian node ready", "public_key", identity.PublicKey())

	handlers := []httpserver.RouteRegistrar{custodianapi.NewHandler(node, logger)}
	if adminHandler != nil {
		// Keep /admin/status observable after provisioning.
		handlers = append(handlers, adminHandler)
	}

	server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, listenAddr), handlers...)
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

// loadIdentity derives the node identity from the seed flag or the
// sealed seed file. A nil identity with a nil error means neither
// source holds a seed yet.
func loadIdentity(cCtx *cli.Context, logger *slog.Logger, nodeID interfaces.NodeID) (*custody.Identity, error) {
	if seedHex := cCtx.String(SeedFlag.Name); seedHex != "" {
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			return nil, fmt.Errorf("invalid seed: %w", err)
		}
		derivation, err := custody.ParseSeedDerivation(cCtx.String(DerivationFlag.Name))
		if err != nil {
			return nil, err
		}
		return custody.IdentityFromSeed(nodeID, seed, derivation)
	}

	seedFile := cCtx.String(SeedFileFlag.Name)
	if seedFile == "" {
		return nil, nil
	}
	if _, err := os.Stat(seedFile); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	passphrase := cCtx.String(SeedPassphraseFlag.Name)
	if passphrase == "" {
		return nil, errors.New("seed-passphrase is required to open the sealed seed file")
	}

	seed, derivation, err := openSeedFile(seedFile, nodeID, []byte(passphrase))
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded sealed seed", "file", seedFile)

	return custody.IdentityFromSeed(nodeID, seed, derivation)
}

// provisionIdentity serves only the admin API until an administrator
// posts a seed, then shuts that server down so the caller can start
// the full one.
func provisionIdentity(cCtx *cli.Context, logger *slog.Logger, nodeID interfaces.NodeID, listenAddr string) (*custodianapi.AdminHandler, *custody.Identity, error) {
	adminKeysFile := cCtx.String(AdminKeysFileFlag.Name)
	if adminKeysFile == "" {
		return nil, nil, errors.New("no identity seed available: provide seed, seed-file, or admin-keys-file")
	}

	seedFile := cCtx.String(SeedFileFlag.Name)
	passphrase := cCtx.String(SeedPassphraseFlag.Name)
	if seedFile != "" && passphrase == "" {
		return nil, nil, errors.New("seed-passphrase is required to persist the provisioned seed")
	}

	logger.Info("Loading admin keys", "file", adminKeysFile)
	adminKeysData, err := os.Open(adminKeysFile)
	if err != nil {
		logger.Error("Failed to open admin keys file", "err", err)
		return nil, nil, err
	}
	defer adminKeysData.Close()

	adminKeys, err := custodianapi.LoadAdminKeys(adminKeysData)
	if err != nil {
		logger.Error("Failed to load admin keys", "err", err)
		return nil, nil, err
	}
	logger.Info("Admin keys loaded successfully", "count", len(adminKeys))

	sink := persistSeedSink(logger, nodeID, seedFile, []byte(passphrase))
	adminHandler, err := custodianapi.NewAdminHandler(logger, nodeID, adminKeys, sink)
	if err != nil {
		return nil, nil, err
	}

	bootstrapSrv, err := httpserver.New(flags.ConfigureServer(cCtx, logger, listenAddr), adminHandler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return nil, nil, err
	}

	logger.Info("Starting server in provisioning mode")
	bootstrapSrv.RunInBackground()

	timeout := time.Duration(cCtx.Int(BootstrapTimeoutFlag.Name)) * time.Second
	logger.Info("Waiting for an administrator to provision the seed", "timeout", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	identity, err := adminHandler.WaitForIdentity(ctx)
	if err != nil {
		logger.Error("Seed provisioning failed", "err", err)
		return nil, nil, err
	}

	logger.Info("Seed provisioned, restarting with custodian API enabled")
	bootstrapSrv.Shutdown()

	return adminHandler, identity, nil
}

// persistSeedSink seals provisioned seeds to disk. With no seed file
// configured the seed stays in memory only.
func persistSeedSink(logger *slog.Logger, nodeID interfaces.NodeID, path string, passphrase []byte) custodianapi.SeedSink {
	return func(seed []byte, derivation custody.SeedDerivation) error {
		if path == "" {
			logger.Warn("No seed-file configured, provisioned seed will not survive restarts")
			return nil
		}
		if err := sealSeedFile(path, nodeID, passphrase, seed, derivation); err != nil {
			return err
		}
		logger.Info("Sealed provisioned seed to disk", "file", path)
		return nil
	}
}

// sealedSeedFile is the on-disk form of a provisioned seed: the seed
// sealed under an Argon2id passphrase key, plus the derivation the
// identity must be rebuilt with.
type sealedSeedFile struct {
	Derivation string                    `json:"derivation"`
	Seed       interfaces.EncryptedShare `json:"seed"`
}

func sealSeedFile(path string, nodeID interfaces.NodeID, passphrase, seed []byte, derivation custody.SeedDerivation) error {
	key := cryptoutils.DeriveSeedProtectionKey(passphrase, []byte(nodeID))
	sealed, err := custody.SealWithSharedSecret(seed, key)
	if err != nil {
		return err
	}

	blob, err := json.Marshal(sealedSeedFile{Derivation: derivation.String(), Seed: sealed})
	if err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o600)
}

func openSeedFile(path string, nodeID interfaces.NodeID, passphrase []byte) ([]byte, custody.SeedDerivation, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	var file sealedSeedFile
	if err := json.Unmarshal(blob, &file); err != nil {
		return nil, 0, fmt.Errorf("malformed seed file: %w", err)
	}
	derivation, err := custody.ParseSeedDerivation(file.Derivation)
	if err != nil {
		return nil, 0, err
	}

	key := cryptoutils.DeriveSeedProtectionKey(passphrase, []byte(nodeID))
	seed, err := custody.OpenWithSharedSecret(file.Seed, key)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to unseal seed file: %w", err)
	}
	return seed, derivation, nil
}
