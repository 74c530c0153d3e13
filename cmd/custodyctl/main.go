package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/key-custody-backend/api/custodianapi"
	"github.com/ruteri/key-custody-backend/api/vaultapi"
	"github.com/ruteri/key-custody-backend/cmd/flags"
	"github.com/ruteri/key-custody-backend/custody"
	"github.com/ruteri/key-custody-backend/interfaces"
	"github.com/ruteri/key-custody-backend/registry"
	"github.com/ruteri/key-custody-backend/vaultservice"
	"github.com/urfave/cli/v2"
)

var flagVaultAddr *cli.StringFlag = &cli.StringFlag{
	Name:  "vault-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "Key service address to request",
}
var flagCustodianAddr *cli.StringFlag = &cli.StringFlag{
	Name:  "custodian-addr",
	Value: "http://127.0.0.1:8181",
	Usage: "Custodian address to request",
}
var flagBoxID *cli.StringFlag = &cli.StringFlag{
	Name:     "box",
	Required: true,
	Usage:    "Box content id. 64-char hex string",
}
var flagWalletKey *cli.StringFlag = &cli.StringFlag{
	Name:    "wallet-key",
	EnvVars: []string{"WALLET_KEY"},
	Usage:   "Hex-encoded wallet private key",
}
var flagKeyFile *cli.StringFlag = &cli.StringFlag{
	Name:  "key-file",
	Value: "custody-key.hex",
	Usage: "Path to the X25519 secret key file",
}
var flagPayloadFile *cli.StringFlag = &cli.StringFlag{
	Name:     "file",
	Required: true,
	Usage:    "Path to the payload file",
}
var flagOwner *cli.StringFlag = &cli.StringFlag{
	Name:  "owner",
	Usage: "Owner address, 40-char hex string. Defaults to the wallet-key address",
}
var flagSharded *cli.BoolFlag = &cli.BoolFlag{
	Name:  "sharded",
	Value: true,
	Usage: "Split the file key across the custodian set",
}
var flagOut *cli.StringFlag = &cli.StringFlag{
	Name:  "out",
	Usage: "Write the decrypted payload to this file instead of stdout",
}
var flagGrantee *cli.StringFlag = &cli.StringFlag{
	Name:     "grantee",
	Required: true,
	Usage:    "Grantee address. 40-char hex string",
}
var flagSeed *cli.StringFlag = &cli.StringFlag{
	Name:  "seed",
	Usage: "Hex-encoded seed to provision. Generated when omitted",
}
var flagSeedOut *cli.StringFlag = &cli.StringFlag{
	Name:  "seed-out",
	Value: "custodian-seed.hex",
	Usage: "File to write a generated seed to",
}
var flagDerivation *cli.StringFlag = &cli.StringFlag{
	Name:  "derivation",
	Value: "hkdf",
	Usage: "Seed derivation scheme: sha256 or hkdf",
}
var flagAdminPrivkey *cli.StringFlag = &cli.StringFlag{
	Name:  "admin-privkey-file",
	Value: "admin-private.pem",
	Usage: "Path to admin private key",
}
var flagAdminPubkey *cli.StringFlag = &cli.StringFlag{
	Name:  "admin-pubkey-file",
	Value: "admin-public.pem",
	Usage: "Path to admin public key",
}
var flagAdminsFile *cli.StringFlag = &cli.StringFlag{
	Name:  "admins-file",
	Value: "custodian-admins.json",
	Usage: "Path to the admin whitelist file",
}

func main() {
	app := &cli.App{
		Name:  "custodyctl",
		Usage: "Operator client for the key custody services",
		Commands: []*cli.Command{
			&cli.Command{
				Name:        "keygen",
				Usage:       "Generate a recipient X25519 keypair",
				Description: "Writes the secret key to key-file and prints the public key.",
				Flags: []cli.Flag{
					flagKeyFile,
				},
				Action: runKeygen,
			},
			&cli.Command{
				Name:  "upload",
				Usage: "Encrypt a payload and place it in custody",
				Flags: []cli.Flag{
					flagVaultAddr,
					flagPayloadFile,
					flagWalletKey,
					flagOwner,
					flagSharded,
				},
				Action: runUpload,
			},
			&cli.Command{
				Name:  "info",
				Usage: "Show the registry record for a box",
				Flags: []cli.Flag{
					flagVaultAddr,
					flagBoxID,
				},
				Action: runInfo,
			},
			&cli.Command{
				Name:        "release",
				Usage:       "Release, reconstruct and decrypt a payload",
				Description: "Signs a release challenge with the wallet key, reconstructs the file key from the released material, and decrypts the payload.",
				Flags: []cli.Flag{
					flagVaultAddr,
					flagBoxID,
					flagWalletKey,
					flagKeyFile,
					flagOut,
				},
				Action: runRelease,
			},
			&cli.Command{
				Name:  "redeliver",
				Usage: "Re-push a box's sealed shares to the custodians",
				Flags: []cli.Flag{
					flagVaultAddr,
					flagBoxID,
				},
				Action: runRedeliver,
			},
			&cli.Command{
				Name:  "grant",
				Usage: "Grant release access for a box on the registry contract",
				Flags: []cli.Flag{
					flags.RpcAddrFlag,
					flags.RegistryAddrFlag,
					flagBoxID,
					flagWalletKey,
					flagGrantee,
				},
				Action: runGrant,
			},
			&cli.Command{
				Name:  "revoke",
				Usage: "Revoke release access for a box on the registry contract",
				Flags: []cli.Flag{
					flags.RpcAddrFlag,
					flags.RegistryAddrFlag,
					flagBoxID,
					flagWalletKey,
					flagGrantee,
				},
				Action: runRevoke,
			},
			&cli.Command{
				Name:  "admin",
				Usage: "Custodian seed provisioning",
				Subcommands: []*cli.Command{
					&cli.Command{
						Name:  "status",
						Usage: "Show a custodian's provisioning state",
						Flags: []cli.Flag{
							flagCustodianAddr,
						},
						Action: runAdminStatus,
					},
					&cli.Command{
						Name:  "keygen",
						Usage: "Generate an admin ECDSA keypair",
						Flags: []cli.Flag{
							flagAdminPrivkey,
							flagAdminPubkey,
						},
						Action: runAdminKeygen,
					},
					&cli.Command{
						Name:        "config",
						Usage:       "Build the admin whitelist file",
						Description: "Collects admin public key PEM files into the whitelist custodiand loads at startup.",
						Flags: []cli.Flag{
							flagAdminsFile,
							&cli.StringSliceFlag{
								Name:  "admin-pubkey-files",
								Usage: "Admin public key PEM files to whitelist",
							},
						},
						Action: runAdminConfig,
					},
					&cli.Command{
						Name:  "provision",
						Usage: "Provision a custodian's identity seed",
						Flags: []cli.Flag{
							flagCustodianAddr,
							flagAdminPrivkey,
							flagAdminPubkey,
							flagSeed,
							flagSeedOut,
							flagDerivation,
						},
						Action: runAdminProvision,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runKeygen(cCtx *cli.Context) error {
	identity, err := custody.NewEphemeralIdentity()
	if err != nil {
		return err
	}
	secret, err := identity.ExportSecretKey()
	if err != nil {
		return err
	}

	keyFile := cCtx.String(flagKeyFile.Name)
	if err := os.WriteFile(keyFile, []byte(hex.EncodeToString(secret[:])+"\n"), 0600); err != nil {
		return err
	}

	fmt.Println(identity.PublicKey().String())
	return nil
}

func runUpload(cCtx *cli.Context) error {
	owner, err := ownerAddress(cCtx)
	if err != nil {
		return err
	}

	payload, err := os.ReadFile(cCtx.String(flagPayloadFile.Name))
	if err != nil {
		return err
	}

	client := vaultapi.NewClient(cCtx.String(flagVaultAddr.Name))
	result, err := client.Upload(context.Background(), payload, owner, cCtx.Bool(flagSharded.Name))
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	return printJSON(result)
}

func runInfo(cCtx *cli.Context) error {
	boxID, err := parseBoxID(cCtx)
	if err != nil {
		return err
	}

	client := vaultapi.NewClient(cCtx.String(flagVaultAddr.Name))
	box, err := client.BoxInfo(context.Background(), boxID)
	if err != nil {
		return err
	}

	return printJSON(box)
}

func runRelease(cCtx *cli.Context) error {
	boxID, err := parseBoxID(cCtx)
	if err != nil {
		return err
	}
	wallet, err := loadWallet(cCtx)
	if err != nil {
		return err
	}
	identity, err := loadRecipientKey(cCtx.String(flagKeyFile.Name))
	if err != nil {
		return err
	}

	ctx := context.Background()
	client := vaultapi.NewClient(cCtx.String(flagVaultAddr.Name))

	release, err := client.RequestRelease(ctx, boxID, wallet, identity.PublicKey())
	if err != nil {
		return fmt.Errorf("release failed: %w", err)
	}

	session, err := vaultservice.NewReconstructionSession(identity, release.Record.Threshold)
	if err != nil {
		return err
	}
	defer session.Wipe()

	if err := session.AddRelease(release); err != nil {
		return fmt.Errorf("could not use released material: %w", err)
	}
	if !session.Complete() {
		return fmt.Errorf("released material is insufficient: %d shares collected, %d needed",
			session.SharesCollected(), release.Record.Threshold)
	}

	blob, err := client.FetchPayload(ctx, boxID)
	if err != nil {
		return err
	}

	plaintext, err := session.Decrypt(blob)
	if err != nil {
		return fmt.Errorf("payload decryption failed: %w", err)
	}

	if out := cCtx.String(flagOut.Name); out != "" {
		return os.WriteFile(out, plaintext, 0600)
	}
	_, err = os.Stdout.Write(plaintext)
	return err
}

func runRedeliver(cCtx *cli.Context) error {
	boxID, err := parseBoxID(cCtx)
	if err != nil {
		return err
	}

	client := vaultapi.NewClient(cCtx.String(flagVaultAddr.Name))
	if err := client.Redeliver(context.Background(), boxID); err != nil {
		return err
	}

	fmt.Println("shares redelivered")
	return nil
}

func runGrant(cCtx *cli.Context) error {
	return registryTransact(cCtx, func(client *registry.BoxRegistryClient, boxID interfaces.ContentID, grantee interfaces.ContractAddress) (txHash string, err error) {
		tx, err := client.GrantAccess(boxID, grantee)
		if err != nil {
			return "", err
		}
		return tx.Hash().Hex(), nil
	})
}

func runRevoke(cCtx *cli.Context) error {
	return registryTransact(cCtx, func(client *registry.BoxRegistryClient, boxID interfaces.ContentID, grantee interfaces.ContractAddress) (txHash string, err error) {
		tx, err := client.RevokeAccess(boxID, grantee)
		if err != nil {
			return "", err
		}
		return tx.Hash().Hex(), nil
	})
}

// registryTransact binds the registry contract with a keyed transactor
// and runs one grant mutation against it.
func registryTransact(cCtx *cli.Context, mutate func(*registry.BoxRegistryClient, interfaces.ContentID, interfaces.ContractAddress) (string, error)) error {
	boxID, err := parseBoxID(cCtx)
	if err != nil {
		return err
	}
	grantee, err := interfaces.NewContractAddressFromHex(cCtx.String(flagGrantee.Name))
	if err != nil {
		return fmt.Errorf("could not parse grantee address: %w", err)
	}
	registryAddr, err := interfaces.NewContractAddressFromHex(cCtx.String(flags.RegistryAddrFlag.Name))
	if err != nil {
		return fmt.Errorf("could not parse registry contract address: %w", err)
	}
	wallet, err := loadWallet(cCtx)
	if err != nil {
		return err
	}

	ethClient, err := ethclient.Dial(cCtx.String(flags.RpcAddrFlag.Name))
	if err != nil {
		return fmt.Errorf("could not dial RPC: %w", err)
	}

	chainID, err := ethClient.ChainID(context.Background())
	if err != nil {
		return err
	}
	auth, err := bind.NewKeyedTransactorWithChainID(wallet, chainID)
	if err != nil {
		return err
	}

	client, err := registry.NewBoxRegistryClient(ethClient, ethClient, common.Address(registryAddr))
	if err != nil {
		return err
	}
	client.SetTransactOpts(auth)

	txHash, err := mutate(client, boxID, grantee)
	if err != nil {
		return err
	}

	fmt.Println(txHash)
	return nil
}

func runAdminStatus(cCtx *cli.Context) error {
	adminClient := custodianapi.NewAdminClient(cCtx.String(flagCustodianAddr.Name), "", nil)
	status, err := adminClient.Status(context.Background())
	if err != nil {
		return err
	}

	return printJSON(status)
}

func runAdminKeygen(cCtx *cli.Context) error {
	privateKeyPEM, publicKeyPEM, err := custodianapi.GenerateAdminKeyPair()
	if err != nil {
		return err
	}

	if err := os.WriteFile(cCtx.String(flagAdminPrivkey.Name), []byte(privateKeyPEM), 0600); err != nil {
		return err
	}
	if err := os.WriteFile(cCtx.String(flagAdminPubkey.Name), []byte(publicKeyPEM), 0600); err != nil {
		return err
	}

	fmt.Println(custodianapi.ComputeFingerprint([]byte(publicKeyPEM)))
	return nil
}

func runAdminConfig(cCtx *cli.Context) error {
	config := custodianapi.AdminsConfig{}

	for _, pubkeyFile := range cCtx.StringSlice("admin-pubkey-files") {
		publicKeyPEM, err := os.ReadFile(pubkeyFile)
		if err != nil {
			return err
		}

		config.Admins = append(config.Admins, custodianapi.AdminMetadata{
			ID:     custodianapi.ComputeFingerprint(publicKeyPEM),
			PubKey: string(publicKeyPEM),
		})
	}
	if len(config.Admins) == 0 {
		return errors.New("no admin public key files provided")
	}

	configBytes, err := json.Marshal(config)
	if err != nil {
		return err
	}

	return os.WriteFile(cCtx.String(flagAdminsFile.Name), configBytes, 0600)
}

func runAdminProvision(cCtx *cli.Context) error {
	publicKeyPEM, err := os.ReadFile(cCtx.String(flagAdminPubkey.Name))
	if err != nil {
		return err
	}
	privateKeyPEM, err := os.ReadFile(cCtx.String(flagAdminPrivkey.Name))
	if err != nil {
		return err
	}
	privateKey, err := custodianapi.ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return err
	}

	derivation, err := custody.ParseSeedDerivation(cCtx.String(flagDerivation.Name))
	if err != nil {
		return err
	}

	seed, err := provisioningSeed(cCtx)
	if err != nil {
		return err
	}

	adminID := custodianapi.ComputeFingerprint(publicKeyPEM)
	adminClient := custodianapi.NewAdminClient(cCtx.String(flagCustodianAddr.Name), adminID, privateKey)

	resp, err := adminClient.ProvisionSeed(context.Background(), seed, derivation)
	if err != nil {
		return fmt.Errorf("provisioning failed: %w", err)
	}

	return printJSON(resp)
}

// provisioningSeed returns the seed from the flag, or generates a fresh
// random one and saves it so the administrator keeps a copy.
func provisioningSeed(cCtx *cli.Context) ([]byte, error) {
	if seedHex := cCtx.String(flagSeed.Name); seedHex != "" {
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			return nil, fmt.Errorf("could not parse seed: %w", err)
		}
		return seed, nil
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}

	seedOut := cCtx.String(flagSeedOut.Name)
	if err := os.WriteFile(seedOut, []byte(hex.EncodeToString(seed)+"\n"), 0600); err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "generated seed written to %s\n", seedOut)

	return seed, nil
}

func ownerAddress(cCtx *cli.Context) (interfaces.ContractAddress, error) {
	if ownerHex := cCtx.String(flagOwner.Name); ownerHex != "" {
		return interfaces.NewContractAddressFromHex(ownerHex)
	}

	wallet, err := loadWallet(cCtx)
	if err != nil {
		return interfaces.ContractAddress{}, errors.New("either owner or wallet-key is required")
	}
	return interfaces.NewContractAddressFromBytes(crypto.PubkeyToAddress(wallet.PublicKey).Bytes())
}

func loadWallet(cCtx *cli.Context) (*ecdsa.PrivateKey, error) {
	walletKeyHex := cCtx.String(flagWalletKey.Name)
	if walletKeyHex == "" {
		return nil, errors.New("wallet-key is required")
	}
	return crypto.HexToECDSA(strings.TrimPrefix(walletKeyHex, "0x"))
}

func loadRecipientKey(path string) (*custody.Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read recipient key file %s (run keygen first): %w", path, err)
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("recipient key file %s is not valid hex: %w", path, err)
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("recipient key file %s holds %d bytes, expected 32", path, len(decoded))
	}

	var secret [32]byte
	copy(secret[:], decoded)
	return custody.EphemeralFromSecretKey(secret), nil
}

func parseBoxID(cCtx *cli.Context) (interfaces.ContentID, error) {
	boxID, err := interfaces.NewContentIDFromHex(cCtx.String(flagBoxID.Name))
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("could not parse box id: %w", err)
	}
	return boxID, nil
}

func printJSON(v interface{}) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
