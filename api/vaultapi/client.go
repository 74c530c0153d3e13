package vaultapi

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/key-custody-backend/api"
	"github.com/ruteri/key-custody-backend/interfaces"
	"github.com/ruteri/key-custody-backend/vaultservice"
)

// Client talks to the key service API. Release requests are signed
// locally with the caller's wallet key; the key itself never leaves the
// client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a key service client.
//
// Parameters:
//   - baseURL: The key service base URL (e.g. "http://vault:8200")
//   - timeout: Request timeout duration (optional, default 30 seconds)
func NewClient(baseURL string, timeout ...time.Duration) *Client {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// Upload places a payload in custody and returns the registered box.
func (c *Client) Upload(ctx context.Context, payload []byte, owner interfaces.ContractAddress, sharded bool) (*vaultservice.UploadResult, error) {
	reqJSON, err := json.Marshal(api.UploadRequest{
		Payload: payload,
		Owner:   owner,
		Sharded: sharded,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/vault/boxes", bytes.NewBuffer(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upload failed with code %d", resp.StatusCode)
	}

	var result vaultservice.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse upload response: %w", err)
	}

	return &result, nil
}

// BoxInfo fetches the registry record for a box.
func (c *Client) BoxInfo(ctx context.Context, boxID interfaces.ContentID) (*interfaces.Box, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/vault/boxes/%s", c.baseURL, boxID.String()), nil)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("box request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", interfaces.ErrBoxNotFound, boxID)
	default:
		return nil, fmt.Errorf("box request failed with code %d", resp.StatusCode)
	}

	var box interfaces.Box
	if err := json.NewDecoder(resp.Body).Decode(&box); err != nil {
		return nil, fmt.Errorf("failed to parse box response: %w", err)
	}

	return &box, nil
}

// FetchPayload downloads the encrypted payload for a box.
func (c *Client) FetchPayload(ctx context.Context, boxID interfaces.ContentID) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/vault/boxes/%s/payload", c.baseURL, boxID.String()), nil)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payload request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: payload for %s", interfaces.ErrContentNotFound, boxID)
	default:
		return nil, fmt.Errorf("payload request failed with code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read payload response: %w", err)
	}

	return data, nil
}

// RequestRelease runs the challenge-response release flow: fetch a
// challenge for the box, sign its digest with the wallet key, and
// redeem the signature for key material sealed to recipient. The
// digest is recomputed locally from the box id and nonce, so a
// misbehaving service cannot trick the wallet into signing for a
// different box.
func (c *Client) RequestRelease(ctx context.Context, boxID interfaces.ContentID, wallet *ecdsa.PrivateKey, recipient interfaces.NodePublicKey) (*vaultservice.KeyRelease, error) {
	challengeReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/api/vault/boxes/%s/challenge", c.baseURL, boxID.String()), nil)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}

	challengeResp, err := c.httpClient.Do(challengeReq)
	if err != nil {
		return nil, fmt.Errorf("challenge request failed: %w", err)
	}
	defer challengeResp.Body.Close()

	switch challengeResp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", interfaces.ErrBoxNotFound, boxID)
	default:
		return nil, fmt.Errorf("challenge request failed with code %d", challengeResp.StatusCode)
	}

	var challenge api.ChallengeResponse
	if err := json.NewDecoder(challengeResp.Body).Decode(&challenge); err != nil {
		return nil, fmt.Errorf("failed to parse challenge response: %w", err)
	}
	if challenge.BoxID != boxID {
		return nil, fmt.Errorf("challenge is for box %s, requested %s", challenge.BoxID, boxID)
	}

	nonce, err := hex.DecodeString(challenge.Nonce)
	if err != nil || len(nonce) != 32 {
		return nil, fmt.Errorf("malformed challenge nonce %q", challenge.Nonce)
	}

	toSign := vaultservice.ReleaseChallenge{BoxID: boxID}
	copy(toSign.Nonce[:], nonce)
	digest := toSign.SigningHash()

	signature, err := crypto.Sign(digest[:], wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to sign challenge: %w", err)
	}

	releaseJSON, err := json.Marshal(api.ReleaseRequest{
		ChallengeID:     challenge.ChallengeID,
		Signature:       signature,
		RecipientPubkey: recipient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal release request: %w", err)
	}

	releaseReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/api/vault/boxes/%s/release", c.baseURL, boxID.String()), bytes.NewBuffer(releaseJSON))
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	releaseReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(releaseReq)
	if err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return nil, fmt.Errorf("%w: requester holds no grant for %s", interfaces.ErrAccessDenied, boxID)
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", interfaces.ErrBoxNotFound, boxID)
	case http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: release quorum unavailable for %s", interfaces.ErrNoQuorum, boxID)
	default:
		return nil, fmt.Errorf("release failed with code %d", resp.StatusCode)
	}

	var release vaultservice.KeyRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse release response: %w", err)
	}

	return &release, nil
}

// Redeliver asks the service to re-push a sharded box's sealed shares
// to the registered custodians.
func (c *Client) Redeliver(ctx context.Context, boxID interfaces.ContentID) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/api/vault/boxes/%s/redeliver", c.baseURL, boxID.String()), nil)
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("redeliver request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", interfaces.ErrBoxNotFound, boxID)
	default:
		return fmt.Errorf("redeliver failed with code %d", resp.StatusCode)
	}
}
