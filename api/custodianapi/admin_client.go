package custodianapi

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/key-custody-backend/api"
	"github.com/ruteri/key-custody-backend/custody"
)

// AdminClient drives a custodian node's provisioning API. Provisioning
// requests are signed with the admin's ECDSA key so the node can verify
// them against its whitelist; status is unauthenticated, so the key may
// be nil for status-only use.
type AdminClient struct {
	baseURL    string
	adminID    string
	privateKey *ecdsa.PrivateKey
	httpClient *http.Client
}

// NewAdminClient creates a provisioning client.
//
// Parameters:
//   - baseURL: The custodian API base URL (e.g. "http://alpha:8201")
//   - adminID: The administrator's whitelisted ID
//   - privateKey: The administrator's ECDSA private key
//   - timeout: Request timeout duration (optional, default 30 seconds)
func NewAdminClient(baseURL, adminID string, privateKey *ecdsa.PrivateKey, timeout ...time.Duration) *AdminClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &AdminClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		adminID:    adminID,
		privateKey: privateKey,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// Status queries the node's provisioning state. The endpoint is open,
// so no signature is attached.
func (c *AdminClient) Status(ctx context.Context) (map[string]interface{}, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/admin/status", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request failed with code %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}

	return result, nil
}

// ProvisionSeed submits the node's identity seed. The node derives its
// keypair from the seed and reports the resulting public key.
func (c *AdminClient) ProvisionSeed(ctx context.Context, seed []byte, derivation custody.SeedDerivation) (*api.ProvisionSeedResponse, error) {
	reqJSON, err := json.Marshal(api.ProvisionSeedRequest{
		Seed:       seed,
		Derivation: derivation.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal seed request: %w", err)
	}

	req, err := NewSignedAdminRequest(http.MethodPost, c.baseURL+"/admin/seed", reqJSON, c.adminID, c.privateKey)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("seed provisioning failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("seed provisioning failed with code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result api.ProvisionSeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse provisioning response: %w", err)
	}

	return &result, nil
}

// NewSignedAdminRequest builds an HTTP request carrying an admin
// signature over sha256(path + body) in the X-Admin-Signature header,
// with the admin's ID in X-Admin-ID.
func NewSignedAdminRequest(method, reqUrl string, body []byte, adminID string, privateKey *ecdsa.PrivateKey) (*http.Request, error) {
	var req *http.Request
	var err error

	if body != nil {
		req, err = http.NewRequest(method, reqUrl, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequest(method, reqUrl, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
	}

	// The signature covers the path, not the full URL, so it survives
	// proxies that rewrite scheme or host.
	parsedURL, err := url.Parse(reqUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	message := parsedURL.Path
	if body != nil {
		message += string(body)
	}
	hash := sha256.Sum256([]byte(message))

	signature, err := ecdsa.SignASN1(rand.Reader, privateKey, hash[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	req.Header.Set("X-Admin-ID", adminID)
	req.Header.Set("X-Admin-Signature", base64.StdEncoding.EncodeToString(signature))

	return req, nil
}
