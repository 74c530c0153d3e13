package custodianapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/key-custody-backend/api"
	"github.com/ruteri/key-custody-backend/interfaces"
)

// Client talks to a remote custodian node and satisfies
// interfaces.ShareCustodian, so the key service treats in-process and
// remote custodians uniformly. The node's identity is resolved once at
// construction and cached.
type Client struct {
	baseURL    string
	httpClient *http.Client
	nodeID     interfaces.NodeID
	publicKey  interfaces.NodePublicKey
}

// NewClient creates a client for the custodian at baseURL and resolves
// the node's id and public key eagerly. An unreachable or unprovisioned
// node fails construction.
//
// Parameters:
//   - ctx: Context for the initial info request
//   - baseURL: The custodian API base URL (e.g. "http://alpha:8201")
//   - timeout: Request timeout duration (optional, default 30 seconds)
func NewClient(ctx context.Context, baseURL string, timeout ...time.Duration) (*Client, error) {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}

	info, err := c.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve custodian at %s: %w", c.baseURL, err)
	}
	if err := info.NodeID.Validate(); err != nil {
		return nil, fmt.Errorf("custodian at %s reported invalid node id: %w", c.baseURL, err)
	}

	c.nodeID = info.NodeID
	c.publicKey = info.PublicKey
	return c, nil
}

// NodeID returns the resolved custodian identifier.
func (c *Client) NodeID() interfaces.NodeID {
	return c.nodeID
}

// PublicKey returns the resolved sealing key.
func (c *Client) PublicKey() interfaces.NodePublicKey {
	return c.publicKey
}

// Info fetches the node's current identity and held-share count.
func (c *Client) Info(ctx context.Context) (*api.CustodianInfoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/custodian/info", nil)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("info request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("info request failed with code %d", resp.StatusCode)
	}

	var info api.CustodianInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to parse info response: %w", err)
	}

	return &info, nil
}

// StoreShare delivers a sealed share to the node. A share the node
// cannot open is reported as ErrDecryptionFailure, matching in-process
// delivery.
func (c *Client) StoreShare(ctx context.Context, box interfaces.ContentID, share interfaces.EncryptedShare) error {
	reqJSON, err := json.Marshal(api.StoreShareRequest{BoxID: box, Share: share})
	if err != nil {
		return fmt.Errorf("failed to marshal share request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/custodian/shares", bytes.NewBuffer(reqJSON))
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("share delivery failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: custodian %s rejected share: %s", interfaces.ErrDecryptionFailure, c.nodeID, strings.TrimSpace(string(body)))
	default:
		return fmt.Errorf("share delivery failed with code %d", resp.StatusCode)
	}
}

// Reencrypt asks the node to re-seal its held share for the recipient.
func (c *Client) Reencrypt(ctx context.Context, box interfaces.ContentID, recipient interfaces.NodePublicKey) (interfaces.EncryptedShare, error) {
	reqJSON, err := json.Marshal(api.ReencryptRequest{BoxID: box, RecipientPubkey: recipient})
	if err != nil {
		return interfaces.EncryptedShare{}, fmt.Errorf("failed to marshal re-encrypt request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/custodian/reencrypt", bytes.NewBuffer(reqJSON))
	if err != nil {
		return interfaces.EncryptedShare{}, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return interfaces.EncryptedShare{}, fmt.Errorf("re-encrypt request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return interfaces.EncryptedShare{}, fmt.Errorf("%w: custodian %s holds no share for %s", interfaces.ErrShareNotFound, c.nodeID, box)
	default:
		return interfaces.EncryptedShare{}, fmt.Errorf("re-encrypt request failed with code %d", resp.StatusCode)
	}

	var reencrypted api.ReencryptResponse
	if err := json.NewDecoder(resp.Body).Decode(&reencrypted); err != nil {
		return interfaces.EncryptedShare{}, fmt.Errorf("failed to parse re-encrypt response: %w", err)
	}

	return reencrypted.Share, nil
}
