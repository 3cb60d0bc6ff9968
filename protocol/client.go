package protocol

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DarrenZal/koi-node/identity"
)

// Client makes outbound koi-net requests to a peer's base_url, optionally
// signing the request envelope when a private key is configured.
type Client struct {
	http       *http.Client
	sourceNode string
	privateKey *ecdsa.PrivateKey
}

// NewClient builds a Client. priv may be nil for a node without a signing key.
func NewClient(sourceNode string, priv *ecdsa.PrivateKey, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		sourceNode: sourceNode,
		privateKey: priv,
	}
}

// Post sends payload to baseURL+path, signing the request envelope when a
// private key is configured, and decodes the (possibly enveloped) response
// payload into out.
func (c *Client) Post(ctx context.Context, baseURL, path, targetNode string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("protocol client: marshal payload: %w", err)
	}

	wireBody := body
	if c.privateKey != nil {
		env, err := identity.SignEnvelope(body, c.sourceNode, targetNode, c.privateKey)
		if err != nil {
			return fmt.Errorf("protocol client: sign envelope: %w", err)
		}
		if wireBody, err = json.Marshal(env); err != nil {
			return fmt.Errorf("protocol client: marshal envelope: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(wireBody))
	if err != nil {
		return fmt.Errorf("protocol client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("protocol client: request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("protocol client: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("protocol client: peer %s returned status %d: %s", baseURL+path, resp.StatusCode, respBody)
	}

	return unwrapResponse(respBody, out)
}

// unwrapResponse decodes body into out, transparently unwrapping a signed
// envelope's payload if the peer's response arrived wrapped. Verification of
// the response envelope's signature is the caller's responsibility when it
// matters (e.g. strict mode); here we only need the payload.
func unwrapResponse(body []byte, out any) error {
	var env identity.Envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Payload) > 0 {
		return json.Unmarshal(env.Payload, out)
	}
	return json.Unmarshal(body, out)
}
