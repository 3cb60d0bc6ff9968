// Package identity implements node key lifecycle, node-RID derivation, and
// signed-envelope sign/verify for the koi-net federation protocol (C1).
package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/DarrenZal/koi-node/internal/logger"
)

// Sentinel errors surfaced by envelope verification (mapped to protocol.Error by the router).
var (
	ErrInvalidSignature   = errors.New("identity: invalid signature")
	ErrSourceNodeMismatch = errors.New("identity: source node mismatch")
	ErrTargetNodeMismatch = errors.New("identity: target node mismatch")
	ErrUnsupportedHash    = errors.New("identity: unsupported hash mode")
)

// HashMode selects which node-RID hash derivation is used.
type HashMode string

const (
	HashLegacy16 HashMode = "legacy16"
	HashDER64    HashMode = "der64"
)

// NodeType is the capability tier a node advertises in its profile.
type NodeType string

const (
	NodeTypeFull    NodeType = "FULL"
	NodeTypePartial NodeType = "PARTIAL"
)

// DefaultEventTypes and DefaultStateTypes are the entity-type vocabularies a
// freshly created node advertises it can handle.
var (
	DefaultEventTypes = []string{"Practice", "Pattern", "CaseStudy", "Bioregion"}
	DefaultStateTypes = []string{
		"Practice", "Pattern", "CaseStudy", "Bioregion",
		"Organization", "Person",
	}
)

// NodeProvides declares which RID types a node emits events for and which
// it holds queryable state for.
type NodeProvides struct {
	Event []string `json:"event"`
	State []string `json:"state"`
}

// NodeProfile is the wire representation of a node's identity and capabilities (spec.md §6.1).
type NodeProfile struct {
	NodeRID   string       `json:"node_rid"`
	NodeName  string       `json:"node_name"`
	NodeType  NodeType     `json:"node_type"`
	BaseURL   string       `json:"base_url,omitempty"`
	Provides  NodeProvides `json:"provides"`
	PublicKey string       `json:"public_key"`
}

func keyPath(stateDir, nodeName string) string {
	return filepath.Join(stateDir, nodeName+"_private_key.pem")
}

// GenerateKeyPair creates a new P-256 ECDSA keypair.
func GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// SavePrivateKey writes priv as an unencrypted PKCS8 PEM file with owner-only permissions.
func SavePrivateKey(priv *ecdsa.PrivateKey, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("identity: creating key directory: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("identity: marshaling private key: %w", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("identity: writing key file: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// LoadPrivateKey reads a PKCS8-PEM-encoded P-256 private key from path. It
// returns (nil, nil) if the file does not exist.
func LoadPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("identity: reading key file: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("identity: no PEM block found in %s", path)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("identity: parsing private key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("identity: key at %s is not an ECDSA key", path)
	}
	return ecKey, nil
}

// publicKeyDER encodes a public key as DER SubjectPublicKeyInfo bytes.
func publicKeyDER(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("identity: marshaling public key: %w", err)
	}
	return der, nil
}

// PublicKeyDERBase64 returns the base64-encoded DER SubjectPublicKeyInfo of pub.
func PublicKeyDERBase64(pub *ecdsa.PublicKey) (string, error) {
	der, err := publicKeyDER(pub)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ParsePublicKeyDERBase64 decodes a base64 DER SubjectPublicKeyInfo back into an ECDSA public key.
func ParsePublicKeyDERBase64(b64 string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("identity: decoding public key: %w", err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("identity: parsing public key: %w", err)
	}
	ecKey, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("identity: decoded key is not an ECDSA key")
	}
	return ecKey, nil
}

// DeriveNodeRIDHash derives the hash suffix for a node RID under the given mode.
func DeriveNodeRIDHash(pub *ecdsa.PublicKey, mode HashMode) (string, error) {
	der, err := publicKeyDER(pub)
	if err != nil {
		return "", err
	}
	switch mode {
	case HashLegacy16:
		derB64 := base64.StdEncoding.EncodeToString(der)
		sum := sha256.Sum256([]byte(derB64))
		return hex.EncodeToString(sum[:])[:16], nil
	case HashDER64:
		sum := sha256.Sum256(der)
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", ErrUnsupportedHash
	}
}

// DeriveNodeRID builds the opaque node RID `orn:koi-net.node:{name}+{hash}`.
func DeriveNodeRID(nodeName string, pub *ecdsa.PublicKey, mode HashMode) (string, error) {
	hash, err := DeriveNodeRIDHash(pub, mode)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("orn:koi-net.node:%s+%s", nodeName, hash), nil
}

// NodeRIDSuffix returns the hash suffix after the last '+' in rid, or "" if absent.
func NodeRIDSuffix(rid string) string {
	idx := strings.LastIndex(rid, "+")
	if idx < 0 {
		return ""
	}
	return rid[idx+1:]
}

// NodeRIDMatchesPublicKey selects the hash mode by suffix length (16 ->
// legacy16, 64 -> der64) and reports whether rid's suffix matches pub under
// the modes the caller allows.
func NodeRIDMatchesPublicKey(rid string, pub *ecdsa.PublicKey, allowLegacy16, allowDER64 bool) bool {
	suffix := NodeRIDSuffix(rid)
	if suffix == "" {
		return false
	}
	switch len(suffix) {
	case 16:
		if !allowLegacy16 {
			return false
		}
		want, err := DeriveNodeRIDHash(pub, HashLegacy16)
		return err == nil && suffix == want
	case 64:
		if !allowDER64 {
			return false
		}
		want, err := DeriveNodeRIDHash(pub, HashDER64)
		return err == nil && suffix == want
	default:
		return false
	}
}

// LoadOrCreate loads the node's private key from stateDir, generating and
// persisting one if none exists, then builds the node's NodeProfile.
func LoadOrCreate(stateDir, nodeName, baseURL string, nodeType NodeType, log logger.Logger) (*ecdsa.PrivateKey, *NodeProfile, error) {
	path := keyPath(stateDir, nodeName)

	priv, err := LoadPrivateKey(path)
	if err != nil {
		return nil, nil, err
	}
	if priv == nil {
		if log != nil {
			log.Info("no existing key found, generating new keypair", logger.String("path", path))
		}
		priv, err = GenerateKeyPair()
		if err != nil {
			return nil, nil, fmt.Errorf("identity: generating keypair: %w", err)
		}
		if err := SavePrivateKey(priv, path); err != nil {
			return nil, nil, err
		}
	} else if log != nil {
		log.Info("loaded existing key", logger.String("path", path))
	}

	nodeRID, err := DeriveNodeRID(nodeName, &priv.PublicKey, HashLegacy16)
	if err != nil {
		return nil, nil, err
	}
	pubB64, err := PublicKeyDERBase64(&priv.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	profile := &NodeProfile{
		NodeRID:  nodeRID,
		NodeName: nodeName,
		NodeType: nodeType,
		BaseURL:  baseURL,
		Provides: NodeProvides{
			Event: DefaultEventTypes,
			State: DefaultStateTypes,
		},
		PublicKey: pubB64,
	}

	if log != nil {
		log.Info("node identity", logger.String("node_rid", nodeRID))
	}
	return priv, profile, nil
}

// canonicalEnvelope captures the three fields that are signed, in wire
// declaration order, dropping null/empty fields from the signed bytes.
type canonicalEnvelope struct {
	Payload    json.RawMessage `json:"payload"`
	SourceNode string          `json:"source_node,omitempty"`
	TargetNode string          `json:"target_node,omitempty"`
}

// Envelope is the four-field signed wrapper around a peer payload (spec.md §3).
type Envelope struct {
	Payload    json.RawMessage `json:"payload"`
	SourceNode string          `json:"source_node,omitempty"`
	TargetNode string          `json:"target_node,omitempty"`
	Signature  string          `json:"signature,omitempty"`
}

// Signed reports whether env carries a signature field.
func (e *Envelope) Signed() bool {
	return e.Signature != ""
}

func canonicalBytes(payload json.RawMessage, sourceNode, targetNode string) ([]byte, error) {
	c := canonicalEnvelope{Payload: payload, SourceNode: sourceNode, TargetNode: targetNode}
	return json.Marshal(c)
}

// SignEnvelope produces the signed envelope specified in spec.md §3: P-256
// ECDSA over SHA-256 of the canonical bytes, signature encoded as `r || s`
// (32 bytes each), base64-standard-encoded.
func SignEnvelope(payload json.RawMessage, sourceNode, targetNode string, priv *ecdsa.PrivateKey) (*Envelope, error) {
	bytesToSign, err := canonicalBytes(payload, sourceNode, targetNode)
	if err != nil {
		return nil, fmt.Errorf("identity: building canonical bytes: %w", err)
	}
	digest := sha256.Sum256(bytesToSign)

	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("identity: signing envelope: %w", err)
	}

	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])

	return &Envelope{
		Payload:    payload,
		SourceNode: sourceNode,
		TargetNode: targetNode,
		Signature:  base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// VerifyEnvelope verifies env's signature against pub and, when supplied,
// checks the expected source/target nodes. It returns the envelope's payload
// and source node on success.
func VerifyEnvelope(env *Envelope, pub *ecdsa.PublicKey, expectedSourceNode, expectedTargetNode string) (json.RawMessage, string, error) {
	bytesToVerify, err := canonicalBytes(env.Payload, env.SourceNode, env.TargetNode)
	if err != nil {
		return nil, "", fmt.Errorf("identity: building canonical bytes: %w", err)
	}
	digest := sha256.Sum256(bytesToVerify)

	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil || len(sig) != 64 {
		return nil, "", ErrInvalidSignature
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])

	if !ecdsa.Verify(pub, digest[:], r, s) {
		return nil, "", ErrInvalidSignature
	}

	if expectedSourceNode != "" && env.SourceNode != expectedSourceNode {
		return nil, "", ErrSourceNodeMismatch
	}
	if expectedTargetNode != "" && env.TargetNode != expectedTargetNode {
		return nil, "", ErrTargetNodeMismatch
	}

	return env.Payload, env.SourceNode, nil
}
