package pdp

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Checksum returns the hex sha256 of the policy's canonical JSON
// encoding. Signatures cover the checksum, so any field change breaks
// verification.
func (p *Policy) Checksum() string {
	data, _ := json.Marshal(p)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// SignedPolicyBundle carries a policy set with a per-policy ed25519
// signature, so policy distribution can cross untrusted channels.
type SignedPolicyBundle struct {
	Policies   []*Policy         `json:"policies"`
	Signatures map[string]string `json:"signatures"` // policy id -> base64 signature
	Meta       map[string]any    `json:"meta,omitempty"`
}

// SignPolicy returns a base64 ed25519 signature over the policy id and
// checksum.
func SignPolicy(priv ed25519.PrivateKey, p *Policy) (string, error) {
	data, err := signedPayload(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, data)), nil
}

// VerifyPolicySignature checks a single policy signature.
func VerifyPolicySignature(pub ed25519.PublicKey, p *Policy, sigB64 string) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false, err
	}
	data, err := signedPayload(p)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, data, sig), nil
}

func signedPayload(p *Policy) ([]byte, error) {
	return json.Marshal(struct {
		ID       string
		Checksum string
	}{
		ID:       p.ID,
		Checksum: p.Checksum(),
	})
}

// SignBundle signs every policy with priv.
func SignBundle(priv ed25519.PrivateKey, policies []*Policy) (*SignedPolicyBundle, error) {
	b := &SignedPolicyBundle{Policies: policies, Signatures: make(map[string]string)}
	for _, p := range policies {
		sig, err := SignPolicy(priv, p)
		if err != nil {
			return nil, err
		}
		b.Signatures[p.ID] = sig
	}
	return b, nil
}

// VerifyBundle verifies every signature in the bundle against pub.
func VerifyBundle(pub ed25519.PublicKey, b *SignedPolicyBundle) (bool, error) {
	for _, p := range b.Policies {
		sig, ok := b.Signatures[p.ID]
		if !ok {
			return false, fmt.Errorf("missing signature for policy %s", p.ID)
		}
		okv, err := VerifyPolicySignature(pub, p, sig)
		if err != nil {
			return false, fmt.Errorf("bad signature for policy %s: %w", p.ID, err)
		}
		if !okv {
			return false, fmt.Errorf("bad signature for policy %s", p.ID)
		}
	}
	return true, nil
}

// ApplySignedBundle verifies the bundle and upserts its policies. A
// verification or validation failure leaves the policy set untouched.
func (p *PDP) ApplySignedBundle(pub ed25519.PublicKey, bundle *SignedPolicyBundle) error {
	ok, err := VerifyBundle(pub, bundle)
	if err != nil {
		return fmt.Errorf("bundle verification failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("bundle verification failed")
	}
	for _, policy := range bundle.Policies {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("invalid policy %s: %w", policy.ID, err)
		}
	}
	for _, policy := range bundle.Policies {
		if err := p.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
