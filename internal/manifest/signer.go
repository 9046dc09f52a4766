package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/orbitlabs/orbit-cli/internal/api"
)

// UnsignedSignature is the signature value of locally wrapped manifests.
const UnsignedSignature = "UNSIGNED"

// signingClient is the backend surface the signer needs. Implemented by
// *api.Client.
type signingClient interface {
	HasSession() bool
	SignManifest(ctx context.Context, req *api.SignManifestRequest) (string, error)
}

// Signer wraps manifests in signed envelopes via the backend.
//
// Signing is cached one slot deep: clients poll the manifest endpoint
// continuously and the manifest rarely changes between polls, so an exact
// string match on the previous manifest skips the round trip. Backend
// authorization and connectivity failures demote the signer to offline for
// the rest of the process, each warning printed once.
type Signer struct {
	client signingClient

	mu             sync.Mutex
	offline        bool
	cachedManifest string
	cachedSigned   string

	authWarning sync.Once
	dnsWarning  sync.Once
}

// NewSigner creates a manifest signer.
//
// Parameters:
//   - client: The backend API client; nil means always unsigned
//
// Returns:
//   - *Signer: A new signer instance
func NewSigner(client *api.Client) *Signer {
	s := &Signer{}
	if client != nil {
		s.client = client
	}
	return s
}

// Offline reports whether the signer has demoted itself to offline.
//
// Returns:
//   - bool: True once a signing attempt hit an auth or connectivity failure
func (s *Signer) Offline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offline
}

// SetOffline forces offline mode, e.g. for the --offline flag.
func (s *Signer) SetOffline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = true
}

// Sign returns the signed wrapper document for a manifest.
//
// Anonymous and offline sessions get the UNSIGNED wrapper without any
// network traffic. Signing failures that indicate a broken session or no
// connectivity demote to offline and also return the UNSIGNED wrapper;
// anything else propagates.
//
// Parameters:
//   - ctx: Context for cancellation
//   - owner: The publishing account name, or empty for anonymous
//   - slug: The project slug
//   - manifestString: The manifest document to sign
//
// Returns:
//   - string: The signed or UNSIGNED wrapper document
//   - error: Signing errors other than auth and DNS failures
func (s *Signer) Sign(ctx context.Context, owner, slug, manifestString string) (string, error) {
	s.mu.Lock()
	if s.offline || s.client == nil || !s.client.HasSession() {
		s.mu.Unlock()
		return UnsignedWrapper(manifestString)
	}
	if s.cachedManifest == manifestString {
		signed := s.cachedSigned
		s.mu.Unlock()
		return signed, nil
	}
	client := s.client
	s.mu.Unlock()

	username := owner
	if username == "" {
		username = AnonymousUsername
	}

	signed, err := client.SignManifest(ctx, &api.SignManifestRequest{
		Args: api.SignManifestArgs{
			RemoteUsername:    username,
			RemotePackageName: slug,
		},
		Manifest: json.RawMessage(manifestString),
	})
	if err != nil {
		switch {
		case api.IsAuthorizationError(err):
			s.authWarning.Do(func() {
				log.Warn(fmt.Sprintf("this project belongs to %q and your session cannot sign for it; serving unsigned manifests. See https://docs.orbit.host/accounts", username))
			})
		case api.IsDNSError(err):
			s.dnsWarning.Do(func() {
				log.Warn("could not reach the Orbit API; serving unsigned manifests until restart")
			})
		default:
			return "", fmt.Errorf("failed to sign manifest: %w", err)
		}

		s.mu.Lock()
		s.offline = true
		s.mu.Unlock()
		return UnsignedWrapper(manifestString)
	}

	s.mu.Lock()
	s.cachedManifest = manifestString
	s.cachedSigned = signed
	s.mu.Unlock()
	return signed, nil
}

// UnsignedWrapper wraps a manifest in the offline envelope.
//
// Parameters:
//   - manifestString: The manifest document
//
// Returns:
//   - string: JSON of {"manifestString": ..., "signature": "UNSIGNED"}
//   - error: Marshalling errors
func UnsignedWrapper(manifestString string) (string, error) {
	data, err := json.Marshal(map[string]string{
		"manifestString": manifestString,
		"signature":      UnsignedSignature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to wrap manifest: %w", err)
	}
	return string(data), nil
}
