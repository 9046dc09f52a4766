package manifest

import "context"

// Response is a fully prepared manifest HTTP response.
type Response struct {
	// Body is the document to write: the bare manifest, or its signed or
	// UNSIGNED wrapper when a signature was requested.
	Body string

	// Manifest is the bare manifest document regardless of signing.
	Manifest []byte

	// HostInfo describes the serving host for the Exponent-Server header.
	HostInfo *HostInfo
}

// Service ties the builder and signer together for the HTTP surface.
type Service struct {
	builder *Builder
	signer  *Signer
}

// NewService creates a manifest service.
//
// Parameters:
//   - builder: The manifest builder
//   - signer: The manifest signer
//
// Returns:
//   - *Service: A new service instance
func NewService(builder *Builder, signer *Signer) *Service {
	return &Service{builder: builder, signer: signer}
}

// Builder returns the underlying builder.
//
// Returns:
//   - *Builder: The builder
func (s *Service) Builder() *Builder {
	return s.builder
}

// Signer returns the underlying signer.
//
// Returns:
//   - *Signer: The signer
func (s *Service) Signer() *Signer {
	return s.signer
}

// GetManifestResponse builds and, when requested, signs a manifest.
//
// The signer's offline state feeds back into the build so anonymous id
// suffixing stays consistent with the signature the client receives.
//
// Parameters:
//   - ctx: Context for cancellation
//   - req: The build request
//
// Returns:
//   - *Response: The prepared response
//   - error: Build or signing errors
func (s *Service) GetManifestResponse(ctx context.Context, req Request) (*Response, error) {
	if s.signer.Offline() {
		req.Offline = true
	}

	built, err := s.builder.Build(req)
	if err != nil {
		return nil, err
	}
	manifestString := string(built.JSON)

	body := manifestString
	if req.AcceptSignature {
		config, err := s.builder.AppConfig()
		if err != nil {
			return nil, err
		}
		body, err = s.signer.Sign(ctx, config.Owner, config.Slug, manifestString)
		if err != nil {
			return nil, err
		}
	}

	return &Response{
		Body:     body,
		Manifest: built.JSON,
		HostInfo: built.HostInfo,
	}, nil
}
