// AWS SigV4 signing transport for Bedrock calls.
//
// Bedrock authenticates with request signing instead of API keys, so
// the provider adapter hands Call an *http.Client whose transport signs
// every request for the bedrock-runtime service.
package external

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// BedrockSigningTransport is an http.RoundTripper that signs requests
// with AWS SigV4 before delegating to a base transport.
type BedrockSigningTransport struct {
	credentials aws.CredentialsProvider
	region      string
	signer      *v4.Signer
	base        http.RoundTripper
}

// NewBedrockSigningTransport loads credentials from the standard AWS
// chain and returns a signing transport for the given region. A nil
// base falls back to http.DefaultTransport. Credential retrieval is
// verified up front so misconfiguration surfaces at startup, not on
// the first model call.
func NewBedrockSigningTransport(region string, base http.RoundTripper) (*BedrockSigningTransport, error) {
	if region == "" {
		region = "us-east-1"
	}
	if base == nil {
		base = http.DefaultTransport
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if _, err := cfg.Credentials.Retrieve(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	return &BedrockSigningTransport{
		credentials: cfg.Credentials,
		region:      region,
		signer:      v4.NewSigner(),
		base:        base,
	}, nil
}

// RoundTrip signs the request with SigV4 and sends it via the base
// transport. The body is buffered because signing consumes it.
func (t *BedrockSigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body for signing: %w", err)
		}
	}

	creds, err := t.credentials.Retrieve(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	payloadHash := fmt.Sprintf("%x", sha256.Sum256(body))
	req.Body = io.NopCloser(bytes.NewReader(body))
	if err := t.signer.SignHTTP(req.Context(), creds, req, payloadHash, "bedrock", t.region, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to sign bedrock request: %w", err)
	}

	// Signing may have consumed the reader; reset before sending.
	req.Body = io.NopCloser(bytes.NewReader(body))
	return t.base.RoundTrip(req)
}
