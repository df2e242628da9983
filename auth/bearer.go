package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"

	"github.com/mnehpets/mcpserve/endpoint"
)

type tokenKey struct{}

// TokenFromContext returns the verified token stored by BearerProcessor.
func TokenFromContext(ctx context.Context) (*oidc.IDToken, bool) {
	tok, ok := ctx.Value(tokenKey{}).(*oidc.IDToken)
	return tok, ok && tok != nil
}

// BearerProcessor requires an Authorization: Bearer token that the verifier
// accepts. Rejected requests get 401 with a WWW-Authenticate challenge.
type BearerProcessor struct {
	verifier TokenVerifier
	realm    string
	log      *zap.SugaredLogger
}

// NewBearerProcessor creates a BearerProcessor.
func NewBearerProcessor(v TokenVerifier, realm string) *BearerProcessor {
	return &BearerProcessor{
		verifier: v,
		realm:    realm,
		log:      zap.S().With("module", "auth"),
	}
}

// Process implements endpoint.Processor.
func (p *BearerProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	raw, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return p.challenge("", nil)
	}
	tok, err := p.verifier.Verify(r.Context(), raw)
	if err != nil {
		p.log.Debugw("bearer token rejected", "error", err)
		return p.challenge("invalid_token", err)
	}
	return next(w, r.WithContext(context.WithValue(r.Context(), tokenKey{}, tok)))
}

func (p *BearerProcessor) challenge(code string, cause error) error {
	v := `Bearer realm="` + p.realm + `"`
	if code != "" {
		v += `, error="` + code + `"`
	}
	return &endpoint.EndpointError{
		Status: http.StatusUnauthorized,
		Cause:  cause,
		Header: http.Header{"Www-Authenticate": {v}},
	}
}

// bearerToken extracts the token from an Authorization header value. The
// scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

var _ endpoint.Processor = (*BearerProcessor)(nil)
