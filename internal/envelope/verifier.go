package envelope

import (
	"context"
	"crypto"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"

	"storehook/internal/logger"
	apperrors "storehook/pkg/errors"
	"storehook/pkg/tracing"
)

// KeyResolver maps an untrusted key id to a verification key.
type KeyResolver interface {
	Resolve(ctx context.Context, keyID string) (crypto.PublicKey, error)
}

var DefaultAlgorithms = []string{"ES256", "RS256"}

type VerifierConfig struct {
	Platform string
	// Algorithms restricts accepted "alg" values. Empty means DefaultAlgorithms.
	Algorithms []string
	// Disabled skips the signature check but still decodes the claims.
	Disabled bool
	Issuer   string
	Leeway   time.Duration
}

// Verifier validates a compact JWS against keys from a KeyResolver.
type Verifier struct {
	cfg      VerifierConfig
	resolver KeyResolver
	allowed  map[string]bool
	parser   *jwt.Parser
	log      logger.Logger
}

func NewVerifier(cfg VerifierConfig, resolver KeyResolver, log logger.Logger) *Verifier {
	if len(cfg.Algorithms) == 0 {
		cfg.Algorithms = DefaultAlgorithms
	}
	if log == nil {
		log = logger.NopLogger()
	}

	allowed := make(map[string]bool, len(cfg.Algorithms))
	algs := make([]string, 0, len(cfg.Algorithms))
	for _, alg := range cfg.Algorithms {
		alg = strings.ToUpper(strings.TrimSpace(alg))
		if isSymmetricOrNone(alg) {
			continue
		}
		allowed[alg] = true
		algs = append(algs, alg)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(algs),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	if cfg.Disabled {
		log.Warnw("Signature verification disabled; envelopes are decoded without checking signatures",
			"platform", cfg.Platform,
		)
	}

	return &Verifier{
		cfg:      cfg,
		resolver: resolver,
		allowed:  allowed,
		parser:   jwt.NewParser(opts...),
		log:      log,
	}
}

func (v *Verifier) Enabled() bool {
	return !v.cfg.Disabled
}

func isSymmetricOrNone(alg string) bool {
	return alg == "" || strings.EqualFold(alg, "none") || strings.HasPrefix(alg, "HS")
}

// Verify checks token and returns its claims once the signature holds.
func (v *Verifier) Verify(ctx context.Context, token string) (claims map[string]interface{}, err error) {
	ctx, span := tracing.StartSpan(ctx, "envelope.Verify", attribute.String("platform", v.cfg.Platform))
	defer func() { tracing.EndSpan(span, err) }()

	segments, err := DecodeSegments(token)
	if err != nil {
		return nil, err
	}

	if v.cfg.Disabled {
		return segments.Claims, nil
	}

	kid := segments.KeyID()
	if kid == "" {
		return nil, apperrors.ErrMissingKeyID
	}
	span.SetAttributes(attribute.String("kid", kid))

	alg := segments.Algorithm()
	if !v.allowed[alg] {
		return nil, apperrors.ErrInvalidSignature.WithDetail("alg", alg)
	}

	key, err := v.resolver.Resolve(ctx, kid)
	if err != nil {
		return nil, apperrors.ErrVerificationFailed.WithCause(err).WithDetail("kid", kid)
	}

	parsed, err := v.parser.ParseWithClaims(token, jwt.MapClaims{}, func(*jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		v.log.DebugwCtx(ctx, "Envelope rejected",
			"platform", v.cfg.Platform,
			"kid", kid,
			"alg", alg,
			"error", err,
		)
		return nil, classifyError(err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.ErrVerificationFailed.WithDetail("message", "unexpected claims type")
	}
	return map[string]interface{}(mapClaims), nil
}

func classifyError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrSignatureInvalid),
		errors.Is(err, jwt.ErrInvalidKeyType):
		return apperrors.ErrInvalidSignature.WithCause(err)
	case errors.Is(err, jwt.ErrTokenExpired),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidClaims):
		return apperrors.ErrExpiredOrMalformed.WithCause(err)
	default:
		return apperrors.ErrVerificationFailed.WithCause(err)
	}
}
