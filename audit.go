package jwt

import (
	"context"
	"errors"
	"io"

	"github.com/edgefirst-dev/jwt/internal/audit"
	"github.com/edgefirst-dev/jwt/jwks"
	"github.com/edgefirst-dev/jwt/keys"
	"github.com/edgefirst-dev/jwt/token"
	gjwt "github.com/golang-jwt/jwt/v5"
)

type (
	// AuditEvent is one key lifecycle or verification record.
	AuditEvent = audit.Event
	// AuditSink receives audit events from the dispatcher goroutine.
	AuditSink = audit.Sink
	// NoOpSink drops events.
	NoOpSink = audit.NoOpSink
	// ChannelSink buffers events into a channel.
	ChannelSink = audit.ChannelSink
	// JSONWriterSink writes one JSON object per line.
	JSONWriterSink = audit.JSONWriterSink
)

// NewChannelSink returns a sink buffering up to buffer unread events.
func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

// NewJSONWriterSink returns a sink writing one JSON event per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

// Audit event types.
const (
	AuditEventKeyGenerated      = "key.generated"
	AuditEventKeyRotated        = "key.rotated"
	AuditEventKeyRace           = "key.generation_race"
	AuditEventTokenVerifyFailed = "token.verify_failed"
	AuditEventTokenDecryptFail  = "token.decrypt_failed"
	AuditEventJWKSFetchFailed   = "jwks.fetch_failed"
)

// AuditErrorCode is the stable error classification written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrExpired       AuditErrorCode = "token_expired"
	auditErrNotYetValid   AuditErrorCode = "token_not_yet_valid"
	auditErrAudience      AuditErrorCode = "audience_mismatch"
	auditErrIssuer        AuditErrorCode = "issuer_mismatch"
	auditErrSignature     AuditErrorCode = "invalid_signature"
	auditErrMalformed     AuditErrorCode = "malformed_token"
	auditErrMissingClaim  AuditErrorCode = "missing_claim"
	auditErrNoKey         AuditErrorCode = "no_key"
	auditErrStorage       AuditErrorCode = "storage_unavailable"
	auditErrKeyImport     AuditErrorCode = "key_import_failed"
	auditErrRace          AuditErrorCode = "generation_race"
	auditErrFetch         AuditErrorCode = "fetch_failed"
	auditErrInvalidKeySet AuditErrorCode = "invalid_key_set"
	auditErrDecrypt       AuditErrorCode = "decrypt_failed"
	auditErrInvalidToken  AuditErrorCode = "invalid_token"
)

func (i *Issuer) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	purpose string,
	kid string,
	subject string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if i == nil || i.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: i.now().UTC(),
		EventType: eventType,
		Purpose:   purpose,
		KeyID:     kid,
		Subject:   subject,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	i.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, gjwt.ErrTokenExpired):
		return auditErrExpired
	case errors.Is(err, gjwt.ErrTokenNotValidYet),
		errors.Is(err, gjwt.ErrTokenUsedBeforeIssued):
		return auditErrNotYetValid
	case errors.Is(err, gjwt.ErrTokenInvalidAudience):
		return auditErrAudience
	case errors.Is(err, gjwt.ErrTokenInvalidIssuer):
		return auditErrIssuer
	case errors.Is(err, gjwt.ErrTokenSignatureInvalid),
		errors.Is(err, gjwt.ErrTokenUnverifiable):
		return auditErrSignature
	case errors.Is(err, gjwt.ErrTokenMalformed),
		errors.Is(err, token.ErrMalformedToken):
		return auditErrMalformed
	case errors.Is(err, gjwt.ErrTokenRequiredClaimMissing):
		return auditErrMissingClaim
	case errors.Is(err, gjwt.ErrTokenInvalidSubject),
		errors.Is(err, gjwt.ErrTokenInvalidClaims):
		return auditErrInvalidToken
	case errors.Is(err, token.ErrNoVerificationKey),
		errors.Is(err, token.ErrNoSigningKey),
		errors.Is(err, token.ErrNoEncryptionKey):
		return auditErrNoKey
	case errors.Is(err, token.ErrDecrypt):
		return auditErrDecrypt
	case errors.Is(err, keys.ErrKeyGenerationRace):
		return auditErrRace
	case errors.Is(err, keys.ErrStorage):
		return auditErrStorage
	case errors.Is(err, keys.ErrImport):
		return auditErrKeyImport
	case errors.Is(err, jwks.ErrFetch):
		return auditErrFetch
	case errors.Is(err, jwks.ErrInvalidKeySet):
		return auditErrInvalidKeySet
	default:
		return auditErrInvalidToken
	}
}
