package rbac

import (
	"fmt"

	"sessionguard/internal/claims"
	apperrors "sessionguard/pkg/errors"

	"go.uber.org/zap"
)

const (
	msgNoToken          = "no session token"
	msgNoRequiredRoles  = "resource admits no roles"
	msgRoleMismatchFmt  = "requires one of %v, user has %v"
	logDenied           = "rbac: authorization denied"
	logFieldReason      = "reason"
	logFieldRequired    = "required_roles"
	evaluatorLoggerName = "rbac"
)

// Evaluator decides whether a token's roles satisfy a resource's RoleSet.
// It holds no session state; every call decodes the token it is given.
type Evaluator struct {
	logger *zap.Logger
}

func NewEvaluator(logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{logger: logger.Named(evaluatorLoggerName)}
}

// Authorize returns nil when token carries at least one role in required.
// Otherwise the error is one of ErrNoCredential, ErrMalformedToken,
// ErrDecode, ErrNoRoleClaim or ErrAuthorizationDenied.
func (e *Evaluator) Authorize(required RoleSet, token string) error {
	if token == "" {
		return apperrors.NoCredential(msgNoToken)
	}

	decoded, err := claims.Decode(token)
	if err != nil {
		return err
	}

	userRoles, err := claims.Roles(decoded.Payload)
	if err != nil {
		return err
	}

	if len(required) == 0 {
		return apperrors.AuthorizationDenied(msgNoRequiredRoles)
	}

	if !required.Intersects(userRoles) {
		return apperrors.AuthorizationDenied(fmt.Sprintf(msgRoleMismatchFmt, []Role(required), userRoles))
	}

	return nil
}

// IsAuthorized is the boolean form of Authorize. Failures are logged and
// reported as false; they never reach the caller.
func (e *Evaluator) IsAuthorized(required RoleSet, token string) bool {
	err := e.Authorize(required, token)
	if err == nil {
		return true
	}
	e.logger.Debug(logDenied,
		zap.Strings(logFieldRequired, required),
		zap.String(logFieldReason, err.Error()))
	return false
}
