package auth

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
)

// RequireAuth extracts user claims from context or returns an unauthenticated error
func RequireAuth(ctx context.Context) (*UserClaims, error) {
	claims, ok := GetUserClaims(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: user not authenticated", ErrUnauthenticated)
	}
	return claims, nil
}

// RequireUserAccess verifies the authenticated user matches the requested
// user ID. Service callers may act for any user.
func RequireUserAccess(ctx context.Context, requestedUserID string) (*UserClaims, error) {
	claims, err := RequireAuth(ctx)
	if err != nil {
		return nil, err
	}
	if claims.Service {
		return claims, nil
	}
	if requestedUserID != "" && requestedUserID != claims.UID {
		return nil, fmt.Errorf("%w: cannot access another user's resources", ErrPermissionDenied)
	}
	return claims, nil
}

// RequireService verifies the caller authenticated with a service token.
func RequireService(ctx context.Context) error {
	claims, err := RequireAuth(ctx)
	if err != nil {
		return err
	}
	if !claims.Service {
		return fmt.Errorf("%w: service token required", ErrPermissionDenied)
	}
	return nil
}
