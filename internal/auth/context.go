package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxOrganizationID
	ctxRole
)

var (
	ErrNoUser         = errors.New("user_id not in context")
	ErrNoOrganization = errors.New("organization_id not in context")
	ErrNoRole         = errors.New("role not in context")
)

func WithIdentity(ctx context.Context, userID, organizationID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxOrganizationID, organizationID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	if s, ok := ctx.Value(ctxUserID).(string); ok && s != "" {
		return s, nil
	}
	return "", ErrNoUser
}

func OrganizationID(ctx context.Context) (string, error) {
	if s, ok := ctx.Value(ctxOrganizationID).(string); ok && s != "" {
		return s, nil
	}
	return "", ErrNoOrganization
}

func Role(ctx context.Context) (string, error) {
	if s, ok := ctx.Value(ctxRole).(string); ok && s != "" {
		return s, nil
	}
	return "", ErrNoRole
}
