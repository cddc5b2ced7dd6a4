package utils

import (
	"context"
	"errors"

	"cosmo-migrator/internal/shared/contextkeys"
)

// Common context errors
var (
	ErrRunIDNotFound           = errors.New("runID not found in context")
	ErrRunIDNotString          = errors.New("runID in context is not a string")
	ErrOrganizationIDNotFound  = errors.New("organizationID not found in context")
	ErrOrganizationIDNotString = errors.New("organizationID in context is not a string")
)

// GetRunIDFromContext retrieves the migration run id from the context.
func GetRunIDFromContext(ctx context.Context) (string, error) {
	val := ctx.Value(contextkeys.RunIDKey)
	if val == nil {
		return "", ErrRunIDNotFound
	}
	runID, ok := val.(string)
	if !ok {
		return "", ErrRunIDNotString
	}
	return runID, nil
}

// GetOrganizationIDFromContext retrieves the source organization id from the context.
func GetOrganizationIDFromContext(ctx context.Context) (string, error) {
	val := ctx.Value(contextkeys.OrganizationIDKey)
	if val == nil {
		return "", ErrOrganizationIDNotFound
	}
	organizationID, ok := val.(string)
	if !ok {
		return "", ErrOrganizationIDNotString
	}
	return organizationID, nil
}

// WithRunID returns a copy of ctx carrying the run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, contextkeys.RunIDKey, runID)
}

// WithScope returns a copy of ctx carrying the non-empty source scope ids.
func WithScope(ctx context.Context, organizationID, workspaceID, scenarioID string) context.Context {
	if organizationID != "" {
		ctx = context.WithValue(ctx, contextkeys.OrganizationIDKey, organizationID)
	}
	if workspaceID != "" {
		ctx = context.WithValue(ctx, contextkeys.WorkspaceIDKey, workspaceID)
	}
	if scenarioID != "" {
		ctx = context.WithValue(ctx, contextkeys.ScenarioIDKey, scenarioID)
	}
	return ctx
}

// WithKind returns a copy of ctx carrying the entity kind being processed.
func WithKind(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, contextkeys.KindKey, kind)
}
