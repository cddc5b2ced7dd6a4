package utils

import (
	"context"
	"testing"

	"cosmo-migrator/internal/shared/contextkeys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRunIDFromContext(t *testing.T) {
	_, err := GetRunIDFromContext(context.Background())
	assert.ErrorIs(t, err, ErrRunIDNotFound)

	ctx := context.WithValue(context.Background(), contextkeys.RunIDKey, 42)
	_, err = GetRunIDFromContext(ctx)
	assert.ErrorIs(t, err, ErrRunIDNotString)

	runID, err := GetRunIDFromContext(WithRunID(context.Background(), "run-1"))
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
}

func TestWithScope_SkipsEmptyIDs(t *testing.T) {
	ctx := WithScope(context.Background(), "o-1", "", "s-1")

	orgID, err := GetOrganizationIDFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "o-1", orgID)
	assert.Nil(t, ctx.Value(contextkeys.WorkspaceIDKey))
	assert.Equal(t, "s-1", ctx.Value(contextkeys.ScenarioIDKey))
}

func TestWithKind(t *testing.T) {
	ctx := WithKind(context.Background(), "Scenario")
	assert.Equal(t, "Scenario", ctx.Value(contextkeys.KindKey))
}
