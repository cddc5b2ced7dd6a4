package service

import (
	"encoding/json"
	"testing"
	"time"

	"cosmo-migrator/internal/migration/domain/model"
	apperrors "cosmo-migrator/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestampMillis(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  int64
	}{
		{"microseconds with Z", "2023-01-15T10:30:00.123456Z", 1673778600123},
		{"microseconds without Z", "2023-01-15T10:30:00.123456", 1673778600123},
		{"seven fractional digits are truncated", "2023-01-15T10:30:00.1234567Z", 1673778600123},
		{"short fraction", "2023-01-15T10:30:00.5Z", 1673778600500},
		{"no fraction", "2023-01-15T10:30:00", 1673778600000},
		{"no fraction with Z", "2023-01-15T10:30:00Z", 1673778600000},
		{"rounds to nearest millisecond", "2024-02-29T23:59:59.9999999Z", 1709251200000},
		{"explicit offset", "2023-01-15T12:30:00.5+02:00", 1673778600500},
		{"offset after seven fractional digits", "2023-01-15T10:30:00.1234567+01:00", 1673775000123},
		{"offset after three fractional digits", "2023-01-15T10:30:00.123+01:00", 1673775000123},
		{"negative offset", "2023-01-15T05:30:00.123456-05:00", 1673778600123},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTimestampMillis(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("rejects garbage", func(t *testing.T) {
		for _, input := range []string{"", "yesterday", "2023-01-15", "2023-01-15T10:30:00.", "2023-01-15T10:30:00.12ab", "2023-01-15T10:30:00.1234567+0100", "2023-01-15T10:30:00.1234567 UTC"} {
			_, err := ParseTimestampMillis(input)
			assert.Error(t, err, input)
		}
	})
}

func TestToEpochMillis(t *testing.T) {
	t.Run("integers are left alone", func(t *testing.T) {
		_, changed, err := ToEpochMillis("creationDate", int64(1673778600123))
		require.NoError(t, err)
		assert.False(t, changed)

		_, changed, err = ToEpochMillis("creationDate", float64(1673778600123))
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("time values are converted", func(t *testing.T) {
		ts := time.Date(2023, 1, 15, 10, 30, 0, 123000000, time.UTC)
		millis, changed, err := ToEpochMillis("lastUpdate", ts)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, int64(1673778600123), millis)
	})

	t.Run("malformed strings fail with a typed error", func(t *testing.T) {
		_, _, err := ToEpochMillis("creationDate", "not a date")
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrMalformedTimestamp)

		errType, ok := apperrors.TypeOf(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrorTypeMalformedTimestamp, errType)
	})

	t.Run("unsupported types fail", func(t *testing.T) {
		_, _, err := ToEpochMillis("creationDate", []string{"x"})
		assert.ErrorIs(t, err, apperrors.ErrMalformedTimestamp)
	})
}

func rawSolution() *model.Entity {
	return &model.Entity{
		Kind: model.KindSolution,
		ID:   "sol-1",
		Fields: model.Record{
			"id":           "sol-1",
			"name":         "Supply chain",
			"_rid":         "abc==",
			"_etag":        "\"0000\"",
			"_ts":          1673778600,
			"creationDate": "2023-01-15T10:30:00.123456Z",
			"lastUpdate":   "2023-01-15T10:30:00",
			"ioTypes":      []interface{}{"read"},
			"compatibility": []interface{}{
				map[string]interface{}{"solutionKey": "supply", "minimumVersion": "1.0.0"},
			},
		},
	}
}

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer()
	scope := model.Scope{OrganizationID: "o-1"}

	t.Run("rewrites a raw record", func(t *testing.T) {
		raw := rawSolution()
		out, err := n.Normalize(raw, scope)
		require.NoError(t, err)

		assert.Equal(t, model.KindSolution, out.Kind)
		assert.Equal(t, "sol-1", out.ID)
		assert.NotContains(t, out.Fields, "_rid")
		assert.NotContains(t, out.Fields, "_etag")
		assert.NotContains(t, out.Fields, "_ts")
		assert.NotContains(t, out.Fields, "ioTypes")
		assert.Equal(t, []interface{}{"read"}, out.Fields["io_types"])

		compat := out.Fields["compatibility"].([]interface{})[0].(map[string]interface{})
		assert.Equal(t, "supply", compat["solution_key"])
		assert.NotContains(t, compat, "solutionKey")

		assert.Equal(t, int64(1673778600123), out.Fields["creationDate"])
		assert.Equal(t, int64(1673778600000), out.Fields["lastUpdate"])
		assert.Equal(t, "o-1", out.Fields["organizationId"])
	})

	t.Run("leaves the input untouched", func(t *testing.T) {
		raw := rawSolution()
		_, err := n.Normalize(raw, scope)
		require.NoError(t, err)
		assert.Contains(t, raw.Fields, "_rid")
		assert.Equal(t, "2023-01-15T10:30:00.123456Z", raw.Fields["creationDate"])
		compat := raw.Fields["compatibility"].([]interface{})[0].(map[string]interface{})
		assert.Contains(t, compat, "solutionKey")
	})

	t.Run("is idempotent", func(t *testing.T) {
		bothIOTypes := rawSolution()
		bothIOTypes.Fields["io_types"] = []interface{}{"write"}

		cases := []struct {
			name   string
			entity *model.Entity
		}{
			{"raw solution", rawSolution()},
			{"both io type spellings", bothIOTypes},
			{"time value timestamp", &model.Entity{Kind: model.KindWorkspace, ID: "w-1", Fields: model.Record{
				"id": "w-1", "creationDate": time.Date(2023, 1, 15, 10, 30, 0, 123000000, time.UTC),
			}}},
			{"json number timestamp", &model.Entity{Kind: model.KindWorkspace, ID: "w-2", Fields: model.Record{
				"id": "w-2", "lastUpdate": json.Number("1673778600123"),
			}}},
			{"empty record", &model.Entity{Kind: model.KindDataset, ID: "d-1", Fields: model.Record{}}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				once, err := n.Normalize(tc.entity, scope)
				require.NoError(t, err)
				twice, err := n.Normalize(once, scope)
				require.NoError(t, err)
				assert.Equal(t, once, twice)
			})
		}

		once, err := n.Normalize(bothIOTypes, scope)
		require.NoError(t, err)
		assert.Equal(t, []interface{}{"read"}, once.Fields["io_types"])
		assert.NotContains(t, once.Fields, "ioTypes")
	})

	t.Run("keeps an existing organization id", func(t *testing.T) {
		raw := rawSolution()
		raw.Fields["organizationId"] = "o-other"
		out, err := n.Normalize(raw, scope)
		require.NoError(t, err)
		assert.Equal(t, "o-other", out.Fields["organizationId"])
	})

	t.Run("global kinds get no organization id", func(t *testing.T) {
		connector := &model.Entity{Kind: model.KindConnector, ID: "c-1", Fields: model.Record{"id": "c-1"}}
		out, err := n.Normalize(connector, scope)
		require.NoError(t, err)
		assert.NotContains(t, out.Fields, "organizationId")

		org := &model.Entity{Kind: model.KindOrganization, ID: "o-1", Fields: model.Record{"id": "o-1"}}
		out, err = n.Normalize(org, scope)
		require.NoError(t, err)
		assert.NotContains(t, out.Fields, "organizationId")
	})

	t.Run("scenario runs receive their full scope", func(t *testing.T) {
		run := &model.Entity{Kind: model.KindScenarioRun, ID: "sr-1", Fields: model.Record{"id": "sr-1"}}
		out, err := n.Normalize(run, model.Scope{OrganizationID: "o-1", WorkspaceID: "w-1", ScenarioID: "s-1"})
		require.NoError(t, err)
		assert.Equal(t, "o-1", out.Fields["organizationId"])
		assert.Equal(t, "w-1", out.Fields["workspaceId"])
		assert.Equal(t, "s-1", out.Fields["scenarioId"])
	})

	t.Run("malformed timestamp aborts the entity", func(t *testing.T) {
		raw := rawSolution()
		raw.Fields["lastUpdate"] = "last tuesday"
		out, err := n.Normalize(raw, scope)
		assert.Nil(t, out)
		assert.ErrorIs(t, err, apperrors.ErrMalformedTimestamp)
	})

	t.Run("custom options", func(t *testing.T) {
		custom := NewNormalizerWithOptions(NormalizerOptions{InternalPrefix: "$", TimestampFields: []string{"startTime"}})
		run := &model.Entity{Kind: model.KindScenarioRun, ID: "sr-1", Fields: model.Record{
			"id":        "sr-1",
			"$meta":     true,
			"_keep":     true,
			"startTime": "2023-01-15T10:30:00Z",
		}}
		out, err := custom.Normalize(run, model.Scope{})
		require.NoError(t, err)
		assert.NotContains(t, out.Fields, "$meta")
		assert.Contains(t, out.Fields, "_keep")
		assert.Equal(t, int64(1673778600000), out.Fields["startTime"])
	})
}
