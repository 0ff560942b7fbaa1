package sink

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/config"
)

func TestFromConfigBuildsEnabledSinks(t *testing.T) {
	t.Parallel()

	sinks, err := FromConfig(config.SinksConfig{
		Enabled:  []string{"airtable", "archive"},
		Airtable: config.AirtableConfig{APIKey: "k", BaseID: "b", Table: "t"},
		Archive:  config.ArchiveConfig{Endpoint: "https://docs.internal", Folder: "digest"},
	}, slog.New(slog.DiscardHandler))

	require.NoError(t, err)
	require.Len(t, sinks, 2)
	assert.Equal(t, "airtable", sinks[0].Name())
	assert.Equal(t, "archive", sinks[1].Name())
}

func TestFromConfigRejectsEmptySet(t *testing.T) {
	t.Parallel()

	_, err := FromConfig(config.SinksConfig{}, slog.New(slog.DiscardHandler))
	require.Error(t, err)
}

func TestFromConfigRejectsUnknownSink(t *testing.T) {
	t.Parallel()

	_, err := FromConfig(config.SinksConfig{Enabled: []string{"ftp"}}, slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ftp")
}
