package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annodb/annodb/internal/errors"
)

func validSettings() *Settings {
	settings := &Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = "annodb.db"
	settings.Ingest.BatchSize = 500
	settings.Ingest.BoundsPolicy = BoundsReject
	return settings
}

func TestValidateSettingsAcceptsDefaults(t *testing.T) {
	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettingsRejectsBadConfigurations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"no output enabled", func(s *Settings) {
			s.Output.SQLite.Enabled = false
		}},
		{"both outputs enabled", func(s *Settings) {
			s.Output.MySQL.Enabled = true
		}},
		{"empty sqlite path", func(s *Settings) {
			s.Output.SQLite.Path = ""
		}},
		{"zero batch size", func(s *Settings) {
			s.Ingest.BatchSize = 0
		}},
		{"unknown bounds policy", func(s *Settings) {
			s.Ingest.BoundsPolicy = "ignore"
		}},
		{"negative limit", func(s *Settings) {
			s.Ingest.Limit = -1
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := validSettings()
			tt.mutate(settings)

			err := ValidateSettings(settings)
			require.Error(t, err)
			assert.Equal(t, errors.CategoryConfiguration, errors.CategoryOf(err))
		})
	}
}

func TestValidateSettingsAllowsClampPolicy(t *testing.T) {
	settings := validSettings()
	settings.Ingest.BoundsPolicy = BoundsClamp
	require.NoError(t, ValidateSettings(settings))
}
