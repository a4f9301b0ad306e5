package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zerolog.Level
		wantErr bool
	}{
		{input: "", want: zerolog.InfoLevel},
		{input: "debug", want: zerolog.DebugLevel},
		{input: " WARN ", want: zerolog.WarnLevel},
		{input: "error", want: zerolog.ErrorLevel},
		{input: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetupWriter_JSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "info", FormatJSON))

	log.Debug().Msg("hidden")
	log.Info().Str("session_id", "s1").Msg("visible")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "visible", event["message"])
	assert.Equal(t, "s1", event["session_id"])
	assert.Equal(t, "info", event["level"])
}

func TestSetupWriter_Console(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "debug", FormatConsole))

	log.Debug().Msg("console line")

	assert.Contains(t, buf.String(), "console line")
}

func TestSetupWriter_UnknownFormat(t *testing.T) {
	assert.Error(t, SetupWriter(&bytes.Buffer{}, "info", "xml"))
}
