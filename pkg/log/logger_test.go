package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alina-malkova/sanctions-labor-markets/pkg/errors"
)

func TestSetup_EmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "debug")

	l := With("LassoCV")
	l.Debug().Int(SamplesKey, 100).Msg("fit started")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "LassoCV", entry[ModelNameKey])
	assert.Equal(t, float64(100), entry[SamplesKey])
	assert.Equal(t, "fit started", entry["message"])
}

func TestSetup_LevelFiltersEvents(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "warn")

	Logger().Info().Msg("suppressed")
	assert.Zero(t, buf.Len())

	Logger().Warn().Msg("emitted")
	assert.NotZero(t, buf.Len())
}

func TestSetup_RoutesWarnings(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "warn")
	defer errors.SetZerologWarnFunc(nil)

	errors.Warn(errors.NewConvergenceWarning("LassoCV", 1000, ""))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "estimation warning", entry["message"])
	assert.Equal(t, "LassoCV", entry["algorithm"])
	assert.Equal(t, "ConvergenceWarning", entry["type"])
}
