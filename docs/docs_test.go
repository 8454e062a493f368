package docs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"
)

func TestRegisteredDocIsValidJSON(t *testing.T) {
	doc, err := swag.ReadDoc()
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &parsed))

	paths, ok := parsed["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/api/keyframes/extract")
	assert.Contains(t, paths, "/api/runs/{id}")
}
