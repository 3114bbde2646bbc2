package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointsAcceptsArrayForm(t *testing.T) {
	var obj BoardObject
	require.NoError(t, json.Unmarshal([]byte(`{"id":"l1","type":"line","points":[{"x":1,"y":2},{"x":3,"y":4}]}`), &obj))
	assert.Equal(t, Points{{X: 1, Y: 2}, {X: 3, Y: 4}}, obj.Points)
}

func TestPointsAcceptsEncodedStringForm(t *testing.T) {
	var obj BoardObject
	require.NoError(t, json.Unmarshal([]byte(`{"id":"l1","type":"line","points":"[{\"x\":1,\"y\":2}]"}`), &obj))
	assert.Equal(t, Points{{X: 1, Y: 2}}, obj.Points)
}

func TestPointsToleratesBadEncodings(t *testing.T) {
	cases := map[string]string{
		"null":           `{"points":null}`,
		"empty string":   `{"points":""}`,
		"corrupt string": `{"points":"[{broken"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			var obj BoardObject
			require.NoError(t, json.Unmarshal([]byte(payload), &obj))
			assert.Nil(t, obj.Points)
		})
	}
}

func TestPointsMarshalsAsArray(t *testing.T) {
	obj := BoardObject{ID: "l1", Type: "line", Points: Points{{X: 1, Y: 2}}}
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"points":[{"x":1,"y":2}]`)
}

func TestIsLine(t *testing.T) {
	line := BoardObject{Type: "line"}
	rect := BoardObject{Type: "rectangle"}
	assert.True(t, line.IsLine())
	assert.False(t, rect.IsLine())
}
