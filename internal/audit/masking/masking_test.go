package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskJSON(t *testing.T) {
	out := MaskJSON(map[string]any{
		"proof_image": "https://storage.example/proofs/abc.png?sig=123456",
		"amount":      "50.00",
		"nested":      map[string]any{"token": "abc"},
		" ":           "dropped",
	})

	assert.Equal(t, "****3456", out["proof_image"])
	assert.Equal(t, "50.00", out["amount"])
	assert.Equal(t, map[string]any{"token": "****"}, out["nested"])
	assert.NotContains(t, out, " ")
	assert.Nil(t, MaskJSON(nil))
}
