package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{"identical vectors", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"orthogonal vectors", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0},
		{"opposite vectors", []float32{1, 1, 1}, []float32{-1, -1, -1}, -1.0},
		{"similar vectors", []float32{1, 2, 3}, []float32{1.1, 2.1, 3.1}, 0.999},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 2, 3}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 0.001)
		})
	}
}

func TestCosine_DimensionMismatch(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1, 2, 3})
	assert.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	in := []float32{0.5, -1.25, 3, 0}

	out, err := Decode(Encode(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecode_BadLength(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}
