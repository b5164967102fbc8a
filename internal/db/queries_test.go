package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolbot/schoolbot/internal/vector"
)

func TestDecodePGVector(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []float32
	}{
		{name: "valid", raw: "[1,2.5,-3]", want: []float32{1, 2.5, -3}},
		{name: "padded", raw: " [0.5,0.25] ", want: []float32{0.5, 0.25}},
		{name: "garbage", raw: "not a vector"},
		{name: "blank", raw: ""},
		{name: "unclosed", raw: "[1,2"},
		{name: "nan", raw: "[NaN]"},
		{name: "inf", raw: "[1,Inf]"},
		{name: "empty", raw: "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodePGVector(tt.raw)
			if tt.want == nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, vector.ErrMalformedVector)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
