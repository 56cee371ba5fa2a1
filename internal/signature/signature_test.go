package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameCoversAllCodes(t *testing.T) {
	seen := make(map[string]bool, Count)
	for code := 0; code < Count; code++ {
		name, err := Name(code)
		require.NoError(t, err)
		assert.NotEmpty(t, name)
		assert.False(t, seen[name], "duplicate name %q", name)
		seen[name] = true

		back, ok := Code(name)
		require.True(t, ok)
		assert.Equal(t, code, back)
	}
	assert.Len(t, seen, Count)
}

func TestNameOutOfRange(t *testing.T) {
	for _, code := range []int{-1, 16, 99} {
		_, err := Name(code)
		require.Error(t, err)
		assert.True(t, IsUnknownCode(err))
	}
}

func TestFromValue(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		want    string
		wantErr bool
	}{
		{name: "zero", value: 0, want: "Wild countryside"},
		{name: "integral float", value: 5.0, want: "Disconnected suburbia"},
		{name: "last", value: 15, want: "Hyper concentrated urbanity"},
		{name: "fractional", value: 2.5, wantErr: true},
		{name: "negative", value: -1, wantErr: true},
		{name: "too large", value: 16, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromValue(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsUnknownCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodeUnknownName(t *testing.T) {
	_, ok := Code("Lunar base")
	assert.False(t, ok)
}

func TestNamesIsACopy(t *testing.T) {
	n := Names()
	require.Len(t, n, Count)
	n[0] = "changed"
	assert.Equal(t, "Wild countryside", Names()[0])
}
