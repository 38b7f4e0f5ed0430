package orch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIndexRange(t *testing.T) {
	tests := []struct {
		input     string
		low, high uint32
		ok        bool
	}{
		{"7", 7, 7, true},
		{"0", 0, 0, true},
		{"2-4", 2, 4, true},
		{"5-5", 5, 5, true},
		{"4-2", 0, 0, false},
		{"", 0, 0, false},
		{"a", 0, 0, false},
		{"1-2-3", 0, 0, false},
		{"-3", 0, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			low, high, ok := ParseIndexRange(tc.input)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.low, low)
				assert.Equal(t, tc.high, high)
			}
		})
	}
}

func TestGenerateBitmapFromIDsStr(t *testing.T) {
	bitmap, err := GenerateBitmapFromIDsStr("2-4,7")
	require.NoError(t, err)
	assert.Equal(t, uint64(0b10011100), bitmap)

	_, err = GenerateBitmapFromIDsStr("2-4,x")
	assert.Error(t, err)

	_, err = GenerateBitmapFromIDsStr("64")
	assert.Error(t, err)
}

func TestGenerateIDListFromMap(t *testing.T) {
	assert.Equal(t, []uint32{2, 3, 4, 7}, GenerateIDListFromMap(0b10011100, 63))
	assert.Equal(t, []uint32{2, 3}, GenerateIDListFromMap(0b10011100, 3))
	assert.Empty(t, GenerateIDListFromMap(0, 63))
}

func TestGenerateIDsStrFromMapRoundTrip(t *testing.T) {
	for _, ids := range []string{"2-4,7", "0", "0-63", "1,3,5", "10-12,20-22,40"} {
		bitmap, err := GenerateBitmapFromIDsStr(ids)
		require.NoError(t, err)
		assert.Equal(t, ids, GenerateIDsStrFromMap(bitmap, 63))
	}
	assert.Equal(t, "", GenerateIDsStrFromMap(0, 63))
}

func TestIsItemIDsMapContinuous(t *testing.T) {
	cont, err := GenerateBitmapFromIDsStr("2-5")
	require.NoError(t, err)
	assert.True(t, IsItemIDsMapContinuous(cont, 63))

	gap, err := GenerateBitmapFromIDsStr("2-4,7")
	require.NoError(t, err)
	assert.False(t, IsItemIDsMapContinuous(gap, 63))

	assert.False(t, IsItemIDsMapContinuous(0, 63))
}
