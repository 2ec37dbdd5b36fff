package partition

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSmallRing(t *testing.T) {
	ranges, err := Split(-10, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, []TokenRange{{-10, 0}, {0, 10}}, ranges)
	assert.Equal(t, "(-10, 0]", ranges[0].String())
}

func TestSplitRemainder(t *testing.T) {
	ranges, err := Split(0, 10, 3)
	require.NoError(t, err)
	assert.Equal(t, []TokenRange{{0, 3}, {3, 6}, {6, 10}}, ranges)
}

func TestSplitSingle(t *testing.T) {
	ranges, err := Split(MinToken, MaxToken, 1)
	require.NoError(t, err)
	assert.Equal(t, []TokenRange{FullRing()}, ranges)
}

func TestSplitCoversRing(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 7, 16, 64, 1000} {
		ranges, err := Split(MinToken, MaxToken, n)
		require.NoError(t, err)
		require.Len(t, ranges, n)

		assert.Equal(t, MinToken, ranges[0].Begin)
		assert.Equal(t, MaxToken, ranges[n-1].End)

		total := new(big.Int)
		for i, r := range ranges {
			assert.LessOrEqual(t, r.Begin, r.End, "range %d", i)
			if i > 0 {
				assert.Equal(t, ranges[i-1].End, r.Begin, "gap or overlap before range %d", i)
			}
			span := new(big.Int).Sub(big.NewInt(r.End), big.NewInt(r.Begin))
			total.Add(total, span)
		}
		want := new(big.Int).Sub(big.NewInt(MaxToken), big.NewInt(MinToken))
		assert.Equal(t, 0, want.Cmp(total), "n=%d", n)
	}
}

func TestSplitMoreRangesThanTokens(t *testing.T) {
	ranges, err := Split(0, 2, 4)
	require.NoError(t, err)
	require.Len(t, ranges, 4)
	assert.True(t, ranges[0].Empty())
	assert.Equal(t, int64(2), ranges[3].End)
}

func TestSplitErrors(t *testing.T) {
	_, err := Split(0, 10, 0)
	assert.Error(t, err)
	_, err = Split(10, 0, 2)
	assert.Error(t, err)
}

func TestContains(t *testing.T) {
	r := TokenRange{Begin: -10, End: 0}
	assert.False(t, r.Contains(-10))
	assert.True(t, r.Contains(-9))
	assert.True(t, r.Contains(0))
	assert.False(t, r.Contains(1))
}

func TestParseToken(t *testing.T) {
	tok, err := ParseToken("-9223372036854775808")
	require.NoError(t, err)
	assert.Equal(t, MinToken, tok)

	_, err = ParseToken("abc")
	assert.Error(t, err)
}
