// Package partition splits the Murmur3 token ring into contiguous ranges so
// that several workers can scan one table without overlap or gaps.
package partition

import (
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/DerMene/cassandra-loader/pkg/errors"
)

const (
	// MinToken is the lowest token of the ring
	MinToken int64 = math.MinInt64
	// MaxToken is the highest token of the ring
	MaxToken int64 = math.MaxInt64
)

// TokenRange is the half-open interval (Begin, End].
type TokenRange struct {
	Begin int64
	End   int64
}

// FullRing returns the range spanning every token.
func FullRing() TokenRange {
	return TokenRange{Begin: MinToken, End: MaxToken}
}

// Contains reports whether token falls in (Begin, End].
func (r TokenRange) Contains(token int64) bool {
	return token > r.Begin && token <= r.End
}

// Empty reports whether the range holds no token.
func (r TokenRange) Empty() bool {
	return r.End <= r.Begin
}

func (r TokenRange) String() string {
	return fmt.Sprintf("(%d, %d]", r.Begin, r.End)
}

// Split divides (begin, end] into n contiguous ranges. Every range but the
// last spans (end-begin)/n tokens; the last absorbs the remainder and ends
// exactly at end. When the span is smaller than n the leading ranges are
// empty.
func Split(begin, end int64, n int) ([]TokenRange, error) {
	if n < 1 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "number of ranges must be positive, got %d", n)
	}
	if end < begin {
		return nil, errors.Newf(errors.ErrorTypeConfig, "end token %d is before begin token %d", end, begin)
	}

	b := big.NewInt(begin)
	delta := new(big.Int).Sub(big.NewInt(end), b)
	delta.Quo(delta, big.NewInt(int64(n)))

	ranges := make([]TokenRange, n)
	lo := begin
	for k := 0; k < n; k++ {
		hi := end
		if k < n-1 {
			step := new(big.Int).Mul(delta, big.NewInt(int64(k+1)))
			hi = step.Add(step, b).Int64()
		}
		ranges[k] = TokenRange{Begin: lo, End: hi}
		lo = hi
	}
	return ranges, nil
}

// ParseToken parses a token given on the command line.
func ParseToken(s string) (int64, error) {
	t, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConfig, "bad token "+strconv.Quote(s))
	}
	return t, nil
}
