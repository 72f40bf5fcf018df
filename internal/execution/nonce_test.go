package execution

import "testing"

// Wall clock returns 1000, then 999, then 1001. Expected nonces: 1000,
// 1001, 1002 - a backward clock jump must not regress the sequence.
func TestNonceManagerClockSkew(t *testing.T) {
	vals := []int64{1000, 999, 1001}
	i := 0
	clock := func() int64 {
		v := vals[i]
		i++
		return v
	}

	nm := NewNonceManager(clock, nil)
	want := []uint64{1000, 1001, 1002}
	for _, w := range want {
		if got := nm.Next(); got != w {
			t.Fatalf("Next() = %d, want %d", got, w)
		}
	}
}

func TestNonceManagerMonotonicWithFrozenClock(t *testing.T) {
	nm := NewNonceManager(func() int64 { return 1 }, nil)
	seen := make(map[uint64]bool)
	var last uint64
	for i := 0; i < 1000; i++ {
		n := nm.Next()
		if n <= last {
			t.Fatalf("nonce %d not strictly greater than previous %d", n, last)
		}
		if seen[n] {
			t.Fatalf("duplicate nonce %d", n)
		}
		seen[n] = true
		last = n
	}
}
