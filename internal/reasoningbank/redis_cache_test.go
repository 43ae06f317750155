package reasoningbank

import "testing"

func TestEncodeDecodeRate_RoundTrips(t *testing.T) {
	cases := []struct {
		rate    float64
		samples int
	}{
		{0, 0},
		{0.5, 3},
		{1, 12},
		{0.3333333333333333, 7},
	}
	for _, c := range cases {
		encoded := encodeRate(c.rate, c.samples)
		rate, samples, ok := decodeRate(encoded)
		if !ok {
			t.Fatalf("decodeRate(%q) failed to decode", encoded)
		}
		if rate != c.rate || samples != c.samples {
			t.Fatalf("round trip mismatch: got (%v,%v), want (%v,%v)", rate, samples, c.rate, c.samples)
		}
	}
}

func TestDecodeRate_RejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "no-colon", "abc:3", "0.5:abc"} {
		if _, _, ok := decodeRate(bad); ok {
			t.Fatalf("expected decodeRate(%q) to fail", bad)
		}
	}
}
