package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func verifierGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[A-Za-z0-9\-._~]{43,128}`)
}

func testVerifyRoundTrip(t *rapid.T) {
	v := verifierGen().Draw(t, "verifier")
	if !VerifyPKCE(v, ComputeS256Challenge(v), MethodS256) {
		t.Fatalf("challenge computed from %q did not verify", v)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testVerifyRoundTrip)
}

func testVerifyFlippedChar(t *rapid.T) {
	v := verifierGen().Draw(t, "verifier")
	c := []byte(ComputeS256Challenge(v))
	i := rapid.IntRange(0, len(c)-1).Draw(t, "index")
	if c[i] == 'A' {
		c[i] = 'B'
	} else {
		c[i] = 'A'
	}
	if VerifyPKCE(v, string(c), MethodS256) {
		t.Fatalf("altered challenge %q verified", c)
	}
}

func TestVerifyFlippedChar(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testVerifyFlippedChar)
}

func testVerifyRejectsOtherMethods(t *rapid.T) {
	v := rapid.String().Draw(t, "verifier")
	c := rapid.SampledFrom([]string{ComputeS256Challenge(v), v, ""}).Draw(t, "challenge")
	method := rapid.String().Filter(func(s string) bool { return s != MethodS256 }).Draw(t, "method")
	if VerifyPKCE(v, c, method) {
		t.Fatalf("method %q accepted", method)
	}
}

func TestVerifyRejectsOtherMethods(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testVerifyRejectsOtherMethods)
}

func TestVerifyPKCEEdgeCases(t *testing.T) {
	const v = "dBjftJeZ4CVP-mJ92K9qzpgL8x7E7ddd9ZiqnaG3w1c"
	const c = "mYMDk_D8uZtdQARBJ2vd_SSa45iyAn27cEV2JX-0HP8"
	assert.True(t, VerifyPKCE(v, c, "S256"))
	assert.False(t, VerifyPKCE(v, c, "plain"))
	assert.False(t, VerifyPKCE(v, c, "s256"))
	assert.False(t, VerifyPKCE("", c, "S256"))
	assert.False(t, VerifyPKCE(v, "", "S256"))
	assert.False(t, VerifyPKCE(v, c+"=", "S256"))
	assert.False(t, VerifyPKCE(v, c[:len(c)-1], "S256"))
	assert.Equal(t, c, ComputeS256Challenge(v))
}
