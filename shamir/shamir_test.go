package shamir_test

import (
	"math/rand/v2"
	"testing"

	"github.com/cerberus-project/cerberus/internal/testdata"
	"github.com/cerberus-project/cerberus/shamir"
	"github.com/gtank/ristretto255"
)

func TestSplitIdentifiers(t *testing.T) {
	drbg := testdata.New("shamir split identifiers")
	secret, _ := drbg.KeyPair()

	shares, err := shamir.Split(secret, 7, 4, drbg.Reader())
	if err != nil {
		t.Fatal(err)
	}

	if got := len(shares); got != 7 {
		t.Fatalf("got %d shares, want 7", got)
	}

	for i, s := range shares {
		if got, want := s.Identifier, uint16(i+1); got != want {
			t.Errorf("shares[%d].Identifier = %d, want %d", i, got, want)
		}
	}
}

func TestSplitCombineRoundTrip(t *testing.T) {
	drbg := testdata.New("shamir round trip")

	for _, tc := range []struct{ n, t int }{
		{5, 3}, {5, 4}, {3, 2}, {7, 4}, {1, 1},
	} {
		secret, _ := drbg.KeyPair()

		shares, err := shamir.Split(secret, tc.n, tc.t, drbg.Reader())
		if err != nil {
			t.Fatalf("n=%d t=%d: %v", tc.n, tc.t, err)
		}

		// shuffle so we aren't always combining the first t shares
		rand.Shuffle(len(shares), func(i, j int) { shares[i], shares[j] = shares[j], shares[i] })

		recovered, err := shamir.Combine(shares[:tc.t])
		if err != nil {
			t.Fatalf("n=%d t=%d: combine: %v", tc.n, tc.t, err)
		}

		if recovered.Equal(secret) != 1 {
			t.Errorf("n=%d t=%d: recovered secret does not match original", tc.n, tc.t)
		}
	}
}

func TestCombineWrongCountStillCombinesWhatsGiven(t *testing.T) {
	// Combine doesn't itself enforce a fixed threshold (callers decide how
	// many shares to gather); recombining fewer than t shares simply
	// produces a value that is NOT the original secret.
	drbg := testdata.New("shamir wrong count")
	secret, _ := drbg.KeyPair()

	shares, err := shamir.Split(secret, 5, 3, drbg.Reader())
	if err != nil {
		t.Fatal(err)
	}

	recovered, err := shamir.Combine(shares[:2])
	if err != nil {
		t.Fatal(err)
	}

	if recovered.Equal(secret) == 1 {
		t.Error("recombining fewer than t shares unexpectedly recovered the secret")
	}
}

func TestSplitInvalidParameters(t *testing.T) {
	drbg := testdata.New("shamir invalid params")
	secret, _ := drbg.KeyPair()

	for _, tc := range []struct {
		name string
		n, t int
	}{
		{"zero n", 0, 1},
		{"zero t", 5, 0},
		{"t greater than n", 3, 4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := shamir.Split(secret, tc.n, tc.t, drbg.Reader()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLagrangeCoefficientRejectsMalformedSets(t *testing.T) {
	if _, err := shamir.LagrangeCoefficient(0, []uint16{1, 2, 3}); err == nil {
		t.Error("expected error for zero identifier")
	}

	if _, err := shamir.LagrangeCoefficient(1, []uint16{1, 1, 2}); err == nil {
		t.Error("expected error for duplicate identifier in set")
	}

	if _, err := shamir.LagrangeCoefficient(4, []uint16{1, 2, 3}); err == nil {
		t.Error("expected error when identifier is absent from set")
	}
}

func TestCombineRejectsEmpty(t *testing.T) {
	if _, err := shamir.Combine(nil); err == nil {
		t.Error("expected error for empty share set")
	}
}

func TestSplitPseudoUniform(t *testing.T) {
	// The non-constant coefficients should not collapse to the identity
	// scalar across many independent splits.
	drbg := testdata.New("shamir pseudo uniform")
	secret, _ := drbg.KeyPair()

	zero := ristretto255.NewScalar()
	sawNonzero := false

	for range 16 {
		shares, err := shamir.Split(secret, 5, 3, drbg.Reader())
		if err != nil {
			t.Fatal(err)
		}

		if shares[1].Value.Equal(zero) != 1 {
			sawNonzero = true
		}
	}

	if !sawNonzero {
		t.Error("all derived shares were zero; coefficients are not random")
	}
}
