package money

import "testing"

func TestSafeDivZeroDenominator(t *testing.T) {
	got := SafeDiv(MustParse("100"), Zero)
	if !IsZero(got) {
		t.Errorf("SafeDiv(100, 0) = %v, want 0", got)
	}
}

func TestSafeDiv(t *testing.T) {
	cases := []struct {
		a, b string
		want string
	}{
		{"100", "50", "2"},
		{"150", "100", "1.5"},
		{"0", "100", "0"},
	}
	for _, c := range cases {
		got := SafeDiv(MustParse(c.a), MustParse(c.b))
		want := MustParse(c.want)
		if Cmp(got, want) != 0 {
			t.Errorf("SafeDiv(%s, %s) = %v, want %v", c.a, c.b, got, want)
		}
	}
}

func TestComparisons(t *testing.T) {
	a := MustParse("50")
	b := MustParse("100")

	if !LT(a, b) {
		t.Errorf("expected %v < %v", a, b)
	}
	if !GT(b, a) {
		t.Errorf("expected %v > %v", b, a)
	}
	if !LTE(a, a) {
		t.Errorf("expected %v <= %v", a, a)
	}
	if !GTE(b, b) {
		t.Errorf("expected %v >= %v", b, b)
	}
}

func TestMaxMin(t *testing.T) {
	a := MustParse("50")
	b := MustParse("100")

	if Cmp(Max(a, b), b) != 0 {
		t.Errorf("Max(%v, %v) = %v, want %v", a, b, Max(a, b), b)
	}
	if Cmp(Min(a, b), a) != 0 {
		t.Errorf("Min(%v, %v) = %v, want %v", a, b, Min(a, b), a)
	}
}

func TestIsNeg(t *testing.T) {
	if !IsNeg(MustParse("-5")) {
		t.Error("expected -5 to be negative")
	}
	if IsNeg(MustParse("5")) {
		t.Error("expected 5 to not be negative")
	}
	if IsNeg(Zero) {
		t.Error("expected 0 to not be negative")
	}
}

func TestArithmetic(t *testing.T) {
	if sum := Add(MustParse("1.5"), MustParse("2.25")); Cmp(sum, MustParse("3.75")) != 0 {
		t.Errorf("Add = %v, want 3.75", sum)
	}
	if diff := Sub(MustParse("10"), MustParse("3")); Cmp(diff, MustParse("7")) != 0 {
		t.Errorf("Sub = %v, want 7", diff)
	}
	if prod := Mul(MustParse("2"), MustParse("3.5")); Cmp(prod, MustParse("7")) != 0 {
		t.Errorf("Mul = %v, want 7", prod)
	}
}

func TestNoBinaryFloatDrift(t *testing.T) {
	// The canonical float64 failure: 0.1 + 0.2 != 0.3.
	if got := Add(MustParse("0.1"), MustParse("0.2")); Cmp(got, MustParse("0.3")) != 0 {
		t.Errorf("0.1 + 0.2 = %v, want exactly 0.3", got)
	}
}

func TestPrecisionBeyondFixedWidth(t *testing.T) {
	// 30 significant digits survive a round trip and exact
	// arithmetic without truncation.
	a := MustParse("123456789012345678901.234567891")
	if a.String() != "123456789012345678901.234567891" {
		t.Errorf("30-digit value did not round-trip: %v", a)
	}
	sum := Add(a, MustParse("0.000000001"))
	if Cmp(sum, MustParse("123456789012345678901.234567892")) != 0 {
		t.Errorf("exact add lost precision: %v", sum)
	}
}
