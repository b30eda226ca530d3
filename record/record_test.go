package record

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ------------------------------------------------------------
// Happy path
// ------------------------------------------------------------

func TestParse_ValidLine(t *testing.T) {
	line := "2023-09-03T12:45:00Z,txn1,user1,100.00"

	r, err := Parse(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Timestamp != "2023-09-03T12:45:00Z" {
		t.Fatalf("Timestamp mismatch: got=%q", r.Timestamp)
	}
	if r.TransactionID != "txn1" {
		t.Fatalf("TransactionID mismatch: got=%q", r.TransactionID)
	}
	if r.UserID != "user1" {
		t.Fatalf("UserID mismatch: got=%q", r.UserID)
	}
	if !r.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("Amount mismatch: got=%s want=100", r.Amount)
	}
	if r.String() != line {
		t.Fatalf("round trip mismatch: got=%q want=%q", r.String(), line)
	}
}

func TestParse_StripsLineEnding(t *testing.T) {
	r, err := Parse("2023-09-03T12:45:00Z,txn1,user1,7.5\r\n")
	require.NoError(t, err)
	assert.Equal(t, "2023-09-03T12:45:00Z,txn1,user1,7.50", r.String())
}

// ------------------------------------------------------------
// Amount canonicalization
// ------------------------------------------------------------

func TestParse_AmountFormatting(t *testing.T) {
	cases := map[string]string{
		"100":      "100.00",
		"0.1":      "0.10",
		"12.345":   "12.35",
		"12.344":   "12.34",
		"-3.005":   "-3.01",
		" 42.00 ":  "42.00",
		"1e2":      "100.00",
		"0.000001": "0.00",
	}
	for in, want := range cases {
		r, err := Parse("ts,t,u," + in)
		require.NoError(t, err, in)
		assert.Equal(t, want, r.Amount.StringFixed(AmountPlaces), in)
	}
}

func TestParse_RoundedKeyMatchesSerializedKey(t *testing.T) {
	a, err := Parse("ts,a,u,1.001")
	require.NoError(t, err)
	b, err := Parse("ts,b,u,1.004")
	require.NoError(t, err)

	assert.Equal(t, 0, Compare(a, b), "amounts equal after canonicalization must compare equal")
}

// ------------------------------------------------------------
// Structural failures
// ------------------------------------------------------------

func TestParse_MissingFields(t *testing.T) {
	for _, line := range []string{
		"",
		"2023-09-03T12:45:00Z",
		"2023-09-03T12:45:00Z,txn1",
		"2023-09-03T12:45:00Z,txn1,user1",
	} {
		_, err := Parse(line)
		var mre *MalformedRecordError
		if !errors.As(err, &mre) {
			t.Fatalf("expected MalformedRecordError for %q, got %v", line, err)
		}
	}
}

func TestParse_ExtraField(t *testing.T) {
	_, err := Parse("2023-09-03T12:45:00Z,txn1,user1,10.00,extra")
	var mre *MalformedRecordError
	require.ErrorAs(t, err, &mre)
	assert.Contains(t, mre.Reason, "more than 4 fields")
}

// ------------------------------------------------------------
// Amount failures (never coerced to zero)
// ------------------------------------------------------------

func TestParse_NonNumericAmount(t *testing.T) {
	for _, amount := range []string{"abc", "", "  ", "NaN", "Inf", "12,5", "1.2.3"} {
		_, err := Parse("2023-09-03T12:45:00Z,txn1,user1," + amount)
		if err == nil {
			t.Fatalf("expected error for amount %q", amount)
		}
	}
}

func TestParse_AmountOutOfRange(t *testing.T) {
	for _, amount := range []string{
		"1e9999999",
		"1e-9999999",
		"1e65",
		"1e-65",
		strings.Repeat("9", 65),
	} {
		_, err := Parse("ts,t,u," + amount)
		var mre *MalformedRecordError
		require.ErrorAs(t, err, &mre, amount)
		assert.Contains(t, mre.Reason, "out of range", amount)
	}

	r, err := Parse("ts,t,u,1e60")
	require.NoError(t, err)
	assert.Len(t, r.String(), len("ts,t,u,")+61+3)
}

func TestMalformedRecordError_Location(t *testing.T) {
	_, err := Parse("ts,t,u,oops")
	var mre *MalformedRecordError
	require.ErrorAs(t, err, &mre)

	located := mre.At("input.txt", 12)
	assert.Equal(t, "input.txt", located.Path)
	assert.Equal(t, 12, located.Line)
	assert.Contains(t, located.Error(), "input.txt:12")
	assert.Contains(t, located.Error(), "oops")
	assert.Empty(t, mre.Path, "At returns a copy")
}

// ------------------------------------------------------------
// Compare
// ------------------------------------------------------------

func TestCompare_AmountOnly(t *testing.T) {
	lo := Record{TransactionID: "z", Amount: decimal.RequireFromString("1.00")}
	hi := Record{TransactionID: "a", Amount: decimal.RequireFromString("2.00")}

	assert.Equal(t, -1, Compare(lo, hi))
	assert.Equal(t, 1, Compare(hi, lo))
	assert.Equal(t, 0, Compare(lo, Record{TransactionID: "q", Amount: decimal.RequireFromString("1")}))
}
