package record

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Record
// ---------------------------------------------------------------------------

// Record is one transaction line:
//
//	2023-09-03T12:45:00Z,txn1,user1,100.00
//
// Amount is the sort key. Seq is the position of the record in the input
// stream; it only lives in memory and is never serialized.
type Record struct {
	Timestamp     string
	TransactionID string
	UserID        string
	Amount        decimal.Decimal
	Seq           uint64
}

// AmountPlaces is the number of decimal digits kept for an amount.
const AmountPlaces = 2

// maxAmountDigits bounds both the significant digits and the exponent of a
// parsed amount, so a formatted amount always fits on a readable line.
const maxAmountDigits = 64

// Parse parses one line into a Record. The amount is rounded to AmountPlaces
// digits so the in-memory key is the same one written back to disk.
func Parse(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")

	f1 := strings.IndexByte(line, ',')
	if f1 < 0 {
		return Record{}, malformed(line, "missing field 2", nil)
	}
	f2 := strings.IndexByte(line[f1+1:], ',')
	if f2 < 0 {
		return Record{}, malformed(line, "missing field 3", nil)
	}
	f2 += f1 + 1
	f3 := strings.IndexByte(line[f2+1:], ',')
	if f3 < 0 {
		return Record{}, malformed(line, "missing field 4", nil)
	}
	f3 += f2 + 1
	if strings.IndexByte(line[f3+1:], ',') >= 0 {
		return Record{}, malformed(line, "more than 4 fields", nil)
	}

	raw := strings.TrimSpace(line[f3+1:])
	if raw == "" {
		return Record{}, malformed(line, "empty amount", nil)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return Record{}, malformed(line, fmt.Sprintf("amount %q is not a number", raw), err)
	}
	if exp := amount.Exponent(); exp > maxAmountDigits || exp < -maxAmountDigits || amount.NumDigits() > maxAmountDigits {
		return Record{}, malformed(line, fmt.Sprintf("amount %q is out of range", raw), nil)
	}

	return Record{
		Timestamp:     line[:f1],
		TransactionID: line[f1+1 : f2],
		UserID:        line[f2+1 : f3],
		Amount:        amount.Round(AmountPlaces),
	}, nil
}

// String renders the record in its canonical line form, without the newline.
func (r Record) String() string {
	var b strings.Builder
	b.Grow(len(r.Timestamp) + len(r.TransactionID) + len(r.UserID) + 16)
	b.WriteString(r.Timestamp)
	b.WriteByte(',')
	b.WriteString(r.TransactionID)
	b.WriteByte(',')
	b.WriteString(r.UserID)
	b.WriteByte(',')
	b.WriteString(r.Amount.StringFixed(AmountPlaces))
	return b.String()
}

// Compare orders two records by amount only. Equal amounts compare as 0;
// callers that need a total order add their own secondary key.
func Compare(a, b Record) int {
	return a.Amount.Cmp(b.Amount)
}
