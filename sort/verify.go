package sort

import (
	"txsort/record"
)

// VerifyResult is the outcome of VerifyFile.
type VerifyResult struct {
	Records int64
	Sorted  bool
	// FirstViolation is the 1-based line of the first record whose amount is
	// larger than the one before it, or 0 when the file is sorted.
	FirstViolation int
}

// VerifyFile checks that path holds well-formed records in non-increasing
// amount order. Malformed lines are reported as errors, not as violations.
func VerifyFile(path string) (VerifyResult, error) {
	res := VerifyResult{Sorted: true}

	r, err := openRecordFile(path, false, 1)
	if err != nil {
		return res, err
	}
	defer r.Close()

	var prev record.Record
	for {
		rec, ok, err := r.Next()
		if err != nil {
			return res, err
		}
		if !ok {
			return res, nil
		}
		if res.Records > 0 && res.Sorted && record.Compare(prev, rec) < 0 {
			res.Sorted = false
			res.FirstViolation = r.line
		}
		prev = rec
		res.Records++
	}
}
