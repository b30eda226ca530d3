package record

import "fmt"

// MalformedRecordError is returned when a line cannot be turned into a Record.
// Path and Line are filled in by whoever knows where the line came from.
type MalformedRecordError struct {
	Path   string
	Line   int
	Text   string
	Reason string
	Err    error
}

func malformed(text, reason string, err error) *MalformedRecordError {
	return &MalformedRecordError{Text: text, Reason: reason, Err: err}
}

func (e *MalformedRecordError) Error() string {
	where := "malformed record"
	switch {
	case e.Path != "" && e.Line > 0:
		where = fmt.Sprintf("malformed record at %s:%d", e.Path, e.Line)
	case e.Line > 0:
		where = fmt.Sprintf("malformed record at line %d", e.Line)
	case e.Path != "":
		where = fmt.Sprintf("malformed record in %s", e.Path)
	}
	return fmt.Sprintf("%s: %s (%q)", where, e.Reason, e.Text)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// At returns a copy of e located at path:line.
func (e *MalformedRecordError) At(path string, line int) *MalformedRecordError {
	c := *e
	c.Path = path
	c.Line = line
	return &c
}
