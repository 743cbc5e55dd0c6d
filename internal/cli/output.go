package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
)

// Exit codes, following the convention a CLI reviewer would expect:
// 0 success, 1 command-level failure (invalid/not found), 2
// usage/argument error or operator intervention required (recovery
// scan with a BLOCK finding).
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError carries a specific process exit code through cobra's
// RunE error return.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the process exit code from an error returned
// by a cobra RunE, defaulting to ExitFailure for anything not an
// ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Row is one line of tabular output: ordered key/value pairs so table
// rendering preserves column order regardless of map iteration.
type Row []KV

// KV is a single labeled table cell.
type KV struct {
	Key   string
	Value string
}

// Formatter renders command results as json, jsonl, or an aligned
// text table, selected once via --output for the whole command tree.
type Formatter struct {
	Format string // "json" | "jsonl" | "table"
	Writer io.Writer
}

// ValidFormats lists --output's accepted values.
var ValidFormats = []string{"json", "jsonl", "table"}

func IsValidFormat(f string) bool {
	for _, v := range ValidFormats {
		if v == f {
			return true
		}
	}
	return false
}

// One emits a single JSON object (indented for json, on one line for
// jsonl) or a two-column table of its fields.
func (f *Formatter) One(data interface{}, rows ...Row) error {
	switch f.Format {
	case "json":
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "jsonl":
		return json.NewEncoder(f.Writer).Encode(data)
	default:
		return f.table(rows)
	}
}

// Many emits a JSON array (json), one JSON object per line (jsonl),
// or an aligned table built from rows, one per item.
func (f *Formatter) Many(items interface{}, rows []Row) error {
	switch f.Format {
	case "json":
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	case "jsonl":
		enc := json.NewEncoder(f.Writer)
		v, ok := asSlice(items)
		if !ok {
			return enc.Encode(items)
		}
		for _, item := range v {
			if err := enc.Encode(item); err != nil {
				return err
			}
		}
		return nil
	default:
		return f.tableMany(rows)
	}
}

func (f *Formatter) table(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(f.Writer, 0, 2, 2, ' ', 0)
	for _, row := range rows {
		for i, kv := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprintf(tw, "%s:\t%s", kv.Key, kv.Value)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func (f *Formatter) tableMany(rows []Row) error {
	if len(rows) == 0 {
		fmt.Fprintln(f.Writer, "(no results)")
		return nil
	}
	tw := tabwriter.NewWriter(f.Writer, 0, 2, 2, ' ', 0)
	for i, kv := range rows[0] {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, kv.Key)
	}
	fmt.Fprintln(tw)
	for _, row := range rows {
		for i, kv := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, kv.Value)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func asSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		var out []interface{}
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, false
		}
		return out, true
	}
}
