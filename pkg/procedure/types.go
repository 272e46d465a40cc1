// Package procedure defines the stored-procedure call surface a benchmark
// binding talks to, plus an in-process implementation over a row store.
package procedure

import (
	"context"
	"fmt"
)

// Procedure names understood by every Session.
const (
	ProcGet    = "Get"
	ProcPut    = "Put"
	ProcDelete = "STORE.delete"
	ProcScan   = "Scan"
)

// Status is the outcome code carried by a Response.
type Status int8

const (
	StatusSuccess           Status = 1
	StatusUserAbort         Status = -1
	StatusGracefulFailure   Status = -2
	StatusUnexpectedFailure Status = -3
	StatusConnectionLost    Status = -4
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusUserAbort:
		return "USER_ABORT"
	case StatusGracefulFailure:
		return "GRACEFUL_FAILURE"
	case StatusUnexpectedFailure:
		return "UNEXPECTED_FAILURE"
	case StatusConnectionLost:
		return "CONNECTION_LOST"
	default:
		return fmt.Sprintf("STATUS(%d)", int8(s))
	}
}

// Table is one result set. Every cell is a byte string.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][][]byte `json:"rows"`
}

// RowCount returns the number of rows in the table.
func (t Table) RowCount() int {
	return len(t.Rows)
}

// Varbinary returns cell (row, col), or false if it does not exist.
func (t Table) Varbinary(row, col int) ([]byte, bool) {
	if row < 0 || row >= len(t.Rows) {
		return nil, false
	}
	cells := t.Rows[row]
	if col < 0 || col >= len(cells) {
		return nil, false
	}
	return cells[col], true
}

// Response is the result of one procedure invocation.
type Response struct {
	Status       Status  `json:"status"`
	StatusString string  `json:"status_string,omitempty"`
	Results      []Table `json:"results,omitempty"`
}

// OK reports whether the procedure succeeded.
func (r *Response) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

// Err converts a failed response into an error.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	if r == nil {
		return &StatusError{Status: StatusUnexpectedFailure, Message: "nil response"}
	}
	return &StatusError{Status: r.Status, Message: r.StatusString}
}

// PartitionResponse is one partition's answer to a scatter call.
type PartitionResponse struct {
	Partition int       `json:"partition"`
	Response  *Response `json:"response"`
}

// StatusError is a non-success procedure status surfaced as an error.
type StatusError struct {
	Status  Status
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// Session issues procedure calls against a data store.
//
// Call returns an error only when the call could not be delivered or answered;
// a procedure that ran and failed comes back as a Response with a non-success
// Status. CallAllPartitions runs the procedure once per partition and returns
// one response per partition, ordered by partition.
type Session interface {
	Call(ctx context.Context, name string, args ...interface{}) (*Response, error)
	CallAllPartitions(ctx context.Context, name string, args ...interface{}) ([]PartitionResponse, error)
	Close() error
}

func success(tables ...Table) *Response {
	return &Response{Status: StatusSuccess, Results: tables}
}

func failure(status Status, format string, args ...interface{}) *Response {
	return &Response{Status: status, StatusString: fmt.Sprintf(format, args...)}
}
