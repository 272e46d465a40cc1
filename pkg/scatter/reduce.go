// Package scatter reduces the per-partition responses of an all-partition call
// into one outcome.
package scatter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ssargent/rowbench/pkg/procedure"
)

// Policy decides how many partitions must succeed for the call to succeed.
// MinSuccesses <= 0 means every partition.
type Policy struct {
	MinSuccesses int
}

// RequireAll succeeds only if every partition succeeded.
func RequireAll() Policy { return Policy{} }

// RequireAny succeeds if at least one partition succeeded.
func RequireAny() Policy { return Policy{MinSuccesses: 1} }

// RequireQuorum succeeds if at least n partitions succeeded.
func RequireQuorum(n int) Policy { return Policy{MinSuccesses: n} }

// ParsePolicy parses "all", "any" or "quorum:N".
func ParsePolicy(s string) (Policy, error) {
	switch s := strings.ToLower(strings.TrimSpace(s)); {
	case s == "" || s == "all":
		return RequireAll(), nil
	case s == "any":
		return RequireAny(), nil
	case strings.HasPrefix(s, "quorum:"):
		n, err := strconv.Atoi(strings.TrimPrefix(s, "quorum:"))
		if err != nil || n <= 0 {
			return Policy{}, fmt.Errorf("invalid quorum in scan policy %q", s)
		}
		return RequireQuorum(n), nil
	default:
		return Policy{}, fmt.Errorf("unknown scan policy %q", s)
	}
}

func (p Policy) String() string {
	switch {
	case p.MinSuccesses <= 0:
		return "all"
	case p.MinSuccesses == 1:
		return "any"
	default:
		return fmt.Sprintf("quorum:%d", p.MinSuccesses)
	}
}

func (p Policy) required(partitions int) int {
	if p.MinSuccesses <= 0 || p.MinSuccesses > partitions {
		return partitions
	}
	return p.MinSuccesses
}

// Row is one (key, blob) row gathered from a partition.
type Row struct {
	Partition int
	Key       string
	Blob      []byte
}

// Outcome summarises an all-partition call.
type Outcome struct {
	Success    bool
	Partitions int
	Succeeded  int
	Failed     map[int]error // partition -> reason
	Rows       []Row         // rows from successful partitions, sorted by key
}

// Reduce folds one response per partition into an Outcome.
//
// len(responses) must equal partitions. A partition whose response has no
// result table, or an empty one, counts as a success with no rows. Rows are
// read from the first table: column 0 is the key, column 1 the blob.
func Reduce(responses []procedure.PartitionResponse, partitions int, policy Policy) (*Outcome, error) {
	if len(responses) != partitions {
		return nil, fmt.Errorf("expected %d partition responses, got %d", partitions, len(responses))
	}

	out := &Outcome{
		Partitions: partitions,
		Failed:     make(map[int]error),
	}

	for i, pr := range responses {
		if !pr.Response.OK() {
			out.Failed[i] = pr.Response.Err()
			continue
		}
		rows, err := tableRows(pr.Partition, pr.Response)
		if err != nil {
			out.Failed[i] = err
			continue
		}
		out.Succeeded++
		out.Rows = append(out.Rows, rows...)
	}

	sort.SliceStable(out.Rows, func(a, b int) bool {
		return out.Rows[a].Key < out.Rows[b].Key
	})
	out.Success = out.Succeeded >= policy.required(partitions)
	return out, nil
}

// Limit truncates the outcome's rows to at most n.
func (o *Outcome) Limit(n int) {
	if n >= 0 && len(o.Rows) > n {
		o.Rows = o.Rows[:n]
	}
}

func tableRows(partition int, resp *procedure.Response) ([]Row, error) {
	if len(resp.Results) == 0 {
		return nil, nil
	}
	table := resp.Results[0]
	rows := make([]Row, 0, table.RowCount())
	for r := 0; r < table.RowCount(); r++ {
		key, ok := table.Varbinary(r, 0)
		if !ok {
			return nil, fmt.Errorf("partition %d row %d: missing key column", partition, r)
		}
		blob, ok := table.Varbinary(r, 1)
		if !ok {
			return nil, fmt.Errorf("partition %d row %d: missing value column", partition, r)
		}
		rows = append(rows, Row{Partition: partition, Key: string(key), Blob: blob})
	}
	return rows, nil
}
