package scatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/rowbench/pkg/procedure"
)

func okResponse(p int, keys ...string) procedure.PartitionResponse {
	table := procedure.Table{Columns: []string{"key", "value"}}
	for _, k := range keys {
		table.Rows = append(table.Rows, [][]byte{[]byte(k), []byte("blob-" + k)})
	}
	return procedure.PartitionResponse{
		Partition: p,
		Response:  &procedure.Response{Status: procedure.StatusSuccess, Results: []procedure.Table{table}},
	}
}

func failedResponse(p int) procedure.PartitionResponse {
	return procedure.PartitionResponse{
		Partition: p,
		Response:  &procedure.Response{Status: procedure.StatusUnexpectedFailure, StatusString: "boom"},
	}
}

func TestReduce_MergesAndSorts(t *testing.T) {
	responses := []procedure.PartitionResponse{
		okResponse(0, "user3", "user7"),
		okResponse(1, "user1"),
		okResponse(2, "user2", "user5"),
	}

	out, err := Reduce(responses, 3, RequireAll())
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, 3, out.Succeeded)
	assert.Empty(t, out.Failed)

	keys := make([]string, len(out.Rows))
	for i, r := range out.Rows {
		keys[i] = r.Key
		assert.Equal(t, []byte("blob-"+r.Key), r.Blob)
	}
	assert.Equal(t, []string{"user1", "user2", "user3", "user5", "user7"}, keys)

	out.Limit(2)
	assert.Len(t, out.Rows, 2)
	assert.Equal(t, "user2", out.Rows[1].Key)
}

func TestReduce_EmptyTables(t *testing.T) {
	responses := []procedure.PartitionResponse{
		okResponse(0),
		{Partition: 1, Response: &procedure.Response{Status: procedure.StatusSuccess}},
		okResponse(2, "only"),
	}

	out, err := Reduce(responses, 3, RequireAll())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 3, out.Succeeded)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, 2, out.Rows[0].Partition)
}

func TestReduce_Policies(t *testing.T) {
	responses := []procedure.PartitionResponse{
		okResponse(0, "a"),
		failedResponse(1),
		okResponse(2, "b"),
		failedResponse(3),
	}

	testCases := []struct {
		name    string
		policy  Policy
		success bool
	}{
		{"all", RequireAll(), false},
		{"any", RequireAny(), true},
		{"quorum met", RequireQuorum(2), true},
		{"quorum missed", RequireQuorum(3), false},
		{"quorum above partitions means all", RequireQuorum(10), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Reduce(responses, 4, tc.policy)
			require.NoError(t, err)
			assert.Equal(t, tc.success, out.Success)
			assert.Equal(t, 2, out.Succeeded)
			assert.Len(t, out.Failed, 2)
			assert.Contains(t, out.Failed[1].Error(), "boom")
			assert.Len(t, out.Rows, 2)
		})
	}
}

func TestReduce_ResponseCountMismatch(t *testing.T) {
	_, err := Reduce([]procedure.PartitionResponse{okResponse(0)}, 2, RequireAny())
	assert.Error(t, err)
}

func TestReduce_MalformedTable(t *testing.T) {
	bad := procedure.PartitionResponse{
		Partition: 0,
		Response: &procedure.Response{
			Status:  procedure.StatusSuccess,
			Results: []procedure.Table{{Rows: [][][]byte{{[]byte("key-only")}}}},
		},
	}
	out, err := Reduce([]procedure.PartitionResponse{bad}, 1, RequireAll())
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Failed, 0)
}

func TestReduce_NilResponse(t *testing.T) {
	out, err := Reduce([]procedure.PartitionResponse{{Partition: 0}}, 1, RequireAny())
	require.NoError(t, err)
	assert.False(t, out.Success)
}

func TestParsePolicy(t *testing.T) {
	testCases := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", RequireAll(), false},
		{"all", RequireAll(), false},
		{"ANY", RequireAny(), false},
		{"quorum:3", RequireQuorum(3), false},
		{"quorum:0", Policy{}, true},
		{"quorum:x", Policy{}, true},
		{"most", Policy{}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParsePolicy(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got.String(), mustParse(t, got.String()).String())
		})
	}
}

func mustParse(t *testing.T, s string) Policy {
	t.Helper()
	p, err := ParsePolicy(s)
	require.NoError(t, err)
	return p
}
