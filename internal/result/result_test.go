package result

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_ZeroValueIsPending(t *testing.T) {
	var r Result[int]
	assert.True(t, r.IsPending())
	assert.Equal(t, StatusPending, r.Status())
}

func TestResult_Success_ExposesValue(t *testing.T) {
	r := Success(42)

	v, ok := r.Value()
	require.True(t, ok)
	assert.Equal(t, 42, v)
	assert.True(t, r.IsSuccess())
	assert.Empty(t, r.Message())
}

func TestResult_Failure_HasNoValue(t *testing.T) {
	r := Failure[string]("boom")

	v, ok := r.Value()
	assert.False(t, ok)
	assert.Empty(t, v)
	assert.Equal(t, "boom", r.Message())
	assert.True(t, r.IsFailure())
}

func TestMatch_CallsExactlyOneBranch(t *testing.T) {
	tests := []struct {
		name string
		in   Result[int]
		want string
	}{
		{"pending", Pending[int](), "p"},
		{"success", Success(7), "s7"},
		{"failure", Failure[int]("x"), "fx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got := Match(tt.in,
				func() string { calls++; return "p" },
				func(v int) string { calls++; return "s" + string(rune('0'+v)) },
				func(msg string) string { calls++; return "f" + msg },
			)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestSwitch_Failure(t *testing.T) {
	var got string
	Failure[int]("nope").Switch(
		func() { t.Fatal("pending branch called") },
		func(int) { t.Fatal("success branch called") },
		func(msg string) { got = msg },
	)
	assert.Equal(t, "nope", got)
}

func TestResult_MarshalJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"pending", Pending[*payload](), `{"status":"pending"}`},
		{"success", Success(&payload{Name: "Ann"}), `{"status":"success","data":{"name":"Ann"}}`},
		{"success nil", Success[*payload](nil), `{"status":"success","data":null}`},
		{"failure", Failure[*payload]("timeout"), `{"status":"failure","message":"timeout"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.in)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestResult_MarshalJSON_AsStructField(t *testing.T) {
	type envelope struct {
		City   string         `json:"city"`
		Result Result[string] `json:"result"`
	}

	b, err := json.Marshal(envelope{City: "Tokyo", Result: Success("sunny")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"city":"Tokyo","result":{"status":"success","data":"sunny"}}`, string(b))
}
