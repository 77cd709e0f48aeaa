package domain

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordKey(t *testing.T) {
	state := RecordKey(StateAccountTag, "q-1")
	info := RecordKey(OracleInfoTag, "q-1")

	assert.Equal(t, crypto.Keccak256Hash([]byte("state_accountq-1")), state)
	assert.NotEqual(t, state, info)
	assert.NotEqual(t, state, RecordKey(StateAccountTag, "q-2"))
	assert.Equal(t, state, RecordKey(StateAccountTag, "q-1"))
}

func TestQuestionStateAtDeadline(t *testing.T) {
	q := Question{Deadline: 1_700_000_000}

	assert.Equal(t, QuestionStateOpen, q.State(time.Unix(1_699_999_999, 0)))
	assert.Equal(t, QuestionStateExpired, q.State(time.Unix(1_700_000_000, 0)), "the deadline second itself is closed")

	q.Outcome = OutcomeFalse
	assert.Equal(t, QuestionStateResolved, q.State(time.Unix(1_800_000_000, 0)))
}

func TestOutcomeText(t *testing.T) {
	for _, o := range []Outcome{OutcomeUnresolved, OutcomeFalse, OutcomeTrue} {
		text, err := o.MarshalText()
		require.NoError(t, err)

		var back Outcome
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, o, back)
	}

	var o Outcome
	assert.Error(t, o.UnmarshalText([]byte("maybe")))
	assert.False(t, OutcomeUnresolved.Bool())
	assert.True(t, OutcomeOf(true).Resolved())
	assert.True(t, OutcomeOf(false).Resolved())
}

func TestUint256JSON(t *testing.T) {
	var u Uint256
	require.NoError(t, json.Unmarshal([]byte(`"115792089237316195423570985008687907853269984665640564039457584007913129639935"`), &u))
	assert.Equal(t, 256, u.BitLen())

	require.NoError(t, json.Unmarshal([]byte(`42`), &u), "bare numbers are accepted")
	assert.Equal(t, int64(42), u.Int64())

	require.NoError(t, json.Unmarshal([]byte(`"0x2a"`), &u))
	assert.Equal(t, int64(42), u.Int64())

	assert.Error(t, json.Unmarshal([]byte(`"-1"`), &u))
	assert.Error(t, json.Unmarshal([]byte(`"115792089237316195423570985008687907853269984665640564039457584007913129639936"`), &u))

	out, err := json.Marshal(NewUint256(big.NewInt(7)))
	require.NoError(t, err)
	assert.JSONEq(t, `"7"`, string(out))
}

func TestParseUint256(t *testing.T) {
	valid := map[string]int64{
		"42":   42,
		" 42 ": 42,
		"0":    0,
		"0x2a": 42,
		"0X2A": 42,
		"007":  7,
		"0x00": 0,
	}
	for in, want := range valid {
		n, err := ParseUint256(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, n.Int64(), in)
	}

	for _, in := range []string{"", "0x", "4_2", "0x_2a", "0b101", "0o7", "+5", "-5", "1e3", "0x2g", "42 7"} {
		_, err := ParseUint256(in)
		assert.Error(t, err, in)
	}

	var u Uint256
	assert.Error(t, json.Unmarshal([]byte(`"4_2"`), &u))
	assert.Error(t, json.Unmarshal([]byte(`"0b101"`), &u))
}

func TestRequestIDJSON(t *testing.T) {
	out, err := json.Marshal(RequestID{0xde, 0xad})
	require.NoError(t, err)
	assert.JSONEq(t, `"0xdead"`, string(out))

	var r RequestID
	require.NoError(t, json.Unmarshal([]byte(`"dead"`), &r))
	assert.Equal(t, RequestID{0xde, 0xad}, r)

	require.NoError(t, json.Unmarshal([]byte(`""`), &r))
	assert.Nil(t, r)

	assert.Error(t, json.Unmarshal([]byte(`"0xzz"`), &r))
}

func TestCheckResolve(t *testing.T) {
	q := Question{Deadline: 100}

	assert.NoError(t, CheckResolve(q, Resolution{ResolvedAt: time.Unix(99, 0)}))
	assert.ErrorIs(t, CheckResolve(q, Resolution{ResolvedAt: time.Unix(100, 0)}), ErrDeadlineExpired)

	resolved := ApplyResolution(q, Resolution{Outcome: OutcomeTrue, RequestID: RequestID{1}, ResolvedAt: time.Unix(50, 0)})
	assert.Equal(t, OutcomeTrue, resolved.Outcome)
	require.NotNil(t, resolved.Resolution)
	assert.ErrorIs(t, CheckResolve(resolved, Resolution{ResolvedAt: time.Unix(60, 0)}), ErrAlreadyResolved)
	assert.Equal(t, OutcomeUnresolved, q.Outcome, "the input is not mutated")
}

func TestListOptsPage(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	qs := []Question{
		{InstanceID: "b", CreatedAt: base},
		{InstanceID: "c", CreatedAt: base.Add(time.Second)},
		{InstanceID: "a", CreatedAt: base},
	}
	SortNewestFirst(qs)

	ids := func(qs []Question) []string {
		out := make([]string, len(qs))
		for i, q := range qs {
			out[i] = q.InstanceID
		}
		return out
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids(qs))
	assert.Equal(t, []string{"a"}, ids(ListOpts{Limit: 1, Offset: 1}.Page(qs)))
	assert.Empty(t, ListOpts{Offset: 5}.Page(qs))
	assert.Len(t, ListOpts{}.Page(qs), 3)
}
