package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Static tags the per-instance records are derived from.
const (
	StateAccountTag = "state_account"
	OracleInfoTag   = "muon_info"
)

// MaxPromptBytes bounds the encoded length of a question prompt.
const MaxPromptBytes = 100

// RecordKey derives the fixed storage location of the record named by tag for
// the given instance: keccak256(tag || instanceID). Every backend keys its
// records by this value, so each tag has exactly one record per instance.
func RecordKey(tag, instanceID string) common.Hash {
	return crypto.Keccak256Hash([]byte(tag), []byte(instanceID))
}

// Outcome is the committed answer of a question. The zero value is
// OutcomeUnresolved, which is distinct from a resolved false.
type Outcome uint8

const (
	OutcomeUnresolved Outcome = iota
	OutcomeFalse
	OutcomeTrue
)

// OutcomeOf converts a boolean answer into a resolved Outcome.
func OutcomeOf(b bool) Outcome {
	if b {
		return OutcomeTrue
	}
	return OutcomeFalse
}

// Resolved reports whether an answer has been committed.
func (o Outcome) Resolved() bool { return o != OutcomeUnresolved }

// Bool returns the committed answer; it is false for an unresolved outcome.
func (o Outcome) Bool() bool { return o == OutcomeTrue }

func (o Outcome) String() string {
	switch o {
	case OutcomeTrue:
		return "true"
	case OutcomeFalse:
		return "false"
	default:
		return "unresolved"
	}
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "true":
		return OutcomeTrue, nil
	case "false":
		return OutcomeFalse, nil
	case "unresolved", "":
		return OutcomeUnresolved, nil
	default:
		return OutcomeUnresolved, fmt.Errorf("unknown outcome %q", s)
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(text []byte) error {
	parsed, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// QuestionState is the lifecycle state of a question at a point in time.
type QuestionState string

const (
	QuestionStateOpen     QuestionState = "open"
	QuestionStateResolved QuestionState = "resolved"
	QuestionStateExpired  QuestionState = "expired"
)

// Question is the registry record of a single boolean question.
type Question struct {
	InstanceID string      `json:"instance_id"`
	Owner      Identity    `json:"owner"`
	Prompt     string      `json:"prompt"`
	Deadline   uint64      `json:"deadline"`
	Outcome    Outcome     `json:"outcome"`
	Resolution *Resolution `json:"resolution,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Resolution records the commit that resolved a question.
type Resolution struct {
	Outcome    Outcome   `json:"outcome"`
	RequestID  RequestID `json:"request_id"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Expired reports whether the resolution window has closed at now. The window
// is open only while now is strictly before the deadline.
func (q Question) Expired(now time.Time) bool {
	sec := now.Unix()
	return sec >= 0 && uint64(sec) >= q.Deadline
}

// State derives the lifecycle state at now. Resolved wins over Expired.
func (q Question) State(now time.Time) QuestionState {
	switch {
	case q.Outcome.Resolved():
		return QuestionStateResolved
	case q.Expired(now):
		return QuestionStateExpired
	default:
		return QuestionStateOpen
	}
}

// OracleBinding ties a question to the oracle application allowed to answer
// it and to the trusted verification entry point.
type OracleBinding struct {
	InstanceID    string        `json:"instance_id"`
	AppInfo       OracleAppInfo `json:"app_info"`
	OracleProgram Identity      `json:"oracle_program"`
	CreatedAt     time.Time     `json:"created_at"`
}
