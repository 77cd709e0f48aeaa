// Package resolution implements the oracle-attested outcome protocol: it
// creates a question together with its oracle binding, and commits an
// outcome only when the bound oracle group has signed it before the deadline.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/muon-protocol/factgpt-examples/internal/crypto"
	"github.com/muon-protocol/factgpt-examples/internal/domain"
)

const defaultLockTTL = 30 * time.Second

// Protocol orchestrates initialize and commit against a QuestionStore. The
// oracle verifier is fixed at construction; no call can substitute it.
type Protocol struct {
	store    domain.QuestionStore
	verifier domain.OracleVerifier
	locks    domain.LockManager
	lockTTL  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// Option customises a Protocol.
type Option func(*Protocol)

// WithLocks serialises commits per instance through locks. A zero ttl selects
// the default.
func WithLocks(locks domain.LockManager, ttl time.Duration) Option {
	return func(p *Protocol) {
		p.locks = locks
		if ttl > 0 {
			p.lockTTL = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Protocol) { p.now = now }
}

// New creates a Protocol.
func New(store domain.QuestionStore, verifier domain.OracleVerifier, logger *slog.Logger, opts ...Option) *Protocol {
	p := &Protocol{
		store:    store,
		verifier: verifier,
		lockTTL:  defaultLockTTL,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "resolution")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// InitializeParams are the caller-supplied setup values of a question.
type InitializeParams struct {
	InstanceID    string
	Owner         domain.Identity
	Prompt        string
	Deadline      uint64
	AppInfo       domain.OracleAppInfo
	OracleProgram domain.Identity
}

// Initialize creates the question registry and its oracle binding. It fails
// with domain.ErrAlreadyInitialized, leaving both records untouched, when the
// instance already exists.
func (p *Protocol) Initialize(ctx context.Context, params InitializeParams) (domain.Question, domain.OracleBinding, error) {
	now := p.now().UTC()
	if err := validateInitialize(params, now); err != nil {
		return domain.Question{}, domain.OracleBinding{}, fmt.Errorf("resolution: initialize %q: %w", params.InstanceID, err)
	}

	q := domain.Question{
		InstanceID: params.InstanceID,
		Owner:      params.Owner,
		Prompt:     params.Prompt,
		Deadline:   params.Deadline,
		Outcome:    domain.OutcomeUnresolved,
		CreatedAt:  now,
	}
	b := domain.OracleBinding{
		InstanceID: params.InstanceID,
		AppInfo: domain.OracleAppInfo{
			GroupPubKey: domain.GroupPubKey{
				X:      domain.NewUint256(new(big.Int).Set(params.AppInfo.GroupPubKey.X.Int)),
				Parity: params.AppInfo.GroupPubKey.Parity,
			},
			AppID: domain.NewUint256(new(big.Int).Set(params.AppInfo.AppID.Int)),
		},
		OracleProgram: params.OracleProgram,
		CreatedAt:     now,
	}

	if err := p.store.Create(ctx, q, b); err != nil {
		return domain.Question{}, domain.OracleBinding{}, fmt.Errorf("resolution: initialize %q: %w", params.InstanceID, err)
	}

	p.logger.InfoContext(ctx, "resolution: question initialized",
		slog.String("instance_id", q.InstanceID),
		slog.String("owner", string(q.Owner)),
		slog.Uint64("deadline", q.Deadline),
		slog.String("app_id", b.AppInfo.AppID.String()),
		slog.String("oracle_program", string(b.OracleProgram)),
	)
	return q, b, nil
}

func validateInitialize(params InitializeParams, now time.Time) error {
	var problems []string
	if strings.TrimSpace(params.InstanceID) == "" {
		problems = append(problems, "instance id is empty")
	}
	if params.Owner == "" {
		problems = append(problems, "owner is empty")
	}
	if strings.TrimSpace(params.Prompt) == "" {
		problems = append(problems, "prompt is empty")
	}
	if len(params.Prompt) > domain.MaxPromptBytes {
		problems = append(problems, fmt.Sprintf("prompt is %d bytes, max %d", len(params.Prompt), domain.MaxPromptBytes))
	}
	if now.Unix() >= 0 && params.Deadline <= uint64(now.Unix()) {
		problems = append(problems, "deadline is not in the future")
	}
	appID := params.AppInfo.AppID.Int
	if appID == nil || appID.Sign() < 0 || appID.BitLen() > 256 {
		problems = append(problems, "app id must be a uint256")
	}
	if !crypto.ValidGroupKeyX(params.AppInfo.GroupPubKey.X.Int) {
		problems = append(problems, "group public key x must be non-zero and below half the curve order")
	}
	if params.AppInfo.GroupPubKey.Parity > 1 {
		problems = append(problems, "group public key parity must be 0 or 1")
	}
	if params.OracleProgram == "" {
		problems = append(problems, "oracle program is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidQuestion, strings.Join(problems, "; "))
	}
	return nil
}

// CommitOutcome records outcome for the question when the bound oracle group
// signed it under reqID and the deadline has not passed.
//
// Checks run in this order, each before any hashing or verification work:
// unknown instance (ErrNotFound), deadline (ErrDeadlineExpired), terminal
// resolution (ErrAlreadyResolved), oracle endpoint
// (ErrUnauthorizedOracleEndpoint). A verifier rejection is returned as is.
// On any error nothing is written.
func (p *Protocol) CommitOutcome(ctx context.Context, instanceID string, outcome bool, reqID domain.RequestID, sig domain.SchnorrSign) (domain.Question, error) {
	q, b, err := p.precheck(ctx, instanceID)
	if err != nil {
		return domain.Question{}, err
	}

	if p.locks != nil {
		unlock, err := p.locks.Acquire(ctx, commitLockKey(instanceID), p.lockTTL)
		if err != nil {
			return domain.Question{}, fmt.Errorf("resolution: commit %q: %w", instanceID, err)
		}
		defer unlock()

		// Another writer may have committed while we waited.
		if q, b, err = p.precheck(ctx, instanceID); err != nil {
			return domain.Question{}, err
		}
	}

	hash := crypto.MessageHash(b.AppInfo.AppID.Int, reqID, outcome)
	if err := p.verifier.Verify(ctx, reqID, hash, sig, b.AppInfo.GroupPubKey); err != nil {
		p.logger.WarnContext(ctx, "resolution: oracle rejected outcome",
			slog.String("instance_id", instanceID),
			slog.String("request_id", reqID.String()),
			slog.Bool("outcome", outcome),
			slog.String("error", err.Error()),
		)
		return domain.Question{}, err
	}

	resolved, err := p.store.Resolve(ctx, instanceID, domain.Resolution{
		Outcome:    domain.OutcomeOf(outcome),
		RequestID:  reqID,
		ResolvedAt: p.now().UTC(),
	})
	if err != nil {
		return domain.Question{}, fmt.Errorf("resolution: commit %q: %w", instanceID, err)
	}

	p.logger.InfoContext(ctx, "resolution: outcome committed",
		slog.String("instance_id", instanceID),
		slog.String("request_id", reqID.String()),
		slog.Bool("outcome", outcome),
		slog.String("prompt", q.Prompt),
	)
	return resolved, nil
}

// precheck loads the question and binding and applies every commit
// precondition that does not need the signature.
func (p *Protocol) precheck(ctx context.Context, instanceID string) (domain.Question, domain.OracleBinding, error) {
	q, err := p.store.Get(ctx, instanceID)
	if err != nil {
		return domain.Question{}, domain.OracleBinding{}, fmt.Errorf("resolution: commit %q: %w", instanceID, err)
	}
	if q.Expired(p.now()) {
		return domain.Question{}, domain.OracleBinding{}, fmt.Errorf("resolution: commit %q: %w", instanceID, domain.ErrDeadlineExpired)
	}
	if q.Outcome.Resolved() {
		return domain.Question{}, domain.OracleBinding{}, fmt.Errorf("resolution: commit %q: %w", instanceID, domain.ErrAlreadyResolved)
	}

	b, err := p.store.GetBinding(ctx, instanceID)
	if err != nil {
		return domain.Question{}, domain.OracleBinding{}, fmt.Errorf("resolution: commit %q: binding: %w", instanceID, err)
	}
	if b.OracleProgram != p.verifier.Identity() {
		return domain.Question{}, domain.OracleBinding{}, fmt.Errorf("resolution: commit %q: bound to %q, verifier is %q: %w",
			instanceID, b.OracleProgram, p.verifier.Identity(), domain.ErrUnauthorizedOracleEndpoint)
	}
	return q, b, nil
}

func commitLockKey(instanceID string) string {
	return "commit:" + instanceID
}

// MessageHash returns the hash the bound oracle group must sign for outcome
// under reqID.
func (p *Protocol) MessageHash(ctx context.Context, instanceID string, reqID domain.RequestID, outcome bool) (*big.Int, error) {
	b, err := p.store.GetBinding(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("resolution: message hash %q: %w", instanceID, err)
	}
	return crypto.MessageHash(b.AppInfo.AppID.Int, reqID, outcome), nil
}

// Question returns the registry record of instanceID.
func (p *Protocol) Question(ctx context.Context, instanceID string) (domain.Question, error) {
	q, err := p.store.Get(ctx, instanceID)
	if err != nil {
		return domain.Question{}, fmt.Errorf("resolution: get %q: %w", instanceID, err)
	}
	return q, nil
}

// Binding returns the oracle binding of instanceID.
func (p *Protocol) Binding(ctx context.Context, instanceID string) (domain.OracleBinding, error) {
	b, err := p.store.GetBinding(ctx, instanceID)
	if err != nil {
		return domain.OracleBinding{}, fmt.Errorf("resolution: get binding %q: %w", instanceID, err)
	}
	return b, nil
}

// List returns initialized questions, newest first.
func (p *Protocol) List(ctx context.Context, opts domain.ListOpts) ([]domain.Question, error) {
	qs, err := p.store.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("resolution: list: %w", err)
	}
	return qs, nil
}

// Now returns the protocol clock's current time.
func (p *Protocol) Now() time.Time {
	return p.now()
}

// IsRejection reports whether err is an oracle rejection.
func IsRejection(err error) bool {
	return errors.Is(err, domain.ErrSignatureRejected)
}
