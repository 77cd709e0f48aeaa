package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/muon-protocol/factgpt-examples/internal/domain"
)

// QuestionStore implements domain.QuestionStore using PostgreSQL. Rows are
// keyed by their derived record locations.
type QuestionStore struct {
	db DB
}

// NewQuestionStore creates a new QuestionStore backed by db, usually a
// *pgxpool.Pool.
func NewQuestionStore(db DB) *QuestionStore {
	return &QuestionStore{db: db}
}

const questionCols = `instance_id, owner, prompt, deadline, outcome, request_id, resolved_at, created_at`

// Create inserts the question and its binding in one transaction. Either
// insert hitting an existing row aborts the whole transaction.
func (s *QuestionStore) Create(ctx context.Context, q domain.Question, b domain.OracleBinding) error {
	if q.Deadline > math.MaxInt64 {
		return fmt.Errorf("postgres: create question %s: %w: deadline out of range", q.InstanceID, domain.ErrInvalidQuestion)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin create question %s: %w", q.InstanceID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertQuestion = `
		INSERT INTO questions (record_key, instance_id, owner, prompt, deadline, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, 'unresolved', $6)
		ON CONFLICT DO NOTHING`
	tag, err := tx.Exec(ctx, insertQuestion,
		domain.RecordKey(domain.StateAccountTag, q.InstanceID).Bytes(),
		q.InstanceID, string(q.Owner), q.Prompt, int64(q.Deadline), q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert question %s: %w", q.InstanceID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: create question %s: %w", q.InstanceID, domain.ErrAlreadyInitialized)
	}

	const insertBinding = `
		INSERT INTO oracle_bindings (
			record_key, instance_id, app_id, group_pub_key_x,
			group_pub_key_parity, oracle_program, created_at
		) VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7)
		ON CONFLICT DO NOTHING`
	tag, err = tx.Exec(ctx, insertBinding,
		domain.RecordKey(domain.OracleInfoTag, b.InstanceID).Bytes(),
		b.InstanceID,
		b.AppInfo.AppID.String(),
		b.AppInfo.GroupPubKey.X.String(),
		int16(b.AppInfo.GroupPubKey.Parity),
		string(b.OracleProgram),
		b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert binding %s: %w", b.InstanceID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: create question %s: %w", q.InstanceID, domain.ErrAlreadyInitialized)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit create question %s: %w", q.InstanceID, err)
	}
	return nil
}

// Get retrieves a question by instance id.
func (s *QuestionStore) Get(ctx context.Context, instanceID string) (domain.Question, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+questionCols+` FROM questions WHERE record_key = $1`,
		domain.RecordKey(domain.StateAccountTag, instanceID).Bytes())
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Question{}, fmt.Errorf("postgres: get question %s: %w", instanceID, domain.ErrNotFound)
		}
		return domain.Question{}, fmt.Errorf("postgres: get question %s: %w", instanceID, err)
	}
	return q, nil
}

// GetBinding retrieves the oracle binding of a question.
func (s *QuestionStore) GetBinding(ctx context.Context, instanceID string) (domain.OracleBinding, error) {
	const query = `
		SELECT instance_id, app_id::text, group_pub_key_x::text,
		       group_pub_key_parity, oracle_program, created_at
		FROM oracle_bindings WHERE record_key = $1`

	var (
		b             domain.OracleBinding
		appID, pubX   string
		parity        int16
		oracleProgram string
	)
	err := s.db.QueryRow(ctx, query, domain.RecordKey(domain.OracleInfoTag, instanceID).Bytes()).Scan(
		&b.InstanceID, &appID, &pubX, &parity, &oracleProgram, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OracleBinding{}, fmt.Errorf("postgres: get binding %s: %w", instanceID, domain.ErrNotFound)
		}
		return domain.OracleBinding{}, fmt.Errorf("postgres: get binding %s: %w", instanceID, err)
	}

	id, err := domain.ParseUint256(appID)
	if err != nil {
		return domain.OracleBinding{}, fmt.Errorf("postgres: get binding %s: app id: %w", instanceID, err)
	}
	x, err := domain.ParseUint256(pubX)
	if err != nil {
		return domain.OracleBinding{}, fmt.Errorf("postgres: get binding %s: group key: %w", instanceID, err)
	}
	b.AppInfo = domain.OracleAppInfo{
		GroupPubKey: domain.GroupPubKey{X: domain.NewUint256(x), Parity: uint8(parity)},
		AppID:       domain.NewUint256(id),
	}
	b.OracleProgram = domain.Identity(oracleProgram)
	return b, nil
}

// Resolve writes res with a conditional UPDATE. When no row matches, the
// current row is read back to report why.
func (s *QuestionStore) Resolve(ctx context.Context, instanceID string, res domain.Resolution) (domain.Question, error) {
	const query = `
		UPDATE questions
		SET outcome = $2, request_id = $3, resolved_at = $4
		WHERE record_key = $1
		  AND outcome = 'unresolved'
		  AND deadline > $5
		RETURNING ` + questionCols

	row := s.db.QueryRow(ctx, query,
		domain.RecordKey(domain.StateAccountTag, instanceID).Bytes(),
		res.Outcome.String(),
		[]byte(res.RequestID),
		res.ResolvedAt,
		res.ResolvedAt.Unix(),
	)
	q, err := scanQuestion(row)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, fmt.Errorf("postgres: resolve %s: %w", instanceID, err)
	}

	current, err := s.Get(ctx, instanceID)
	if err != nil {
		return domain.Question{}, fmt.Errorf("postgres: resolve %s: %w", instanceID, err)
	}
	if err := domain.CheckResolve(current, res); err != nil {
		return domain.Question{}, fmt.Errorf("postgres: resolve %s: %w", instanceID, err)
	}
	// The row changed between the UPDATE and the read.
	return domain.Question{}, fmt.Errorf("postgres: resolve %s: %w", instanceID, domain.ErrAlreadyResolved)
}

// List returns questions ordered by creation time, newest first.
func (s *QuestionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Question, error) {
	query := `SELECT ` + questionCols + ` FROM questions ORDER BY created_at DESC, instance_id`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan question: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list questions rows: %w", err)
	}
	return out, nil
}

// scanQuestion scans a row selected with questionCols.
func scanQuestion(row pgx.Row) (domain.Question, error) {
	var (
		q          domain.Question
		owner      string
		deadline   int64
		outcome    string
		requestID  []byte
		resolvedAt *time.Time
	)
	err := row.Scan(
		&q.InstanceID, &owner, &q.Prompt, &deadline,
		&outcome, &requestID, &resolvedAt, &q.CreatedAt,
	)
	if err != nil {
		return domain.Question{}, err
	}

	q.Owner = domain.Identity(owner)
	q.Deadline = uint64(deadline)
	if q.Outcome, err = domain.ParseOutcome(outcome); err != nil {
		return domain.Question{}, err
	}
	if q.Outcome.Resolved() && resolvedAt != nil {
		q.Resolution = &domain.Resolution{
			Outcome:    q.Outcome,
			RequestID:  domain.RequestID(requestID),
			ResolvedAt: *resolvedAt,
		}
	}
	return q, nil
}

var _ domain.QuestionStore = (*QuestionStore)(nil)
