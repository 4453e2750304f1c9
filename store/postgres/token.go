package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

const tokenColumns = `
	id, number, seq, user_id, queue_id, domain, priority,
	severity_score, symptoms, consultation_type, service_name, appointment_at,
	state, called, position, server_id,
	called_at, service_started_at, service_completed_at, expired_at, cancelled_at,
	estimated_wait, prediction_confidence, model_version, actual_wait, actual_service,
	queue_length_at_admission, active_servers_at_admission, created_at, updated_at`

// CreateToken persists a new token.
func (s *Store) CreateToken(ctx context.Context, t *token.Token) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO smartqueue_tokens (`+tokenColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20, $21,
			$22, $23, $24, $25, $26,
			$27, $28, $29, $30
		)`,
		tokenArgs(t)...,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return smartqueue.ErrTokenAlreadyExists
		}
		return fmt.Errorf("smartqueue/postgres: create token: %w", err)
	}
	return nil
}

// GetToken retrieves a token by ID.
func (s *Store) GetToken(ctx context.Context, tokenID id.TokenID) (*token.Token, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM smartqueue_tokens WHERE id = $1`,
		tokenID.String(),
	)
	t, err := scanToken(row)
	if err != nil {
		if isNoRows(err) {
			return nil, smartqueue.ErrTokenNotFound
		}
		return nil, fmt.Errorf("smartqueue/postgres: get token: %w", err)
	}
	return t, nil
}

// GetTokenByNumber retrieves a token by its display number.
func (s *Store) GetTokenByNumber(ctx context.Context, number string) (*token.Token, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM smartqueue_tokens WHERE number = $1`,
		number,
	)
	t, err := scanToken(row)
	if err != nil {
		if isNoRows(err) {
			return nil, smartqueue.ErrTokenNotFound
		}
		return nil, fmt.Errorf("smartqueue/postgres: get token by number: %w", err)
	}
	return t, nil
}

// UpdateToken persists changes to an existing token.
func (s *Store) UpdateToken(ctx context.Context, t *token.Token) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE smartqueue_tokens SET
			number = $2, seq = $3, user_id = $4, queue_id = $5, domain = $6, priority = $7,
			severity_score = $8, symptoms = $9, consultation_type = $10,
			service_name = $11, appointment_at = $12,
			state = $13, called = $14, position = $15, server_id = $16,
			called_at = $17, service_started_at = $18, service_completed_at = $19,
			expired_at = $20, cancelled_at = $21,
			estimated_wait = $22, prediction_confidence = $23, model_version = $24,
			actual_wait = $25, actual_service = $26,
			queue_length_at_admission = $27, active_servers_at_admission = $28,
			created_at = $29, updated_at = $30
		WHERE id = $1`,
		tokenArgs(t)...,
	)
	if err != nil {
		return fmt.Errorf("smartqueue/postgres: update token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return smartqueue.ErrTokenNotFound
	}
	return nil
}

// ListActiveTokens returns the active tokens of a queue ordered by
// admission.
func (s *Store) ListActiveTokens(ctx context.Context, queueID id.QueueID) ([]*token.Token, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+tokenColumns+` FROM smartqueue_tokens
		WHERE queue_id = $1 AND state = 'active'
		ORDER BY created_at ASC, seq ASC`,
		queueID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/postgres: list active tokens: %w", err)
	}
	tokens, err := collect(rows, scanToken)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/postgres: scan active tokens: %w", err)
	}
	return tokens, nil
}

// ListTokens returns tokens matching opts, newest first.
func (s *Store) ListTokens(ctx context.Context, opts token.ListOpts) ([]*token.Token, error) {
	var f filter
	if !opts.QueueID.IsNil() {
		f.add("queue_id = $%d", opts.QueueID.String())
	}
	if opts.State != "" {
		f.add("state = $%d", string(opts.State))
	}
	query := `SELECT ` + tokenColumns + ` FROM smartqueue_tokens` + f.where() +
		` ORDER BY created_at DESC, seq DESC` + f.page(opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, f.args...)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/postgres: list tokens: %w", err)
	}
	tokens, err := collect(rows, scanToken)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/postgres: scan tokens: %w", err)
	}
	return tokens, nil
}

// ListUserTokens returns a user's tokens, newest first.
func (s *Store) ListUserTokens(ctx context.Context, userID id.UserID) ([]*token.Token, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+tokenColumns+` FROM smartqueue_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC, seq DESC`,
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/postgres: list user tokens: %w", err)
	}
	tokens, err := collect(rows, scanToken)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/postgres: scan user tokens: %w", err)
	}
	return tokens, nil
}

// MaxSeq returns the highest stored sequence number.
func (s *Store) MaxSeq(ctx context.Context) (uint64, error) {
	var highest int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM smartqueue_tokens`).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("smartqueue/postgres: max seq: %w", err)
	}
	return uint64(highest), nil
}

func tokenArgs(t *token.Token) []any {
	var number any
	if t.Number != "" {
		number = t.Number
	}
	return []any{
		t.ID, number, int64(t.Seq), t.UserID, t.QueueID, string(t.Domain), string(t.Priority),
		t.SeverityScore, t.Symptoms, t.ConsultationType, t.ServiceName, t.AppointmentAt,
		string(t.State), t.Called, t.Position, t.ServerID,
		t.CalledAt, t.ServiceStartedAt, t.ServiceCompletedAt, t.ExpiredAt, t.CancelledAt,
		t.EstimatedWait, t.PredictionConfidence, t.ModelVersion, t.ActualWait, t.ActualService,
		t.QueueLengthAtAdmission, t.ActiveServersAtAdmission, t.CreatedAt, t.UpdatedAt,
	}
}

func scanToken(row pgx.Row) (*token.Token, error) {
	var (
		t                       token.Token
		number                  *string
		seq                     int64
		domain, priority, state string
	)
	err := row.Scan(
		&t.ID, &number, &seq, &t.UserID, &t.QueueID, &domain, &priority,
		&t.SeverityScore, &t.Symptoms, &t.ConsultationType, &t.ServiceName, &t.AppointmentAt,
		&state, &t.Called, &t.Position, &t.ServerID,
		&t.CalledAt, &t.ServiceStartedAt, &t.ServiceCompletedAt, &t.ExpiredAt, &t.CancelledAt,
		&t.EstimatedWait, &t.PredictionConfidence, &t.ModelVersion, &t.ActualWait, &t.ActualService,
		&t.QueueLengthAtAdmission, &t.ActiveServersAtAdmission, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if number != nil {
		t.Number = *number
	}
	t.Seq = uint64(seq)
	t.Domain = smartqueue.Domain(domain)
	t.Priority = token.Priority(priority)
	t.State = token.State(state)
	return &t, nil
}
