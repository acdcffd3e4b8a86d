package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"booking-platform/internal/agents"
	"booking-platform/internal/calls"
	"booking-platform/internal/credentials"
	"booking-platform/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore implements the repositories over database/sql (pgx stdlib driver).
//
// Tables (see migrations/): organizations, voice_agents, voice_calls.
// voice_calls.bolna_call_id is UNIQUE; it is the webhook correlation key.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Agents() agents.Repository           { return pgAgents{s.db} }
func (s *PostgresStore) Calls() calls.Repository             { return pgCalls{s.db} }
func (s *PostgresStore) Credentials() credentials.Repository { return pgCredentials{s.db} }

// --- credentials ---

type pgCredentials struct{ db *sql.DB }

func (r pgCredentials) GetEncryptedKey(ctx context.Context, organizationID string) (string, error) {
	const q = `SELECT bolna_api_key_encrypted FROM organizations WHERE id = $1`
	var rec sql.NullString
	if err := r.db.QueryRowContext(ctx, q, organizationID).Scan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", credentials.ErrOrganizationNotFound
		}
		return "", err
	}
	return rec.String, nil
}

func (r pgCredentials) SetEncryptedKey(ctx context.Context, organizationID, record string) error {
	var v any
	if record != "" {
		v = record
	}
	const q = `UPDATE organizations SET bolna_api_key_encrypted = $2, updated_at = now() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, organizationID, v)
	if err != nil {
		return err
	}
	ok, err := utils.RowsAffected(res)
	if err != nil {
		return err
	}
	if !ok {
		return credentials.ErrOrganizationNotFound
	}
	return nil
}

func (r pgCredentials) ClearEncryptedKey(ctx context.Context, organizationID string) error {
	return r.SetEncryptedKey(ctx, organizationID, "")
}

// --- agents ---

type pgAgents struct{ db *sql.DB }

const agentColumns = `id, organization_id, bolna_agent_id, name, welcome_message, instructions, language, voice_id, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (agents.Agent, error) {
	var a agents.Agent
	var voice sql.NullString
	if err := row.Scan(
		&a.ID,
		&a.OrganizationID,
		&a.BolnaAgentID,
		&a.Name,
		&a.WelcomeMessage,
		&a.Instructions,
		&a.Language,
		&voice,
		&a.IsActive,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return agents.Agent{}, err
	}
	a.VoiceID = nullString(voice)
	return a, nil
}

func (r pgAgents) Insert(ctx context.Context, a agents.Agent) error {
	const q = `
INSERT INTO voice_agents (` + agentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`
	_, err := r.db.ExecContext(ctx, q,
		a.ID, a.OrganizationID, a.BolnaAgentID, a.Name, a.WelcomeMessage, a.Instructions,
		a.Language, a.VoiceID, a.IsActive, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (r pgAgents) Get(ctx context.Context, organizationID, id string) (agents.Agent, error) {
	const q = `SELECT ` + agentColumns + ` FROM voice_agents WHERE organization_id = $1 AND id = $2`
	a, err := scanAgent(r.db.QueryRowContext(ctx, q, organizationID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return agents.Agent{}, agents.ErrNotFound
	}
	return a, err
}

func (r pgAgents) List(ctx context.Context, organizationID string) ([]agents.Agent, error) {
	const q = `SELECT ` + agentColumns + ` FROM voice_agents WHERE organization_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []agents.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r pgAgents) Update(ctx context.Context, a agents.Agent) error {
	const q = `
UPDATE voice_agents
SET name = $3, welcome_message = $4, instructions = $5, language = $6, voice_id = $7, is_active = $8, updated_at = $9
WHERE organization_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q,
		a.OrganizationID, a.ID, a.Name, a.WelcomeMessage, a.Instructions, a.Language, a.VoiceID, a.IsActive, a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	ok, err := utils.RowsAffected(res)
	if err != nil {
		return err
	}
	if !ok {
		return agents.ErrNotFound
	}
	return nil
}

// Delete removes the agent's calls and then the agent in one transaction.
func (r pgAgents) Delete(ctx context.Context, organizationID, id string) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM voice_calls WHERE organization_id = $1 AND agent_id = $2`, organizationID, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM voice_agents WHERE organization_id = $1 AND id = $2`, organizationID, id)
		if err != nil {
			return err
		}
		ok, err := utils.RowsAffected(res)
		if err != nil {
			return err
		}
		if !ok {
			return agents.ErrNotFound
		}
		return nil
	})
}

func (r pgAgents) CountCalls(ctx context.Context, organizationID string, agentIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(agentIDs))
	if len(agentIDs) == 0 {
		return out, nil
	}
	want := make(map[string]bool, len(agentIDs))
	for _, id := range agentIDs {
		want[id] = true
	}

	const q = `SELECT agent_id, COUNT(*) FROM voice_calls WHERE organization_id = $1 GROUP BY agent_id`
	rows, err := r.db.QueryContext(ctx, q, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		if want[id] {
			out[id] = n
		}
	}
	return out, rows.Err()
}

// --- calls ---

type pgCalls struct{ db *sql.DB }

const callColumns = `id, agent_id, organization_id, bolna_call_id, recipient_phone, recipient_region, status, duration, recording_url, transcript, error_message, created_at, updated_at, completed_at`

func scanCall(row rowScanner) (calls.Call, error) {
	var (
		c                                            calls.Call
		providerID, region, recording, transcript, e sql.NullString
		duration                                     sql.NullInt64
		completedAt                                  sql.NullTime
	)
	if err := row.Scan(
		&c.ID,
		&c.AgentID,
		&c.OrganizationID,
		&providerID,
		&c.RecipientPhone,
		&region,
		&c.Status,
		&duration,
		&recording,
		&transcript,
		&e,
		&c.CreatedAt,
		&c.UpdatedAt,
		&completedAt,
	); err != nil {
		return calls.Call{}, err
	}
	c.BolnaCallID = nullString(providerID)
	c.RecipientRegion = region.String
	c.RecordingURL = nullString(recording)
	c.Transcript = nullString(transcript)
	c.ErrorMessage = nullString(e)
	if duration.Valid {
		d := int(duration.Int64)
		c.Duration = &d
	}
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	return c, nil
}

func (r pgCalls) Insert(ctx context.Context, c calls.Call) error {
	const q = `
INSERT INTO voice_calls (` + callColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`
	_, err := r.db.ExecContext(ctx, q,
		c.ID, c.AgentID, c.OrganizationID, c.BolnaCallID, c.RecipientPhone, emptyAsNull(c.RecipientRegion),
		string(c.Status), c.Duration, c.RecordingURL, c.Transcript, c.ErrorMessage,
		c.CreatedAt, c.UpdatedAt, c.CompletedAt,
	)
	return duplicateCallID(err)
}

// duplicateCallID tags a unique violation on bolna_call_id with calls.ErrDuplicateCallID.
func duplicateCallID(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "voice_calls_bolna_call_id_key" {
		return fmt.Errorf("%w: %w", calls.ErrDuplicateCallID, err)
	}
	return err
}

func (r pgCalls) Get(ctx context.Context, organizationID, id string) (calls.Call, error) {
	const q = `SELECT ` + callColumns + ` FROM voice_calls WHERE organization_id = $1 AND id = $2`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, organizationID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return calls.Call{}, calls.ErrNotFound
	}
	return c, err
}

func (r pgCalls) GetByProviderID(ctx context.Context, providerCallID string) (calls.Call, error) {
	const q = `SELECT ` + callColumns + ` FROM voice_calls WHERE bolna_call_id = $1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, providerCallID))
	if errors.Is(err, sql.ErrNoRows) {
		return calls.Call{}, calls.ErrNotFound
	}
	return c, err
}

func (r pgCalls) Save(ctx context.Context, c calls.Call) error {
	const q = `
UPDATE voice_calls
SET bolna_call_id = $3, status = $4, duration = $5, recording_url = $6, transcript = $7,
    error_message = $8, updated_at = $9, completed_at = $10
WHERE organization_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q,
		c.OrganizationID, c.ID, c.BolnaCallID, string(c.Status), c.Duration, c.RecordingURL, c.Transcript,
		c.ErrorMessage, c.UpdatedAt, c.CompletedAt,
	)
	if err != nil {
		return duplicateCallID(err)
	}
	ok, err := utils.RowsAffected(res)
	if err != nil {
		return err
	}
	if !ok {
		return calls.ErrNotFound
	}
	return nil
}

// filterClause builds the WHERE clause shared by List and Stats.
func filterClause(organizationID string, f calls.Filter) (string, []any) {
	conds := []string{"organization_id = $1"}
	args := []any{organizationID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.AgentID != "" {
		add("agent_id = $%d", f.AgentID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.StartDate.IsZero() {
		add("created_at >= $%d", f.StartDate)
	}
	if !f.EndDate.IsZero() {
		add("created_at <= $%d", f.EndDate)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r pgCalls) List(ctx context.Context, organizationID string, f calls.Filter) ([]calls.Call, int, error) {
	where, args := filterClause(organizationID, f)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM voice_calls`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + callColumns + ` FROM voice_calls` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []calls.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r pgCalls) Stats(ctx context.Context, organizationID string, f calls.Filter) (calls.Stats, error) {
	where, args := filterClause(organizationID, f)
	q := `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status = 'COMPLETED'),
       COUNT(*) FILTER (WHERE status = 'FAILED'),
       COALESCE(AVG(duration)::float8, 0)
FROM voice_calls` + where
	var s calls.Stats
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&s.Total, &s.Completed, &s.Failed, &s.AvgDuration); err != nil {
		return calls.Stats{}, err
	}
	s.AvgDuration = calls.RoundAvg(s.AvgDuration)
	return s, nil
}

func (r pgCalls) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]calls.Call, error) {
	const q = `
SELECT ` + callColumns + `
FROM voice_calls
WHERE status IN ('INITIATED', 'RINGING', 'IN_PROGRESS')
  AND bolna_call_id IS NOT NULL
  AND updated_at < $1
ORDER BY updated_at ASC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calls.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func emptyAsNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
