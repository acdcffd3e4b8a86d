package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to audit_events. The table rejects UPDATE/DELETE (see migrations/).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, organization_id, type, actor_user_id, actor_role, target_id, message, metadata, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, '')::jsonb, $9)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.OrganizationID, string(e.Type), e.ActorUserID, e.ActorRole, e.TargetID, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}
