package audit

import (
	"context"
	"errors"
	"testing"

	"booking-platform/internal/auth"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestService_AppendRequiresOrganizationAndType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{Type: EventAgentCreated}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if err := svc.Append(context.Background(), Event{OrganizationID: "o"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestService_CapturesActorFromContext(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := auth.WithIdentity(context.Background(), "user-1", "org-1", "admin")

	svc.AgentCreated(ctx, "org-1", "agent-1")

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	e := evs[0]
	if e.ActorUserID != "user-1" || e.ActorRole != "admin" || e.TargetID != "agent-1" || e.Type != EventAgentCreated {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp assigned")
	}
}

func TestService_NilServiceIsNoop(t *testing.T) {
	var svc *Service
	svc.CallPlaced(context.Background(), "org-1", "call-1")
}

func TestPostgresRepo_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(sqlmock.AnyArg(), "org-1", "voice_call_placed", "u", "staff", "call-1", "voice call placed", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewService(NewPostgresRepo(db))
	svc.CallPlaced(auth.WithIdentity(context.Background(), "u", "org-1", "staff"), "org-1", "call-1")
	require.NoError(t, mock.ExpectationsWereMet())
}
