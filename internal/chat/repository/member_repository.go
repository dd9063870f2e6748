package repository

import (
	"context"
	"errors"

	"team_portal_service/internal/chat/domain"
	errprocess "team_portal_service/pkg/err"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// MemberRepository read team_members, owned by the auth collaborator
type MemberRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Member, error)
	FindByEmail(ctx context.Context, email string) (*domain.Member, error)
}

type memberRepository struct {
	db *pgxpool.Pool
}

// NewMemberRepository create a pgx MemberRepository
func NewMemberRepository(db *pgxpool.Pool) MemberRepository {
	return &memberRepository{db: db}
}

const memberColumns = "SELECT id, name, email, password, role, COALESCE(is_active, true) FROM team_members"

func (r *memberRepository) FindByID(ctx context.Context, id int64) (*domain.Member, error) {
	return r.scan(r.db.QueryRow(ctx, memberColumns+" WHERE id = $1", id))
}

func (r *memberRepository) FindByEmail(ctx context.Context, email string) (*domain.Member, error) {
	return r.scan(r.db.QueryRow(ctx, memberColumns+" WHERE email = $1", email))
}

func (r *memberRepository) scan(row pgx.Row) (*domain.Member, error) {
	var member domain.Member
	err := row.Scan(&member.ID, &member.Name, &member.Email, &member.Password, &member.Role, &member.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errprocess.NotFound("no member found with given criteria")
		}
		return nil, errprocess.Persistence(err, "find member")
	}
	return &member, nil
}
