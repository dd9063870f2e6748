package app

import (
	"context"
	"strings"

	"team_portal_service/internal/chat/domain"
	"team_portal_service/internal/chat/repository"
	"team_portal_service/pkg/encrypt"
	errprocess "team_portal_service/pkg/err"
	"team_portal_service/pkg/logger"
	"team_portal_service/pkg/token"

	"go.uber.org/zap"
)

// AuthUseCase team login, issue team session token
type AuthUseCase struct {
	members repository.MemberRepository
	tokens  *token.Manager
}

// NewAuthUseCase init auth use case
func NewAuthUseCase(members repository.MemberRepository, tokens *token.Manager) *AuthUseCase {
	return &AuthUseCase{members: members, tokens: tokens}
}

// Login check email / password, return JWT {teamMemberId, name, role, type:"team"}
func (uc *AuthUseCase) Login(ctx context.Context, email, password string) (*domain.LoginResponse, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, errprocess.Validation("email and password are required")
	}

	member, err := uc.members.FindByEmail(ctx, email)
	if err != nil {
		if errprocess.KindOf(err) == errprocess.KindNotFound {
			return nil, errprocess.Authorization("invalid credentials")
		}
		return nil, err
	}
	if !member.IsActive {
		return nil, errprocess.Authorization("account is deactivated")
	}
	if err := encrypt.CheckPassword(member.Password, password); err != nil {
		logger.Log.Info("team login rejected", zap.Int64("member_id", member.ID))
		return nil, errprocess.Authorization("invalid credentials")
	}

	tk, err := uc.tokens.GenerateJWT(member.ID, member.Name, member.Role)
	if err != nil {
		return nil, errprocess.Wrap(errprocess.KindUnknown, err, "generate token")
	}

	member.Password = ""
	return &domain.LoginResponse{Token: tk, Member: *member}, nil
}
