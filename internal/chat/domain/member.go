package domain

// Member 團隊成員 (table team_members), 由 auth 服務維護
type Member struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Password string `json:"-"`
	IsActive bool   `json:"isActive"`
}

// LoginRequest team login body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse team login result
type LoginResponse struct {
	Token  string `json:"token"`
	Member Member `json:"teamMember"`
}
