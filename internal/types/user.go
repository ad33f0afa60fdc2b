package types

import (
	"time"

	"github.com/google/uuid"
)

// User is the persisted account record owned by the credential store.
type User struct {
	ID            uuid.UUID `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Fullname      string    `json:"fullname"`
	PasswordHash  string    `json:"-"` // Hashed password (never exposed).
	AvatarURL     string    `json:"avatar"`
	CoverImageURL string    `json:"coverImage"`
	RefreshToken  *string   `json:"-"` // Most recently issued refresh token, nil when signed out.
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// UserResponse is the outward-facing projection of a User.
type UserResponse struct {
	ID            uuid.UUID `json:"id" example:"d290f1ee-6c54-4b01-90e6-d701748f0851"`
	Username      string    `json:"username" example:"alice"`
	Email         string    `json:"email" example:"a@x.com"`
	Fullname      string    `json:"fullname" example:"Alice Liddell"`
	AvatarURL     string    `json:"avatar"`
	CoverImageURL string    `json:"coverImage"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Projection strips credentials from the record.
func (u *User) Projection() *UserResponse {
	if u == nil {
		return nil
	}
	return &UserResponse{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		Fullname:      u.Fullname,
		AvatarURL:     u.AvatarURL,
		CoverImageURL: u.CoverImageURL,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// CreateUserParams carries the already-normalized fields of a new account.
type CreateUserParams struct {
	Username      string
	Email         string
	Fullname      string
	PasswordHash  string
	AvatarURL     string
	CoverImageURL string
}

// RegisterParams is the service-level registration input. Avatar and cover
// paths point at locally staged uploads.
type RegisterParams struct {
	Username       string
	Email          string
	Fullname       string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

// UpdateAccountParams uses pointers so absent fields are left untouched.
type UpdateAccountParams struct {
	Fullname *string `json:"fullname,omitempty" example:"Alice L."`
	Email    *string `json:"email,omitempty" validate:"omitempty,email" example:"alice@example.com"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required" example:"secret1"`
	NewPassword string `json:"newPassword" validate:"required" example:"secret2"`
}

// RegisterRequest mirrors the multipart form fields of the register endpoint.
// Blank fields are rejected by the service so the message stays uniform.
type RegisterRequest struct {
	Username string
	Email    string `validate:"omitempty,email"`
	Fullname string
	Password string
}
