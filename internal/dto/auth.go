package dto

import "github.com/google/uuid"

type SignupRequest struct {
	Phone    string `json:"phone"    validate:"required,e164"`
	Email    string `json:"email"    validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	DeviceID string `json:"deviceId" validate:"required,deviceid"`
	Captcha  string `json:"captcha"`
}

type LoginRequest struct {
	Phone    string `json:"phone"    validate:"required,e164"`
	Password string `json:"password" validate:"required,max=72"`
	DeviceID string `json:"deviceId" validate:"required,deviceid"`
	Captcha  string `json:"captcha"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

type ChangePasswordRequest struct {
	Old string `json:"old" validate:"required,max=72"`
	New string `json:"new" validate:"required,min=8,max=72,nefield=Old"`
}

type ConfirmVerificationRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type LoginResponse struct {
	Access      string `json:"access"`
	Refresh     string `json:"refresh"`
	DeviceToken string `json:"deviceToken"`
}

// Identity is what an authenticated call carries in its context.
type Identity struct {
	AccountID    uuid.UUID
	DeviceID     string
	Admin        bool
	TokenVersion int64
	NeedsRefresh bool
	NewToken     string
}

type AccountResponse struct {
	ID         uuid.UUID        `json:"id"`
	Phone      string           `json:"phone"`
	Email      string           `json:"email"`
	IsVerified bool             `json:"isVerified"`
	IsAdmin    bool             `json:"isAdmin"`
	Devices    []DeviceResponse `json:"devices"`
}
