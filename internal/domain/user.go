package domain

import "time"

// Entitlement grants a user access to the protected content of one product version.
type Entitlement struct {
	ProductID string `json:"product_id" dynamodbav:"product_id"`
	Version   int    `json:"version" dynamodbav:"version"`
}

type User struct {
	UserID       string        `json:"id" dynamodbav:"user_id"`
	Username     string        `json:"username" dynamodbav:"username"`
	Email        string        `json:"email" dynamodbav:"email"`
	Phone        *string       `json:"phone" dynamodbav:"phone"`
	PasswordHash string        `json:"-" dynamodbav:"password_hash"`
	IsAdmin      bool          `json:"is_admin" dynamodbav:"is_admin"`
	Entitlements []Entitlement `json:"entitlements" dynamodbav:"entitlements"`
	Blocked      bool          `json:"blocked" dynamodbav:"blocked"`
	LastLogin    *time.Time    `json:"last_login,omitempty" dynamodbav:"last_login"`
	CreatedAt    time.Time     `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time     `json:"updated" dynamodbav:"updated_at"`
}

// Owns reports whether the user already holds an entitlement for productID.
func (u *User) Owns(productID string) bool {
	return HasEntitlement(u.Entitlements, productID)
}

// Identity is the session view of the user. Admin status is taken from the
// stored record only.
func (u *User) Identity() Identity {
	return Identity{
		UserID:       u.UserID,
		Username:     u.Username,
		Email:        u.Email,
		Entitlements: u.Entitlements,
		IsAdmin:      u.IsAdmin,
	}
}

// HasEntitlement reports whether list contains productID.
func HasEntitlement(list []Entitlement, productID string) bool {
	for _, e := range list {
		if e.ProductID == productID {
			return true
		}
	}
	return false
}

// AppendEntitlement returns list with e appended unless its product is already present.
// The input slice is never modified.
func AppendEntitlement(list []Entitlement, e Entitlement) []Entitlement {
	out := make([]Entitlement, 0, len(list)+1)
	out = append(out, list...)
	if HasEntitlement(list, e.ProductID) {
		return out
	}
	return append(out, e)
}

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	UserID       string
	Username     string
	Email        string
	Entitlements []Entitlement
	IsAdmin      bool
}

type SignupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=12"`
	Password string `json:"password" validate:"required,min=6,max=16"`
	Code     string `json:"code" validate:"required,numeric"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SendCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyCodeRequest struct {
	Code string `json:"code" validate:"required,numeric"`
}

type ResetPasswordRequest struct {
	Code     string `json:"code" validate:"required,numeric"`
	Password string `json:"password" validate:"required,min=6,max=16"`
}
