package models

import (
	"time"

	"github.com/uptrace/bun"
)

type UserRole string

const (
	RoleBeneficiary         UserRole = "BENEFICIARY"
	RoleUnderageBeneficiary UserRole = "UNDERAGE_BENEFICIARY"
	RolePro                 UserRole = "PRO"
	RoleAdmin               UserRole = "ADMIN"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID                 int64      `bun:"id,pk,autoincrement" json:"id"`
	Email              string     `bun:"email,unique,notnull" json:"email"`
	FirstName          string     `bun:"first_name" json:"first_name"`
	LastName           string     `bun:"last_name" json:"last_name"`
	DateOfBirth        *time.Time `bun:"date_of_birth" json:"date_of_birth,omitempty"`
	ValidatedBirthDate *time.Time `bun:"validated_birth_date" json:"validated_birth_date,omitempty"`
	IDPieceNumber      string     `bun:"id_piece_number,nullzero" json:"-"`
	IsEmailValidated   bool       `bun:"is_email_validated" json:"is_email_validated"`
	PhoneNumber        string     `bun:"phone_number,nullzero" json:"phone_number,omitempty"`
	IsPhoneValidated   bool       `bun:"is_phone_validated" json:"is_phone_validated"`
	DepartmentCode     string     `bun:"department_code,nullzero" json:"department_code,omitempty"`
	Roles              []UserRole `bun:"roles,type:jsonb" json:"roles"`
	CreatedAt          time.Time  `bun:"created_at,notnull" json:"created_at"`
}

// BirthDate prefers the date read on an identity document over the declared one.
func (u *User) BirthDate() *time.Time {
	if u.ValidatedBirthDate != nil {
		return u.ValidatedBirthDate
	}
	return u.DateOfBirth
}

func (u *User) HasRole(role UserRole) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u *User) AddRole(role UserRole) {
	if !u.HasRole(role) {
		u.Roles = append(u.Roles, role)
	}
}

func (u *User) RemoveRole(role UserRole) {
	roles := u.Roles[:0]
	for _, r := range u.Roles {
		if r != role {
			roles = append(roles, r)
		}
	}
	u.Roles = roles
}

func (u *User) IsBeneficiary() bool {
	return u.HasRole(RoleBeneficiary) || u.HasRole(RoleUnderageBeneficiary)
}
