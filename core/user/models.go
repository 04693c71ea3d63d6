package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/shule/core"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

var (
	AllRoles = []string{RoleAdmin, RoleTeacher, RoleStudent}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
	}
)

// IsRole reports whether r is one of AllRoles.
func IsRole(r string) bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User is a person of the school: administrator, teacher or student.
// The Role is set on creation and never changes afterwards.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Role            string `json:"role" validate:"required,role"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Clean()
	return validate.Struct(nu)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Role is not part of it: roles are immutable.
type UpdateUser struct {
	Name            string `json:"name"`
	Email           string `json:"email" validate:"omitempty,email"`
	IsActive        *bool  `json:"is_active"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

// Validate fills the blank fields from origUsr before validating.
func (uu *UpdateUser) Validate(validate *validator.Validate, origUsr User) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}
	return validate.Struct(uu)
}

// Filter selects users; zero-valued fields are ignored.
// Search does a case-insensitive match on User.Name or User.Email.
type Filter struct {
	IDs      []string `query:"id"`
	Email    string   `query:"email"`
	Role     string   `query:"role"`
	IsActive *bool    `query:"is_active"`
	Search   string   `query:"search"`
}

func (f *Filter) Clean() {
	f.Email = core.CleanString(f.Email, true /* lower */)
	f.Role = core.CleanString(f.Role, true /* lower */)
	f.Search = core.CleanString(f.Search)
}

// Match reports whether usr satisfies every set field of f.
func (f Filter) Match(usr User) bool {
	if len(f.IDs) > 0 && !core.InStrings(usr.ID, f.IDs) {
		return false
	}
	if f.Email != "" && usr.Email != f.Email {
		return false
	}
	if f.Role != "" && usr.Role != f.Role {
		return false
	}
	if f.IsActive != nil && usr.IsActive != *f.IsActive {
		return false
	}
	if f.Search != "" {
		s := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(usr.Name), s) && !strings.Contains(usr.Email, s) {
			return false
		}
	}
	return true
}

// Patch holds the fields to merge into matching users; nil fields are left untouched.
type Patch struct {
	Name         *string
	Email        *string
	IsActive     *bool
	PasswordHash []byte
	LastLogin    *time.Time
	UpdatedAt    time.Time
}

func (p Patch) Apply(usr *User) {
	if p.Name != nil {
		usr.Name = *p.Name
	}
	if p.Email != nil {
		usr.Email = *p.Email
	}
	if p.IsActive != nil {
		usr.IsActive = *p.IsActive
	}
	if p.PasswordHash != nil {
		usr.PasswordHash = p.PasswordHash
	}
	if p.LastLogin != nil {
		usr.LastLogin = *p.LastLogin
	}
	if !p.UpdatedAt.IsZero() {
		usr.UpdatedAt = p.UpdatedAt
	}
}
