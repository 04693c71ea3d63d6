package user

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// EmailExistsError is the error stores return on an email collision.
func EmailExistsError() error {
	return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
}

type (
	// Repository persists users. Implementations enforce email uniqueness,
	// returning EmailExistsError on collision.
	Repository interface {
		QueryUsers(ctx context.Context, filter Filter) ([]User, error)
		CreateUsers(ctx context.Context, users ...User) ([]User, error)
		UpdateUsers(ctx context.Context, patch Patch, filter Filter) ([]User, error)
		// DeleteUsers also removes the enrollments, teaching assignments,
		// presence records and grade records of the deleted users.
		DeleteUsers(ctx context.Context, filter Filter) ([]User, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	vala.BeginValidation().Validate(vala.IsNotNil(repo, "repo")).CheckAndPanic()
	return &Service{repo: repo}
}

// Create stores a new active user. nu is expected to be validated.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	nu.Clean()
	if !IsRole(nu.Role) {
		return User{}, core.NewFieldError("role", "invalid role")
	}
	now := NowFunc().UTC()
	usr := User{
		Name:      nu.Name,
		Email:     nu.Email,
		Role:      nu.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	users, err := svc.repo.CreateUsers(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	return users[0], nil
}

func (svc *Service) Query(ctx context.Context, filter Filter) ([]User, error) {
	filter.Clean()
	return svc.repo.QueryUsers(ctx, filter)
}

func (svc *Service) get(ctx context.Context, filter Filter, key string) (User, error) {
	users, err := svc.repo.QueryUsers(ctx, filter)
	if err != nil {
		return User{}, err
	}
	if len(users) == 0 {
		return User{}, core.NewNotFoundError("user", key)
	}
	return users[0], nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.get(ctx, Filter{IDs: []string{id}}, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	return svc.get(ctx, Filter{Email: email}, email)
}

// Authenticate returns the active user owning the email/password pair.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if !usr.IsActive || usr.CheckPassword(pwd) != nil {
		return User{}, ErrInvalidCredentials
	}
	return usr, nil
}

// Update merges uu into the user. uu is expected to be validated.
func (svc *Service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	patch := Patch{
		IsActive:  uu.IsActive,
		UpdatedAt: NowFunc().UTC(),
	}
	if name := core.CleanString(uu.Name); name != "" {
		patch.Name = &name
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		patch.Email = &email
	}
	if uu.Password != "" {
		var tmp User
		if err := tmp.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
		patch.PasswordHash = tmp.PasswordHash
	}
	users, err := svc.repo.UpdateUsers(ctx, patch, Filter{IDs: []string{id}})
	if err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}
	if len(users) == 0 {
		return User{}, core.NewNotFoundError("user", id)
	}
	return users[0], nil
}

func (svc *Service) SetLastLogin(ctx context.Context, id string) error {
	now := NowFunc().UTC()
	users, err := svc.repo.UpdateUsers(ctx, Patch{LastLogin: &now}, Filter{IDs: []string{id}})
	if err != nil {
		return errors.Wrap(err, "setting last login")
	}
	if len(users) == 0 {
		return core.NewNotFoundError("user", id)
	}
	return nil
}

// Delete removes the users and everything recorded about them.
func (svc *Service) Delete(ctx context.Context, ids ...string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	users, err := svc.repo.DeleteUsers(ctx, Filter{IDs: ids})
	if err != nil {
		return nil, errors.Wrap(err, "deleting users")
	}
	if len(users) == 0 {
		return nil, core.NewNotFoundError("user", ids[0])
	}
	return users, nil
}
