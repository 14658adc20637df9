package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"ridehail/internal/audit"
	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// AccountService registers and blocks accounts. Credentials are issued by
// the identity provider and are not handled here.
type AccountService struct {
	users     repository.UserRepository
	drivers   repository.DriverRepository
	directory *DriverDirectory
	audit     *audit.Recorder
}

// NewAccountService creates a new AccountService.
func NewAccountService(
	users repository.UserRepository,
	drivers repository.DriverRepository,
	directory *DriverDirectory,
	recorder *audit.Recorder,
) *AccountService {
	return &AccountService{
		users:     users,
		drivers:   drivers,
		directory: directory,
		audit:     recorder,
	}
}

// RegisterRequest contains the parameters for a new account.
type RegisterRequest struct {
	Name  string
	Email string
	Role  domain.Role
}

// Register creates a passenger or driver account. Drivers also get a
// directory record; they start active with no location.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name", "required")
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil {
		return nil, invalid("email", "malformed address")
	}
	if req.Role != domain.RolePassenger && req.Role != domain.RoleDriver {
		return nil, invalid("role", "must be passenger or driver")
	}

	user := &domain.User{
		ID:     uuid.New().String(),
		Name:   name,
		Email:  strings.ToLower(addr.Address),
		Role:   req.Role,
		Active: true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, invalid("email", "already registered")
		}
		return nil, err
	}

	if user.Role == domain.RoleDriver {
		driver := &domain.Driver{
			ID:     user.ID,
			Name:   user.Name,
			Email:  user.Email,
			Active: true,
		}
		if err := s.drivers.Create(ctx, driver); err != nil {
			return nil, err
		}
	}

	s.audit.Emit(ctx, user.ID, audit.ActionUserRegistered,
		fmt.Sprintf("email=%s, role=%s", user.Email, user.Role))
	return user, nil
}

// Get returns an account to its owner or an admin.
func (s *AccountService) Get(ctx context.Context, caller Caller, id string) (*domain.User, error) {
	if caller.ID != id && !caller.IsAdmin() {
		return nil, forbidden("view this account")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("user", id)
		}
		return nil, err
	}
	return user, nil
}

// List returns all accounts. Admin only.
func (s *AccountService) List(ctx context.Context, caller Caller) ([]*domain.User, error) {
	if !caller.IsAdmin() {
		return nil, forbidden("list accounts")
	}
	return s.users.GetAll(ctx)
}

// Drivers returns all driver records. Admin only.
func (s *AccountService) Drivers(ctx context.Context, caller Caller) ([]*domain.Driver, error) {
	if !caller.IsAdmin() {
		return nil, forbidden("list drivers")
	}
	return s.drivers.GetAll(ctx)
}

// Block deactivates an account. A blocked driver also leaves matching.
func (s *AccountService) Block(ctx context.Context, caller Caller, id string) (*domain.User, error) {
	if !caller.IsAdmin() {
		return nil, forbidden("block users")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("user", id)
		}
		return nil, err
	}
	if err := s.users.SetActive(ctx, id, false); err != nil {
		return nil, err
	}
	user.Active = false

	if user.Role == domain.RoleDriver {
		if err := s.directory.setActive(ctx, caller, id, false); err != nil {
			var nf *NotFoundError
			if !errors.As(err, &nf) {
				return nil, err
			}
		}
	}

	s.audit.Emit(ctx, caller.ID, audit.ActionUserBlocked,
		fmt.Sprintf("user_id=%s, email=%s", id, user.Email))
	return user, nil
}
