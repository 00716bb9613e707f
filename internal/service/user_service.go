package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/internal/repository"
	"github.com/immxrtalbeast/telemed/lib/logger/sl"
)

type UserService struct {
	users repository.UserRepository
	log   *slog.Logger
}

func NewUserService(users repository.UserRepository, log *slog.Logger) *UserService {
	if log == nil {
		log = slog.Default()
	}
	return &UserService{users: users, log: log}
}

func (s *UserService) CreateUser(ctx context.Context, name string, role domain.Role, specialty string) (*domain.User, error) {
	const op = "service.user.create"
	log := s.log.With(slog.String("op", op))

	if name == "" {
		return nil, errors.New("name is required")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRole)
	}

	user := domain.NewUser(name, role, specialty)
	if err := s.users.Create(ctx, user); err != nil {
		log.Error("failed to create user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user created", slog.String("user_id", user.ID), slog.String("role", string(role)))
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	const op = "service.user.get"

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// SetStatus changes availability by hand. Busy is reserved for accepted consultations.
func (s *UserService) SetStatus(ctx context.Context, id string, status domain.UserStatus) error {
	const op = "service.user.set_status"
	log := s.log.With(slog.String("op", op), slog.String("user_id", id))

	if !status.Valid() || status == domain.UserStatusBusy {
		return fmt.Errorf("%s: %w", op, ErrInvalidStatus)
	}
	if err := s.users.SetStatus(ctx, id, status); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("status changed", slog.String("status", string(status)))
	return nil
}

func (s *UserService) AvailableDoctors(ctx context.Context) ([]*domain.User, error) {
	const op = "service.user.available_doctors"

	doctors, err := s.users.ListByRoleStatus(ctx, domain.RoleDoctor, domain.UserStatusOnline)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doctors, nil
}
