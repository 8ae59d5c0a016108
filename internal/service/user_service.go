package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"sinilikhain/internal/auth"
	"sinilikhain/internal/models"
	"sinilikhain/internal/util"

	"go.uber.org/zap"
)

const minPasswordLength = 8

// UserService handles accounts and login
type UserService struct {
	store   UserRepository
	tokens  TokenIssuer
	catalog Cache
	logger  *zap.Logger
}

// NewUserService creates a new user service. catalog may be nil.
func NewUserService(store UserRepository, tokens TokenIssuer, catalog Cache) *UserService {
	return &UserService{store: store, tokens: tokens, catalog: catalog, logger: util.GetLogger()}
}

// RegisterInput is a self-service sign-up.
type RegisterInput struct {
	Username    string `json:"username" binding:"required"`
	Email       string `json:"email" binding:"required"`
	Phone       string `json:"phone"`
	Password    string `json:"password" binding:"required"`
	Role        string `json:"role"`
	Bio         string `json:"bio"`
	Location    string `json:"location"`
	BankAccount string `json:"bankAccount"`
}

// UserPatch carries profile edits. Nil fields are left unchanged.
type UserPatch struct {
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
	Password    *string `json:"password"`
	Role        *string `json:"role"`
	Bio         *string `json:"bio"`
	Location    *string `json:"location"`
	Avatar      *string `json:"avatar"`
	BankAccount *string `json:"bankAccount"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func validateUsername(username string) error {
	if len(username) < 3 {
		return models.Invalid("username must be at least 3 characters")
	}
	if strings.ContainsAny(username, " @") {
		return models.Invalid("username must not contain spaces or @")
	}
	return nil
}

func validateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return models.Invalid("email %q is not valid", email)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return models.Invalid("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

// Register creates a buyer or artisan account. Admin accounts cannot be
// self-registered.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := validateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	switch in.Role {
	case "":
		in.Role = models.RoleBuyer
	case models.RoleBuyer, models.RoleArtisan:
	case models.RoleAdmin:
		return nil, fmt.Errorf("%w: admin accounts cannot be self-registered", models.ErrForbidden)
	default:
		return nil, models.Invalid("unknown role %q", in.Role)
	}

	return s.create(ctx, &models.User{
		Username:    in.Username,
		Email:       in.Email,
		Phone:       in.Phone,
		Role:        in.Role,
		Bio:         in.Bio,
		Location:    in.Location,
		BankAccount: in.BankAccount,
	}, in.Password)
}

func (s *UserService) create(ctx context.Context, user *models.User, password string) (*models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = hash

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("%w: username or email already taken", models.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User registered", zap.Int64("user_id", user.ID), zap.String("role", user.Role))
	return user, nil
}

// EnsureAdmin creates the bootstrap admin account if it does not exist yet
func (s *UserService) EnsureAdmin(ctx context.Context, username, email, password string) error {
	if username == "" || password == "" {
		return nil
	}
	_, err := s.store.GetUserByIdentifier(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	_, err = s.create(ctx, &models.User{Username: username, Email: strings.ToLower(email), Role: models.RoleAdmin}, password)
	return err
}

// Login checks credentials against the stored bcrypt hash and issues a token
func (s *UserService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	user, err := s.store.GetUserByIdentifier(ctx, strings.TrimSpace(identifier))
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: invalid username or password", models.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, fmt.Errorf("%w: invalid username or password", models.ErrUnauthorized)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &LoginResult{Token: token, User: user}, nil
}

// Get returns a user profile. Contact and payout details are only shown to
// the account owner and admins.
func (s *UserService) Get(ctx context.Context, actor Actor, id int64) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(id) {
		public := user.Public()
		return &public, nil
	}
	return user, nil
}

// List returns every account
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.store.ListUsers(ctx)
}

// Update applies a profile patch. Users may edit themselves; only admins may
// edit others or change roles.
func (s *UserService) Update(ctx context.Context, actor Actor, id int64, patch UserPatch) (*models.User, error) {
	if !actor.Owns(id) {
		return nil, fmt.Errorf("%w: cannot edit another user", models.ErrForbidden)
	}
	if patch.Role != nil && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can change roles", models.ErrForbidden)
	}

	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Username != nil {
		if err := validateUsername(strings.TrimSpace(*patch.Username)); err != nil {
			return nil, err
		}
		user.Username = strings.TrimSpace(*patch.Username)
	}
	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		user.Email = email
	}
	if patch.Role != nil {
		switch *patch.Role {
		case models.RoleAdmin, models.RoleArtisan, models.RoleBuyer:
			user.Role = *patch.Role
		default:
			return nil, models.Invalid("unknown role %q", *patch.Role)
		}
	}
	if patch.Password != nil {
		if err := validatePassword(*patch.Password); err != nil {
			return nil, err
		}
		hash, err := auth.HashPassword(*patch.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		user.PasswordHash = hash
	}
	if patch.Phone != nil {
		user.Phone = *patch.Phone
	}
	if patch.Bio != nil {
		user.Bio = *patch.Bio
	}
	if patch.Location != nil {
		user.Location = *patch.Location
	}
	if patch.Avatar != nil {
		user.Avatar = *patch.Avatar
	}
	if patch.BankAccount != nil {
		user.BankAccount = *patch.BankAccount
	}

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Delete removes an account. Admins cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, actor Actor, id int64) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: admin access required", models.ErrForbidden)
	}
	if actor.UserID == id {
		return models.Invalid("admins cannot delete their own account")
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	// an artisan's products go with the account
	invalidateCatalog(ctx, s.catalog, s.logger)
	s.logger.Info("User deleted", zap.Int64("user_id", id), zap.Int64("by", actor.UserID))
	return nil
}
