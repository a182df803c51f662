package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/saeid-a/SigmaChatSync/internal/imaging"
	"github.com/saeid-a/SigmaChatSync/internal/models"
	"github.com/saeid-a/SigmaChatSync/internal/preferences"
	"github.com/saeid-a/SigmaChatSync/pkg/utils"
)

// RoleUser is the only account role of the chat.
const RoleUser = "user"

// ValidationError is a sign-up rejection with the message shown to the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

type accountStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type accountPreferences interface {
	PutString(key string, value string) error
	GetString(key string) (string, error)
	PutBool(key string, value bool) error
	GetBool(key string) (bool, error)
}

type SignUpInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
	Image           io.Reader
	ImageFilename   string
}

type AuthResult struct {
	Token string
	User  *models.User
}

// ProfileDetails is what the main screen header shows. Warning is set when
// the stored image cannot be shown.
type ProfileDetails struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Image   string `json:"image,omitempty"`
	Warning string `json:"warning,omitempty"`
}

type AccountService struct {
	users     accountStore
	prefs     accountPreferences
	avatars   AvatarArchive
	jwtSecret string
	log       zerolog.Logger
}

// NewAccountService wires sign-up and sign-in. avatars may be nil.
func NewAccountService(
	users accountStore,
	prefs accountPreferences,
	avatars AvatarArchive,
	jwtSecret string,
	log zerolog.Logger,
) *AccountService {
	return &AccountService{
		users:     users,
		prefs:     prefs,
		avatars:   avatars,
		jwtSecret: jwtSecret,
		log:       log.With().Str("component", "account_service").Logger(),
	}
}

// ValidateSignUp checks the form in the order the fields appear on screen
// and reports the first problem only.
func ValidateSignUp(in SignUpInput) error {
	switch {
	case in.Image == nil:
		return &ValidationError{Message: "Select profile image"}
	case strings.TrimSpace(in.Name) == "":
		return &ValidationError{Message: "Enter name"}
	case strings.TrimSpace(in.Email) == "":
		return &ValidationError{Message: "Enter email"}
	case !validEmail(in.Email):
		return &ValidationError{Message: "Enter valid email"}
	case strings.TrimSpace(in.Password) == "":
		return &ValidationError{Message: "Enter password"}
	case strings.TrimSpace(in.ConfirmPassword) == "":
		return &ValidationError{Message: "Confirm your password"}
	case in.Password != in.ConfirmPassword:
		return &ValidationError{Message: "Password & confirm password must be same"}
	}
	return nil
}

func validEmail(email string) bool {
	parsed, err := mail.ParseAddress(strings.TrimSpace(email))
	return err == nil && parsed.Address == strings.TrimSpace(email)
}

func (s *AccountService) SignUp(ctx context.Context, in SignUpInput) (*AuthResult, error) {
	if err := ValidateSignUp(in); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(in.Image)
	if err != nil {
		return nil, fmt.Errorf("read profile image: %w", err)
	}
	encoded, err := imaging.EncodeProfileImage(bytes.NewReader(raw))
	if err != nil {
		return nil, &ValidationError{Message: "Unable to read profile image"}
	}

	hashed, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hashed,
		Image:        encoded,
	}
	user.AvatarURL = s.archiveAvatar(ctx, raw, in.ImageFilename)

	if err := s.users.CreateUser(ctx, user); err != nil {
		s.discardAvatar(user.AvatarURL)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return s.signIn(user)
}

func (s *AccountService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !utils.CheckPassword(password, user.PasswordHash) {
		return nil, ErrForbidden
	}
	return s.signIn(user)
}

func (s *AccountService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// AvatarLink returns a short-lived link to the archived original upload, or
// "" when there is none.
func (s *AccountService) AvatarLink(ctx context.Context, user *models.User) string {
	if s.avatars == nil || user.AvatarURL == nil {
		return ""
	}
	link, err := s.avatars.SignedLink(ctx, *user.AvatarURL)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("sign avatar url failed")
		return ""
	}
	return link
}

// Details reads the signed-in profile from local preferences.
func (s *AccountService) Details() (*ProfileDetails, error) {
	signedIn, err := s.prefs.GetBool(preferences.KeyIsSignedIn)
	if err != nil {
		return nil, err
	}
	userID, err := s.prefs.GetString(preferences.KeyUserID)
	if err != nil {
		return nil, err
	}
	if !signedIn || userID == "" {
		return nil, ErrNotSignedIn
	}

	name, err := s.prefs.GetString(preferences.KeyName)
	if err != nil {
		return nil, err
	}
	image, err := s.prefs.GetString(preferences.KeyImage)
	if err != nil {
		return nil, err
	}

	details := &ProfileDetails{UserID: userID, Name: name, Image: image}
	switch {
	case image == "":
		details.Warning = WarnProfileImageMissing
	default:
		if _, err := imaging.DecodeProfileImage(image); err != nil {
			s.log.Warn().Err(err).Msg("stored profile image is unreadable")
			details.Image = ""
			details.Warning = WarnProfileImageUnreadable
		}
	}
	return details, nil
}

func (s *AccountService) signIn(user *models.User) (*AuthResult, error) {
	writes := []struct {
		key   string
		value string
	}{
		{preferences.KeyUserID, user.ID},
		{preferences.KeyName, user.Name},
		{preferences.KeyImage, user.Image},
	}
	if err := s.prefs.PutBool(preferences.KeyIsSignedIn, true); err != nil {
		return nil, fmt.Errorf("store preferences: %w", err)
	}
	for _, w := range writes {
		if err := s.prefs.PutString(w.key, w.value); err != nil {
			return nil, fmt.Errorf("store preferences: %w", err)
		}
	}

	token, err := utils.GenerateToken(user.ID, RoleUser, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AccountService) archiveAvatar(ctx context.Context, raw []byte, filename string) *string {
	if s.avatars == nil {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}
	url, err := s.avatars.Archive(ctx, uuid.NewString()+ext, raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("archive profile image failed")
		return nil
	}
	return &url
}

func (s *AccountService) discardAvatar(url *string) {
	if s.avatars == nil || url == nil {
		return
	}
	if err := s.avatars.Discard(context.Background(), *url); err != nil {
		s.log.Warn().Err(err).Msg("remove orphaned profile image failed")
	}
}
