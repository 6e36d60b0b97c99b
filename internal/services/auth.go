package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type AuthService interface {
	Login(ctx context.Context, username, password string) (*domain.Token, error)
	Logout(ctx context.Context) error
	// SetContextFromToken validates an API token and attaches the caller to ctx.
	SetContextFromToken(ctx context.Context, key string) (context.Context, error)
	TokenTTL() time.Duration
}

type authService struct {
	core     *Core
	log      *logger.Logger
	tokenTTL time.Duration
}

func NewAuthService(core *Core, tokenTTL time.Duration) AuthService {
	return &authService{core: core, log: core.Log.With("service", "AuthService"), tokenTTL: tokenTTL}
}

func (as *authService) TokenTTL() time.Duration { return as.tokenTTL }

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apierr.Internal("auth.hash", err)
	}
	return string(hashed), nil
}

func newTokenKey() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }

func (as *authService) Login(ctx context.Context, username, password string) (*domain.Token, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apierr.Validation("auth.login", "Must include \"username\" and \"password\".")
	}
	var tok *domain.Token
	err := as.core.Writer.Write(ctx, "auth.login", func(dbc dbctx.Context) error {
		u, err := as.core.Repos.User.ByUsername(dbc, username)
		if err != nil {
			return err
		}
		if u == nil || !u.IsActive {
			return apierr.Validation("auth.login", "Unable to log in with provided credentials.")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
			return apierr.Validation("auth.login", "Unable to log in with provided credentials.")
		}
		now := as.core.now()
		if _, err := as.core.Repos.Token.DeleteExpired(dbc, now); err != nil {
			as.log.Warn("expired token cleanup failed", "error", err)
		}
		tok = &domain.Token{Key: newTokenKey(), UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(as.tokenTTL)}
		return as.core.Repos.Token.Create(dbc, tok)
	})
	if err != nil {
		return nil, err
	}
	as.log.Info("user logged in", "user_id", tok.UserID)
	return tok, nil
}

func (as *authService) Logout(ctx context.Context) error {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.TokenKey == "" {
		return apierr.Auth("auth.logout", "Authentication credentials were not provided.")
	}
	return as.core.Writer.Write(ctx, "auth.logout", func(dbc dbctx.Context) error {
		return as.core.Repos.Token.Delete(dbc, rd.TokenKey)
	})
}

func (as *authService) SetContextFromToken(ctx context.Context, key string) (context.Context, error) {
	const op = "auth.token"
	key = strings.TrimSpace(key)
	if key == "" {
		return ctx, apierr.Auth(op, "Authentication credentials were not provided.")
	}
	dbc := read(ctx)
	tok, err := as.core.Repos.Token.Get(dbc, key)
	if err != nil {
		return ctx, err
	}
	if tok == nil {
		return ctx, apierr.Auth(op, "Invalid token.")
	}
	if !tok.ExpiresAt.After(as.core.now()) {
		return ctx, apierr.Auth(op, "Token has expired.")
	}
	u, err := as.core.Repos.User.Get(dbc, tok.UserID)
	if apierr.IsCode(err, apierr.CodeNotFound) || (err == nil && !u.IsActive) {
		return ctx, apierr.Auth(op, "User inactive or deleted.")
	}
	if err != nil {
		return ctx, err
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{
		UserID:      u.ID,
		Username:    u.Username,
		IsSuperuser: u.IsSuperuser,
		TokenKey:    tok.Key,
	}), nil
}
