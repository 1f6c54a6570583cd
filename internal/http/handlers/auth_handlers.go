package handlers

import (
	"errors"
	"net/http"

	"github.com/rogerio-castellano/fleet-maintenance/internal/auth"
	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var validate = ledger.NewValidator()

func (s *Server) unauthorized(w http.ResponseWriter) {
	s.respond(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
}

// issueTokens signs an access token for user and stores a fresh refresh token.
func (s *Server) issueTokens(r *http.Request, user models.User) (LoginResult, error) {
	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		return LoginResult{}, err
	}
	refresh, err := auth.NewRefreshToken()
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.refresh.Save(r.Context(), refresh, user.Username, s.refreshTTL); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Token:        token,
		RefreshToken: refresh,
		ExpiresIn:    int(s.tokens.TTL().Seconds()),
	}, nil
}

// LoginHandler godoc
// @Summary Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body CredentialsRequest true "username and password"
// @Success 200 {object} LoginResult
// @Failure 400 {object} ErrorResponse "Invalid input"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /login [post]
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var credentials CredentialsRequest
	if err := readJSON(w, r, &credentials); err != nil {
		s.badRequest(w, "invalid input")
		return
	}

	user, err := s.users.GetByUsername(r.Context(), credentials.Username)
	if err != nil {
		if !errors.Is(err, repo.ErrUserNotFound) {
			s.writeError(w, r, err)
			return
		}
		s.unauthorized(w)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(credentials.Password)) != nil {
		s.log.Info("failed login", zap.String("username", credentials.Username))
		s.unauthorized(w)
		return
	}

	result, err := s.issueTokens(r, user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}

// RefreshHandler godoc
// @Summary Exchange a refresh token for a new token pair
// @Description The presented refresh token is revoked.
// @Tags auth
// @Accept json
// @Produce json
// @Param token body RefreshRequest true "Refresh token"
// @Success 200 {object} LoginResult
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /refresh [post]
func (s *Server) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := readJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		s.badRequest(w, "invalid input")
		return
	}

	username, err := s.refresh.Lookup(r.Context(), req.RefreshToken)
	if err != nil {
		if !errors.Is(err, auth.ErrRefreshTokenNotFound) {
			s.writeError(w, r, err)
			return
		}
		s.unauthorized(w)
		return
	}
	user, err := s.users.GetByUsername(r.Context(), username)
	if err != nil {
		s.unauthorized(w)
		return
	}
	if err := s.refresh.Revoke(r.Context(), req.RefreshToken); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.issueTokens(r, user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}

// LogoutHandler godoc
// @Summary Revoke a refresh token
// @Tags auth
// @Accept json
// @Param token body RefreshRequest true "Refresh token"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Router /logout [post]
// @Security BearerAuth
func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := readJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		s.badRequest(w, "invalid input")
		return
	}
	if err := s.refresh.Revoke(r.Context(), req.RefreshToken); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterAsAdminHandler godoc
// @Summary Create user with custom role
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param user body RegisterAsAdminRequest true "User to create with role"
// @Success 201 {object} UserResponse
// @Failure 400 {object} ErrorResponse "Invalid input"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 409 {object} ErrorResponse "User exists"
// @Router /admin/users [post]
func (s *Server) RegisterAsAdminHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterAsAdminRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, "invalid request")
		return
	}
	if err := ledger.ValidateStruct(validate, req); err != nil {
		s.writeError(w, r, err)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.users.CreateUser(r.Context(), models.User{
		Username:     req.Username,
		PasswordHash: string(hashedPassword),
		Role:         req.Role,
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicatedValueUnique) {
			s.respond(w, http.StatusConflict, ErrorResponse{Error: "username already exists"})
			return
		}
		s.writeError(w, r, err)
		return
	}

	s.log.Info("user created", zap.String("username", user.Username), zap.String("role", user.Role), zap.String("by", actor(r)))
	s.respond(w, http.StatusCreated, UserResponse{ID: user.ID, Username: user.Username, Role: user.Role})
}
