package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/reapbenefit/cmp-backend/internal/store"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Name  string `json:"name"`
	ID    int64  `json:"id"`
	Email string `json:"email"`
	SID   string `json:"sid"`
}

// login authenticates against the CMS and creates the local user on first
// sight. The local username is the email address.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		s.fail(w, r, badRequest("email and password are required"))
		return
	}
	if s.directory == nil {
		s.fail(w, r, errCMSUnavailable)
		return
	}

	sess, err := s.directory.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.store.UserByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		first, last := splitName(sess.FullName)
		user, err = s.store.CreateUser(r.Context(), store.NewUser{
			FirstName: first,
			LastName:  last,
			Username:  req.Email,
			Email:     req.Email,
		})
		if err == nil {
			s.logger.Info("user bootstrapped from cms", "user_id", user.ID)
		}
	}
	if err != nil {
		s.fail(w, r, fmt.Errorf("resolve local user: %w", err))
		return
	}

	JSON(w, http.StatusOK, loginResponse{
		Name:  sess.FullName,
		ID:    user.ID,
		Email: req.Email,
		SID:   sess.SID,
	})
}

// splitName takes the first word as the first name and the last word, if
// there is more than one, as the last name.
func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], parts[len(parts)-1]
}

func (s *Server) portfolio(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if cached, err := s.cache.Get(r.Context(), username); err != nil {
		s.logger.Warn("portfolio cache read failed", "username", username, "error", err)
	} else if cached != nil {
		JSON(w, http.StatusOK, cached)
		return
	}

	p, err := s.store.Portfolio(r.Context(), username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.cache.Set(r.Context(), username, p); err != nil {
		s.logger.Warn("portfolio cache write failed", "username", username, "error", err)
	}
	JSON(w, http.StatusOK, p)
}

func (s *Server) createCommunity(w http.ResponseWriter, r *http.Request) {
	var req store.NewCommunity
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.UserID <= 0 || strings.TrimSpace(req.Name) == "" {
		s.fail(w, r, badRequest("user_id and name are required"))
		return
	}

	c, err := s.store.CreateCommunity(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidateUserID(r, req.UserID)
	JSON(w, http.StatusCreated, c)
}

// invalidateUserID drops the cached portfolio of the user with userID.
func (s *Server) invalidateUserID(r *http.Request, userID int64) {
	u, err := s.store.UserByID(r.Context(), userID)
	if err != nil {
		s.logger.Warn("portfolio cache not invalidated", "user_id", userID, "error", err)
		return
	}
	if err := s.cache.Invalidate(r.Context(), u.Username); err != nil {
		s.logger.Warn("portfolio cache invalidate failed", "username", u.Username, "error", err)
	}
}

// updateUser applies a profile update and returns the fresh portfolio.
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req store.ProfileUpdate
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.UpdateUserProfile(r.Context(), username, req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.cache.Invalidate(r.Context(), username); err != nil {
		s.logger.Warn("portfolio cache invalidate failed", "username", username, "error", err)
	}

	p, err := s.store.Portfolio(r.Context(), username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, p)
}

// username resolves a CMS username from an email address.
func (s *Server) username(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		s.fail(w, r, errCMSUnavailable)
		return
	}
	profile, err := s.directory.UserProfile(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, profile.CurrentUser.Username)
}
