package api

import (
	"errors"
	"net/http"
	"strings"

	"tunitrip/internal/db"

	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"
)

var validate = validator.New()

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeStoreError(w, err, "Error fetching users")
		return
	}
	if users == nil {
		users = []db.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleUpdateUserRole(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	role, ok := db.ParseRole(body.Role)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid role provided")
		return
	}
	u, err := s.store.UpdateUserRole(r.Context(), ps.ByName("id"), role)
	if err != nil {
		writeStoreError(w, err, "Error updating user role")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.store.DeleteUser(r.Context(), ps.ByName("id")); err != nil {
		writeStoreError(w, err, "Error deleting user")
		return
	}
	// The user's trips went with the account.
	s.refresh(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var nu db.NewUser
	if err := decodeJSON(w, r, &nu); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	nu.Username = strings.TrimSpace(nu.Username)
	if role, ok := db.ParseRole(string(nu.Role)); ok {
		nu.Role = role
	}
	if err := validate.Struct(nu); err != nil {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}
	u, err := s.store.CreateUser(r.Context(), nu)
	if errors.Is(err, db.ErrConflict) {
		writeError(w, http.StatusConflict, "Username already exists")
		return
	}
	if err != nil {
		writeStoreError(w, err, "Server error during signup")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	u, err := s.store.Authenticate(r.Context(), strings.TrimSpace(body.Username), body.Password)
	if errors.Is(err, db.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		writeStoreError(w, err, "Server error during login")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
