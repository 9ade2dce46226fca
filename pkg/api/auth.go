// Package api exposes the platform over HTTP: JWT-authenticated REST
// routes for dispatch, queue, approvals, workflows, and fleet status.
package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/overseer-ai/overseer/pkg/config"
)

// Role scopes API permissions.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleMonitor Role = "monitor"
	RoleViewer  Role = "viewer"
)

// rolePermissions maps each role to the actions it may perform. Viewers
// get read-only surfaces; monitors additionally operate the platform;
// admins hold everything.
var rolePermissions = map[Role]map[string]bool{
	RoleAdmin: permSet("dispatch", "status", "agents", "history",
		"approvals", "workflows", "profiles"),
	RoleMonitor: permSet("dispatch", "status", "agents", "history",
		"approvals", "workflows", "profiles"),
	RoleViewer: permSet("status", "agents", "history", "profiles"),
}

func permSet(actions ...string) map[string]bool {
	set := make(map[string]bool, len(actions))
	for _, a := range actions {
		set[a] = true
	}
	return set
}

// User is one API account.
type User struct {
	Username     string `json:"username"`
	Role         Role   `json:"role"`
	DisplayName  string `json:"display_name"`
	passwordHash string
}

// ErrInvalidCredentials is returned on failed logins and bad tokens.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthManager issues and verifies HS256 JWTs and answers RBAC checks.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    map[string]*User
}

// NewAuthManager creates the manager with the three default accounts.
// Deployments override passwords by replacing the default users.
func NewAuthManager(cfg *config.ServerConfig) *AuthManager {
	m := &AuthManager{
		secret:   []byte(cfg.JWTSecret),
		tokenTTL: cfg.TokenTTL,
		users:    make(map[string]*User),
	}
	m.CreateUser("admin", "admin123", RoleAdmin, "Harness Architect")
	m.CreateUser("monitor", "monitor123", RoleMonitor, "Young Talent")
	m.CreateUser("viewer", "viewer123", RoleViewer, "Business Owner")
	return m
}

// CreateUser adds or replaces an account.
func (m *AuthManager) CreateUser(username, password string, role Role, displayName string) *User {
	if displayName == "" {
		displayName = username
	}
	user := &User{
		Username:     username,
		Role:         role,
		DisplayName:  displayName,
		passwordHash: m.hashPassword(password),
	}
	m.users[username] = user
	return user
}

// hashPassword derives the stored hash. The signing secret doubles as
// the salt, matching the legacy account format.
func (m *AuthManager) hashPassword(password string) string {
	sum := sha256.Sum256(append([]byte(password), m.secret...))
	return hex.EncodeToString(sum[:])
}

// Authenticate checks credentials and returns a signed token.
func (m *AuthManager) Authenticate(username, password string) (string, *User, error) {
	user, ok := m.users[username]
	if !ok {
		return "", nil, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(user.passwordHash), []byte(m.hashPassword(password))) != 1 {
		return "", nil, ErrInvalidCredentials
	}
	token, err := m.createToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (m *AuthManager) createToken(user *User) (string, error) {
	claims := jwt.MapClaims{
		"sub":  user.Username,
		"role": string(user.Role),
		"name": user.DisplayName,
		"exp":  time.Now().Add(m.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Claims is the verified token payload.
type Claims struct {
	Username    string
	Role        Role
	DisplayName string
}

// VerifyToken validates signature and expiry and returns the claims.
func (m *AuthManager) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	sub, _ := mapClaims["sub"].(string)
	role, _ := mapClaims["role"].(string)
	name, _ := mapClaims["name"].(string)
	if sub == "" || role == "" {
		return nil, ErrInvalidCredentials
	}
	return &Claims{Username: sub, Role: Role(role), DisplayName: name}, nil
}

// HasPermission answers whether the role may perform the action.
func (m *AuthManager) HasPermission(role Role, action string) bool {
	return rolePermissions[role][action]
}
