package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chat-backend/pkg/api"
)

const passcodeHeader = "X-Passcode"

// PasscodeMiddleware gates requests behind a shared passcode carried in the
// X-Passcode header. An empty passcode disables the check.
func PasscodeMiddleware(passcode string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if passcode != "" && r.Header.Get(passcodeHeader) != passcode {
				http.Error(w, "invalid passcode", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthService lets the UI validate a passcode before storing it client-side.
type AuthService struct {
	passcode string
}

func NewAuthService(passcode string) *AuthService {
	return &AuthService{passcode: passcode}
}

func (s *AuthService) AddRoutes(r chi.Router) {
	r.Post("/auth/login", RestHandler(s.Login))
}

func (s *AuthService) Login(r *http.Request) (any, error) {
	req, err := ParseRequest[api.LoginRequest](r)
	if err != nil {
		return nil, err
	}
	if s.passcode != "" && req.Passcode != s.passcode {
		return nil, CodedErrorf(http.StatusUnauthorized, "invalid passcode")
	}
	return nil, nil
}
