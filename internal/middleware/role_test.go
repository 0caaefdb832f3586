package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/familyshare/familyshare/internal/auth"
	"github.com/familyshare/familyshare/internal/model"
)

func TestRequireRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		authCtx    *model.AuthContext
		wantStatus int
	}{
		{"moderator", &model.AuthContext{UserID: "m1", Role: model.RoleModerator}, http.StatusOK},
		{"member", &model.AuthContext{UserID: "u1"}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/moderation/alerts", nil)
			if tt.authCtx != nil {
				req = req.WithContext(auth.WithIdentity(req.Context(), tt.authCtx))
			}
			rec := httptest.NewRecorder()
			RequireRole(model.RoleModerator)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
