package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JMURv/session-core/internal/auth/jwt"
	"github.com/JMURv/session-core/internal/config"
	"github.com/JMURv/session-core/internal/ctrl"
	"github.com/JMURv/session-core/internal/dto"
	"github.com/JMURv/session-core/internal/hdl/http/utils"
	"github.com/JMURv/session-core/tests/mocks"
	chi "github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAuth(t *testing.T) {
	mock := gomock.NewController(t)
	defer mock.Finish()

	mctrl := mocks.NewMockAppCtrl(mock)
	uid := uuid.New()

	tests := []struct {
		name       string
		header     string
		status     int
		expect     func()
		assertions func(t *testing.T, w *httptest.ResponseRecorder)
	}{
		{
			name:   "MissingToken",
			status: http.StatusUnauthorized,
			expect: func() {
				mctrl.EXPECT().Authenticate(gomock.Any(), "", "192.0.2.1").Return(nil, jwt.ErrMalformed)
			},
			assertions: func(t *testing.T, w *httptest.ResponseRecorder) {
				res := &utils.ErrorsResponse{}
				require.NoError(t, json.NewDecoder(w.Body).Decode(res))
				assert.Equal(t, "token_malformed", res.Code)
			},
		},
		{
			name:   "Stale",
			header: "Bearer stale",
			status: http.StatusUnauthorized,
			expect: func() {
				mctrl.EXPECT().Authenticate(gomock.Any(), "stale", "192.0.2.1").Return(nil, ctrl.ErrTokenVersionStale)
			},
			assertions: func(t *testing.T, w *httptest.ResponseRecorder) {
				res := &utils.ErrorsResponse{}
				require.NoError(t, json.NewDecoder(w.Body).Decode(res))
				assert.Equal(t, "token_version_stale", res.Code)
			},
		},
		{
			name:   "Success",
			header: "Bearer ok",
			status: http.StatusOK,
			expect: func() {
				mctrl.EXPECT().Authenticate(gomock.Any(), "ok", "192.0.2.1").Return(
					&dto.Identity{AccountID: uid, DeviceID: "d1"}, nil,
				)
			},
			assertions: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Empty(t, w.Header().Get(config.NewTokenHeader))
			},
		},
		{
			name:   "Renewed",
			header: "Bearer grace",
			status: http.StatusOK,
			expect: func() {
				mctrl.EXPECT().Authenticate(gomock.Any(), "grace", "192.0.2.1").Return(
					&dto.Identity{AccountID: uid, DeviceID: "d1", NeedsRefresh: true, NewToken: "fresh"}, nil,
				)
			},
			assertions: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Equal(t, "fresh", w.Header().Get(config.NewTokenHeader))
			},
		},
	}

	next := http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			got, ok := r.Context().Value(config.UidKey).(uuid.UUID)
			assert.True(t, ok)
			assert.Equal(t, uid, got)

			ident, ok := r.Context().Value(config.IdentityKey).(*dto.Identity)
			assert.True(t, ok)
			assert.Equal(t, "d1", ident.DeviceID)
			w.WriteHeader(http.StatusOK)
		},
	)

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				tt.expect()

				req := httptest.NewRequest(http.MethodGet, "/me", nil)
				if tt.header != "" {
					req.Header.Set("Authorization", tt.header)
				}

				w := httptest.NewRecorder()
				Auth(mctrl)(next).ServeHTTP(w, req)
				assert.Equal(t, tt.status, w.Code)
				tt.assertions(t, w)
			},
		)
	}
}

func TestDevice(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("User-Agent", "test-agent")

	w := httptest.NewRecorder()
	Device(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				d, ok := utils.ParseDeviceByRequest(r.Context())
				assert.True(t, ok)
				assert.Equal(t, "192.0.2.1", d.IP)
				assert.Equal(t, "test-agent", d.UA)
			},
		),
	).ServeHTTP(w, req.WithContext(context.Background()))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRealIP(t *testing.T) {
	proxies, err := ParseProxies([]string{"10.0.0.0/8", " 192.0.2.10 "})
	require.NoError(t, err)

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:    "UntrustedPeerIgnoresForwardedFor",
			remote:  "203.0.113.7:5000",
			headers: map[string]string{"X-Forwarded-For": "10.9.9.1"},
			want:    "203.0.113.7",
		},
		{
			name:    "UntrustedPeerIgnoresRealIP",
			remote:  "203.0.113.7:5000",
			headers: map[string]string{"X-Real-IP": "10.9.9.1", "True-Client-IP": "10.9.9.2"},
			want:    "203.0.113.7",
		},
		{
			name:    "TrustedPeerRightmostUntrustedHop",
			remote:  "10.0.0.2:5000",
			headers: map[string]string{"X-Forwarded-For": "1.1.1.1, 198.51.100.4, 10.0.0.9"},
			want:    "198.51.100.4",
		},
		{
			name:    "SingleTrustedAddress",
			remote:  "192.0.2.10:5000",
			headers: map[string]string{"X-Real-IP": "198.51.100.4"},
			want:    "198.51.100.4",
		},
		{
			name:   "TrustedPeerWithoutHeaders",
			remote: "10.0.0.2:5000",
			want:   "10.0.0.2",
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				var got string
				h := RealIP(proxies)(
					http.HandlerFunc(
						func(w http.ResponseWriter, r *http.Request) {
							got = utils.ClientIP(r)
						},
					),
				)

				req := httptest.NewRequest(http.MethodGet, "/ws", nil)
				req.RemoteAddr = tt.remote
				for k, v := range tt.headers {
					req.Header.Set(k, v)
				}
				h.ServeHTTP(httptest.NewRecorder(), req)
				assert.Equal(t, tt.want, got)
			},
		)
	}
}

func TestParseProxies(t *testing.T) {
	_, err := ParseProxies([]string{"10.0.0.0/8", "not-an-ip"})
	assert.ErrorIs(t, err, ErrBadProxy)

	proxies, err := ParseProxies(nil)
	require.NoError(t, err)
	assert.Empty(t, proxies)
}

func TestRouteOp(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Use(
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(
				func(w http.ResponseWriter, req *http.Request) {
					next.ServeHTTP(w, req)
					got = routeOp(req)
				},
			)
		},
	)
	r.Delete("/devices/{id}", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/devices/phone-1", nil))
	assert.Equal(t, "DELETE /devices/{id}", got)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, "GET unmatched", got)
}
