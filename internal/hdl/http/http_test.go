package http

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/JMURv/session-core/internal/hdl/http/utils"
	"github.com/JMURv/session-core/tests/mocks"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestHandler_ClientIPKeying(t *testing.T) {
	mock := gomock.NewController(t)
	defer mock.Finish()

	seen := map[string]int{}
	ws := http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			seen[utils.ClientIP(r)]++
		},
	)

	send := func(h *Handler, remote, forwarded string) {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.RemoteAddr = remote
		req.Header.Set("X-Forwarded-For", forwarded)
		req.Header.Set("X-Real-IP", forwarded)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	t.Run("SpoofedHeadersDoNotChangeKey", func(t *testing.T) {
		clear(seen)
		h := New(mocks.NewMockAppCtrl(mock), ws, nil)
		for _, fwd := range []string{"10.9.9.0", "10.9.9.1", "10.9.9.2"} {
			send(h, "203.0.113.7:40000", fwd)
		}
		assert.Equal(t, map[string]int{"203.0.113.7": 3}, seen)
	})

	t.Run("TrustedProxyForwards", func(t *testing.T) {
		clear(seen)
		h := New(mocks.NewMockAppCtrl(mock), ws, []netip.Prefix{netip.MustParsePrefix("172.16.0.0/12")})
		send(h, "172.16.0.5:40000", "198.51.100.1")
		send(h, "172.16.0.5:40000", "198.51.100.2")
		assert.Equal(t, map[string]int{"198.51.100.1": 1, "198.51.100.2": 1}, seen)
	})
}
