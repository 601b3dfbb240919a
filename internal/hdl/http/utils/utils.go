package utils

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/JMURv/session-core/internal/config"
	"github.com/JMURv/session-core/internal/dto"
	"github.com/JMURv/session-core/internal/hdl"
	"github.com/JMURv/session-core/internal/hdl/validation"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

type Response struct {
	Data any `json:"data"`
}

type ErrorsResponse struct {
	Code   string   `json:"code,omitempty"`
	Errors []string `json:"errors"`
}

func SuccessResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(&Response{Data: data}); err != nil {
		zap.L().Debug("failed to encode response", zap.Error(err))
	}
}

func StatusResponse(w http.ResponseWriter, statusCode int) {
	w.WriteHeader(statusCode)
}

func ErrResponse(w http.ResponseWriter, statusCode int, err error) {
	writeErrors(w, statusCode, "", err.Error())
}

// ErrorResponse writes err through the boundary taxonomy and returns the
// status it wrote.
func ErrorResponse(w http.ResponseWriter, err error) int {
	f := hdl.Classify(err)
	writeErrors(w, f.HTTP, f.Code, f.Message)
	return f.HTTP
}

func writeErrors(w http.ResponseWriter, statusCode int, code string, msgs ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(&ErrorsResponse{Code: code, Errors: msgs}); err != nil {
		zap.L().Debug("failed to encode response", zap.Error(err))
	}
}

// ParseAndValidate decodes the JSON body into dst and validates it. On
// failure the response is already written.
func ParseAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		zap.L().Debug("failed to decode request", zap.Error(err))
		writeErrors(w, http.StatusBadRequest, "bad_request", hdl.ErrDecodeRequest.Error())
		return false
	}

	if msgs := validation.Struct(dst); len(msgs) > 0 {
		writeErrors(w, http.StatusBadRequest, "validation_failed", msgs...)
		return false
	}
	return true
}

func ParseDeviceByRequest(ctx context.Context) (dto.DeviceRequest, bool) {
	ip, ok := ctx.Value(config.IpKey).(string)
	if !ok || ip == "" {
		return dto.DeviceRequest{}, false
	}

	ua, _ := ctx.Value(config.UaKey).(string)
	return dto.DeviceRequest{IP: ip, UA: ua}, true
}

// ClientIP is the host part of RemoteAddr. Forwarding headers are applied
// upstream by the RealIP middleware, and only for trusted proxies.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	if len(header) < len(config.BearerPrefix) || !strings.EqualFold(header[:len(config.BearerPrefix)], config.BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(config.BearerPrefix):])
}
