package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"smart-locker-backend/config"
	"smart-locker-backend/internal/db"
	"smart-locker-backend/internal/hardware"
	"smart-locker-backend/internal/locker"
	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, server config.ServerConfig) *gin.Engine {
	t.Helper()
	dsn := fmt.Sprintf("file:api_%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))

	cfg := config.Default()
	cfg.Hardware.FleetSize = 4
	cfg.Hardware.DirectLockers = 4
	layout, err := hardware.DefaultLayout(cfg.Hardware)
	require.NoError(t, err)
	require.NoError(t, db.Seed(context.Background(), gdb, locker.SeedLockers(layout), model.DeliveryUser{Name: "Admin", PINCode: "1234"}))

	router, err := hardware.Open(cfg.Hardware, layout, quiet, hardware.Drivers{})
	require.NoError(t, err)
	svc := locker.NewService(store.NewGormStore(gdb), router, cfg.Codes, quiet)

	if server.Port == 0 {
		server = cfg.Server
	}
	server.RateLimitPerSec, server.RateLimitBurst = 1000, 1000
	return NewRouter(svc, server, quiet)
}

func request(r *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

var courier = map[string]string{DeliveryPINHeader: "1234"}

func TestDepositAndPickup(t *testing.T) {
	r := newTestServer(t, config.ServerConfig{})

	w := request(r, http.MethodPost, "/api/lockers/2/deposit", nil, courier)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dep := decode(t, w)
	assert.Equal(t, true, dep["success"])
	assert.Equal(t, float64(2), dep["locker_id"])
	code := dep["code"].(string)
	assert.Len(t, code, 6)

	w = request(r, http.MethodPost, "/api/lockers/2/deposit", nil, courier)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "LOCKER_OCCUPIED", decode(t, w)["code"])

	w = request(r, http.MethodPost, "/api/pickup", gin.H{"code": code}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true,"locker_id":2}`, w.Body.String())

	w = request(r, http.MethodPost, "/api/pickup", gin.H{"code": code}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INVALID_CODE", decode(t, w)["code"])
}

func TestDeliveryPIN(t *testing.T) {
	r := newTestServer(t, config.ServerConfig{})

	w := request(r, http.MethodPost, "/api/lockers/1/deposit", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(r, http.MethodPost, "/api/lockers/1/deposit", nil, map[string]string{DeliveryPINHeader: "9999"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(r, http.MethodPost, "/api/delivery/login", gin.H{"pin": "1234"}, nil)
	assert.JSONEq(t, `{"success":true,"name":"Admin"}`, w.Body.String())

	w = request(r, http.MethodPost, "/api/delivery/login", gin.H{"pin": "0000"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(r, http.MethodPost, "/api/delivery/login", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, w)["code"])
}

func TestDeliveryPINDisabled(t *testing.T) {
	cfg := config.Default().Server
	off := false
	cfg.RequireDeliveryPIN = &off
	r := newTestServer(t, cfg)

	w := request(r, http.MethodPost, "/api/lockers/1/deposit", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusAndSimulatorClose(t *testing.T) {
	r := newTestServer(t, config.ServerConfig{})
	request(r, http.MethodPost, "/api/lockers/3/deposit", nil, courier)

	w := request(r, http.MethodGet, "/api/status", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Success  bool                  `json:"success"`
		Lockers  []locker.LockerStatus `json:"lockers"`
		Hardware locker.HardwareStatus `json:"hardware"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Success)
	require.Len(t, status.Lockers, 4)
	assert.Equal(t, locker.LockerStatus{ID: 3, Occupied: true, DoorClosed: false}, status.Lockers[2])
	assert.True(t, status.Hardware.Simulated)

	w = request(r, http.MethodPost, "/api/simulator/lockers/3/close", nil, courier)
	require.Equal(t, http.StatusOK, w.Code)

	w = request(r, http.MethodGet, "/api/status", nil, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, locker.LockerStatus{ID: 3, Occupied: true, DoorClosed: true}, status.Lockers[2])

	w = request(r, http.MethodGet, "/health", nil, nil)
	assert.JSONEq(t, `{"status":"ok","hardware":{"simulated":true}}`, w.Body.String())
}

func TestReconfigureAndListing(t *testing.T) {
	r := newTestServer(t, config.ServerConfig{})

	w := request(r, http.MethodGet, "/api/lockers", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	before := w.Body.String()

	w = request(r, http.MethodPut, "/api/lockers/4/config", gin.H{
		"backend_kind": "expander", "actuator_pin": 0, "sensor_pin": 0, "special_code": "424242",
	}, courier)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "424242")

	w = request(r, http.MethodGet, "/api/lockers", nil, nil)
	assert.NotEqual(t, before, w.Body.String(), "reconfigure flushes the cached listing")
	assert.Contains(t, w.Body.String(), `"backend_kind":"expander"`)
	assert.NotContains(t, w.Body.String(), "424242")

	w = request(r, http.MethodPut, "/api/lockers/3/config", gin.H{"backend_kind": "expander", "actuator_pin": 0}, courier)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "CONFIGURATION_ERROR", decode(t, w)["code"])

	w = request(r, http.MethodPut, "/api/lockers/3/config", gin.H{"backend_kind": "direct"}, courier)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(r, http.MethodPut, "/api/lockers/abc/config", gin.H{"backend_kind": "direct", "actuator_pin": 4}, courier)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(r, http.MethodPost, "/api/pickup", gin.H{"code": "424242"}, nil)
	assert.JSONEq(t, `{"success":true,"locker_id":4}`, w.Body.String())
}

func TestPickupThrottled(t *testing.T) {
	cfg := config.Default().Server
	cfg.MaxFailedPickups = 2
	r := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		w := request(r, http.MethodPost, "/api/pickup", gin.H{"code": "000000"}, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	}
	w := request(r, http.MethodPost, "/api/pickup", gin.H{"code": "000000"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

// stubLifecycle returns a fixed error from every operation.
type stubLifecycle struct{ err error }

func (s stubLifecycle) Deposit(context.Context, int64) (*locker.DepositResult, error) {
	return nil, s.err
}
func (s stubLifecycle) Pickup(context.Context, string) (*locker.PickupResult, error) {
	return nil, s.err
}
func (s stubLifecycle) Status(context.Context) (*locker.StatusReport, error) { return nil, s.err }
func (s stubLifecycle) Reconfigure(context.Context, locker.ReconfigureRequest) (*model.Locker, error) {
	return nil, s.err
}
func (s stubLifecycle) ForceClose(context.Context, int64) error { return s.err }
func (s stubLifecycle) AuthenticateDelivery(context.Context, string) (*model.DeliveryUser, error) {
	return &model.DeliveryUser{Name: "stub"}, nil
}
func (s stubLifecycle) ListConfig(context.Context) ([]locker.LockerConfig, error) { return nil, s.err }
func (s stubLifecycle) HardwareStatus() locker.HardwareStatus { return locker.HardwareStatus{} }

func TestErrorMapping(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", locker.ErrLockerNotFound, http.StatusNotFound, "LOCKER_NOT_FOUND"},
		{"concurrent", locker.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION"},
		{"not simulated", locker.ErrNotSimulated, http.StatusBadRequest, "NOT_SIMULATED"},
		{"hardware", fmt.Errorf("deposit locker 1: %w", &hardware.HardwareError{Locker: 1, Op: "actuate", Err: errors.New("nack")}), http.StatusServiceUnavailable, "HARDWARE_ERROR"},
		{"configuration", &hardware.ConfigurationError{Reason: "pin collision"}, http.StatusUnprocessableEntity, "CONFIGURATION_ERROR"},
		{"unexpected", errors.New("disk full"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRouter(stubLifecycle{err: tc.err}, config.Default().Server, quiet)

			w := request(r, http.MethodPost, "/api/lockers/1/deposit", nil, courier)

			assert.Equal(t, tc.wantStatus, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.wantCode, body["code"])
			if tc.wantCode == "INTERNAL_ERROR" {
				assert.Equal(t, "internal error", body["error"])
			}
		})
	}
}
