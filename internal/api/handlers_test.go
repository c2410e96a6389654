package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentrygrid/twinctl/internal/calculate"
	"github.com/sentrygrid/twinctl/internal/eventbus"
	"github.com/sentrygrid/twinctl/internal/model"
	"github.com/sentrygrid/twinctl/internal/override"
	"github.com/sentrygrid/twinctl/internal/safety"
	"github.com/sentrygrid/twinctl/internal/systemreg"
	"github.com/sentrygrid/twinctl/internal/twin"
)

func newTestHandlers(t *testing.T) (*Handlers, *twin.MemoryStore) {
	t.Helper()
	store := twin.NewMemoryStore(nil)
	overrides := override.NewMemoryStore(nil)
	systems := systemreg.NewMemoryRegistry()
	resolver := override.NewResolver(overrides)
	engine := safety.NewEngine(nil, 50*time.Millisecond, nil)
	calc := calculate.New(store, resolver, systems, engine, eventbus.New(), nil, nil)

	return &Handlers{Store: store, Overrides: overrides, Systems: systems, Calculator: calc}, store
}

func TestPutIntentAcceptsValidRelayRequest(t *testing.T) {
	h, store := newTestHandlers(t)
	router := NewRouter(h)

	on := true
	body, _ := json.Marshal(map[string]interface{}{"type": "RELAY", "relay": &on, "requestedBy": "test"})
	req := httptest.NewRequest(http.MethodPut, "/devices/c1/relay1/intent", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	desired, err := store.FindDesiredState(context.Background(), model.DeviceId{ControllerId: "c1", ComponentId: "relay1"})
	require.NoError(t, err)
	require.NotNil(t, desired)
	assert.True(t, desired.Value.Equal(model.NewRelayValue(true)))
}

func TestPutIntentRejectsMissingRelayField(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(h)

	body, _ := json.Marshal(map[string]interface{}{"type": "RELAY", "requestedBy": "test"})
	req := httptest.NewRequest(http.MethodPut, "/devices/c1/relay1/intent", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTwinReturnsSnapshot(t *testing.T) {
	h, store := newTestHandlers(t)
	d := model.DeviceId{ControllerId: "c1", ComponentId: "relay1"}
	require.NoError(t, store.SaveDesiredState(context.Background(), model.DesiredDeviceState{Id: d, Type: model.DeviceTypeRelay, Value: model.NewRelayValue(true)}))

	router := NewRouter(h)
	req := httptest.NewRequest(http.MethodGet, "/devices/c1/relay1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap model.DeviceTwinSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotNil(t, snap.Desired)
}

func TestDeleteDeviceReturnsNoContent(t *testing.T) {
	h, store := newTestHandlers(t)
	d := model.DeviceId{ControllerId: "c1", ComponentId: "relay1"}
	require.NoError(t, store.SaveDesiredState(context.Background(), model.DesiredDeviceState{Id: d, Type: model.DeviceTypeRelay, Value: model.NewRelayValue(true)}))

	router := NewRouter(h)
	req := httptest.NewRequest(http.MethodDelete, "/devices/c1/relay1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPutOverrideAppliesAndRecalculatesDevice(t *testing.T) {
	h, store := newTestHandlers(t)
	ctx := context.Background()
	d := model.DeviceId{ControllerId: "c1", ComponentId: "relay1"}
	require.NoError(t, store.SaveUserIntent(ctx, model.UserIntent{Id: d, Type: model.DeviceTypeRelay, Value: model.NewRelayValue(true)}))
	require.NoError(t, h.Calculator.Recalculate(ctx, d, model.DeviceTypeRelay))

	router := NewRouter(h)
	off := false
	body, _ := json.Marshal(map[string]interface{}{
		"scope": "DEVICE", "type": "RELAY", "relay": &off,
		"reason": "manual override", "createdBy": "operator",
	})
	req := httptest.NewRequest(http.MethodPut, "/overrides/c1:relay1/EMERGENCY", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	desired, err := store.FindDesiredState(ctx, d)
	require.NoError(t, err)
	assert.True(t, desired.Value.Equal(model.NewRelayValue(false)))
}

func TestPostSystemThenGetSystemRoundTrip(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(h)

	body, _ := json.Marshal(map[string]interface{}{"id": "sys1", "name": "HVAC Zone 1", "deviceIds": []string{"c1:relay1"}})
	req := httptest.NewRequest(http.MethodPost, "/systems", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/systems/sys1", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestGetSystemReturnsNotFoundForUnknownId(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/systems/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
