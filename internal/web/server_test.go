package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jacobsoderblom/krypin/internal/automation"
	"github.com/jacobsoderblom/krypin/internal/bus"
	"github.com/jacobsoderblom/krypin/internal/contract"
	"github.com/jacobsoderblom/krypin/internal/hub"
	"github.com/jacobsoderblom/krypin/internal/model"
	"github.com/jacobsoderblom/krypin/internal/storage"
)

func newTestServer(t *testing.T, tokens []string) (*Server, *hub.Hub, *storage.Memory, *bus.InMemory) {
	t.Helper()
	b := bus.NewInMemory(nil)
	t.Cleanup(func() { b.Close() })
	st := storage.NewMemory()
	engine := automation.NewEngine(automation.NewMemoryStore(), st, b, nil, nil)
	h := hub.New(b, st, engine, nil, nil)
	return NewServer("127.0.0.1:0", h, NewAuth(tokens), nil), h, st, b
}

func seedEntity(t *testing.T, st *storage.Memory) model.Entity {
	t.Helper()
	ctx := context.Background()
	device := model.Device{ID: model.NewDeviceID(), Name: "D", Adapter: "test"}
	if err := st.UpsertDevice(ctx, device); err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}
	entity := model.Entity{ID: model.NewEntityID(), DeviceID: device.ID, Name: "E", Domain: model.DomainSwitch}
	if err := st.UpsertEntity(ctx, entity); err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}
	return entity
}

func TestHealthzBypassesAuth(t *testing.T) {
	s, _, _, _ := newTestServer(t, []string{"secret"})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
}

func TestAuthRequiredWhenTokensConfigured(t *testing.T) {
	s, _, _, _ := newTestServer(t, []string{"secret-token"})
	handler := s.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/devices", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/devices", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/devices", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("bearer token = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/devices", nil)
	req.Header.Set("X-Api-Key", "secret-token")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("api key = %d, want 200", rec.Code)
	}
}

func TestAuthDisabledWithoutTokens(t *testing.T) {
	s, _, _, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/entities", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", rec.Code)
	}
}

func TestGetAndSetState(t *testing.T) {
	s, _, st, _ := newTestServer(t, nil)
	handler := s.Handler()
	entity := seedEntity(t, st)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/states/"+entity.ID.String(), nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("state before write = %d, want 404", rec.Code)
	}

	body := `{"value":true,"attributes":{"power_w":3.5}}`
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/states/"+entity.ID.String(), strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("set state = %d: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/states/"+entity.ID.String(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get state = %d", rec.Code)
	}
	var state model.EntityState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Value != true || state.Source != "anonymous" {
		t.Errorf("state = %+v", state)
	}
}

func TestSetStateAttributesSourceFromToken(t *testing.T) {
	s, _, st, _ := newTestServer(t, []string{"abcd1234"})
	handler := s.Handler()
	entity := seedEntity(t, st)

	req := httptest.NewRequest("POST", "/states/"+entity.ID.String(), strings.NewReader(`{"value":1}`))
	req.Header.Set("Authorization", "Bearer abcd1234")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("set state = %d", rec.Code)
	}

	latest, err := st.LatestEntityState(context.Background(), entity.ID)
	if err != nil {
		t.Fatalf("LatestEntityState: %v", err)
	}
	if latest.Source != "token:1234" {
		t.Errorf("source = %q, want token:1234", latest.Source)
	}
}

func TestSetStateUnknownEntityIsBadRequest(t *testing.T) {
	s, _, _, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(
		"POST", "/states/"+model.NewEntityID().String(), strings.NewReader(`{"value":1}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("set state on missing entity = %d, want 400", rec.Code)
	}
}

func TestSendCommandPublishes(t *testing.T) {
	s, _, _, b := newTestServer(t, nil)
	handler := s.Handler()
	entityID := model.NewEntityID()

	sub, err := b.Subscribe(context.Background(), contract.CommandTopic(entityID))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	body := `{"action":"set","value":{"on":true},"correlation_id":"6ba7b810-9dad-11d1-80b4-00c04fd430c8"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/command/"+entityID.String(), strings.NewReader(body)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("send command = %d: %s", rec.Code, rec.Body)
	}

	select {
	case msg := <-sub:
		cmd, err := contract.DecodeCommandSet(msg.Payload)
		if err != nil {
			t.Fatalf("DecodeCommandSet: %v", err)
		}
		if cmd.Action != "set" || cmd.CorrelationID == nil {
			t.Errorf("command = %+v", cmd)
		}
	case <-time.After(time.Second):
		t.Fatal("command not published")
	}
}

func TestAutomationEndpoints(t *testing.T) {
	s, _, st, _ := newTestServer(t, nil)
	handler := s.Handler()
	entity := seedEntity(t, st)

	create := map[string]any{
		"name":    "via api",
		"trigger": map[string]any{"type": "manual"},
		"actions": []any{
			map[string]any{"type": "set_entity_state", "entity_id": entity.ID.String(), "value": "on"},
		},
	}
	payload, _ := json.Marshal(create)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/automations", bytes.NewReader(payload)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body)
	}
	var created automation.Automation
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if !created.Enabled {
		t.Error("created automation not enabled")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/automations", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/automations/"+created.ID.String()+"/disable", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("disable = %d", rec.Code)
	}
	var disabled automation.Automation
	if err := json.Unmarshal(rec.Body.Bytes(), &disabled); err != nil {
		t.Fatalf("decode disabled: %v", err)
	}
	if disabled.Enabled {
		t.Error("automation still enabled after disable")
	}

	// An explicit test call evaluates the automation even while it is
	// disabled: a heartbeat reports a trigger mismatch, and a manual event
	// executes it.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(
		"POST", "/automations/"+created.ID.String()+"/test",
		strings.NewReader(`{"type":"heartbeat"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("test = %d: %s", rec.Code, rec.Body)
	}
	var run automation.TestRun
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Executed || run.Reason != "trigger did not match" {
		t.Errorf("run = %+v", run)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(
		"POST", "/automations/"+created.ID.String()+"/test",
		strings.NewReader(`{"type":"manual"}`)))
	var executed automation.TestRun
	if err := json.Unmarshal(rec.Body.Bytes(), &executed); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if !executed.Executed {
		t.Errorf("run = %+v", executed)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/automations/"+automation.NewID().String()+"/enable", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("enable missing = %d, want 404", rec.Code)
	}
}

func TestEventsWebSocketFirehose(t *testing.T) {
	s, _, _, b := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events?pattern=sensor.*"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server goroutine a moment to register the subscription.
	time.Sleep(50 * time.Millisecond)

	if err := b.Publish(context.Background(), "other", []byte(`{"skip":true}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Publish(context.Background(), "sensor.temp", []byte(`{"c":20}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame wsEvent
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if frame.Topic != "sensor.temp" {
		t.Errorf("topic = %q, want sensor.temp", frame.Topic)
	}
	if string(frame.Payload) != `{"c":20}` {
		t.Errorf("payload = %s", frame.Payload)
	}
}
