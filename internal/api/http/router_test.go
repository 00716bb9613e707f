package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/telemed/internal/config"
	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/internal/relay"
	"github.com/immxrtalbeast/telemed/internal/repository"
	"github.com/immxrtalbeast/telemed/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	router *gin.Engine
	hub    *relay.Hub
	users  *repository.InMemoryUserRepository
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	queueRepo := repository.NewInMemoryQueueRepository()
	userRepo := repository.NewInMemoryUserRepository()
	consultRepo := repository.NewInMemoryConsultationRepository()

	hub := relay.NewHub(config.RelayConfig{SendBuffer: 16}, log)
	t.Cleanup(hub.Close)

	users := service.NewUserService(userRepo, log)
	coord := service.NewCoordinator(queueRepo, userRepo, consultRepo, hub, log)
	queue := service.NewQueueService(queueRepo, userRepo, coord, log)

	router := SetupRouter(config.HTTPConfig{AllowOrigins: []string{"http://localhost:3000"}}, Controllers{
		Users:         NewUserController(users),
		Queue:         NewQueueController(queue),
		Consultations: NewConsultationController(coord),
		Relay:         NewRelayController(hub, users, log),
	})
	return &testAPI{router: router, hub: hub, users: userRepo}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var res map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	}
	return w.Code, res
}

func (a *testAPI) createUser(t *testing.T, name string, role domain.Role) string {
	t.Helper()
	code, res := a.do(t, http.MethodPost, "/api/users", gin.H{"name": name, "role": role})
	require.Equal(t, http.StatusCreated, code)
	return res["user"].(map[string]any)["id"].(string)
}

func (a *testAPI) onlineDoctor(t *testing.T, name string) string {
	t.Helper()
	id := a.createUser(t, name, domain.RoleDoctor)
	code, _ := a.do(t, http.MethodPut, "/api/users/"+id+"/status", gin.H{"status": "online"})
	require.Equal(t, http.StatusOK, code)
	return id
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	code, res := api.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", res["status"])
}

func TestUsers(t *testing.T) {
	api := newTestAPI(t)

	code, _ := api.do(t, http.MethodPost, "/api/users", gin.H{"name": "x", "role": "nurse"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(t, http.MethodPost, "/api/users", gin.H{"role": "doctor"})
	assert.Equal(t, http.StatusBadRequest, code)

	doc := api.createUser(t, "Dr. Ana", domain.RoleDoctor)
	code, res := api.do(t, http.MethodGet, "/api/users/"+doc, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "offline", res["user"].(map[string]any)["status"])

	code, res = api.do(t, http.MethodGet, "/api/doctors/available", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, res["doctors"])

	code, _ = api.do(t, http.MethodPut, "/api/users/"+doc+"/status", gin.H{"status": "busy"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(t, http.MethodPut, "/api/users/"+doc+"/status", gin.H{"status": "online"})
	require.Equal(t, http.StatusOK, code)
	_, res = api.do(t, http.MethodGet, "/api/doctors/available", nil)
	assert.Len(t, res["doctors"], 1)

	code, _ = api.do(t, http.MethodGet, "/api/users/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestQueueFlow(t *testing.T) {
	api := newTestAPI(t)
	p1 := api.createUser(t, "Paulo", domain.RolePatient)
	p2 := api.createUser(t, "Maria", domain.RolePatient)

	code, res := api.do(t, http.MethodPost, "/api/queue", gin.H{"patient_id": p1})
	require.Equal(t, http.StatusCreated, code)
	entry := res["entry"].(map[string]any)
	assert.Equal(t, "geral", entry["type"])
	assert.EqualValues(t, 1, entry["position"])
	assert.Equal(t, "waiting", entry["status"])

	code, _ = api.do(t, http.MethodPost, "/api/queue", gin.H{"patient_id": p1})
	assert.Equal(t, http.StatusConflict, code)

	code, res = api.do(t, http.MethodPost, "/api/queue", gin.H{"patient_id": p2, "type": "pediatria"})
	require.Equal(t, http.StatusCreated, code)
	assert.EqualValues(t, 2, res["entry"].(map[string]any)["position"])

	_, res = api.do(t, http.MethodGet, "/api/queue", nil)
	assert.EqualValues(t, 2, res["count"])

	_, res = api.do(t, http.MethodGet, "/api/queue/next", nil)
	assert.Equal(t, p1, res["entry"].(map[string]any)["patient_id"])

	code, _ = api.do(t, http.MethodDelete, "/api/queue/"+p1, nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, res = api.do(t, http.MethodGet, "/api/queue/"+p2, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, res["position"])

	code, _ = api.do(t, http.MethodGet, "/api/queue/"+p1, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAcceptAndFinish(t *testing.T) {
	api := newTestAPI(t)
	patient := api.createUser(t, "Paulo", domain.RolePatient)
	d1 := api.onlineDoctor(t, "Dr. Ana")
	d2 := api.onlineDoctor(t, "Dr. Bruno")

	_, res := api.do(t, http.MethodPost, "/api/queue", gin.H{"patient_id": patient})
	entryID := res["entry"].(map[string]any)["id"].(string)

	accept := gin.H{"doctor_id": d1, "patient_id": patient, "entry_id": entryID}
	code, res := api.do(t, http.MethodPost, "/api/consultations/accept", accept)
	require.Equal(t, http.StatusOK, code)
	record := res["consultation"].(map[string]any)
	recordID := record["id"].(string)
	assert.Equal(t, string(domain.NewSessionID(d1, patient, recordID)), res["session_id"])
	assert.Equal(t, "active", record["status"])

	code, res = api.do(t, http.MethodPost, "/api/consultations/accept", gin.H{"doctor_id": d2, "patient_id": patient, "entry_id": entryID})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, service.ErrEntryTaken.Error(), res["error"])

	code, _ = api.do(t, http.MethodPost, "/api/consultations/"+recordID+"/finish", gin.H{"doctor_id": d2})
	assert.Equal(t, http.StatusForbidden, code)

	code, res = api.do(t, http.MethodPost, "/api/consultations/"+recordID+"/finish", gin.H{"doctor_id": d1})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "finished", res["consultation"].(map[string]any)["status"])

	code, _ = api.do(t, http.MethodPost, "/api/consultations/"+recordID+"/finish", gin.H{"doctor_id": d1})
	assert.Equal(t, http.StatusConflict, code)

	code, res = api.do(t, http.MethodGet, "/api/consultations/"+recordID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotNil(t, res["consultation"].(map[string]any)["ended_at"])

	_, res = api.do(t, http.MethodGet, "/api/users/"+d1, nil)
	assert.Equal(t, "online", res["user"].(map[string]any)["status"])

	code, _ = api.do(t, http.MethodGet, "/api/consultations/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestReject(t *testing.T) {
	api := newTestAPI(t)
	patient := api.createUser(t, "Paulo", domain.RolePatient)
	doc := api.onlineDoctor(t, "Dr. Ana")
	_, res := api.do(t, http.MethodPost, "/api/queue", gin.H{"patient_id": patient})
	entryID := res["entry"].(map[string]any)["id"].(string)

	code, res := api.do(t, http.MethodPost, "/api/consultations/reject", gin.H{"doctor_id": doc, "patient_id": patient, "entry_id": entryID})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "rejected", res["status"])

	_, res = api.do(t, http.MethodGet, "/api/queue/"+patient, nil)
	assert.Equal(t, "waiting", res["entry"].(map[string]any)["status"])

	code, _ = api.do(t, http.MethodPost, "/api/consultations/reject", gin.H{"doctor_id": doc})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(t, http.MethodPost, "/api/consultations/accept", gin.H{"doctor_id": patient, "patient_id": patient, "entry_id": entryID})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRelayUpgrade(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.router)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"

	doc := api.onlineDoctor(t, "Dr. Ana")
	patient := api.createUser(t, "Paulo", domain.RolePatient)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?user_id=ghost&role=doctor", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?user_id="+patient+"&role=doctor", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?user_id="+doc+"&role=nurse", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL+"?user_id="+doc+"&role=doctor", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return api.hub.Online(doc) }, time.Second, 5*time.Millisecond)

	// a queue join reaches the connected doctor
	var (
		mu  sync.Mutex
		got []domain.Event
	)
	go func() {
		for {
			var ev domain.Event
			if err := ws.ReadJSON(&ev); err != nil {
				return
			}
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		}
	}()

	code, _ := api.do(t, http.MethodPost, "/api/queue", gin.H{"patient_id": patient})
	require.Equal(t, http.StatusCreated, code)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, domain.EventNewQueueEntry, got[0].Name)
	var payload domain.NewQueueEntryPayload
	require.NoError(t, got[0].Decode(&payload))
	assert.Equal(t, patient, payload.Entry.PatientID)

}
