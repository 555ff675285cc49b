package fixtures

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicebridge/internal/media"
	"voicebridge/pkg/types"
)

// FakeBackend is an in-memory stand-in for the learning platform's REST
// API. It enforces the same workflow rules the real backend does (one
// pending request per student/educator pair, rooms created only on
// accept, busy derived from room ownership) and counts every call so
// tests can assert how often a client hit each endpoint.
type FakeBackend struct {
	mu sync.Mutex

	gate      types.WeekendGate
	users     map[string]types.Identity
	requests  map[string]*types.CallRequest
	rooms     map[string]*fakeRoom
	calls     map[string]int
	failNext  map[string]plannedFailure
	requestIn []string // creation order for stable listings

	// TokenAppID/TokenSecret enable the optional token endpoint. Left
	// empty, POST /voice-room/token answers 404 like a backend that
	// predates it.
	TokenAppID  string
	TokenSecret string
}

type fakeRoom struct {
	room         types.VoiceRoom
	participants []types.Participant
}

type plannedFailure struct {
	status  int
	message string
}

// NewFakeBackend returns a fake with the call window open.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		gate:     types.WeekendGate{Open: true, Message: "Voice rooms are open"},
		users:    make(map[string]types.Identity),
		requests: make(map[string]*types.CallRequest),
		rooms:    make(map[string]*fakeRoom),
		calls:    make(map[string]int),
		failNext: make(map[string]plannedFailure),
	}
}

// AddUser registers a directory entry. Educators become callable;
// students become resolvable to display names.
func (f *FakeBackend) AddUser(id types.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id.UserID] = id
}

// SetGate replaces the weekend gate returned to clients.
func (f *FakeBackend) SetGate(open bool, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = types.WeekendGate{Open: open, Message: message}
}

// Expire flips a pending request to expired, simulating the backend's
// hourly sweep.
func (f *FakeBackend) Expire(requestID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req, ok := f.requests[requestID]; ok && req.Status == types.RequestStatusPending {
		req.Status = types.RequestStatusExpired
	}
}

// Request returns a copy of the stored request, or nil.
func (f *FakeBackend) Request(requestID string) *types.CallRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[requestID]
	if !ok {
		return nil
	}
	cp := *req
	return &cp
}

// Room returns a copy of the stored room, or nil.
func (f *FakeBackend) Room(roomID string) *types.VoiceRoom {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	if !ok {
		return nil
	}
	cp := r.room
	return &cp
}

// Calls returns how many times an endpoint was hit. Keys look like
// "GET /voice-room/live".
func (f *FakeBackend) Calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// TotalCalls returns the number of requests across all endpoints.
func (f *FakeBackend) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// FailNext makes the next call to the keyed endpoint answer with the
// given status, then restores normal behavior.
func (f *FakeBackend) FailNext(key string, status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[key] = plannedFailure{status: status, message: message}
}

// ServeHTTP routes the voice-room API surface.
func (f *FakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := f.routeKey(r)

	f.mu.Lock()
	f.calls[key]++
	if fail, ok := f.failNext[key]; ok {
		delete(f.failNext, key)
		f.mu.Unlock()
		writeError(w, fail.status, fail.message)
		return
	}
	f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/voice-room/request":
		f.handleCreateRequest(w, r)
	case r.Method == http.MethodGet && path == "/voice-room/my-requests":
		f.handleMyRequests(w, r)
	case r.Method == http.MethodGet && path == "/voice-room/requests":
		f.handlePendingRequests(w, r)
	case r.Method == http.MethodPut && strings.HasPrefix(path, "/voice-room/request/"):
		f.handleActOnRequest(w, r, strings.TrimPrefix(path, "/voice-room/request/"))
	case r.Method == http.MethodPost && path == "/voice-room/start":
		f.handleStartRoom(w, r)
	case r.Method == http.MethodGet && path == "/voice-room/live":
		f.handleLive(w)
	case r.Method == http.MethodGet && path == "/voice-room/educators":
		f.handleEducators(w)
	case r.Method == http.MethodGet && path == "/voice-room/admin/active":
		f.handleActiveRooms(w)
	case r.Method == http.MethodPost && strings.HasPrefix(path, "/voice-room/join/"):
		f.handleJoin(w, r, strings.TrimPrefix(path, "/voice-room/join/"))
	case r.Method == http.MethodPut && strings.HasPrefix(path, "/voice-room/admin/") && strings.HasSuffix(path, "/end"):
		roomID := strings.TrimSuffix(strings.TrimPrefix(path, "/voice-room/admin/"), "/end")
		f.handleEnd(w, roomID)
	case r.Method == http.MethodPut && strings.HasPrefix(path, "/voice-room/") && strings.HasSuffix(path, "/end"):
		roomID := strings.TrimSuffix(strings.TrimPrefix(path, "/voice-room/"), "/end")
		f.handleEnd(w, roomID)
	case r.Method == http.MethodGet && path == "/voice-room/weekend-status":
		f.handleWeekendStatus(w)
	case r.Method == http.MethodPost && path == "/voice-room/token":
		f.handleToken(w, r)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// routeKey collapses id-bearing paths so counters group by endpoint.
func (f *FakeBackend) routeKey(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/voice-room/request/"):
		path = "/voice-room/request/{id}"
	case strings.HasPrefix(path, "/voice-room/join/"):
		path = "/voice-room/join/{id}"
	case strings.HasPrefix(path, "/voice-room/admin/") && strings.HasSuffix(path, "/end"):
		path = "/voice-room/admin/{id}/end"
	case strings.HasPrefix(path, "/voice-room/") && strings.HasSuffix(path, "/end"):
		path = "/voice-room/{id}/end"
	}
	return r.Method + " " + path
}

func (f *FakeBackend) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EducatorID string `json:"educator_id"`
		Message    string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	studentID := r.Header.Get("X-User-ID")

	f.mu.Lock()
	defer f.mu.Unlock()

	educator, ok := f.users[body.EducatorID]
	if !ok || educator.Role != types.RoleEducator {
		writeError(w, http.StatusNotFound, "educator not found")
		return
	}
	for _, req := range f.requests {
		if req.StudentID == studentID && req.EducatorID == body.EducatorID && req.Status == types.RequestStatusPending {
			writeError(w, http.StatusConflict, "you already have a pending request with this educator")
			return
		}
	}

	req := &types.CallRequest{
		ID:           uuid.New().String(),
		StudentID:    studentID,
		StudentName:  f.users[studentID].Name,
		EducatorID:   educator.UserID,
		EducatorName: educator.Name,
		Message:      body.Message,
		Status:       types.RequestStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	f.requests[req.ID] = req
	f.requestIn = append(f.requestIn, req.ID)

	writeJSON(w, http.StatusCreated, map[string]interface{}{"request": req})
}

func (f *FakeBackend) handleMyRequests(w http.ResponseWriter, r *http.Request) {
	studentID := r.Header.Get("X-User-ID")

	f.mu.Lock()
	defer f.mu.Unlock()

	out := []*types.CallRequest{}
	for _, id := range f.requestIn {
		req := f.requests[id]
		if req.StudentID == studentID {
			cp := *req
			out = append(out, &cp)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requests": out})
}

func (f *FakeBackend) handlePendingRequests(w http.ResponseWriter, r *http.Request) {
	educatorID := r.Header.Get("X-User-ID")

	f.mu.Lock()
	defer f.mu.Unlock()

	out := []*types.CallRequest{}
	for _, id := range f.requestIn {
		req := f.requests[id]
		if req.EducatorID == educatorID && req.Status == types.RequestStatusPending {
			cp := *req
			out = append(out, &cp)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requests": out})
}

func (f *FakeBackend) handleActOnRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[requestID]
	if !ok {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	if req.Status != types.RequestStatusPending {
		writeError(w, http.StatusConflict, fmt.Sprintf("request is %s", req.Status))
		return
	}

	switch body.Action {
	case "accept":
		room := f.createRoomLocked(req.EducatorID, fmt.Sprintf("Doubt session with %s", req.StudentName))
		req.Status = types.RequestStatusAccepted
		req.RoomID = room.room.RoomID
		writeJSON(w, http.StatusOK, map[string]string{"room_id": room.room.RoomID})
	case "reject":
		req.Status = types.RequestStatusRejected
		writeJSON(w, http.StatusOK, map[string]string{"room_id": ""})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (f *FakeBackend) handleStartRoom(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	room := f.createRoomLocked(r.Header.Get("X-User-ID"), body.Title)
	writeJSON(w, http.StatusCreated, map[string]string{"room_id": room.room.RoomID})
}

// createRoomLocked registers an active room owned by the educator.
func (f *FakeBackend) createRoomLocked(educatorID, title string) *fakeRoom {
	room := &fakeRoom{
		room: types.VoiceRoom{
			RoomID:       uuid.New().String(),
			EducatorID:   educatorID,
			EducatorName: f.users[educatorID].Name,
			Title:        title,
			Status:       types.RoomStatusActive,
			StartedAt:    time.Now().UTC(),
		},
	}
	f.rooms[room.room.RoomID] = room
	return room
}

func (f *FakeBackend) handleLive(w http.ResponseWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := types.LiveSnapshot{Rooms: []*types.VoiceRoom{}, BusyEducators: []string{}}
	for _, r := range f.rooms {
		if r.room.Status != types.RoomStatusActive {
			continue
		}
		cp := r.room
		cp.ParticipantCount = len(r.participants)
		snapshot.Rooms = append(snapshot.Rooms, &cp)
		snapshot.BusyEducators = append(snapshot.BusyEducators, r.room.EducatorID)
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (f *FakeBackend) handleEducators(w http.ResponseWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()

	busy := make(map[string]bool)
	for _, r := range f.rooms {
		if r.room.Status == types.RoomStatusActive {
			busy[r.room.EducatorID] = true
		}
	}

	out := []*types.Educator{}
	for _, user := range f.users {
		if user.Role != types.RoleEducator {
			continue
		}
		out = append(out, &types.Educator{ID: user.UserID, Name: user.Name, Busy: busy[user.UserID]})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"educators": out})
}

func (f *FakeBackend) handleActiveRooms(w http.ResponseWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := []*types.ActiveRoom{}
	for _, r := range f.rooms {
		if r.room.Status != types.RoomStatusActive {
			continue
		}
		cp := r.room
		cp.ParticipantCount = len(r.participants)
		out = append(out, &types.ActiveRoom{
			VoiceRoom:       cp,
			Participants:    append([]types.Participant{}, r.participants...),
			CurrentDuration: int64(time.Since(r.room.StartedAt).Seconds()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": out})
}

func (f *FakeBackend) handleJoin(w http.ResponseWriter, r *http.Request, roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	room, ok := f.rooms[roomID]
	if !ok || room.room.Status != types.RoomStatusActive {
		writeError(w, http.StatusNotFound, "room not found or not active")
		return
	}

	userID := r.Header.Get("X-User-ID")
	for _, p := range room.participants {
		if p.UserID == userID {
			writeJSON(w, http.StatusOK, map[string]string{"status": "already joined"})
			return
		}
	}
	room.participants = append(room.participants, types.Participant{
		UserID:   userID,
		Name:     f.users[userID].Name,
		Role:     r.Header.Get("X-User-Role"),
		JoinedAt: time.Now().UTC(),
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

func (f *FakeBackend) handleEnd(w http.ResponseWriter, roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	room, ok := f.rooms[roomID]
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if room.room.Status == types.RoomStatusActive {
		now := time.Now().UTC()
		room.room.Status = types.RoomStatusCompleted
		room.room.EndedAt = &now
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

func (f *FakeBackend) handleWeekendStatus(w http.ResponseWriter) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, gate)
}

func (f *FakeBackend) handleToken(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	appID, secret := f.TokenAppID, f.TokenSecret
	f.mu.Unlock()

	if appID == "" || secret == "" {
		writeError(w, http.StatusNotFound, "token issuance not supported")
		return
	}

	var body struct {
		RoomID string `json:"room_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RoomID == "" {
		writeError(w, http.StatusBadRequest, "room_id is required")
		return
	}

	identity := types.Identity{
		UserID: r.Header.Get("X-User-ID"),
		Role:   r.Header.Get("X-User-Role"),
	}
	token, err := media.MintToken(appID, secret, body.RoomID, identity, time.Hour)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
