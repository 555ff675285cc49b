package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
	"voicebridge/internal/config"
	"voicebridge/pkg/interfaces"
	"voicebridge/pkg/types"
)

// Outbound pacing shared by all feeds of one client. Three fast feeds at
// 5s plus manual refreshes stay well under this; the limiter only bites
// when something loops a mutation.
const (
	requestsPerSecond = 10
	requestBurst      = 20
)

// Client implements the interfaces.Backend contract over HTTP. It holds
// no workflow state: every call returns the backend's current view and
// callers treat it as a stale cache refreshed by polling.
type Client struct {
	baseURL  string
	token    string
	identity types.Identity
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a backend client for one authenticated user.
func NewClient(cfg *config.ServerConfig, identity types.Identity) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.AuthToken,
		identity: identity,
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
	}
}

// do executes one request/response cycle: pacing, auth headers, JSON
// bodies both ways, and error-message extraction on non-2xx responses.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	// Identity headers let the backend scope my-requests/requests/live
	// feeds without re-parsing the bearer token on every poll tick.
	req.Header.Set("X-User-ID", c.identity.UserID)
	req.Header.Set("X-User-Role", c.identity.Role)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode backend response: %w", err)
		}
	}
	return nil
}

// decodeError extracts a human-readable message from an error body.
// Backends in the wild answer with either {"error": ...} or
// {"message": ...}; anything else degrades to the bare status.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return apiErr
	}

	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		if envelope.Error != "" {
			apiErr.Message = envelope.Error
		} else if envelope.Message != "" {
			apiErr.Message = envelope.Message
		}
	}
	return apiErr
}

// CreateRequest submits a call request to an educator.
func (c *Client) CreateRequest(ctx context.Context, educatorID, message string) (*types.CallRequest, error) {
	if educatorID == "" {
		return nil, ErrEmptyEducatorID
	}

	body := map[string]string{"educator_id": educatorID}
	if message != "" {
		body["message"] = message
	}

	var out struct {
		Request *types.CallRequest `json:"request"`
	}
	if err := c.do(ctx, http.MethodPost, "/voice-room/request", body, &out); err != nil {
		return nil, err
	}
	if out.Request == nil {
		return nil, fmt.Errorf("backend did not return the created request")
	}
	return out.Request, nil
}

// MyRequests returns the caller's own call requests.
func (c *Client) MyRequests(ctx context.Context) ([]*types.CallRequest, error) {
	var out struct {
		Requests []*types.CallRequest `json:"requests"`
	}
	if err := c.do(ctx, http.MethodGet, "/voice-room/my-requests", nil, &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

// PendingRequests returns pending requests addressed to the calling
// educator.
func (c *Client) PendingRequests(ctx context.Context) ([]*types.CallRequest, error) {
	var out struct {
		Requests []*types.CallRequest `json:"requests"`
	}
	if err := c.do(ctx, http.MethodGet, "/voice-room/requests", nil, &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

// ActOnRequest accepts or rejects a pending request. The room id in the
// accept response may be empty; callers must treat that as a failure
// rather than silently proceeding.
func (c *Client) ActOnRequest(ctx context.Context, requestID, action string) (string, error) {
	if requestID == "" {
		return "", ErrEmptyRequestID
	}
	if action != interfaces.ActionAccept && action != interfaces.ActionReject {
		return "", ErrInvalidAction
	}

	var out struct {
		RoomID string `json:"room_id"`
	}
	path := "/voice-room/request/" + requestID
	if err := c.do(ctx, http.MethodPut, path, map[string]string{"action": action}, &out); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return "", interfaces.ErrRequestNotFound
		}
		return "", err
	}
	return out.RoomID, nil
}

// StartRoom opens a room directly, bypassing the request flow.
func (c *Client) StartRoom(ctx context.Context, title string) (string, error) {
	var out struct {
		RoomID string `json:"room_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/voice-room/start", map[string]string{"title": title}, &out); err != nil {
		return "", err
	}
	if out.RoomID == "" {
		return "", fmt.Errorf("backend did not return a room id")
	}
	return out.RoomID, nil
}

// Live returns rooms visible to the calling student and the busy
// educator set.
func (c *Client) Live(ctx context.Context) (*types.LiveSnapshot, error) {
	var out types.LiveSnapshot
	if err := c.do(ctx, http.MethodGet, "/voice-room/live", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Educators returns the educator directory for the calling student.
func (c *Client) Educators(ctx context.Context) ([]*types.Educator, error) {
	var out struct {
		Educators []*types.Educator `json:"educators"`
	}
	if err := c.do(ctx, http.MethodGet, "/voice-room/educators", nil, &out); err != nil {
		return nil, err
	}
	return out.Educators, nil
}

// ActiveRooms returns every active room system-wide (admin only).
func (c *Client) ActiveRooms(ctx context.Context) ([]*types.ActiveRoom, error) {
	var out struct {
		Rooms []*types.ActiveRoom `json:"rooms"`
	}
	if err := c.do(ctx, http.MethodGet, "/voice-room/admin/active", nil, &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

// JoinRoom registers the caller as a participant of a live room.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return ErrEmptyRoomID
	}
	return roomError(c.do(ctx, http.MethodPost, "/voice-room/join/"+roomID, nil, nil))
}

// EndRoom marks a room completed with an end timestamp.
func (c *Client) EndRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return ErrEmptyRoomID
	}
	return roomError(c.do(ctx, http.MethodPut, "/voice-room/"+roomID+"/end", nil, nil))
}

// AdminEndRoom force-ends a room regardless of participant consent.
func (c *Client) AdminEndRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return ErrEmptyRoomID
	}
	return roomError(c.do(ctx, http.MethodPut, "/voice-room/admin/"+roomID+"/end", nil, nil))
}

// roomError maps a 404 on a room endpoint to the shared sentinel: the
// room ended, or never existed, between the caller's snapshot and now.
func roomError(err error) error {
	if IsStatus(err, http.StatusNotFound) {
		return interfaces.ErrRoomNotFound
	}
	return err
}

// WeekendStatus returns the server-computed call-window gate.
func (c *Client) WeekendStatus(ctx context.Context) (types.WeekendGate, error) {
	var out types.WeekendGate
	if err := c.do(ctx, http.MethodGet, "/voice-room/weekend-status", nil, &out); err != nil {
		return types.WeekendGate{}, err
	}
	return out, nil
}

// IssueToken requests a backend-minted room access token. Backends that
// predate the token endpoint answer 404, which maps to
// interfaces.ErrTokenUnsupported so callers can fall back.
func (c *Client) IssueToken(ctx context.Context, roomID string) (string, error) {
	if roomID == "" {
		return "", ErrEmptyRoomID
	}

	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/voice-room/token", map[string]string{"room_id": roomID}, &out)
	if err != nil {
		if IsStatus(err, http.StatusNotFound) || IsStatus(err, http.StatusNotImplemented) {
			return "", interfaces.ErrTokenUnsupported
		}
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("backend returned an empty room token")
	}
	return out.Token, nil
}
