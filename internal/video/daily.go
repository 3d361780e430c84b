// Package video provisions private Daily.co rooms and meeting tokens
// for telehealth consultations.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultDailyEndpoint = "https://api.daily.co/v1"

var ErrRoomExists = errors.New("room already exists")

type Room struct {
	Name string
	URL  string
}

type DailyClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewDailyClient returns nil when no API key is configured; callers
// treat a nil client as video disabled.
func NewDailyClient(apiKey, endpoint string) *DailyClient {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultDailyEndpoint
	}
	return &DailyClient{
		apiKey:     apiKey,
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: 8 * time.Second},
	}
}

type dailyRoomProperties struct {
	Exp               int64 `json:"exp,omitempty"`
	MaxParticipants   int   `json:"max_participants,omitempty"`
	EnableChat        bool  `json:"enable_chat"`
	EnableScreenshare bool  `json:"enable_screenshare"`
	EjectAtRoomExp    bool  `json:"eject_at_room_exp"`
}

type dailyCreateRoomRequest struct {
	Name       string              `json:"name"`
	Privacy    string              `json:"privacy"`
	Properties dailyRoomProperties `json:"properties"`
}

type dailyRoomResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// CreateRoom creates a private two-party room that expires at the given
// time. Returns ErrRoomExists when the name is already taken.
func (c *DailyClient) CreateRoom(ctx context.Context, name string, expiresAt time.Time) (Room, error) {
	if c == nil {
		return Room{}, errors.New("daily client is nil")
	}

	payload := dailyCreateRoomRequest{
		Name:    name,
		Privacy: "private",
		Properties: dailyRoomProperties{
			Exp:               expiresAt.Unix(),
			MaxParticipants:   2,
			EnableChat:        true,
			EnableScreenshare: true,
			EjectAtRoomExp:    true,
		},
	}

	var out dailyRoomResponse
	status, err := c.do(ctx, http.MethodPost, "/rooms", payload, &out)
	if err != nil {
		return Room{}, err
	}
	if status == http.StatusConflict {
		return Room{}, ErrRoomExists
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return Room{}, fmt.Errorf("daily create room failed: status=%d", status)
	}
	return Room{Name: out.Name, URL: out.URL}, nil
}

func (c *DailyClient) GetRoom(ctx context.Context, name string) (Room, error) {
	if c == nil {
		return Room{}, errors.New("daily client is nil")
	}

	var out dailyRoomResponse
	status, err := c.do(ctx, http.MethodGet, "/rooms/"+name, nil, &out)
	if err != nil {
		return Room{}, err
	}
	if status != http.StatusOK {
		return Room{}, fmt.Errorf("daily get room failed: status=%d", status)
	}
	return Room{Name: out.Name, URL: out.URL}, nil
}

type dailyTokenProperties struct {
	RoomName string `json:"room_name"`
	UserName string `json:"user_name,omitempty"`
	IsOwner  bool   `json:"is_owner"`
	Exp      int64  `json:"exp,omitempty"`
}

type dailyCreateTokenRequest struct {
	Properties dailyTokenProperties `json:"properties"`
}

type dailyTokenResponse struct {
	Token string `json:"token"`
}

// CreateMeetingToken mints a short-lived token scoped to one room. The
// owner flag grants the doctor host controls.
func (c *DailyClient) CreateMeetingToken(ctx context.Context, roomName, userName string, isOwner bool, expiresAt time.Time) (string, error) {
	if c == nil {
		return "", errors.New("daily client is nil")
	}

	payload := dailyCreateTokenRequest{
		Properties: dailyTokenProperties{
			RoomName: roomName,
			UserName: userName,
			IsOwner:  isOwner,
			Exp:      expiresAt.Unix(),
		},
	}

	var out dailyTokenResponse
	status, err := c.do(ctx, http.MethodPost, "/meeting-tokens", payload, &out)
	if err != nil {
		return "", err
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return "", fmt.Errorf("daily create token failed: status=%d", status)
	}
	if strings.TrimSpace(out.Token) == "" {
		return "", errors.New("daily response missing token")
	}
	return out.Token, nil
}

// DeleteRoom removes a room; deleting an unknown room is not an error.
func (c *DailyClient) DeleteRoom(ctx context.Context, name string) error {
	if c == nil {
		return errors.New("daily client is nil")
	}

	status, err := c.do(ctx, http.MethodDelete, "/rooms/"+name, nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return fmt.Errorf("daily delete room failed: status=%d", status)
	}
	return nil
}

func (c *DailyClient) do(ctx context.Context, method, path string, payload, out interface{}) (int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("daily marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return 0, fmt.Errorf("daily create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	if payload != nil {
		req.Header.Set("content-type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("daily request failed: %w", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("daily decode response: %w", err)
		}
		return resp.StatusCode, nil
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}
