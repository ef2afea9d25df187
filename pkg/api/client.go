// Package api is a client for the request/response endpoints that sit next
// to the event channel: accounts, room creation, snapshots, the queue,
// metrics and playlist export.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beatbus/room-sync/pkg/models"
)

var (
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrForbidden    = errors.New("api: forbidden")
	ErrNotFound     = errors.New("api: not found")
	ErrConflict     = errors.New("api: conflict")
)

// Error is a non-2xx answer. It matches the sentinel for its status.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: request failed with status %d: %s", e.Status, e.Message)
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	}
	return false
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewClient talks to the API rooted at baseURL, e.g. http://host:8080/api/v1.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithToken returns a copy of c that authenticates as the given user token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Login struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (c *Client) SignUp(ctx context.Context, username, password string) (*Login, error) {
	var out Login
	err := c.do(ctx, http.MethodPost, "/signUp", "", Credentials{username, password}, &out)
	return &out, err
}

func (c *Client) Login(ctx context.Context, username, password string) (*Login, error) {
	var out Login
	err := c.do(ctx, http.MethodPost, "/login", "", Credentials{username, password}, &out)
	return &out, err
}

type CreateRoomRequest struct {
	RoomName string `json:"roomName"`
	MaxUsers int    `json:"maxUsers,omitempty"`
	IsPublic bool   `json:"isPublic"`
	Lifetime int    `json:"lifetime,omitempty"`
}

type CreatedRoom struct {
	RoomID       string           `json:"roomId"`
	RoomPassword string           `json:"roomPassword"`
	HostToken    string           `json:"hostToken"`
	ExpiresAt    time.Time        `json:"expiresAt"`
	Room         models.RoomState `json:"room"`
}

// CreateRoom needs a user token.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*CreatedRoom, error) {
	var out CreatedRoom
	err := c.do(ctx, http.MethodPost, "/rooms", c.token, req, &out)
	return &out, err
}

// JoinCheck verifies the room password before opening the event channel.
// It returns a nil state when username is already in the room.
func (c *Client) JoinCheck(ctx context.Context, roomID, password, username string) (*models.RoomState, error) {
	q := url.Values{}
	q.Set("roomPassword", password)
	q.Set("username", username)

	var out models.RoomState
	status, err := c.doStatus(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"?"+q.Encode(), "", nil, &out)
	if err != nil || status == http.StatusNoContent {
		return nil, err
	}
	out.Normalize()
	return &out, nil
}

func (c *Client) Snapshot(ctx context.Context, roomID string) (*models.RoomState, error) {
	var out models.RoomState
	if err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/state", "", nil, &out); err != nil {
		return nil, err
	}
	out.Normalize()
	return &out, nil
}

func (c *Client) UpdateSettings(ctx context.Context, roomID, hostToken string, settings models.RoomSettings) (*models.RoomState, error) {
	var out models.RoomState
	if err := c.do(ctx, http.MethodPut, "/rooms/"+url.PathEscape(roomID), hostToken, settings, &out); err != nil {
		return nil, err
	}
	out.Normalize()
	return &out, nil
}

func (c *Client) DeleteRoom(ctx context.Context, roomID, hostToken string) error {
	return c.do(ctx, http.MethodDelete, "/rooms/"+url.PathEscape(roomID), hostToken, nil, nil)
}

type Playlist struct {
	NowPlaying *models.Song        `json:"nowPlaying"`
	Queue      []models.QueueItem `json:"queue"`
}

func (c *Client) Queue(ctx context.Context, roomID string) (*Playlist, error) {
	var out Playlist
	err := c.do(ctx, http.MethodGet, "/queues/"+url.PathEscape(roomID)+"/playlist", "", nil, &out)
	return &out, err
}

type AppendSongRequest struct {
	RoomPassword string `json:"roomPassword"`
	SongName     string `json:"songName"`
	ArtistName   string `json:"artistName"`
	AlbumName    string `json:"albumName,omitempty"`
	AddedBy      string `json:"addedBy"`
}

// AppendSong adds a song without an open event channel.
func (c *Client) AppendSong(ctx context.Context, roomID string, req AppendSongRequest) (*models.Song, error) {
	var out models.Song
	err := c.do(ctx, http.MethodPost, "/queues/"+url.PathEscape(roomID)+"/playlist", "", req, &out)
	return &out, err
}

func (c *Client) Reorder(ctx context.Context, roomID, hostToken string, songIDs []string) (*Playlist, error) {
	var out Playlist
	body := struct {
		NewOrder []string `json:"newOrder"`
	}{songIDs}
	err := c.do(ctx, http.MethodPut, "/queues/"+url.PathEscape(roomID)+"/playlist", hostToken, body, &out)
	return &out, err
}

type SongSummary struct {
	SongID   string `json:"songId"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	AddedBy  string `json:"addedBy"`
	Likes    int    `json:"likes"`
	Dislikes int    `json:"dislikes"`
}

type Contributor struct {
	Username string `json:"username"`
	Songs    int    `json:"songs"`
}

type Metrics struct {
	RoomID         string       `json:"roomId"`
	RoomSize       int          `json:"roomSize"`
	QueueLength    int          `json:"queueLength"`
	SongsPlayed    int          `json:"songsPlayed"`
	MostLiked      *SongSummary `json:"mostLiked"`
	MostDisliked   *SongSummary `json:"mostDisliked"`
	TopContributor *Contributor `json:"topContributor"`
}

func (c *Client) Metrics(ctx context.Context, roomID string) (*Metrics, error) {
	var out Metrics
	err := c.do(ctx, http.MethodGet, "/metrics/"+url.PathEscape(roomID), "", nil, &out)
	return &out, err
}

func (c *Client) History(ctx context.Context, roomID string) ([]models.PlayedSong, error) {
	var out struct {
		Songs []models.PlayedSong `json:"songs"`
	}
	err := c.do(ctx, http.MethodGet, "/metrics/"+url.PathEscape(roomID)+"/history", "", nil, &out)
	return out.Songs, err
}

// SendPlaylist asks the server to deliver the played songs by email, SMS or both.
func (c *Client) SendPlaylist(ctx context.Context, roomID, hostToken, email, phone string) error {
	body := struct {
		Email string `json:"email,omitempty"`
		Phone string `json:"phone,omitempty"`
	}{email, phone}
	return c.do(ctx, http.MethodPost, "/metrics/"+url.PathEscape(roomID)+"/playlist/send", hostToken, body, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	_, err := c.doStatus(ctx, method, path, token, body, out)
	return err
}

func (c *Client) doStatus(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var msg struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&msg)
		if msg.Error == "" {
			msg.Error = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, &Error{Status: resp.StatusCode, Message: msg.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}
