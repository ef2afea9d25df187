package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/beatbus/room-sync/internal/tasks"
)

// PlaylistHandler delivers a room's played songs. Email delivery is logged;
// SMS goes through a textbelt-compatible gateway.
type PlaylistHandler struct {
	gatewayURL string
	gatewayKey string
	httpClient *http.Client
	log        *logrus.Entry
}

func NewPlaylistHandler(gatewayURL, gatewayKey string) *PlaylistHandler {
	return &PlaylistHandler{
		gatewayURL: gatewayURL,
		gatewayKey: gatewayKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        logrus.WithField("component", "playlist"),
	}
}

func (h *PlaylistHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p tasks.PlaylistSendPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.Email == "" && p.Phone == "" {
		return fmt.Errorf("no recipient: %w", asynq.SkipRetry)
	}

	body := FormatPlaylist(p)
	if p.Email != "" {
		h.log.WithFields(logrus.Fields{"room": p.RoomID, "email": p.Email, "songs": len(p.Songs)}).
			Infof("Playlist email:\n%s", body)
	}
	if p.Phone != "" {
		if err := h.sendSMS(ctx, p.Phone, body); err != nil {
			return err
		}
		h.log.WithFields(logrus.Fields{"room": p.RoomID, "songs": len(p.Songs)}).Info("Playlist sent by SMS")
	}
	return nil
}

// FormatPlaylist renders the songs as numbered lines.
func FormatPlaylist(p tasks.PlaylistSendPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Songs played in %s:\n", p.RoomName)
	if len(p.Songs) == 0 {
		b.WriteString("(none)\n")
	}
	for i, s := range p.Songs {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, s.Title, s.Artist)
	}
	return b.String()
}

type gatewayResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (h *PlaylistHandler) sendSMS(ctx context.Context, phone, message string) error {
	if h.gatewayKey == "" {
		return fmt.Errorf("sms gateway key not configured: %w", asynq.SkipRetry)
	}
	form := url.Values{}
	form.Set("phone", phone)
	form.Set("message", message)
	form.Set("key", h.gatewayKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.gatewayURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send sms: %w", err)
	}
	defer resp.Body.Close()

	var result gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode sms response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !result.Success {
		return fmt.Errorf("sms gateway rejected message: %s", result.Error)
	}
	return nil
}
