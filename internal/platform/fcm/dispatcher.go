package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cleanslate-app/go-push-service/pkg/notify"
)

// DefaultSendTimeout bounds each outbound send so one hung device cannot
// stall the whole batch.
const DefaultSendTimeout = 10 * time.Second

// Config holds the dispatcher settings.
type Config struct {
	// ProjectID is the Firebase project the messages:send endpoint is
	// scoped to.
	ProjectID string
	// AndroidChannel is the notification channel id delivered to Android
	// clients.
	AndroidChannel string
	// SendTimeout is the per-device call timeout. Zero means
	// DefaultSendTimeout.
	SendTimeout time.Duration
}

// Dispatcher sends one message per device token against the FCM v1
// per-message endpoint, all tokens concurrently.
type Dispatcher struct {
	sendURL        string
	androidChannel string
	sendTimeout    time.Duration
	httpClient     *http.Client
	logger         *slog.Logger
}

func NewDispatcher(cfg Config, logger *slog.Logger) *Dispatcher {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Dispatcher{
		sendURL:        fmt.Sprintf("https://fcm.googleapis.com/v1/projects/%s/messages:send", cfg.ProjectID),
		androidChannel: cfg.AndroidChannel,
		sendTimeout:    timeout,
		httpClient:     &http.Client{},
		logger:         logger.With("component", "FCMDispatcher"),
	}
}

// WithSendURL overrides the send endpoint. Tests point it at a fake gateway.
func (d *Dispatcher) WithSendURL(u string) *Dispatcher {
	d.sendURL = u
	return d
}

// message is the FCM v1 wire format for a single send.
type message struct {
	Token        string            `json:"token"`
	Notification messageContent    `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      androidConfig     `json:"android"`
	APNS         apnsConfig        `json:"apns"`
}

type messageContent struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type androidConfig struct {
	Priority     string              `json:"priority"`
	Notification androidNotification `json:"notification"`
}

type androidNotification struct {
	ChannelID             string `json:"channel_id"`
	Priority              string `json:"priority"`
	DefaultVibrateTimings bool   `json:"default_vibrate_timings"`
	DefaultSound          bool   `json:"default_sound"`
}

type apnsConfig struct {
	Payload apnsPayload `json:"payload"`
}

type apnsPayload struct {
	APS aps `json:"aps"`
}

type aps struct {
	Alert messageContent `json:"alert"`
	Sound string         `json:"sound"`
	Badge int            `json:"badge"`
}

// Dispatch fans the request out to every token concurrently and joins all
// outcomes before returning. Per-device failures are classified into the
// returned deliveries and never abort sibling sends; the only error return
// is a payload that cannot be marshalled.
func (d *Dispatcher) Dispatch(ctx context.Context, accessToken string, req *notify.Request, tokens []string) ([]notify.Delivery, error) {
	deliveries := make([]notify.Delivery, len(tokens))

	var wg sync.WaitGroup
	for i, token := range tokens {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			deliveries[i] = d.send(ctx, accessToken, req, token)
		}(i, token)
	}
	wg.Wait()

	for _, delivery := range deliveries {
		if delivery.Err != nil {
			d.logger.Error("FCM send failed",
				"token", delivery.Token,
				"invalid", delivery.Status == notify.StatusInvalidToken,
				"err", delivery.Err,
			)
		}
	}
	return deliveries, nil
}

// send performs one bounded gateway call and classifies the outcome.
func (d *Dispatcher) send(ctx context.Context, accessToken string, req *notify.Request, token string) notify.Delivery {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]message{
		"message": {
			Token:        token,
			Notification: messageContent{Title: req.Title, Body: req.Body},
			Data:         req.Data,
			Android: androidConfig{
				Priority: "high",
				Notification: androidNotification{
					ChannelID:             d.androidChannel,
					Priority:              "HIGH",
					DefaultVibrateTimings: true,
					DefaultSound:          true,
				},
			},
			APNS: apnsConfig{
				Payload: apnsPayload{
					APS: aps{
						Alert: messageContent{Title: req.Title, Body: req.Body},
						Sound: "default",
						Badge: 1,
					},
				},
			},
		},
	})
	if err != nil {
		return notify.Delivery{Token: token, Status: notify.StatusFailed, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.sendURL, bytes.NewReader(payload))
	if err != nil {
		return notify.Delivery{Token: token, Status: notify.StatusFailed, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return notify.Delivery{Token: token, Status: notify.StatusFailed, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return notify.Delivery{Token: token, Status: notify.StatusDelivered}
	}

	errBody, _ := io.ReadAll(resp.Body)
	delivery := notify.Delivery{
		Token:  token,
		Status: notify.StatusFailed,
		Err:    fmt.Errorf("fcm returned status %d: %s", resp.StatusCode, errBody),
	}
	if isTokenStale(resp.StatusCode, string(errBody)) {
		delivery.Status = notify.StatusInvalidToken
	}
	return delivery
}

// isTokenStale reports whether the gateway signalled that the token is
// permanently dead (uninstall or platform revocation).
func isTokenStale(status int, body string) bool {
	return status == http.StatusNotFound ||
		strings.Contains(body, "UNREGISTERED") ||
		strings.Contains(body, "NOT_FOUND")
}
