package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	TopicID   string    `json:"topic_id,omitempty"`
	Title     string    `json:"title"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
}

// InitialImage is the first inbox page sent when the socket opens.
type InitialImage struct {
	Total    int              `json:"total"`
	Messages []PrivateMessage `json:"messages"`
}

type frame struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	InitialImage
}

// Subscribe opens the live mailbox. The channel closes when ctx is done or
// the connection drops.
func (s *MessagesService) Subscribe(ctx context.Context) (InitialImage, <-chan Notification, error) {
	u, err := url.Parse(s.client.BaseURL)
	if err != nil {
		return InitialImage{}, nil, err
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	wsURL := fmt.Sprintf("%s://%s/api/v1/ws?api_key=%s", scheme, u.Host, url.QueryEscape(s.client.APIKey))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return InitialImage{}, nil, err
	}

	var initImg InitialImage
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			_ = conn.Close()
			return InitialImage{}, nil, fmt.Errorf("read initial image: %w", err)
		}
		if f.Type == "error" {
			_ = conn.Close()
			return InitialImage{}, nil, fmt.Errorf("subscribe error: %s", f.Message)
		}
		if f.Type == "initial_image" {
			initImg = f.InitialImage
			break
		}
	}
	_ = conn.SetReadDeadline(time.Time{})

	out := make(chan Notification, 64)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Type != "notification" {
				continue
			}
			var n Notification
			if err := json.Unmarshal(f.Data, &n); err != nil {
				continue
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return initImg, out, nil
}
