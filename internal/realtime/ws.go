package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

type wsTransport struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	eventsCh  chan []byte
	doneCh    chan struct{}
	closeOnce sync.Once
}

// dialWebSocket connects to the provider's realtime websocket endpoint
// using the ephemeral key as bearer credential. The control-event stream
// is identical to the data-channel one.
func dialWebSocket(ctx context.Context, baseURL, model, ephemeralKey string) (*wsTransport, error) {
	endpoint, err := realtimeWSURL(baseURL, model)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+ephemeralKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		return nil, fmt.Errorf("dial realtime websocket: %w", err)
	}

	t := &wsTransport{
		conn:     conn,
		eventsCh: make(chan []byte, 256),
		doneCh:   make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func realtimeWSURL(baseURL, model string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "https://api.openai.com"
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/realtime"
	q := u.Query()
	q.Set("model", model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *wsTransport) readLoop() {
	defer t.signalDone()
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		select {
		case t.eventsCh <- data:
		case <-t.doneCh:
			return
		}
	}
}

func (t *wsTransport) signalDone() {
	t.closeOnce.Do(func() { close(t.doneCh) })
}

func (t *wsTransport) send(v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) events() <-chan []byte {
	return t.eventsCh
}

func (t *wsTransport) done() <-chan struct{} {
	return t.doneCh
}

func (t *wsTransport) close() error {
	t.signalDone()
	return t.conn.Close()
}
