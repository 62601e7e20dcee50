package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	ws "nhooyr.io/websocket"
)

// gatewayMessage is the JSON frame exchanged with the audio gateway's
// signaling endpoint. Media never crosses this socket.
type gatewayMessage struct {
	Type     string `json:"type"`
	Channel  string `json:"channel_id,omitempty"`
	Token    string `json:"token,omitempty"`
	UID      string `json:"uid,omitempty"`
	Name     string `json:"name,omitempty"`
	Speaking bool   `json:"speaking,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Gateway implements Connection over a websocket to the audio gateway.
// One Gateway serves one channel attempt; dial a fresh one per session.
type Gateway struct {
	conn *ws.Conn

	mu           sync.Mutex
	observer     Observer
	participants map[string]string
	closed       bool
	cancelRead   context.CancelFunc
}

// Dial connects to the gateway signaling endpoint and starts the event
// read loop. The returned Gateway has no observer installed yet.
func Dial(ctx context.Context, url string) (*Gateway, error) {
	c, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	readCtx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		conn:         c,
		participants: make(map[string]string),
		cancelRead:   cancel,
	}
	go g.readLoop(readCtx)
	return g, nil
}

func (g *Gateway) Join(ctx context.Context, channelID, token, uid string) error {
	msg := gatewayMessage{Type: "join", Channel: channelID, Token: token, UID: uid}
	if err := g.send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrJoinFailed, err)
	}
	return nil
}

func (g *Gateway) Leave() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = g.send(ctx, gatewayMessage{Type: "leave"})
	g.Close()
}

func (g *Gateway) ParticipantCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.participants)
}

func (g *Gateway) SetObserver(obs Observer) Observer {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev := g.observer
	g.observer = obs
	return prev
}

// Close tears the socket down without a leave frame. Safe to call twice.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()
	g.cancelRead()
	_ = g.conn.Close(ws.StatusNormalClosure, "done")
}

func (g *Gateway) send(ctx context.Context, msg gatewayMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return g.conn.Write(ctx, ws.MessageText, b)
}

func (g *Gateway) readLoop(ctx context.Context) {
	for {
		typ, data, err := g.conn.Read(ctx)
		if err != nil {
			g.mu.Lock()
			closed := g.closed
			g.mu.Unlock()
			if !closed && !errors.Is(err, context.Canceled) {
				g.dispatch(func(o Observer) { o.Error(fmt.Errorf("gateway read: %w", err)) })
			}
			return
		}
		if typ != ws.MessageText && typ != ws.MessageBinary {
			continue
		}
		var msg gatewayMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Msg("gateway sent invalid frame")
			continue
		}
		g.handle(msg)
	}
}

func (g *Gateway) handle(msg gatewayMessage) {
	switch msg.Type {
	case "join_success":
		g.dispatch(func(o Observer) { o.JoinSuccess() })
	case "participant_joined":
		g.mu.Lock()
		g.participants[msg.UID] = msg.Name
		g.mu.Unlock()
		g.dispatch(func(o Observer) { o.ParticipantJoined(msg.UID, msg.Name) })
	case "participant_left":
		g.mu.Lock()
		delete(g.participants, msg.UID)
		g.mu.Unlock()
		g.dispatch(func(o Observer) { o.ParticipantLeft(msg.UID) })
	case "speaking":
		g.dispatch(func(o Observer) { o.SpeakingChanged(msg.UID, msg.Speaking) })
	case "all_left":
		g.mu.Lock()
		g.participants = make(map[string]string)
		g.mu.Unlock()
		g.dispatch(func(o Observer) { o.AllParticipantsLeft() })
	case "error":
		g.dispatch(func(o Observer) { o.Error(errors.New(msg.Reason)) })
	default:
		log.Debug().Str("type", msg.Type).Msg("ignoring unknown gateway frame")
	}
}

func (g *Gateway) dispatch(fn func(Observer)) {
	g.mu.Lock()
	obs := g.observer
	g.mu.Unlock()
	if obs != nil {
		fn(obs)
	}
}
