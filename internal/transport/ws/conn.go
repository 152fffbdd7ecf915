package ws

import (
	"context"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pixellator/wsz6/internal/platform/timeouts"
	"github.com/pixellator/wsz6/internal/portal"
	"github.com/pixellator/wsz6/internal/wire"
)

// serveConn runs one websocket connection from hello to disconnect.
//
// The first frame must be a hello carrying either a name (new participant)
// or a token (reconnect). After the welcome, a write pump owns the
// connection's write side: session frames, error replies, and pings all go
// through it, while this goroutine keeps reading and dispatching.
func serveConn(ctx context.Context, sess *portal.Session, conn *websocket.Conn) {
	remote := conn.RemoteAddr().String()

	_ = conn.SetReadDeadline(time.Now().Add(timeouts.HeartbeatTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeouts.HeartbeatTimeout))
	})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		zap.L().Debug("read hello", zap.String("remote", remote), zap.Error(err))
		return
	}
	hello, err := wire.Decode(raw)
	if err != nil {
		_ = conn.WriteJSON(wire.NewError(err))
		return
	}
	if hello.Type != wire.TypeHello {
		_ = conn.WriteJSON(wire.NewErrorf("expected hello, got %q", hello.Type))
		return
	}

	token := strings.TrimSpace(hello.Token)
	if token == "" {
		token, err = sess.Join(hello.Name)
		if err != nil {
			_ = conn.WriteJSON(wire.NewError(err))
			return
		}
	}
	ch, err := sess.Attach(token)
	if err != nil {
		_ = conn.WriteJSON(wire.NewError(err))
		return
	}
	defer sess.Detach(token)

	if err := conn.WriteJSON(wire.NewWelcome(token, sess.RoleFor(token), sess.Slug())); err != nil {
		zap.L().Debug("write welcome", zap.String("remote", remote), zap.Error(err))
		return
	}
	sess.SendCurrent(token)

	zap.L().Info("participant connected",
		zap.String("playthrough_id", sess.ID()), zap.String("remote", remote))

	readerDone := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(timeouts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-readerDone:
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(timeouts.HeartbeatTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case frame := <-ch:
				_ = conn.SetWriteDeadline(time.Now().Add(timeouts.HeartbeatTimeout))
				if err := conn.WriteJSON(frame); err != nil {
					zap.L().Debug("write frame", zap.String("remote", remote), zap.Error(err))
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				zap.L().Debug("read frame", zap.String("remote", remote), zap.Error(err))
			}
			break
		}
		msg, err := wire.Decode(raw)
		if err != nil {
			sess.Reject(token, err)
			continue
		}
		sess.Handle(ctx, token, msg)
	}

	close(readerDone)
	<-writerDone

	zap.L().Info("participant disconnected",
		zap.String("playthrough_id", sess.ID()), zap.String("remote", remote))
}
