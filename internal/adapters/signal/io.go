package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Tree/internal/app"
	"github.com/dkeye/Tree/internal/core"
	"github.com/dkeye/Tree/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		if err := ctl.Hub.OnDisconnect(sid); err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("disconnect")
		}
		cancel()
		c.Close()
	}()

	if ctl.Opts.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.Opts.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(sid, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(sid core.SessionID, c *WsSignalConn, data []byte) {
	var env app.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		ctl.sendError(c, "bad_json")
		return
	}

	switch env.Type {
	case app.EventAddDecoration:
		ctl.handleAddDecoration(sid, c, env.Payload)
	case app.EventSendMessage:
		ctl.handleSendMessage(sid, c, env.Payload)
	case app.EventPing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, "unknown_type")
	}
}

func (ctl *SignalWSController) handleAddDecoration(sid core.SessionID, c *WsSignalConn, payload json.RawMessage) {
	var in domain.PlacementInput
	if err := json.Unmarshal(payload, &in); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad add-decoration payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	if err := ctl.Hub.OnPlacementRequest(sid, in); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("placement")
	}
}

func (ctl *SignalWSController) handleSendMessage(sid core.SessionID, c *WsSignalConn, payload json.RawMessage) {
	var p app.SendMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad send-message payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	err := ctl.Hub.OnMessageRequest(sid, p.Text)
	if err != nil && !errors.Is(err, domain.ErrRateLimited) {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("message")
	}
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, reason string) {
	ctl.send(c, app.EventError, app.ErrorPayload{Error: reason})
}

func (ctl *SignalWSController) send(c *WsSignalConn, eventType string, payload any) {
	frame, err := app.Encode(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("send marshal")
		return
	}
	_ = c.TrySend(frame)
}
