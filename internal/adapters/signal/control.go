package signal

import "github.com/dkeye/Tree/internal/app"

func (ctl *SignalWSController) handlePing(c *WsSignalConn) {
	ctl.send(c, app.EventPong, nil)
}
