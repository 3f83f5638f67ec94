package controller

import (
	"nurtura/engine"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

// ProgressController streams step-sent events to operator dashboards
// over a websocket.
type ProgressController struct {
	Hub    *engine.ProgressHub
	Logger *logrus.Entry
}

func NewProgressController(hub *engine.ProgressHub, logger *logrus.Entry) *ProgressController {
	return &ProgressController{Hub: hub, Logger: logger}
}

// Stream pushes every progress event to the connected client until it
// disconnects.
func (pc *ProgressController) Stream(c *websocket.Conn) {
	events, cancel := pc.Hub.Subscribe()
	defer cancel()
	defer c.Close()

	pc.Logger.WithField("remote", c.RemoteAddr().String()).Info("Progress subscriber connected")

	// Drain client frames so close/ping control messages are processed;
	// the read error doubles as our disconnect signal.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := c.WriteJSON(ev); err != nil {
				pc.Logger.WithError(err).Debug("Progress subscriber write failed")
				return
			}
		}
	}
}
