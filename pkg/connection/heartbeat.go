package connection

import (
	"time"

	"github.com/pulse-realtime/pulse-go/pkg/log"
	"github.com/pulse-realtime/pulse-go/pkg/protocol"
	"github.com/pulse-realtime/pulse-go/pkg/timers"
)

// timerSlot holds one of the manager's timers. seq identifies the armed
// timer so a callback that lost the race with Cancel does nothing.
type timerSlot struct {
	timer *timers.Timer
	seq   uint64
}

// armLocked (re)starts the timer in slot. fn runs with m.mu held.
func (m *Manager) armLocked(slot *timerSlot, d time.Duration, fn func()) {
	slot.timer.Cancel()
	m.seq++
	seq := m.seq
	slot.seq = seq
	slot.timer = m.sched.AfterFunc(d, func() {
		m.mu.Lock()
		if slot.seq != seq {
			m.mu.Unlock()
			return
		}
		slot.timer = nil
		slot.seq = 0
		fn()
		m.mu.Unlock()

		m.flush()
	})
}

func (m *Manager) cancelSlot(slot *timerSlot) {
	slot.timer.Cancel()
	slot.timer = nil
	slot.seq = 0
}

// touchLocked records inbound activity on an established connection.
func (m *Manager) touchLocked() {
	if m.state != StateConnected {
		return
	}
	m.cancelSlot(&m.pong)
	m.armLocked(&m.activity, m.activityTimeout, m.activityTimeoutLocked)
}

func (m *Manager) activityTimeoutLocked() {
	if m.state != StateConnected || m.active == nil {
		return
	}
	m.armLocked(&m.pong, m.pongTimeout, m.pongTimeoutLocked)
	if m.active.Send(protocol.Ping()) {
		m.logControlLocked(log.DirectionOut, log.ControlMsgPing)
	}
}

func (m *Manager) pongTimeoutLocked() {
	if m.state != StateConnected {
		return
	}
	m.cfg.Metrics.ObserveHeartbeatTimeout()
	m.logger.Warn("pong timeout", "socket_id", m.socketID, "timeout", m.pongTimeout)
	m.reportLocked(ErrPongTimeout)
	m.detachLocked()
	m.unavailableLocked(ErrPongTimeout)
}

// diag fills the connection-layer fields of e and records it.
func (m *Manager) diag(e log.Event) {
	e.Timestamp = m.sched.Now()
	e.ConnectionID = m.id
	e.Layer = log.LayerConnection
	e.SocketID = m.socketID
	if m.active != nil {
		e.Transport = m.active.Label()
	}
	m.cfg.Diagnostics.Log(e)
}

func (m *Manager) logMessageLocked(dir log.Direction, msg *protocol.Message, size int) {
	m.diag(log.Event{
		Category:  log.CategoryMessage,
		Direction: dir,
		Message: &log.MessageEvent{
			Name:    msg.Event,
			Channel: msg.Channel,
			Size:    size,
		},
	})
}

func (m *Manager) logControlLocked(dir log.Direction, t log.ControlMsgType) {
	m.diag(log.Event{
		Category:   log.CategoryControl,
		Direction:  dir,
		ControlMsg: &log.ControlMsgEvent{Type: t},
	})
}

func (m *Manager) logErrorLocked(err error) {
	data := &log.ErrorEventData{Message: err.Error()}
	if pe, ok := err.(*protocol.PeerError); ok {
		code := pe.Code
		data.Code = &code
		data.Context = "server"
	}
	m.diag(log.Event{
		Category: log.CategoryError,
		Error:    data,
	})
}
