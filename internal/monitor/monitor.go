package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"tradebot/internal/events"
	"tradebot/internal/risk"
)

// Monitor watches risk rejections and failed orders and emits alerts.
type Monitor struct {
	Bus     *events.Bus
	Sink    AlertSink
	Metrics *SystemMetrics
}

// Start consumes events until ctx ends.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		log.Println("monitor: not fully configured; skipping")
		return
	}
	stream, unsub := m.Bus.Subscribe(50, events.EventRiskRejected, events.EventOrderFailed)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				if m.Metrics != nil && msg.Event == events.EventRiskRejected {
					m.Metrics.IncrementRiskRejections()
				}
				if err := m.Sink.Send(formatAlert(msg)); err != nil {
					log.Printf("monitor: alert delivery failed: %v", err)
				}
			}
		}
	}()
}

func formatAlert(msg events.Message) string {
	prefix := "[" + msg.Time.Format(time.RFC3339) + "]"
	if msg.User != "" {
		prefix += " " + msg.User
	}
	switch d := msg.Data.(type) {
	case risk.Decision:
		return fmt.Sprintf("%s risk gate denied trade: %s", prefix, d.Reason)
	case string:
		return prefix + " " + d
	case error:
		return prefix + " " + d.Error()
	default:
		return fmt.Sprintf("%s %s", prefix, msg.Event)
	}
}
