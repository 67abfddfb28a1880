package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/store"
)

const (
	eventTasks        = "tasks"
	eventNotification = "notification"
	eventError        = "error"

	subscriberBuffer = 16
)

var keepAliveInterval = 15 * time.Second

type streamEvent struct {
	name string
	data any
}

// Broker fans task views and notifications out to connected SSE clients.
// Slow clients lose their oldest pending event rather than blocking writers.
type Broker struct {
	mu   sync.Mutex
	subs map[chan streamEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan streamEvent]struct{})}
}

func (b *Broker) subscribe() chan streamEvent {
	ch := make(chan streamEvent, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) unsubscribe(ch chan streamEvent) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

func (b *Broker) publish(ev streamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// Notify forwards a store notification to every client.
func (b *Broker) Notify(_ context.Context, n domain.Notification) {
	b.publish(streamEvent{name: eventNotification, data: n})
}

// PublishView forwards a recomputed task view to every client.
func (b *Broker) PublishView(v store.TaskView) {
	if v.Err != nil {
		b.publish(streamEvent{name: eventError, data: map[string]string{"error": v.Err.Error()}})
		return
	}
	b.publish(streamEvent{name: eventTasks, data: tasksResponse{Tasks: v.Tasks, Count: v.Count, Filter: v.Filter}})
}

func streamEvents(svc Services, broker *Broker, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		c.Response().WriteHeader(http.StatusOK)

		ctx := c.Request().Context()
		ch := broker.subscribe()
		defer broker.unsubscribe(ch)

		initial := streamEvent{name: eventTasks, data: tasksResponse{
			Tasks:  svc.Tasks.View(),
			Count:  svc.Tasks.Count(),
			Filter: svc.Filter.Current(),
		}}
		if err := writeEvent(c.Response(), initial); err != nil {
			logger.WithError(err).Debug("stream closed")
			return nil
		}
		flusher.Flush()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-ch:
				if err := writeEvent(c.Response(), ev); err != nil {
					logger.WithError(err).Debug("stream closed")
					return nil
				}
			case <-ticker.C:
				if _, err := c.Response().Write([]byte(": keepalive\n\n")); err != nil {
					return nil
				}
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w *echo.Response, ev streamEvent) error {
	data, err := sonic.Marshal(ev.data)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(data)+96)
	buf = append(buf, "id: "...)
	buf = append(buf, uuid.NewString()...)
	buf = append(buf, "\nevent: "...)
	buf = append(buf, ev.name...)
	buf = append(buf, "\ndata: "...)
	buf = append(buf, data...)
	buf = append(buf, "\n\n"...)
	_, err = w.Write(buf)
	return err
}
