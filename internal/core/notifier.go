package core

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"show-controller/internal/logger"
	"show-controller/internal/types"
)

const eventQueueSize = 64

type eventKind int

const (
	eventStage eventKind = iota
	eventText
	eventStatus
)

type event struct {
	kind     eventKind
	session  string
	at       time.Time
	from, to types.Stage
	reason   string
	severity types.Severity
	text     string
	fields   map[string]interface{}
}

// groundLink queues mode notifications for ground control and publishes
// them from its own goroutine, so the control loop never waits on Redis.
type groundLink struct {
	redis  MessagingClient
	logger *logger.Logger
	now    func() time.Time

	// only touched on the control loop
	session string

	events chan event
	wg     sync.WaitGroup
}

func newGroundLink(redis MessagingClient, l *logger.Logger) *groundLink {
	return &groundLink{
		redis:  redis,
		logger: l.WithTag("link"),
		now:    time.Now,
		events: make(chan event, eventQueueSize),
	}
}

// newSession starts a new show session; its ID is stamped on every event
// published until the next call.
func (g *groundLink) newSession() string {
	g.session = uuid.NewString()
	return g.session
}

// restoreSession goes back to a session returned by an earlier newSession.
func (g *groundLink) restoreSession(id string) {
	g.session = id
}

func (g *groundLink) enqueue(ev event) {
	ev.session = g.session
	ev.at = g.now()
	select {
	case g.events <- ev:
	default:
		g.logger.Warnf("Event queue full, dropping event (kind %d)", ev.kind)
	}
}

// StageChanged implements mode.Notifier.
func (g *groundLink) StageChanged(from, to types.Stage, reason string) {
	g.enqueue(event{kind: eventStage, from: from, to: to, reason: reason})
}

// SendText implements mode.Notifier.
func (g *groundLink) SendText(severity types.Severity, text string) {
	g.logger.Infof("[%s] %s", severity, text)
	g.enqueue(event{kind: eventText, severity: severity, text: text})
}

func (g *groundLink) publishStatus(fields map[string]interface{}) {
	g.enqueue(event{kind: eventStatus, fields: fields})
}

func (g *groundLink) start() {
	g.wg.Add(1)
	go g.run()
}

// stop publishes whatever is still queued and returns.
func (g *groundLink) stop() {
	close(g.events)
	g.wg.Wait()
}

func (g *groundLink) run() {
	defer g.wg.Done()
	for ev := range g.events {
		g.publish(ev)
	}
}

func (g *groundLink) publish(ev event) {
	var err error
	switch ev.kind {
	case eventStage:
		err = g.redis.PublishStage(ev.session, string(ev.from), string(ev.to), ev.reason, ev.at)
	case eventText:
		err = g.redis.PublishText(ev.session, ev.severity.String(), ev.text, ev.at)
	case eventStatus:
		err = g.redis.PublishStatus(ev.fields)
	}
	if err != nil {
		g.logger.Warnf("Failed to publish to ground control: %v", err)
	}
}
