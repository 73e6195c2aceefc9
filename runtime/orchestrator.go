// Package runtime holds the live state of the chat node: who is online,
// which handles sit in which room, and the coordinator tying a send to
// persistence, fan-out and offline notification.
package runtime

import (
	"context"
	"log/slog"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/domain/event"
	"market-chat/observability"
	"market-chat/repositories"
	"market-chat/runtime/workers"
	"sync"
	"time"
)

type OrchestratorConfig struct {
	BufferSize          int
	NotificationWorkers int
	NotificationTimeout time.Duration
	SinkTimeout         time.Duration
	MetricInterval      time.Duration
}

// Orchestrator owns the side-effect pipelines of the node: the notification
// queue, the domain event queue and the supervised workers draining them.
type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	cfg            OrchestratorConfig
	supervisor     contract.ISupervisor
	contacts       repositories.IContactRepository
	notifier       contract.INotifier
	metrics        *observability.Metrics
	permanentSinks []contract.EventSink
	notifications  chan domain.Notification
	domainEvents   chan event.DomainEvent
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	contacts repositories.IContactRepository, notifier contract.INotifier,
	metrics *observability.Metrics, cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		log:           log,
		cfg:           cfg,
		supervisor:    supervisor,
		contacts:      contacts,
		notifier:      notifier,
		metrics:       metrics,
		notifications: make(chan domain.Notification, max(cfg.BufferSize, 1)),
		domainEvents:  make(chan event.DomainEvent, max(cfg.BufferSize, 1)),
	}
}

// Add registers sinks fed with every domain event. Sinks added after Start
// are ignored.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// Notifications is the producer side of the notification queue.
func (o *Orchestrator) Notifications() chan<- domain.Notification { return o.notifications }

// DomainEvents is the producer side of the domain event queue.
func (o *Orchestrator) DomainEvents() chan<- event.DomainEvent { return o.domainEvents }

// Start registers every worker and blocks until the supervisor returns,
// which happens once ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	sinks := append([]contract.EventSink(nil), o.permanentSinks...)
	o.mu.Unlock()

	o.supervisor.Add(workers.NewEventFanout(o.log, o.domainEvents, o.cfg.SinkTimeout, sinks...))
	for i := 0; i < max(o.cfg.NotificationWorkers, 1); i++ {
		o.supervisor.Add(workers.NewNotificationWorker(o.log, o.notifications, o.contacts, o.notifier, o.cfg.NotificationTimeout, o.metrics))
	}
	o.supervisor.Add(
		workers.NewChannelCapacityWorker(o.log, []workers.NamedChannel{
			{Name: "notifications", Channel: o.notifications},
			{Name: "domain_events", Channel: o.domainEvents},
		}, o.metrics, o.cfg.MetricInterval),
		workers.NewProcessStatsWorker(o.log, o.metrics, o.cfg.MetricInterval),
	)

	o.log.Info("Starting orchestrator and all supervised workers",
		"sinks", len(sinks),
		"notification_workers", max(o.cfg.NotificationWorkers, 1))
	o.supervisor.Run(ctx)
}

// Stop cancels every supervised worker. Queued notifications that were
// not picked up yet are lost.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
