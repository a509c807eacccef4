// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	EventQueueSize      = 20
	AsyncQueueSize      = 1000
	AsyncWorkerPoolSize = 4
)

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

type asyncEvent struct {
	eventType EventType
	event     Event
}

// EventBus fans events out to in-process subscribers. Publish blocks until
// every subscriber channel accepted the event; PublishAsync hands the event
// to a small worker pool instead.
type EventBus struct {
	subscribers map[EventType]map[EventSubscriberId]*subscriber
	metrics     *eventMetrics
	logger      *slog.Logger
	lastSubId   EventSubscriberId
	mu          sync.RWMutex

	asyncQueue chan asyncEvent
	asyncWg    sync.WaitGroup
	stopCh     chan struct{}
	stopOnce   sync.Once
	stopped    bool
	stopMu     sync.RWMutex
}

// NewEventBus creates a new EventBus and starts its async workers. Stop
// must be called to release them.
func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &EventBus{
		subscribers: make(map[EventType]map[EventSubscriberId]*subscriber),
		logger:      logger.With("component", "event"),
		asyncQueue:  make(chan asyncEvent, AsyncQueueSize),
		stopCh:      make(chan struct{}),
	}
	if promRegistry != nil {
		e.initMetrics(promRegistry)
	}
	for range AsyncWorkerPoolSize {
		e.asyncWg.Add(1)
		go e.asyncWorker()
	}
	return e
}

func (e *EventBus) asyncWorker() {
	defer e.asyncWg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case ae := <-e.asyncQueue:
			e.Publish(ae.eventType, ae.event)
		}
	}
}

// subscriber wraps a buffered channel. Close waits for in-flight sends, so
// delivery never sends on a closed channel.
type subscriber struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

func (s *subscriber) deliver(evt Event, stopCh <-chan struct{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- evt:
	case <-stopCh:
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Subscribe allows a consumer to receive events of a particular type via a channel
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sub := &subscriber{
		ch: make(chan Event, EventQueueSize),
	}
	e.lastSubId++
	subId := e.lastSubId
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[EventSubscriberId]*subscriber)
	}
	e.subscribers[eventType][subId] = sub
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType)).Inc()
	}
	return subId, sub.ch
}

// SubscribeFunc runs handlerFunc for every event of a particular type. A
// panicking handler is logged and keeps receiving events.
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	subId, evtCh := e.Subscribe(eventType)
	go func() {
		for evt := range evtCh {
			e.handle(evt, handlerFunc)
		}
	}()
	return subId
}

func (e *EventBus) handle(evt Event, handlerFunc EventHandlerFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(
				"event handler panic",
				"type", evt.Type,
				"error", fmt.Sprint(r),
			)
			if e.metrics != nil {
				e.metrics.handlerPanics.WithLabelValues(string(evt.Type)).Inc()
			}
		}
	}()
	handlerFunc(evt)
}

// Unsubscribe stops delivery of events for a particular type for an existing subscriber
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	sub, ok := e.subscribers[eventType][subId]
	if ok {
		delete(e.subscribers[eventType], subId)
		if len(e.subscribers[eventType]) == 0 {
			delete(e.subscribers, eventType)
		}
		if e.metrics != nil {
			e.metrics.subscribers.WithLabelValues(string(eventType)).Dec()
		}
	}
	e.mu.Unlock()
	if sub != nil {
		sub.close()
	}
}

// Publish sends an event of a particular type to all subscribers
func (e *EventBus) Publish(eventType EventType, evt Event) {
	e.mu.RLock()
	subList := make([]*subscriber, 0, len(e.subscribers[eventType]))
	for _, sub := range e.subscribers[eventType] {
		subList = append(subList, sub)
	}
	e.mu.RUnlock()
	for _, sub := range subList {
		sub.deliver(evt, e.stopCh)
	}
	if e.metrics != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
}

// PublishAsync enqueues an event for delivery by the worker pool and
// returns immediately. It returns false when the bus is stopped or the
// queue is full.
func (e *EventBus) PublishAsync(eventType EventType, evt Event) bool {
	e.stopMu.RLock()
	defer e.stopMu.RUnlock()
	if e.stopped {
		return false
	}
	select {
	case e.asyncQueue <- asyncEvent{eventType: eventType, event: evt}:
		return true
	default:
		e.logger.Warn(
			"async event queue full, dropping event",
			"type", eventType,
		)
		if e.metrics != nil {
			e.metrics.dropped.WithLabelValues(string(eventType)).Inc()
		}
		return false
	}
}

// Stop halts the async workers and closes every subscriber channel, which
// ends SubscribeFunc goroutines. Events queued but not yet delivered are
// dropped.
func (e *EventBus) Stop() {
	e.stopOnce.Do(func() {
		e.stopMu.Lock()
		e.stopped = true
		e.stopMu.Unlock()
		close(e.stopCh)
		e.asyncWg.Wait()

		e.mu.Lock()
		subsCopy := e.subscribers
		e.subscribers = make(map[EventType]map[EventSubscriberId]*subscriber)
		e.mu.Unlock()
		for _, evtTypeSubs := range subsCopy {
			for _, sub := range evtTypeSubs {
				sub.close()
			}
		}
		if e.metrics != nil {
			e.metrics.subscribers.Reset()
		}
	})
}
