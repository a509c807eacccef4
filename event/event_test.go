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

package event_test

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blinklabs-io/diploma/event"
)

const testEvtType event.EventType = "test.event"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func receive(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "event channel closed unexpectedly")
		return evt
	case <-time.After(time.Second):
		require.FailNow(t, "timeout waiting for event")
	}
	return event.Event{}
}

func TestEventBusSingleSubscriber(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, subCh := eb.Subscribe(testEvtType)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 999))
	evt := receive(t, subCh)
	assert.Equal(t, testEvtType, evt.Type)
	assert.Equal(t, 999, evt.Data)
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, sub1Ch := eb.Subscribe(testEvtType)
	_, sub2Ch := eb.Subscribe(testEvtType)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 999))
	assert.Equal(t, 999, receive(t, sub1Ch).Data)
	assert.Equal(t, 999, receive(t, sub2Ch).Data)
}

func TestEventBusOtherTypeNotDelivered(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, subCh := eb.Subscribe(testEvtType)
	eb.Publish("other.event", event.NewEvent("other.event", 1))
	select {
	case evt := <-subCh:
		t.Fatalf("received unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	subId, subCh := eb.Subscribe(testEvtType)
	eb.Unsubscribe(testEvtType, subId)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 999))
	_, ok := <-subCh
	assert.False(t, ok, "channel should be closed after unsubscribe")
	// A second unsubscribe is a no-op
	eb.Unsubscribe(testEvtType, subId)
}

func TestEventBusStop(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	_, sub1Ch := eb.Subscribe(testEvtType)
	_, sub2Ch := eb.Subscribe("another.event")
	eb.Stop()
	_, ok := <-sub1Ch
	assert.False(t, ok)
	_, ok = <-sub2Ch
	assert.False(t, ok)
	// Publishing after stop does nothing
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 1))
	assert.False(t, eb.PublishAsync(testEvtType, event.NewEvent(testEvtType, 1)))
	eb.Stop()
}

func TestEventBusPublishAsync(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, subCh := eb.Subscribe(event.IssuanceStageEventType)
	ok := eb.PublishAsync(
		event.IssuanceStageEventType,
		event.NewEvent(
			event.IssuanceStageEventType,
			event.IssuanceStageEvent{BatchID: "b1", Stage: "rendering"},
		),
	)
	require.True(t, ok)
	evt := receive(t, subCh)
	data, ok := evt.Data.(event.IssuanceStageEvent)
	require.True(t, ok, "unexpected event data type %T", evt.Data)
	assert.Equal(t, "b1", data.BatchID)
	assert.Equal(t, "rendering", data.Stage)
}

func TestSubscribeFuncPanicRecovery(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	var calls atomic.Int32
	eb.SubscribeFunc(testEvtType, func(evt event.Event) {
		if calls.Add(1) == 1 {
			panic("handler failure")
		}
	})
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 1))
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 2))
	require.Eventually(
		t,
		func() bool { return calls.Load() == 2 },
		time.Second,
		10*time.Millisecond,
		"handler should keep receiving events after a panic",
	)
}

func TestEventBusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	eb := event.NewEventBus(reg, nil)
	defer eb.Stop()
	subId, subCh := eb.Subscribe(testEvtType)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 1))
	receive(t, subCh)
	expected := `
# HELP diploma_event_published_total events published by type
# TYPE diploma_event_published_total counter
diploma_event_published_total{type="test.event"} 1
`
	require.NoError(
		t,
		testutil.GatherAndCompare(
			reg,
			strings.NewReader(expected),
			"diploma_event_published_total",
		),
	)
	eb.Unsubscribe(testEvtType, subId)
	count, err := testutil.GatherAndCount(reg, "diploma_event_subscribers")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
