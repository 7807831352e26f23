package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/arklim/tenant-access/internal/core/domain"
)

type fakeChannel struct {
	failAll   bool
	failIDs   map[string]bool
	published []string
	notify    chan string
}

func (c *fakeChannel) Publish(_ context.Context, message domain.OutboxMessage) error {
	if c.failAll || c.failIDs[message.ID] {
		return errors.New("broker unavailable")
	}
	c.published = append(c.published, message.ID)
	if c.notify != nil {
		c.notify <- message.ID
	}
	return nil
}

type countingMetrics struct {
	delivered map[domain.Tenant]int
	failed    map[domain.Tenant]int
	sweeps    int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{delivered: map[domain.Tenant]int{}, failed: map[domain.Tenant]int{}}
}

func (m *countingMetrics) Delivered(t domain.Tenant) { m.delivered[t]++ }

func (m *countingMetrics) Failed(t domain.Tenant) { m.failed[t]++ }

func (m *countingMetrics) ObserveSweep(time.Duration) { m.sweeps++ }

func enqueue(t *testing.T, f *fixture, tenant domain.Tenant, event string) string {
	t.Helper()
	id, err := f.outbox.Enqueue(context.Background(), &memOutbox{store: f.store}, tenant, event, map[string]string{"k": "v"}, "corr-1")
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	return id
}

func TestEventOutbox_EnqueueWritesEnvelope(t *testing.T) {
	f := newFixture(t)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	writer := &memOutbox{store: f.store}
	id, err := f.outbox.Enqueue(ctx, writer, domain.TenantSIS, domain.EventRoleCreated, map[string]string{"role_id": "r-1"}, "corr-9")
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	message := writer.message(domain.TenantSIS, id)
	if message.EventName != domain.EventRoleCreated || !message.Pending() {
		t.Fatalf("unexpected message: %+v", message)
	}

	var envelope domain.EventEnvelope
	if err := json.Unmarshal(message.Payload, &envelope); err != nil {
		t.Fatalf("payload is not an envelope: %v", err)
	}
	if envelope.ID != id || envelope.Tenant != "SIS" || envelope.CorrelationID != "corr-9" || envelope.Version != EnvelopeVersion {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
	if envelope.Metadata["service"] != "tenant-access" || envelope.Metadata["environment"] != "test" {
		t.Fatalf("unexpected metadata: %v", envelope.Metadata)
	}
	if envelope.Metadata["trace_id"] != traceID.String() {
		t.Fatalf("expected trace id %s, got %q", traceID, envelope.Metadata["trace_id"])
	}
	if string(envelope.Payload) != `{"role_id":"r-1"}` {
		t.Fatalf("unexpected payload %s", envelope.Payload)
	}
}

func TestEventOutbox_EnqueueRejectsPublic(t *testing.T) {
	f := newFixture(t)

	_, err := f.outbox.Enqueue(context.Background(), &memOutbox{store: f.store}, domain.TenantPublic, domain.EventRoleCreated, nil, "")
	if !errors.Is(err, domain.ErrInvalidTenant) {
		t.Fatalf("expected ErrInvalidTenant, got %v", err)
	}
}

func TestOutboxPublisher_FailuresKeepMessagePending(t *testing.T) {
	f := newFixture(t)
	id := enqueue(t, f, domain.TenantSPD, domain.EventUserCreated)

	repo := &memOutbox{store: f.store}
	metrics := newCountingMetrics()
	publisher := NewOutboxPublisher(repo, &fakeChannel{failAll: true}, metrics, 10, nil)

	const sweeps = 3
	for i := 0; i < sweeps; i++ {
		result := publisher.SweepOnce(context.Background())
		if result.Failed != 1 || result.Delivered != 0 {
			t.Fatalf("sweep %d: unexpected result %+v", i, result)
		}
	}

	message := repo.message(domain.TenantSPD, id)
	if !message.Pending() {
		t.Fatalf("failed message must stay pending")
	}
	if message.Attempts != sweeps {
		t.Fatalf("expected %d attempts, got %d", sweeps, message.Attempts)
	}
	if message.LastError == nil || *message.LastError != "broker unavailable" {
		t.Fatalf("expected last error recorded, got %v", message.LastError)
	}
	if metrics.failed[domain.TenantSPD] != sweeps || metrics.sweeps != sweeps {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestOutboxPublisher_FailuresDoNotAbortBatchOrTenants(t *testing.T) {
	f := newFixture(t)
	bad := enqueue(t, f, domain.TenantSPD, domain.EventUserCreated)
	good := enqueue(t, f, domain.TenantSPD, domain.EventUserDeactivated)
	sis := enqueue(t, f, domain.TenantSIS, domain.EventRoleCreated)

	repo := &memOutbox{store: f.store}
	channel := &fakeChannel{failIDs: map[string]bool{bad: true}}
	publisher := NewOutboxPublisher(repo, channel, nil, 10, nil)

	result := publisher.SweepOnce(context.Background())
	if result.Delivered != 2 || result.Failed != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if repo.message(domain.TenantSPD, good).Pending() || repo.message(domain.TenantSIS, sis).Pending() {
		t.Fatalf("delivered messages must be stamped processed")
	}
	if !repo.message(domain.TenantSPD, bad).Pending() {
		t.Fatalf("failed message must stay pending")
	}

	// a broken tenant partition does not stop the next one
	late := enqueue(t, f, domain.TenantSIS, domain.EventRoleCreated)
	repo.listErr = map[domain.Tenant]error{domain.TenantSPD: errors.New("relation does not exist")}
	result = publisher.SweepOnce(context.Background())
	if result.Delivered != 1 || repo.message(domain.TenantSIS, late).Pending() {
		t.Fatalf("expected SIS delivery despite SPD failure, got %+v", result)
	}
}

func TestOutboxPublisher_PublishesInOccurrenceOrder(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var want []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		f.outbox.WithClock(func() time.Time { return at })
		want = append(want, enqueue(t, f, domain.TenantSPD, domain.EventUserCreated))
	}
	// appended out of order
	msgs := f.store.outbox[domain.TenantSPD]
	msgs[0], msgs[2] = msgs[2], msgs[0]

	channel := &fakeChannel{}
	NewOutboxPublisher(&memOutbox{store: f.store}, channel, nil, 10, nil).SweepOnce(context.Background())

	if len(channel.published) != 3 {
		t.Fatalf("expected 3 deliveries, got %v", channel.published)
	}
	for i := range want {
		if channel.published[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, channel.published)
		}
	}
}

func TestOutboxPublisher_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	id := enqueue(t, f, domain.TenantSPD, domain.EventUserCreated)

	channel := &fakeChannel{notify: make(chan string, 1)}
	repo := &memOutbox{store: f.store}
	publisher := NewOutboxPublisher(repo, channel, nil, 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- publisher.Run(ctx, time.Hour) }()

	select {
	case got := <-channel.notify:
		if got != id {
			t.Fatalf("expected %s delivered, got %s", id, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("publisher never delivered the message")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancellation")
	}
	if repo.message(domain.TenantSPD, id).Pending() {
		t.Fatalf("expected message stamped processed")
	}
}
