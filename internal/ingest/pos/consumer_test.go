package pos

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/mallquest/mallquest/internal/authgate"
	"github.com/mallquest/mallquest/internal/domain"
	"github.com/mallquest/mallquest/internal/progression"
)

type fakeHandler struct {
	mu       sync.Mutex
	received []progression.ReceiptRequest
	err      error
}

func (f *fakeHandler) SubmitReceipt(ctx context.Context, claims *authgate.Claims, req progression.ReceiptRequest) (*progression.ReceiptResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.received = append(f.received, req)
	return &progression.ReceiptResponse{ReceiptID: "r-" + req.IdempotencyKey}, nil
}

func testConsumer(h ReceiptHandler) *Consumer {
	return &Consumer{handler: h, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestProcessBatchSubmitsEachEventAsAReceipt(t *testing.T) {
	h := &fakeHandler{}
	gh := &groupHandler{consumer: testConsumer(h)}

	gh.processBatch([]Event{
		{TenantID: "tenant1", UserID: "user1", Amount: 50, Store: "Zara", Category: "fashion", IdempotencyKey: "k1"},
		{TenantID: "tenant1", UserID: "user2", Amount: 75, Store: "Carrefour", Category: "grocery", IdempotencyKey: "k2"},
	})

	if len(h.received) != 2 {
		t.Fatalf("expected 2 receipts submitted, got %d", len(h.received))
	}
	if h.received[0].Source != domain.SourcePOS {
		t.Fatalf("expected source pos, got %v", h.received[0].Source)
	}
}

func TestProcessBatchToleratesHandlerError(t *testing.T) {
	h := &fakeHandler{err: domain.ErrBusy}
	gh := &groupHandler{consumer: testConsumer(h)}

	gh.processBatch([]Event{{TenantID: "tenant1", UserID: "user1", Amount: 50, IdempotencyKey: "k1"}})
	// a failed submit is logged and swallowed, not propagated — the test's
	// only assertion is that processBatch returns without panicking.
}

func TestProcessBatchDefaultsTimestampWhenUnparseable(t *testing.T) {
	h := &fakeHandler{}
	gh := &groupHandler{consumer: testConsumer(h)}

	gh.processBatch([]Event{{TenantID: "tenant1", UserID: "user1", Amount: 50, IdempotencyKey: "k1", Timestamp: "not-a-time"}})

	if h.received[0].Timestamp.IsZero() {
		t.Fatal("expected a non-zero fallback timestamp when the event's timestamp doesn't parse")
	}
}
