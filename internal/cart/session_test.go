package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/utils"
)

type memKV struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memKV) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	default:
		m.data[key] = fmt.Sprint(v)
	}
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *memKV) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func testStore(t *testing.T) (*SessionStore, *memKV) {
	t.Helper()
	sealer, err := utils.NewEphemeralSealer()
	if err != nil {
		t.Fatal(err)
	}
	kv := newMemKV()
	return newSessionStore(kv, sealer, time.Hour), kv
}

func TestSessionRoundTripSealsContact(t *testing.T) {
	store, kv := testStore(t)
	ctx := context.Background()

	sess, err := store.Load(ctx, "staff-1", "term-1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.DraftID == "" || len(sess.Lines) != 0 {
		t.Fatalf("new session = %+v", sess)
	}

	sess.Lines = append(sess.Lines, model.CartLine{ID: "l-1", CatalogItemID: 3, UnitPrice: decimal.NewFromInt(12), Quantity: 2})
	sess.Context.Type = model.OrderDelivery
	sess.Context.Customer = model.CustomerInfo{Name: "Sam", Phone: "+15550100", AddressLine1: "1 Main St", City: "Springfield"}
	if err := store.Save(ctx, "staff-1", "term-1", sess); err != nil {
		t.Fatal(err)
	}

	raw := kv.data[Key("staff-1", "term-1")]
	for _, pii := range []string{"+15550100", "1 Main St", "Springfield"} {
		if strings.Contains(raw, pii) {
			t.Fatalf("stored session leaks %q: %s", pii, raw)
		}
	}
	if kv.ttls[Key("staff-1", "term-1")] != time.Hour {
		t.Fatal("ttl not applied")
	}

	got, err := store.Load(ctx, "staff-1", "term-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.DraftID != sess.DraftID || got.Context.Customer != sess.Context.Customer || len(got.Lines) != 1 {
		t.Fatalf("loaded = %+v", got)
	}
	if got.Ledger().ItemCount() != 2 {
		t.Fatalf("item count = %d", got.Ledger().ItemCount())
	}
}

func TestSessionSealedFieldsBoundToCart(t *testing.T) {
	store, kv := testStore(t)
	ctx := context.Background()

	sess := NewSession()
	sess.Context.Customer.Phone = "+15550100"
	if err := store.Save(ctx, "staff-1", "term-1", sess); err != nil {
		t.Fatal(err)
	}

	// Copy the stored blob under another terminal's key.
	var stolen Session
	if err := json.Unmarshal([]byte(kv.data[Key("staff-1", "term-1")]), &stolen); err != nil {
		t.Fatal(err)
	}
	blob, _ := json.Marshal(stolen)
	kv.data[Key("staff-2", "term-9")] = string(blob)

	if _, err := store.Load(ctx, "staff-2", "term-9"); err == nil {
		t.Fatal("sealed customer opened under a different cart key")
	}
}

func TestSessionClear(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	first := NewSession()
	if err := store.Save(ctx, "s", "t", first); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(ctx, "s", "t"); err != nil {
		t.Fatal(err)
	}
	next, err := store.Load(ctx, "s", "t")
	if err != nil {
		t.Fatal(err)
	}
	if next.DraftID == first.DraftID {
		t.Fatal("cleared cart kept its draft id")
	}
}
