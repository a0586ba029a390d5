package order

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/pos-engine/internal/checkout"
	"github.com/iliyamo/pos-engine/internal/discount"
	"github.com/iliyamo/pos-engine/internal/loyalty"
	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/pricing"
	"github.com/iliyamo/pos-engine/internal/repository"
	"github.com/iliyamo/pos-engine/internal/tax"
	"github.com/iliyamo/pos-engine/internal/validation"
)

type memStore struct {
	mu        sync.Mutex
	orders    map[string]model.Order
	resources map[uint64]model.SeatResource
	// dupes is the number of upcoming Create calls that fail with a
	// duplicate order number.
	dupes   int
	creates int
	// landDraft stores the order before reporting the duplicate, as if a
	// concurrent resubmission of the same draft won.
	landDraft bool
}

func newMemStore() *memStore {
	return &memStore{orders: map[string]model.Order{}, resources: map[uint64]model.SeatResource{}}
}

func (m *memStore) GetByID(_ context.Context, id string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, repository.ErrNotFound
	}
	return o, nil
}

func (m *memStore) Create(_ context.Context, o model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.dupes > 0 {
		m.dupes--
		if m.landDraft {
			m.orders[o.ID] = o
		}
		return errors.Join(repository.ErrDuplicateKey, errors.New("Duplicate entry for key 'uq_orders_number'"))
	}
	if _, ok := m.orders[o.ID]; ok {
		return repository.ErrDuplicateKey
	}
	if o.ResourceID != nil {
		res := m.resources[*o.ResourceID]
		next, err := res.BindOrder(o.ID)
		if err != nil {
			return err
		}
		m.resources[res.ID] = next
	}
	m.orders[o.ID] = o
	return nil
}

func (m *memStore) CountForDay(_ context.Context, _ time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders), nil
}

func (m *memStore) Cancel(_ context.Context, id, reason string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, repository.ErrNotFound
	}
	if o.Status == model.StatusPaid {
		return model.Order{}, repository.ErrConflict
	}
	o.Status = model.StatusCancelled
	o.CancelReason = reason
	m.orders[id] = o
	if o.ResourceID != nil {
		res := m.resources[*o.ResourceID]
		if next, changed := res.ReleaseOrder(o.ID); changed {
			m.resources[res.ID] = next
		}
	}
	return o, nil
}

func (m *memStore) Get(_ context.Context, id uint64) (model.SeatResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resources[id]
	if !ok {
		return model.SeatResource{}, repository.ErrNotFound
	}
	return r, nil
}

type memCatalog map[uint64]model.CatalogItem

func (c memCatalog) GetItem(_ context.Context, id uint64) (model.CatalogItem, error) {
	item, ok := c[id]
	if !ok {
		return model.CatalogItem{}, repository.ErrNotFound
	}
	return item, nil
}

func menu() memCatalog {
	return memCatalog{
		1: {ID: 1, Name: "Burger", BasePrice: d("12.50"), Category: "mains",
			Variants: []model.VariantGroup{{Name: "Size", Options: []model.VariantOption{
				{Name: "Single", PriceModifier: decimal.Zero},
				{Name: "Double", PriceModifier: d("4.00")},
			}}}},
		2: {ID: 2, Name: "Platter", BasePrice: d("1500"), Category: "sharing"},
	}
}

type cartRecorder struct{ cleared []string }

func (c *cartRecorder) Clear(_ context.Context, staffID, terminalID string) error {
	c.cleared = append(c.cleared, staffID+":"+terminalID)
	return nil
}

type eventRecorder struct{ committed, cancelled int }

func (e *eventRecorder) OrderCommitted(context.Context, model.Order) { e.committed++ }
func (e *eventRecorder) OrderCancelled(context.Context, model.Order) { e.cancelled++ }

type pointsStore int

func (p pointsStore) AvailablePoints(context.Context, string) (int, error) { return int(p), nil }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store  *memStore
	carts  *cartRecorder
	events *eventRecorder
	svc    *Service
}

func newFixture(points int) fixture {
	f := fixture{store: newMemStore(), carts: &cartRecorder{}, events: &eventRecorder{}}
	f.svc = NewService(Deps{
		Orders:     f.store,
		Catalog:    pricing.NewService(menu()),
		Resources:  f.store,
		Carts:      f.carts,
		Events:     f.events,
		Loyalty:    loyalty.NewResolver(pointsStore(points), time.Second, quiet()),
		Calculator: checkout.NewCalculator(discount.DefaultPolicy(), tax.NewCalculator(decimal.Zero)),
	}, time.Millisecond, quiet())
	f.svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func takeaway(id string) Draft {
	return Draft{
		ID:         id,
		Type:       model.OrderTakeaway,
		Lines:      []model.CartLine{{ID: "l-1", CatalogItemID: 1, Name: "Burger", UnitPrice: d("12.50"), Quantity: 2}},
		Customer:   model.CustomerInfo{Name: "Sam", Phone: "555-0101"},
		StaffID:    "staff-1",
		TerminalID: "term-1",
	}
}

func TestSubmitCommits(t *testing.T) {
	f := newFixture(0)
	o, err := f.svc.Submit(context.Background(), takeaway("o-1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.Number != "ORD-20260301-0001" {
		t.Fatalf("number = %q", o.Number)
	}
	if o.Status != model.StatusPending || !o.Total.Equal(d("25")) {
		t.Fatalf("order = %+v", o)
	}
	if len(f.carts.cleared) != 1 || f.carts.cleared[0] != "staff-1:term-1" {
		t.Fatalf("cart cleared = %v", f.carts.cleared)
	}
	if f.events.committed != 1 {
		t.Fatalf("committed events = %d", f.events.committed)
	}
}

func TestSubmitRetriesDuplicateOnce(t *testing.T) {
	f := newFixture(0)
	f.store.dupes = 1

	o, err := f.svc.Submit(context.Background(), takeaway("o-1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if f.store.creates != 2 {
		t.Fatalf("creates = %d, want 2", f.store.creates)
	}
	if len(f.store.orders) != 1 {
		t.Fatalf("orders stored = %d, want 1", len(f.store.orders))
	}
	if o.ID != "o-1" {
		t.Fatalf("id = %q", o.ID)
	}
}

func TestSubmitSecondDuplicateIsFatal(t *testing.T) {
	f := newFixture(0)
	f.store.dupes = 2

	_, err := f.svc.Submit(context.Background(), takeaway("o-1"))
	if !errors.Is(err, ErrDuplicateOrderConflict) {
		t.Fatalf("err = %v, want ErrDuplicateOrderConflict", err)
	}
	if f.store.creates != 2 {
		t.Fatalf("creates = %d, want exactly 2", f.store.creates)
	}
	if len(f.store.orders) != 0 || f.events.committed != 0 || len(f.carts.cleared) != 0 {
		t.Fatal("failed commit left side effects")
	}
}

func TestSubmitSameDraftTwice(t *testing.T) {
	f := newFixture(0)
	f.store.dupes = 1
	f.store.landDraft = true

	first, err := f.svc.Submit(context.Background(), takeaway("o-1"))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := f.svc.Submit(context.Background(), takeaway("o-1"))
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if len(f.store.orders) != 1 {
		t.Fatalf("orders stored = %d, want 1", len(f.store.orders))
	}
	if first.Number != second.Number {
		t.Fatalf("numbers differ: %q vs %q", first.Number, second.Number)
	}
	if f.store.creates != 1 {
		t.Fatalf("creates = %d, want 1", f.store.creates)
	}
}

func TestSubmitStopsOnContextCancel(t *testing.T) {
	f := newFixture(0)
	f.svc.backoff = time.Minute
	f.store.dupes = 1
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.svc.Submit(ctx, takeaway("o-1")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(0)
	draft := takeaway("o-1")
	draft.Customer.Phone = ""

	_, err := f.svc.Submit(context.Background(), draft)
	var ve validation.Error
	if !errors.As(err, &ve) || ve.Field != "customer.phone" {
		t.Fatalf("err = %v, want customer.phone validation error", err)
	}
	if f.store.creates != 0 {
		t.Fatal("invalid draft reached the store")
	}
}

func TestSubmitRepricesLinesFromCatalog(t *testing.T) {
	f := newFixture(0)
	draft := takeaway("o-1")
	draft.Lines = []model.CartLine{{
		ID: "l-1", CatalogItemID: 1, Name: "Free burger", BasePrice: d("0.01"), UnitPrice: d("0.01"),
		ModifiersSummary: "none", Quantity: 2, Note: "no onion",
		Choice: model.ModifierChoice{Variants: map[string]string{"Size": "Double"}},
	}}

	o, err := f.svc.Submit(context.Background(), draft)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	l := o.Lines[0]
	if !l.UnitPrice.Equal(d("16.50")) || !l.BasePrice.Equal(d("12.50")) || l.Name != "Burger" {
		t.Fatalf("line = %+v", l)
	}
	if l.ModifiersSummary != "Size: Double (+4.00)" || l.Note != "no onion" || l.ID != "l-1" {
		t.Fatalf("line = %+v", l)
	}
	if !o.Total.Equal(d("33")) {
		t.Fatalf("total = %s, want 33", o.Total)
	}

	draft.ID = "o-2"
	draft.Lines[0].CatalogItemID = 99
	var ve validation.Error
	if _, err := f.svc.Submit(context.Background(), draft); !errors.As(err, &ve) || ve.Field != "lines.catalog_item_id" {
		t.Fatalf("unknown item err = %v", err)
	}
}

func seated(orders map[string]int, bound string) model.SeatResource {
	res := model.SeatResource{ID: 7, Capacity: 6, Status: model.ResourceOccupied}
	for id, n := range orders {
		res = res.Claim(id, n)
	}
	res.CurrentOrderID = &bound
	return res
}

func dineIn(id string) Draft {
	table := uint64(7)
	draft := takeaway(id)
	draft.Type = model.OrderDineIn
	draft.ResourceID = &table
	return draft
}

func TestSubmitDineInBindsResource(t *testing.T) {
	f := newFixture(0)
	f.store.resources[7] = seated(map[string]int{"o-1": 3}, "o-1")

	draft := dineIn("o-1")
	draft.GuestCount = 5
	o, err := f.svc.Submit(context.Background(), draft)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.GuestCount != 3 {
		t.Fatalf("guest count = %d, want the 3 selected seats", o.GuestCount)
	}
	res, _ := f.store.Get(context.Background(), 7)
	if res.BoundOrder() != "o-1" || res.Status != model.ResourceOccupied {
		t.Fatalf("resource = %+v", res)
	}

	f.store.resources[7] = model.SeatResource{ID: 7, Capacity: 4, Status: model.ResourceReserved}
	if _, err := f.svc.Submit(context.Background(), dineIn("o-2")); !errors.As(err, new(validation.Error)) {
		t.Fatalf("reserved table err = %v, want validation error", err)
	}
}

func TestSubmitDineInRequiresSeats(t *testing.T) {
	f := newFixture(0)
	f.store.resources[7] = seated(map[string]int{"o-primary": 4}, "o-primary")

	var ve validation.Error
	if _, err := f.svc.Submit(context.Background(), dineIn("o-second")); !errors.As(err, &ve) || ve.Field != "resource_id" {
		t.Fatalf("err = %v, want resource_id validation error", err)
	}
	if f.store.creates != 0 {
		t.Fatal("order without seats reached the store")
	}
}

func TestCancelSecondaryOrderKeepsTable(t *testing.T) {
	f := newFixture(0)
	f.store.resources[7] = seated(map[string]int{"o-primary": 4, "o-second": 2}, "o-primary")
	for _, id := range []string{"o-primary", "o-second"} {
		if _, err := f.svc.Submit(context.Background(), dineIn(id)); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}
	if o, _ := f.store.GetByID(context.Background(), "o-second"); o.GuestCount != 2 {
		t.Fatalf("secondary guest count = %d, want 2", o.GuestCount)
	}

	if _, err := f.svc.Cancel(context.Background(), "o-second", "left early"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	res, _ := f.store.Get(context.Background(), 7)
	if res.Status != model.ResourceOccupied || res.UsedSeats != 4 || res.BoundOrder() != "o-primary" {
		t.Fatalf("resource after secondary cancel = %+v", res)
	}
	if res.SeatsFor("o-second") != 0 || res.RemainingSeats() != 2 {
		t.Fatalf("seats not returned: %+v", res)
	}
}

func TestSubmitAppliesLoyalty(t *testing.T) {
	f := newFixture(5000)
	draft := takeaway("o-1")
	draft.Lines = []model.CartLine{{ID: "l-1", CatalogItemID: 2, UnitPrice: d("1500"), Quantity: 1}}
	draft.UseLoyalty = true

	o, err := f.svc.Submit(context.Background(), draft)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !o.Discount.Equal(d("40")) || o.LoyaltyPoints != 4000 {
		t.Fatalf("discount = %s points = %d", o.Discount, o.LoyaltyPoints)
	}
	if !o.Total.Equal(d("1460")) {
		t.Fatalf("total = %s, want 1460", o.Total)
	}
}

func TestDeliveryFeeOnlyOnDelivery(t *testing.T) {
	f := newFixture(0)
	draft := takeaway("o-1")
	draft.DeliveryFee = d("5")
	q, err := f.svc.Quote(context.Background(), draft)
	if err != nil {
		t.Fatal(err)
	}
	if !q.Summary.DeliveryFee.IsZero() {
		t.Fatalf("takeaway charged delivery fee %s", q.Summary.DeliveryFee)
	}
}

func TestCancelReleasesResource(t *testing.T) {
	f := newFixture(0)
	f.store.resources[7] = seated(map[string]int{"o-1": 2}, "o-1")
	if _, err := f.svc.Submit(context.Background(), dineIn("o-1")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	o, err := f.svc.Cancel(context.Background(), "o-1", "guest left")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o.Status != model.StatusCancelled || o.CancelReason != "guest left" {
		t.Fatalf("order = %+v", o)
	}
	res, _ := f.store.Get(context.Background(), 7)
	if res.Status != model.ResourceAvailable || res.UsedSeats != 0 || res.CurrentOrderID != nil {
		t.Fatalf("resource not released: %+v", res)
	}

	if _, err := f.svc.Cancel(context.Background(), "o-1", "again"); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if f.events.cancelled != 1 {
		t.Fatalf("cancel events = %d, want 1", f.events.cancelled)
	}
}

func TestCancelPaidOrder(t *testing.T) {
	f := newFixture(0)
	f.store.orders["o-1"] = model.Order{ID: "o-1", Status: model.StatusPaid}
	if _, err := f.svc.Cancel(context.Background(), "o-1", "oops"); !errors.Is(err, ErrOrderPaid) {
		t.Fatalf("err = %v, want ErrOrderPaid", err)
	}
}

func TestNumber(t *testing.T) {
	got := Number(time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC), 42)
	if got != "ORD-20261231-0042" {
		t.Fatalf("number = %q", got)
	}
}
