package settlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/repository"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal { v := d(s); return &v }

func TestSettleSplit(t *testing.T) {
	tests := []struct {
		name       string
		total      string
		rows       []Row
		wantErr    error
		wantChange string
		wantLen    int
	}{
		{"cash and card cover exactly", "100.00", []Row{{"cash", d("60.00")}, {"card", d("40.00")}}, nil, "0", 2},
		{"cash short", "100.00", []Row{{"cash", d("30.00")}}, ErrInsufficientSplitCoverage, "0", 1},
		{"no rows with amount", "100.00", []Row{{"cash", d("0")}, {"card", d("0")}}, ErrEmptySplit, "0", 0},
		{"zero rows ignored", "50.00", []Row{{"cash", d("0")}, {"card", d("50.00")}}, nil, "0", 1},
		{"half cent rounds up", "100.00", []Row{{"card", d("99.995")}}, nil, "0", 1},
		{"excess becomes cash change", "100.00", []Row{{"card", d("40.00")}, {"cash", d("70.00")}}, nil, "10", 2},
		{"excess without cash is accepted", "100.00", []Row{{"card", d("60.00")}, {"card", d("50.00")}}, nil, "0", 2},
		{"small cash row still returns change", "100.00", []Row{{"cash", d("5.00")}, {"card", d("106.00")}}, nil, "11", 2},
		{"negative row", "10.00", []Row{{"cash", d("-1")}}, ErrNegativeAmount, "0", 0},
		{"unknown method", "10.00", []Row{{"voucher", d("10")}}, ErrUnknownMethod, "0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Settle(d(tt.total), Tender{Split: tt.rows}, DefaultMethods())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if out.Accepted {
					t.Fatal("rejected tender reported as accepted")
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			} else if !out.Accepted {
				t.Fatal("expected accepted")
			}
			if !out.ChangeDue.Equal(d(tt.wantChange)) {
				t.Fatalf("change = %s, want %s", out.ChangeDue, tt.wantChange)
			}
			if len(out.Breakdown) != tt.wantLen {
				t.Fatalf("breakdown rows = %d, want %d", len(out.Breakdown), tt.wantLen)
			}
		})
	}
}

func TestSettleSplitCoverageDetail(t *testing.T) {
	_, err := Settle(d("100"), Tender{Split: []Row{{"cash", d("30")}}}, DefaultMethods())
	var ce *CoverageError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *CoverageError", err)
	}
	if !ce.Shortfall.Equal(d("70")) {
		t.Fatalf("shortfall = %s, want 70", ce.Shortfall)
	}
}

func TestSettleSplitChargesNetOfChange(t *testing.T) {
	out, err := Settle(d("100"), Tender{Split: []Row{{"card", d("40")}, {"cash", d("70")}}}, DefaultMethods())
	if err != nil {
		t.Fatal(err)
	}
	charged := decimal.Zero
	for _, e := range out.Breakdown {
		charged = charged.Add(e.Amount)
	}
	if !charged.Equal(d("100")) {
		t.Fatalf("charged %s, want 100", charged)
	}
	if !out.Breakdown[1].Change.Equal(d("10")) {
		t.Fatalf("change not on cash row: %+v", out.Breakdown)
	}
}

func TestSettleSplitOverpayment(t *testing.T) {
	t.Run("no change row", func(t *testing.T) {
		out, err := Settle(d("100"), Tender{Split: []Row{{"card", d("60")}, {"card", d("50")}}}, DefaultMethods())
		if err != nil || !out.Accepted {
			t.Fatalf("outcome = %+v, %v", out, err)
		}
		if !out.ChangeDue.IsZero() || !out.Overpaid.Equal(d("10")) {
			t.Fatalf("change %s overpaid %s, want 0 and 10", out.ChangeDue, out.Overpaid)
		}
		if !out.Breakdown[0].Amount.Equal(d("60")) || !out.Breakdown[1].Amount.Equal(d("50")) {
			t.Fatalf("card rows altered: %+v", out.Breakdown)
		}
	})
	t.Run("cash row smaller than excess", func(t *testing.T) {
		out, err := Settle(d("100"), Tender{Split: []Row{{"cash", d("5")}, {"card", d("106")}}}, DefaultMethods())
		if err != nil || !out.Accepted {
			t.Fatalf("outcome = %+v, %v", out, err)
		}
		if !out.ChangeDue.Equal(d("11")) || !out.Overpaid.IsZero() {
			t.Fatalf("change %s overpaid %s, want 11 and 0", out.ChangeDue, out.Overpaid)
		}
		cash := out.Breakdown[0]
		if !cash.Change.Equal(d("11")) || !cash.Amount.Equal(d("-6")) {
			t.Fatalf("cash row = %+v", cash)
		}
		net := cash.Amount.Add(out.Breakdown[1].Amount)
		if !net.Equal(d("100")) {
			t.Fatalf("net charged %s, want 100", net)
		}
	})
	t.Run("prefers a cash row that covers the excess", func(t *testing.T) {
		rows := []Row{{"cash", d("5")}, {"card", d("90")}, {"cash", d("20")}}
		out, err := Settle(d("100"), Tender{Split: rows}, DefaultMethods())
		if err != nil {
			t.Fatal(err)
		}
		if !out.Breakdown[0].Change.IsZero() || !out.Breakdown[2].Change.Equal(d("15")) {
			t.Fatalf("change rows = %+v", out.Breakdown)
		}
	})
}

func TestSettleSingleRejectsOverpaidCard(t *testing.T) {
	out, err := Settle(d("100"), Tender{Method: "card", AmountReceived: dp("105")}, DefaultMethods())
	if !errors.Is(err, ErrOverpaymentWithoutChange) {
		t.Fatalf("err = %v, want ErrOverpaymentWithoutChange", err)
	}
	if out.Accepted || !out.ChangeDue.IsZero() {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestSettleSplitRejectsNonSplittableMethod(t *testing.T) {
	methods := NewMethods([]model.PaymentMethod{
		{Code: "cash", AllowsChangeDue: true, AllowsPartialPayment: true},
		{Code: "voucher", AllowsPartialPayment: false},
	})
	_, err := Settle(d("50"), Tender{Split: []Row{{"cash", d("20")}, {"voucher", d("30")}}}, methods)
	if !errors.Is(err, ErrMethodNotSplittable) {
		t.Fatalf("err = %v, want ErrMethodNotSplittable", err)
	}
}

func TestSettleSingle(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		received   *decimal.Decimal
		wantErr    error
		wantChange string
		wantCharge string
	}{
		{"cash with change", "cash", dp("120.00"), nil, "20", "100"},
		{"cash exact", "cash", dp("100.00"), nil, "0", "100"},
		{"cash short", "cash", dp("99.00"), ErrPaymentBelowTotal, "0", "99"},
		{"card exact", "card", dp("100.00"), nil, "0", "100"},
		{"card below total", "card", dp("99.98"), ErrPaymentBelowTotal, "0", "99.98"},
		{"card within rounding charges total", "card", dp("100.004"), nil, "0", "100"},
		{"card over total", "card", dp("105.00"), ErrOverpaymentWithoutChange, "0", "105"},
		{"missing received", "cash", nil, ErrAmountReceivedRequired, "0", ""},
		{"unknown method", "bitcoin", dp("100"), ErrUnknownMethod, "0", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Settle(d("100.00"), Tender{Method: tt.method, AmountReceived: tt.received}, DefaultMethods())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !out.ChangeDue.Equal(d(tt.wantChange)) {
				t.Fatalf("change = %s, want %s", out.ChangeDue, tt.wantChange)
			}
			if tt.wantCharge == "" {
				return
			}
			if len(out.Breakdown) != 1 {
				t.Fatalf("single tender breakdown rows = %d, want 1", len(out.Breakdown))
			}
			if !out.Breakdown[0].Amount.Equal(d(tt.wantCharge)) {
				t.Fatalf("charged %s, want %s", out.Breakdown[0].Amount, tt.wantCharge)
			}
		})
	}
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]model.Order
}

func (m *memOrders) GetByID(_ context.Context, id string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, repository.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) MarkPaid(_ context.Context, id, method string, parts []model.PaymentPart) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, repository.ErrNotFound
	}
	if o.Status != model.StatusPending {
		return model.Order{}, repository.ErrConflict
	}
	o.Status = model.StatusPaid
	o.PaymentMethod = method
	o.Payments = parts
	m.orders[id] = o
	return o, nil
}

type memGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

func (g *memGuard) SettlementKey(id string) string { return "settle:" + id }

func (g *memGuard) Acquire(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[key] {
		return false, nil
	}
	g.held[key] = true
	return true, nil
}

func (g *memGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, key)
	return nil
}

type settledRecorder struct {
	mu sync.Mutex
	n  int
}

func (r *settledRecorder) PaymentSettled(context.Context, model.Order, Outcome) {
	r.mu.Lock()
	r.n++
	r.mu.Unlock()
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newOrders() *memOrders {
	return &memOrders{orders: map[string]model.Order{
		"o-1": {ID: "o-1", Status: model.StatusPending, Total: d("100.00")},
		"o-2": {ID: "o-2", Status: model.StatusCancelled, Total: d("10.00")},
	}}
}

func TestServiceSettlePayment(t *testing.T) {
	orders := newOrders()
	events := &settledRecorder{}
	svc := NewService(orders, nil, &memGuard{held: map[string]bool{}}, events, quiet())
	ctx := context.Background()

	tender := Tender{Split: []Row{{"cash", d("60")}, {"card", d("40")}}}
	paid, out, err := svc.SettlePayment(ctx, "o-1", Request{Total: dp("100.00"), Tender: tender})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if paid.Status != model.StatusPaid || paid.PaymentMethod != "split" || len(paid.Payments) != 2 {
		t.Fatalf("order = %+v", paid)
	}
	if !out.Accepted {
		t.Fatal("expected accepted")
	}
	if events.n != 1 {
		t.Fatalf("settled events = %d, want 1", events.n)
	}

	if _, _, err := svc.SettlePayment(ctx, "o-1", Request{Tender: tender}); !errors.Is(err, ErrConcurrentSettlement) {
		t.Fatalf("second settle err = %v, want ErrConcurrentSettlement", err)
	}
	if _, _, err := svc.SettlePayment(ctx, "o-2", Request{Tender: tender}); !errors.Is(err, ErrOrderCancelled) {
		t.Fatalf("cancelled settle err = %v, want ErrOrderCancelled", err)
	}
}

func TestServiceRejectedTenderLeavesOrderPending(t *testing.T) {
	orders := newOrders()
	svc := NewService(orders, nil, nil, nil, quiet())

	_, _, err := svc.SettlePayment(context.Background(), "o-1", Request{Tender: Tender{Split: []Row{{"cash", d("30")}}}})
	if !errors.Is(err, ErrInsufficientSplitCoverage) {
		t.Fatalf("err = %v, want ErrInsufficientSplitCoverage", err)
	}
	o, _ := orders.GetByID(context.Background(), "o-1")
	if o.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending", o.Status)
	}
}

func TestServiceStaleTotal(t *testing.T) {
	svc := NewService(newOrders(), nil, nil, nil, quiet())
	_, _, err := svc.SettlePayment(context.Background(), "o-1", Request{
		Total:  dp("90.00"),
		Tender: Tender{Method: "cash", AmountReceived: dp("100")},
	})
	if !errors.Is(err, ErrTotalMismatch) {
		t.Fatalf("err = %v, want ErrTotalMismatch", err)
	}
}

func TestServiceConcurrentSettlementSingleCharge(t *testing.T) {
	orders := newOrders()
	svc := NewService(orders, nil, &memGuard{held: map[string]bool{}}, nil, quiet())

	const terminals = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, conflicts := 0, 0
	for i := 0; i < terminals; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.SettlePayment(context.Background(), "o-1", Request{
				Tender: Tender{Method: "card", AmountReceived: dp("100")},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrConcurrentSettlement):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || conflicts != terminals-1 {
		t.Fatalf("ok=%d conflicts=%d, want 1 and %d", ok, conflicts, terminals-1)
	}
}
