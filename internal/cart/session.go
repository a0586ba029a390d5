package cart

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/pos-engine/internal/discount"
	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/utils"
)

// OrderContext is everything about the in-progress order other than its
// lines.  It is copied into the draft on submit.
type OrderContext struct {
	Type        model.OrderType    `json:"type,omitempty"`
	ResourceID  *uint64            `json:"resource_id,omitempty"`
	BookingID   *uint64            `json:"booking_id,omitempty"`
	Stay        *model.RoomStay    `json:"stay,omitempty"`
	GuestCount  int                `json:"guest_count,omitempty"`
	Customer    model.CustomerInfo `json:"customer"`
	Discount    discount.Spec      `json:"discount"`
	UseLoyalty  bool               `json:"use_loyalty"`
	TaxRate     *decimal.Decimal   `json:"tax_rate,omitempty"`
	DeliveryFee decimal.Decimal    `json:"delivery_fee"`
	Notes       string             `json:"notes,omitempty"`
}

// Session is the server-owned cart of one staff member at one terminal.
// DraftID becomes the order id on submit, so a retried submit of the same
// session can never create a second order.
type Session struct {
	DraftID   string           `json:"draft_id"`
	Lines     []model.CartLine `json:"lines"`
	Context   OrderContext     `json:"context"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewSession returns an empty session with a fresh draft id.
func NewSession() Session {
	return Session{DraftID: uuid.NewString(), Lines: []model.CartLine{}}
}

// Ledger returns a ledger over a copy of the session lines.
func (s Session) Ledger() *Ledger { return NewLedger(s.Lines) }

// backend is the subset of *redis.Client the store uses.
type backend interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// SessionStore keeps sessions in Redis with a sliding TTL.  Customer contact
// and address fields are sealed before they leave the process.
type SessionStore struct {
	kv     backend
	sealer *utils.Sealer
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionStore returns a store over rdb.  The client must not be nil.
func NewSessionStore(rdb *redis.Client, sealer *utils.Sealer, ttl time.Duration) *SessionStore {
	return newSessionStore(rdb, sealer, ttl)
}

func newSessionStore(kv backend, sealer *utils.Sealer, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionStore{kv: kv, sealer: sealer, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Key is the Redis key of the session for staffID at terminalID.
func Key(staffID, terminalID string) string {
	return "cart:" + staffID + ":" + terminalID
}

// Load returns the stored session or a new one when none exists or it
// expired.
func (s *SessionStore) Load(ctx context.Context, staffID, terminalID string) (Session, error) {
	key := Key(staffID, terminalID)
	raw, err := s.kv.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewSession(), nil
	}
	if err != nil {
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, err
	}
	if sess.Context.Customer, err = openCustomer(s.sealer, sess.Context.Customer, key); err != nil {
		return Session{}, err
	}
	if sess.Lines == nil {
		sess.Lines = []model.CartLine{}
	}
	return sess, nil
}

// Save stores sess and restarts its TTL.
func (s *SessionStore) Save(ctx context.Context, staffID, terminalID string, sess Session) error {
	key := Key(staffID, terminalID)
	sealed, err := sealCustomer(s.sealer, sess.Context.Customer, key)
	if err != nil {
		return err
	}
	sess.Context.Customer = sealed
	sess.UpdatedAt = s.now()
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, key, raw, s.ttl).Err()
}

// Clear drops the session.  The next Load starts a new draft.
func (s *SessionStore) Clear(ctx context.Context, staffID, terminalID string) error {
	return s.kv.Del(ctx, Key(staffID, terminalID)).Err()
}

// piiFields lists the customer fields sealed at rest.
func piiFields(c *model.CustomerInfo) []*string {
	return []*string{&c.Phone, &c.Email, &c.AddressLine1, &c.AddressLine2, &c.City}
}

// sealCustomer seals the personal fields of c.  The session key is bound as
// additional data so a sealed value cannot be replayed into another cart.
func sealCustomer(sealer *utils.Sealer, c model.CustomerInfo, key string) (model.CustomerInfo, error) {
	for _, f := range piiFields(&c) {
		v, err := sealer.Seal(*f, key)
		if err != nil {
			return model.CustomerInfo{}, err
		}
		*f = v
	}
	return c, nil
}

func openCustomer(sealer *utils.Sealer, c model.CustomerInfo, key string) (model.CustomerInfo, error) {
	for _, f := range piiFields(&c) {
		v, err := sealer.Open(*f, key)
		if err != nil {
			return model.CustomerInfo{}, err
		}
		*f = v
	}
	return c, nil
}
