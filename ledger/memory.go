package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ApplyStep names one stage of Apply, in the order stages run.
type ApplyStep string

const (
	StepCash        ApplyStep = "cash"
	StepHolding     ApplyStep = "holding"
	StepTransaction ApplyStep = "transaction"
	StepVolume      ApplyStep = "volume"
)

type holdingKey struct {
	account string
	symbol  string
}

// MemStore is an in-memory Store. Apply snapshots the records it touches
// and restores them if any step fails.
type MemStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	stocks   map[string]Stock
	holdings map[holdingKey]Holding
	txns     []Transaction
	txnIndex map[string]int
	prices   map[string]StockPrice

	// BeforeStep, when set, runs before each Apply step. A non-nil error
	// aborts the apply and rolls it back. Used to inject storage faults.
	BeforeStep func(ApplyStep) error
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		accounts: make(map[string]Account),
		stocks:   make(map[string]Stock),
		holdings: make(map[holdingKey]Holding),
		txnIndex: make(map[string]int),
		prices:   make(map[string]StockPrice),
	}
}

func (s *MemStore) CreateAccount(ctx context.Context, a Account) error {
	if a.ID == "" {
		return fmt.Errorf("create account: empty id")
	}
	if a.Cash.IsNegative() {
		return fmt.Errorf("create account %q: negative cash", a.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; ok {
		return fmt.Errorf("create account %q: %w", a.ID, ErrDuplicate)
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *MemStore) Account(ctx context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("account %q: %w", id, ErrAccountNotFound)
	}
	return a, nil
}

func (s *MemStore) Accounts(ctx context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) RegisterStock(ctx context.Context, st Stock) error {
	if st.Symbol == "" {
		return fmt.Errorf("register stock: empty symbol")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stocks[st.Symbol]; ok {
		return fmt.Errorf("register stock %q: %w", st.Symbol, ErrDuplicate)
	}
	s.stocks[st.Symbol] = st
	return nil
}

func (s *MemStore) Stock(ctx context.Context, symbol string) (Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stocks[symbol]
	if !ok {
		return Stock{}, fmt.Errorf("stock %q: %w", symbol, ErrStockNotFound)
	}
	return st, nil
}

func (s *MemStore) Stocks(ctx context.Context) ([]Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Stock, 0, len(s.stocks))
	for _, st := range s.stocks {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *MemStore) ResetDailyVolumes(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, st := range s.stocks {
		st.DailyVolume = 0
		s.stocks[sym] = st
	}
	return nil
}

func (s *MemStore) RecordPrice(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) error {
	if !price.IsPositive() {
		return fmt.Errorf("record price %s: price must be positive, got %s", symbol, price)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stocks[symbol]; !ok {
		return fmt.Errorf("record price %q: %w", symbol, ErrStockNotFound)
	}
	s.prices[symbol] = StockPrice{Symbol: symbol, Price: price, At: at}
	return nil
}

// LastPrices returns the recorded prices ordered by symbol.
func (s *MemStore) LastPrices(ctx context.Context) ([]StockPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StockPrice, 0, len(s.prices))
	for _, p := range s.prices {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *MemStore) Holding(ctx context.Context, accountID, symbol string) (Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.holdings[holdingKey{accountID, symbol}]
	if !ok {
		return Holding{}, fmt.Errorf("holding %s/%s: %w", accountID, symbol, ErrHoldingNotFound)
	}
	return h, nil
}

func (s *MemStore) Holdings(ctx context.Context, accountID string) ([]Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Holding
	for k, h := range s.holdings {
		if k.account == accountID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *MemStore) Transaction(ctx context.Context, id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.txnIndex[id]
	if !ok {
		return Transaction{}, fmt.Errorf("transaction %q: %w", id, ErrTransactionNotFound)
	}
	return s.txns[i], nil
}

// Transactions returns the account's transactions, newest first.
func (s *MemStore) Transactions(ctx context.Context, accountID string, f TransactionFilter) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transaction
	for i := len(s.txns) - 1; i >= 0; i-- {
		t := s.txns[i]
		if t.AccountID != accountID || !f.match(t) {
			continue
		}
		out = append(out, t)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemStore) Apply(ctx context.Context, m Mutation) Outcome {
	if err := m.Validate(); err != nil {
		return rolledBack(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := holdingKey{m.AccountID, m.Holding.Symbol}
	prevAcct, hadAcct := s.accounts[m.AccountID]
	prevHolding, hadHolding := s.holdings[key]
	prevStock, hadStock := s.stocks[m.Transaction.Symbol]
	prevTxns := len(s.txns)

	restore := func() {
		if hadAcct {
			s.accounts[m.AccountID] = prevAcct
		}
		if hadHolding {
			s.holdings[key] = prevHolding
		} else {
			delete(s.holdings, key)
		}
		if hadStock {
			s.stocks[m.Transaction.Symbol] = prevStock
		}
		for _, t := range s.txns[prevTxns:] {
			delete(s.txnIndex, t.ID)
		}
		s.txns = s.txns[:prevTxns]
	}

	if err := s.applyLocked(m, key); err != nil {
		restore()
		return rolledBack(err)
	}
	return committed()
}

func (s *MemStore) applyLocked(m Mutation, key holdingKey) error {
	if err := s.step(StepCash); err != nil {
		return err
	}
	acct, ok := s.accounts[m.AccountID]
	if !ok {
		return fmt.Errorf("account %q: %w", m.AccountID, ErrAccountNotFound)
	}
	held := decimal.Zero
	if h, ok := s.holdings[key]; ok {
		held = h.Quantity
	}
	if err := checkPrior(m, acct.Cash, held); err != nil {
		return err
	}
	acct.Cash = m.Cash
	s.accounts[m.AccountID] = acct

	if err := s.step(StepHolding); err != nil {
		return err
	}
	if m.Holding.Quantity.IsZero() {
		delete(s.holdings, key)
	} else {
		s.holdings[key] = m.Holding
	}

	if err := s.step(StepTransaction); err != nil {
		return err
	}
	if _, dup := s.txnIndex[m.Transaction.ID]; dup {
		return fmt.Errorf("transaction %q: %w", m.Transaction.ID, ErrDuplicate)
	}
	s.txnIndex[m.Transaction.ID] = len(s.txns)
	s.txns = append(s.txns, m.Transaction)

	if err := s.step(StepVolume); err != nil {
		return err
	}
	st, ok := s.stocks[m.Transaction.Symbol]
	if !ok {
		return fmt.Errorf("stock %q: %w", m.Transaction.Symbol, ErrStockNotFound)
	}
	st.DailyVolume += m.VolumeDelta
	s.stocks[m.Transaction.Symbol] = st
	return nil
}

func (s *MemStore) step(name ApplyStep) error {
	if s.BeforeStep == nil {
		return nil
	}
	if err := s.BeforeStep(name); err != nil {
		return fmt.Errorf("%s step: %w", name, err)
	}
	return nil
}

func (s *MemStore) Close() error { return nil }
