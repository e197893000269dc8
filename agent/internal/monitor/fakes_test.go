package monitor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wallet-watch/agent/internal/dispatch"
	"wallet-watch/agent/internal/models"
	"wallet-watch/agent/internal/providers"
	"wallet-watch/shared/types"
)

// fakeProvider returns canned events or errors, optionally after a delay.
type fakeProvider struct {
	name    string
	chains  []types.Chain
	events  []providers.ActivityEvent
	err     error
	delay   time.Duration
	ignores bool // ignore ctx while sleeping

	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Supports(chain types.Chain) bool {
	for _, c := range f.chains {
		if c == chain {
			return true
		}
	}
	return false
}

func (f *fakeProvider) FetchActivity(ctx context.Context, address string, chain types.Chain, since time.Time) ([]providers.ActivityEvent, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		if f.ignores {
			time.Sleep(f.delay)
		} else {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.delay):
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type staticSource map[types.Chain][]providers.Provider

func (s staticSource) ForChain(chain types.Chain) []providers.Provider { return s[chain] }

// memStore implements the watch and alert sides of the database in memory
// with the same uniqueness and monotonic checkpoint rules.
type memStore struct {
	mu          sync.Mutex
	entries     []models.WatchEntry
	alerts      map[string]*models.Alert
	listErr     error
	createErr   error
	advanceErr  error
	failCreates map[string]bool // tx hashes whose insert fails
}

func newMemStore(entries ...models.WatchEntry) *memStore {
	return &memStore{entries: entries, alerts: map[string]*models.Alert{}}
}

func alertKey(owner string, chain types.Chain, wallet, tx string) string {
	return owner + "|" + string(chain) + "|" + wallet + "|" + tx
}

func (m *memStore) ListAll(context.Context) ([]models.WatchEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]models.WatchEntry(nil), m.entries...), nil
}

func (m *memStore) AdvanceCheckpoint(_ context.Context, id uint, to time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.advanceErr != nil {
		return false, m.advanceErr
	}
	for i := range m.entries {
		if m.entries[i].ID == id && m.entries[i].LastCheckedAt.Before(to) {
			m.entries[i].LastCheckedAt = to
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) entry(id uint) models.WatchEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e
		}
	}
	return models.WatchEntry{}
}

func (m *memStore) CreateAlertIfAbsent(_ context.Context, a *models.Alert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil || m.failCreates[a.TxHash] {
		return false, errors.New("insert failed")
	}
	key := alertKey(a.OwnerID, a.Chain, a.WalletAddress, a.TxHash)
	if _, ok := m.alerts[key]; ok {
		return false, nil
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	cp := *a
	m.alerts[key] = &cp
	return true, nil
}

func (m *memStore) ExistingTxHashes(_ context.Context, owner string, chain types.Chain, wallet string, hashes []string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]struct{}{}
	for _, h := range hashes {
		if _, ok := m.alerts[alertKey(owner, chain, wallet, h)]; ok {
			out[h] = struct{}{}
		}
	}
	return out, nil
}

func (m *memStore) alertHashes(owner string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.alerts {
		if a.OwnerID == owner {
			out = append(out, a.TxHash)
		}
	}
	sort.Strings(out)
	return out
}

func (m *memStore) storedAlert(owner, tx string) (models.Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.OwnerID == owner && a.TxHash == tx {
			return *a, true
		}
	}
	return models.Alert{}, false
}

type recordingNotifier struct {
	mu   sync.Mutex
	seen []string
	ctxs []error
}

func (r *recordingNotifier) Dispatch(ctx context.Context, a *models.Alert) dispatch.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, a.TxHash)
	r.ctxs = append(r.ctxs, ctx.Err())
	return dispatch.Summary{Delivered: 1}
}

type fixedPrices map[string]string

func (f fixedPrices) PriceUSD(_ context.Context, _ types.Chain, symbol, _ string) (decimal.Decimal, bool) {
	v, ok := f[symbol]
	if !ok {
		return decimal.Zero, false
	}
	return decimal.RequireFromString(v), true
}

type prefSource map[string]models.NotificationPreference

func (p prefSource) Get(_ context.Context, owner string) (models.NotificationPreference, error) {
	if pref, ok := p[owner]; ok {
		return pref, nil
	}
	return models.DefaultPreference(owner), nil
}

type chatSender struct {
	mu   sync.Mutex
	sent []int64
}

func (c *chatSender) Send(_ context.Context, chatID int64, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, chatID)
	return nil
}

func (c *chatSender) chats() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.sent...)
}
