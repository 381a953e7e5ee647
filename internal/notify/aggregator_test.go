package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Znerken/Omerta-RPG-sub001/internal/protocol"
	"github.com/Znerken/Omerta-RPG-sub001/internal/storage"
)

func newTestAggregator(t *testing.T, clock clockwork.Clock, opts Options) (*Aggregator, *storage.FileStore) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewAggregator(store, clock, opts), store
}

func TestNotify_CreatesRecord(t *testing.T) {
	a, _ := newTestAggregator(t, clockwork.NewFakeClock(), Options{})

	ok := a.Notify(protocol.TypeCashTransaction, "Payment received", "+500 credits",
		protocol.CashTransaction{Amount: 500, NewBalance: 1500})
	require.True(t, ok)

	records := a.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "Payment received", records[0].Title)
	assert.Equal(t, "+500 credits", records[0].Message)
	assert.Equal(t, 1, records[0].Count)
	assert.False(t, records[0].Read)
}

func TestNotify_DedupWithinWindow(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	a, _ := newTestAggregator(t, fakeClock, Options{})

	payload := protocol.CashTransaction{Amount: 500, NewBalance: 1500}
	assert.True(t, a.Notify(protocol.TypeCashTransaction, "Payment received", "+500 credits", payload))

	fakeClock.Advance(2 * time.Second)
	assert.False(t, a.Notify(protocol.TypeCashTransaction, "Payment received", "+500 credits", payload),
		"identical key 2s apart is dropped entirely")
	assert.Len(t, a.Records(), 1)
}

func TestNotify_DedupExpiresAfterWindow(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	a, _ := newTestAggregator(t, fakeClock, Options{})

	payload := protocol.CashTransaction{Amount: 500, NewBalance: 1500}
	assert.True(t, a.Notify(protocol.TypeCashTransaction, "Payment received", "+500 credits", payload))

	fakeClock.Advance(6 * time.Second)
	assert.True(t, a.Notify(protocol.TypeCashTransaction, "Payment received", "+500 credits", payload))
	assert.Len(t, a.Records(), 2, "identical key 6s apart yields two records")
}

func TestNotify_GroupsSameTitleWithinWindow(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	a, _ := newTestAggregator(t, fakeClock, Options{})

	a.Notify(protocol.TypeFriendStatus, "Sonny went online", "Sonny went online",
		protocol.FriendStatus{Friend: "sonny", Online: true})

	// Outside the 5s dedup window, inside the 30s grouping window.
	fakeClock.Advance(10 * time.Second)
	secondArrival := fakeClock.Now()
	a.Notify(protocol.TypeFriendStatus, "Sonny went online", "Sonny went online",
		protocol.FriendStatus{Friend: "sonny", Online: true})

	records := a.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Count)
	assert.Equal(t, "Sonny went online (2)", records[0].DisplayMessage())
	assert.True(t, records[0].CreatedAt.Equal(secondArrival),
		"grouped record timestamp equals the second event's arrival time")
}

func TestNotify_NoGroupingOutsideWindow(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	a, _ := newTestAggregator(t, fakeClock, Options{})

	a.Notify(protocol.TypeFriendStatus, "Sonny went online", "Sonny went online",
		protocol.FriendStatus{Friend: "sonny", Online: true})

	fakeClock.Advance(31 * time.Second)
	a.Notify(protocol.TypeFriendStatus, "Sonny went online", "Sonny went online",
		protocol.FriendStatus{Friend: "sonny", Online: true})

	assert.Len(t, a.Records(), 2)
}

func TestNotify_UngroupedCategoryInsertsFreshRecords(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	a, _ := newTestAggregator(t, fakeClock, Options{})

	a.Notify(protocol.TypeCashTransaction, "Payment received", "+200 credits",
		protocol.CashTransaction{Amount: 200, NewBalance: 1200})
	fakeClock.Advance(6 * time.Second)
	a.Notify(protocol.TypeCashTransaction, "Payment received", "+300 credits",
		protocol.CashTransaction{Amount: 300, NewBalance: 1500})

	records := a.Records()
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Count)
}

func TestNotify_CapacityEvictsOldest(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	a, _ := newTestAggregator(t, fakeClock, Options{})

	for i := 0; i < Capacity+1; i++ {
		a.Notify(protocol.TypeCashTransaction, "Payment received", "credits",
			protocol.CashTransaction{Amount: 100, NewBalance: int64(1000 + i)})
		fakeClock.Advance(6 * time.Second)
	}

	records := a.Records()
	require.Len(t, records, Capacity)

	// Newest first; the very first record (oldest) was evicted.
	for _, rec := range records {
		assert.NotEqual(t, dedupKey(protocol.TypeCashTransaction,
			protocol.CashTransaction{Amount: 100, NewBalance: 1000}), rec.DedupKey)
	}
}

func TestNotify_MostRecentFirst(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	a, _ := newTestAggregator(t, fakeClock, Options{})

	a.Notify(protocol.TypeCashTransaction, "first", "m", protocol.CashTransaction{NewBalance: 1})
	fakeClock.Advance(6 * time.Second)
	a.Notify(protocol.TypeCashTransaction, "second", "m", protocol.CashTransaction{NewBalance: 2})

	records := a.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "second", records[0].Title)
	assert.Equal(t, "first", records[1].Title)
}

func TestPersistence_RoundTrip(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2025, 11, 3, 12, 0, 0, 123_000_000, time.UTC))
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	a := NewAggregator(store, fakeClock, Options{})
	a.Notify(protocol.TypeChatMessage, "Message from Vito", "meet me at the docks",
		protocol.ChatMessage{From: "vito", Text: "meet me at the docks"})
	a.SetEnabled(false)

	reloaded := NewAggregator(store, fakeClock, Options{})
	require.Len(t, reloaded.Records(), 1)

	orig := a.Records()[0]
	got := reloaded.Records()[0]
	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.Title, got.Title)
	assert.Equal(t, orig.Message, got.Message)
	assert.Equal(t, orig.Category, got.Category)
	assert.Equal(t, orig.Read, got.Read)
	assert.True(t, orig.CreatedAt.Equal(got.CreatedAt), "timestamps survive the round trip")
	assert.False(t, reloaded.Enabled())
}

func TestMarkAsRead(t *testing.T) {
	a, _ := newTestAggregator(t, clockwork.NewFakeClock(), Options{})

	a.Notify(protocol.TypeChatMessage, "Message from Vito", "hi", protocol.ChatMessage{From: "vito", Text: "hi"})
	rec := a.Records()[0]
	require.False(t, rec.Read)

	assert.True(t, a.MarkAsRead(rec.ID))
	assert.True(t, a.Records()[0].Read)
	assert.Equal(t, 0, a.UnreadCount())
}

func TestMarkAsRead_UnknownID(t *testing.T) {
	a, _ := newTestAggregator(t, clockwork.NewFakeClock(), Options{})
	assert.False(t, a.MarkAsRead([16]byte{1, 2, 3}))
}

func TestMarkAllAsReadAndClear(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	a, _ := newTestAggregator(t, fakeClock, Options{})

	a.Notify(protocol.TypeCashTransaction, "a", "m", protocol.CashTransaction{NewBalance: 1})
	fakeClock.Advance(6 * time.Second)
	a.Notify(protocol.TypeCashTransaction, "b", "m", protocol.CashTransaction{NewBalance: 2})

	a.MarkAllAsRead()
	assert.Equal(t, 0, a.UnreadCount())

	a.Clear()
	assert.Empty(t, a.Records())
}

func TestDisabled_SuppressesPopupsOnly(t *testing.T) {
	popups := 0
	fakeClock := clockwork.NewFakeClock()
	a, _ := newTestAggregator(t, fakeClock, Options{OnPopup: func(Record) { popups++ }})

	a.Notify(protocol.TypeChatMessage, "Message from Vito", "hi", protocol.ChatMessage{From: "vito", Text: "hi"})
	assert.Equal(t, 1, popups)

	a.SetEnabled(false)
	fakeClock.Advance(6 * time.Second)
	a.Notify(protocol.TypeChatMessage, "Message from Tom", "yo", protocol.ChatMessage{From: "tom", Text: "yo"})

	assert.Equal(t, 1, popups, "no popup while disabled")
	assert.Len(t, a.Records(), 2, "records still accumulate while disabled")
	assert.Equal(t, 2, a.UnreadCount(), "read tracking continues while disabled")
}

type failingStore struct{}

func (failingStore) Save(string, any) error { return errors.New("disk full") }
func (failingStore) Load(string, any) error { return errors.New("corrupt state") }

func TestStorageFailure_FallsBackToEmptyState(t *testing.T) {
	a := NewAggregator(failingStore{}, clockwork.NewFakeClock(), Options{})

	assert.Empty(t, a.Records())
	assert.True(t, a.Enabled())

	// Mutations still work in memory despite save failures.
	ok := a.Notify(protocol.TypeChatMessage, "Message from Vito", "hi", protocol.ChatMessage{From: "vito", Text: "hi"})
	assert.True(t, ok)
	assert.Len(t, a.Records(), 1)
}

func TestGroupedRecordMovesToFront(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	a, _ := newTestAggregator(t, fakeClock, Options{})

	a.Notify(protocol.TypeFriendStatus, "Sonny went online", "Sonny went online",
		protocol.FriendStatus{Friend: "sonny", Online: true})
	fakeClock.Advance(6 * time.Second)
	a.Notify(protocol.TypeCashTransaction, "Payment received", "+200", protocol.CashTransaction{Amount: 200})
	fakeClock.Advance(6 * time.Second)
	a.Notify(protocol.TypeFriendStatus, "Sonny went online", "Sonny went online",
		protocol.FriendStatus{Friend: "sonny", Online: true})

	records := a.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "Sonny went online", records[0].Title)
	assert.Equal(t, 2, records[0].Count)
}
