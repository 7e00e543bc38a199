package outbox

import (
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/domain/orderbook"
)

func openTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	ob, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ob.Close() })
	return ob
}

func testTrade(seq uint64) orderbook.Trade {
	return orderbook.Trade{
		BuyOrderID:  orderbook.OrderID(seq * 10),
		SellOrderID: orderbook.OrderID(seq*10 + 1),
		Price:       50000,
		Qty:         orderbook.Qty(seq),
		Timestamp:   1000 + seq,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	ob := openTestOutbox(t)

	want := testTrade(7)
	require.NoError(t, ob.Put(7, want))

	rec, err := ob.Get(7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), rec.Seq)
	assert.Equal(t, StatePending, rec.State)
	assert.Equal(t, uint32(0), rec.Attempts)
	assert.Equal(t, want, rec.Trade)
}

func TestGetMissing(t *testing.T) {
	ob := openTestOutbox(t)
	_, err := ob.Get(99)
	assert.ErrorIs(t, err, pebble.ErrNotFound)
}

func TestStateMachineHappyPath(t *testing.T) {
	ob := openTestOutbox(t)
	require.NoError(t, ob.Put(1, testTrade(1)))

	require.NoError(t, ob.MarkSent(1))
	rec, err := ob.Get(1)
	require.NoError(t, err)
	assert.Equal(t, StateSent, rec.State)
	assert.NotZero(t, rec.LastAttempt)

	require.NoError(t, ob.MarkAcked(1))
	rec, err = ob.Get(1)
	require.NoError(t, err)
	assert.Equal(t, StateAcked, rec.State)
}

func TestFailReturnsToPendingThenParks(t *testing.T) {
	ob := openTestOutbox(t)
	ob.SetMaxAttempts(2)
	require.NoError(t, ob.Put(1, testTrade(1)))

	require.NoError(t, ob.MarkSent(1))
	require.NoError(t, ob.Fail(1))
	rec, err := ob.Get(1)
	require.NoError(t, err)
	assert.Equal(t, StatePending, rec.State)
	assert.Equal(t, uint32(1), rec.Attempts)

	require.NoError(t, ob.MarkSent(1))
	require.NoError(t, ob.Fail(1))
	rec, err = ob.Get(1)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, rec.State)
	assert.Equal(t, uint32(2), rec.Attempts)
}

func TestScanStateAscendingOrder(t *testing.T) {
	ob := openTestOutbox(t)

	// Insert out of order; the zero-padded keys must still scan in
	// sequence order.
	for _, seq := range []uint64{30, 5, 1000000007, 2} {
		require.NoError(t, ob.Put(seq, testTrade(seq)))
	}
	require.NoError(t, ob.MarkAcked(5))

	var got []uint64
	require.NoError(t, ob.ScanState(StatePending, func(r Record) error {
		got = append(got, r.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{2, 30, 1000000007}, got)

	var acked []uint64
	require.NoError(t, ob.ScanState(StateAcked, func(r Record) error {
		acked = append(acked, r.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{5}, acked)
}

func TestDeleteRemovesRecord(t *testing.T) {
	ob := openTestOutbox(t)
	require.NoError(t, ob.Put(3, testTrade(3)))
	require.NoError(t, ob.Delete(3))
	_, err := ob.Get(3)
	assert.ErrorIs(t, err, pebble.ErrNotFound)
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	ob, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, ob.Put(11, testTrade(11)))
	require.NoError(t, ob.Close())

	ob, err = Open(dir)
	require.NoError(t, err)
	defer ob.Close()

	rec, err := ob.Get(11)
	require.NoError(t, err)
	assert.Equal(t, StatePending, rec.State)
	assert.Equal(t, testTrade(11), rec.Trade)
}

func TestEncodeDecodeRejectsBadLength(t *testing.T) {
	_, err := decode(make([]byte, 10))
	assert.ErrorIs(t, err, ErrCorrupt)
}
