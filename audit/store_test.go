package audit

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tokend/core/events"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"), slog.Default())
	require.NoError(t, err)
	return store
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open("  ", nil)
	require.Error(t, err)
}

func TestEmitPersistsRecord(t *testing.T) {
	store := openTestStore(t)
	store.Emit(events.Transfer{From: addr(1), To: addr(2), Amount: big.NewInt(42)})

	records, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, events.TypeTransfer, records[0].Type)
	require.Len(t, records[0].ID, 36)

	var attributes map[string]string
	require.NoError(t, json.Unmarshal([]byte(records[0].Attributes), &attributes))
	require.Equal(t, "42", attributes["amount"])
	require.Contains(t, attributes, "from")
	require.Contains(t, attributes, "to")
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	store := openTestStore(t)
	store.Emit(events.BlocklistUpdated{Account: addr(1), Blocked: true})
	store.Emit(events.RoleClaimed{Role: "recoveryAdmin", Holder: addr(2)})
	store.Emit(events.Transfer{From: addr(1), To: addr(2), Amount: big.NewInt(1)})

	records, err := store.Recent(2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	all, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestEmitIgnoresNilEvent(t *testing.T) {
	store := openTestStore(t)
	store.Emit(nil)
	records, err := store.Recent(10)
	require.NoError(t, err)
	require.Empty(t, records)
}
