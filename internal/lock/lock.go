// Package lock serializes read-modify-write sequences over shared ledger rows.
package lock

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
)

// Locker acquires every key or none. Keys are taken in sorted order so two
// callers locking overlapping sets cannot deadlock.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

var ErrLockTimeout = paymentdomain.NewConflict("lock_timeout", "another operation is changing these rows, retry shortly")

const TreasuryKey = "ledger:treasury"

func PaymentKey(id snowflake.ID) string {
	return "ledger:payment:" + id.String()
}

func ChargeKey(groupID string, key paymentdomain.ChargeKey) string {
	return "ledger:charge:" + groupID + ":" + key.String()
}

func normalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
