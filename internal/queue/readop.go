package queue

import (
	"context"
	"fmt"

	"github.com/user/qool/internal/kv"
	"github.com/user/qool/internal/store"
)

// readOp is a bounded forward scan over the data prefix. Results are fully
// buffered before the caller sees them.
type readOp struct {
	limit   int
	after   kv.Key // zero scans from the head, otherwise strictly after
	exclude func(kv.Key) bool
}

func (r readOp) execute(ctx context.Context, st store.Store) ([]Item, error) {
	if r.limit <= 0 {
		return nil, nil
	}
	var after []byte
	if !r.after.IsZero() {
		after = kv.DataKey(r.after)
	}

	items := make([]Item, 0, min(r.limit, 64))
	var decodeErr error
	err := st.Scan(ctx, kv.DataPrefix(), after, func(k, v []byte) bool {
		key, err := kv.KeyFromData(k)
		if err != nil {
			decodeErr = err
			return false
		}
		if r.exclude != nil && r.exclude(key) {
			return true
		}
		items = append(items, Item{Key: key, Value: append([]byte(nil), v...)})
		return len(items) < r.limit
	})
	if err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("read entries: %w", decodeErr)
	}
	return items, nil
}
