package inventory

import "context"

// Locker serialises stock-moving operations of one company across processes.
// The returned release func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// StockLockKey is the key guarding every stock move of a company.
func StockLockKey(companyID CompanyID) string {
	return "stock:" + string(companyID)
}

// WithLock runs fn while holding key. A nil locker runs fn unguarded.
func WithLock(ctx context.Context, l Locker, key string, fn func() error) error {
	if l == nil {
		return fn()
	}
	release, err := l.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
