package lock

import (
	"context"
	"fmt"
	"time"
)

// Locker is what services depend on; *Redis implements it.
type Locker interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
	AcquireMany(ctx context.Context, keys []string, owner string, ttl time.Duration) (bool, error)
	ReleaseMany(ctx context.Context, keys []string, owner string) error
	WithLock(ctx context.Context, key, owner string, ttl time.Duration, fn func(ctx context.Context) error) error
}

var _ Locker = (*Redis)(nil)

func UserKey(userID int64) string {
	return fmt.Sprintf("user_booking_lock:%d", userID)
}

func EducationalDepositKey(institutionID int64, yearID string) string {
	return fmt.Sprintf("educational_deposit_lock:%d:%s", institutionID, yearID)
}
