package check

import (
	"context"
	"net"
	"time"

	"github.com/juju/ratelimit"
)

// Dialer 探测使用的拨号器，测试时可替换
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// limitedDialer 在拨号前从共享令牌桶取令牌，限制所有并发的新建连接速率
type limitedDialer struct {
	base   Dialer
	bucket *ratelimit.Bucket
}

// NewDialer 创建带超时的拨号器，rate <= 0 时不限速
func NewDialer(timeout time.Duration, rate int) Dialer {
	base := &net.Dialer{Timeout: timeout}
	if rate <= 0 {
		return base
	}
	return &limitedDialer{
		base:   base,
		bucket: ratelimit.NewBucketWithRate(float64(rate), int64(rate)),
	}
}

func (d *limitedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	wait, ok := d.bucket.TakeMaxDuration(1, maxDialWait(ctx))
	if !ok {
		return nil, context.DeadlineExceeded
	}
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return d.base.DialContext(ctx, network, address)
}

// maxDialWait 令牌等待不超过 ctx 剩余时间
func maxDialWait(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}
	return time.Hour
}
