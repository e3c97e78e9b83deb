// Package jitter считает задержки повторов с экспоненциальным ростом и случайной добавкой.
package jitter

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// DefaultJitter: стандартный коэффициент джиттера (50%)
const DefaultJitter = 0.5

var (
	globalRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	randMutex  sync.Mutex
)

// Duration возвращает продолжительность с применённым джиттером.
// Результат находится в диапазоне [d, d*(1+jitterFactor)].
func Duration(d time.Duration, jitterFactor float64) time.Duration {
	randMutex.Lock()
	jitter := globalRand.Float64() * jitterFactor * float64(d)
	randMutex.Unlock()
	return d + time.Duration(jitter)
}

// ExponentialBackoff вычисляет экспоненциальное отступление с джиттером.
// attempt нумеруется с нуля; без джиттера задержка не превышает max.
func ExponentialBackoff(base, max time.Duration, attempt int, jitterFactor float64) time.Duration {
	backoff := base
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff > max {
			backoff = max
			break
		}
	}
	return Duration(backoff, jitterFactor)
}

// Backoff: параметры повторов одного цикла. Нулевой Jitter означает DefaultJitter.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func NewBackoff(base, max time.Duration) Backoff {
	return Backoff{Base: base, Max: max, Jitter: DefaultJitter}
}

// Delay возвращает задержку перед повтором после попытки attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	factor := b.Jitter
	if factor == 0 {
		factor = DefaultJitter
	}
	return ExponentialBackoff(b.Base, max(b.Max, b.Base), attempt, factor)
}

// Wait ждёт d или отмены ctx; при отмене возвращает ctx.Err().
func Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
