package rebalance

// FeeLimit is the shared ceiling, in sat, every rebalance payment may spend
// on routing. Success makes it cheaper, failure more generous; it never goes
// below zero.
type FeeLimit struct {
  current int64
  increment int64
  decrement int64
}

func NewFeeLimit(start, increment, decrement int64) *FeeLimit {
  if start < 0 {
    start = 0
  }
  return &FeeLimit{current: start, increment: increment, decrement: decrement}
}

func (f *FeeLimit) Current() int64 {
  return f.current
}

func (f *FeeLimit) RecordSuccess() {
  f.current -= f.decrement
  if f.current < 0 {
    f.current = 0
  }
}

func (f *FeeLimit) RecordFailure() {
  f.current += f.increment
}
