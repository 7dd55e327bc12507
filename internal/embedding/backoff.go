package embedding

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// doubling waits base * 2^n before retry n, n counting from 1.
type doubling struct {
	base time.Duration
	n    uint
}

var _ backoff.BackOff = (*doubling)(nil)

func newDoubling(base time.Duration) *doubling {
	return &doubling{base: base}
}

func (d *doubling) NextBackOff() time.Duration {
	d.n++
	return d.base << d.n
}

func (d *doubling) Reset() { d.n = 0 }
