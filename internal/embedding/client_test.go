package embedding

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instantTimer fires as soon as it is started.
type instantTimer struct{ c chan time.Time }

func (t *instantTimer) Start(time.Duration) {
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	inputs  []string
	respond func(call int, text string) ([]float32, error)
}

func (f *fakeProvider) Embed(_ context.Context, _ string, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.inputs = append(f.inputs, text)
	f.mu.Unlock()
	return f.respond(call, text)
}

func vector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(i+1) / float32(dim)
	}
	return v
}

func newTestClient(p Provider, opts ...Option) *Client {
	base := []Option{
		WithBaseDelay(time.Millisecond),
		WithTimer(&instantTimer{}),
		WithMinDimension(4),
	}
	return NewClient(p, append(base, opts...)...)
}

func TestEmbedInputValidation(t *testing.T) {
	p := &fakeProvider{respond: func(int, string) ([]float32, error) { return vector(8), nil }}
	c := newTestClient(p, WithMaxInputChars(10))

	_, err := c.Embed(context.Background(), "   \n")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = c.Embed(context.Background(), strings.Repeat("a", 11))
	assert.ErrorIs(t, err, ErrInputTooLarge)

	assert.Zero(t, p.calls, "invalid input must not reach the service")

	v, err := c.Embed(context.Background(), strings.Repeat("é", 10))
	require.NoError(t, err)
	assert.Len(t, v, 8)
}

func TestEmbedOutputValidation(t *testing.T) {
	tests := []struct {
		name string
		out  []float32
	}{
		{"empty", nil},
		{"below minimum dimension", vector(3)},
		{"nan", []float32{1, 2, float32(math.NaN()), 4}},
		{"inf", []float32{1, float32(math.Inf(-1)), 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{respond: func(int, string) ([]float32, error) { return tt.out, nil }}
			c := newTestClient(p, WithMaxAttempts(3))

			_, err := c.Embed(context.Background(), "hello")
			require.ErrorIs(t, err, ErrInvalidOutput)
			assert.Equal(t, 1, p.calls, "invalid output is not retried")

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, 1, e.Attempts)
		})
	}
}

func TestEmbedRetryExhaustion(t *testing.T) {
	for _, n := range []int{1, 3, 5} {
		p := &fakeProvider{respond: func(call int, _ string) ([]float32, error) {
			return nil, errors.New("connection refused")
		}}

		var delays []time.Duration
		c := newTestClient(p,
			WithMaxAttempts(n),
			WithNotify(func(_ int, _ error, d time.Duration) { delays = append(delays, d) }),
		)

		_, err := c.Embed(context.Background(), "hello")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrService)
		assert.Contains(t, err.Error(), "connection refused")

		assert.Equal(t, n, p.calls, "attempts for max=%d", n)
		require.Len(t, delays, n-1)
		for i := 1; i < len(delays); i++ {
			assert.Greater(t, delays[i], delays[i-1])
		}
		if n > 1 {
			assert.Equal(t, 2*time.Millisecond, delays[0])
		}

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, n, e.Attempts)
	}
}

func TestEmbedRecoversAfterServiceErrors(t *testing.T) {
	p := &fakeProvider{respond: func(call int, _ string) ([]float32, error) {
		if call < 3 {
			return nil, ErrService
		}
		return vector(6), nil
	}}
	var attempts []int
	c := newTestClient(p, WithMaxAttempts(3), WithNotify(func(a int, _ error, _ time.Duration) {
		attempts = append(attempts, a)
	}))

	v, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, v, 6)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestEmbedCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeProvider{respond: func(int, string) ([]float32, error) {
		cancel()
		return nil, ctx.Err()
	}}
	c := newTestClient(p, WithMaxAttempts(5))

	_, err := c.Embed(ctx, "hello")
	require.Error(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestEmbedChunked(t *testing.T) {
	p := &fakeProvider{respond: func(int, string) ([]float32, error) { return vector(4), nil }}
	c := newTestClient(p)

	vs, err := c.EmbedChunked(context.Background(), "short", 10)
	require.NoError(t, err)
	assert.Len(t, vs, 1)

	vs, err = c.EmbedChunked(context.Background(), strings.Repeat("x", 25), 10)
	require.NoError(t, err)
	assert.Len(t, vs, 3)
	assert.Equal(t, []string{"short", strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, p.inputs)
}

func TestCheckStatusUnsupported(t *testing.T) {
	c := newTestClient(&fakeProvider{})
	_, err := c.CheckStatus(context.Background())
	assert.ErrorIs(t, err, ErrStatusUnsupported)
}

func TestDoublingBackOff(t *testing.T) {
	b := newDoubling(time.Second)
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())
	assert.Equal(t, 8*time.Second, b.NextBackOff())
	b.Reset()
	assert.Equal(t, 2*time.Second, b.NextBackOff())
}
