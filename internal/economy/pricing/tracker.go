package pricing

import (
	"math"
	"sort"
	"sync"
	"time"

	"aisociety.ai/internal/economy/resource"
)

// PricePoint is one realized trade price.
type PricePoint struct {
	Price    float64
	Quantity float64
	At       time.Time
}

// defaultMaxHistory bounds the per-kind point buffer.
const defaultMaxHistory = 1000

// defaultWindow is the lookback for trend and volatility queries.
const defaultWindow = 10

// Tracker records realized prices per resource kind and answers
// statistical queries over the recent history. All methods are safe for
// concurrent use.
type Tracker struct {
	mu         sync.Mutex
	maxHistory int
	history    map[resource.Kind][]PricePoint
	now        func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		maxHistory: defaultMaxHistory,
		history:    make(map[resource.Kind][]PricePoint),
		now:        time.Now,
	}
}

// Record appends a realized price. A zero at stamps the point with the
// current time. The oldest point falls off once the buffer is full.
func (t *Tracker) Record(kind resource.Kind, price, quantity float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if at.IsZero() {
		at = t.now()
	}
	h := append(t.history[kind], PricePoint{Price: price, Quantity: quantity, At: at})
	if len(h) > t.maxHistory {
		copy(h, h[1:])
		h = h[:t.maxHistory]
	}
	t.history[kind] = h
}

// Current returns the most recent price for kind.
func (t *Tracker) Current(kind resource.Kind) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.history[kind]
	if len(h) == 0 {
		return 0, false
	}
	return h[len(h)-1].Price, true
}

// Average returns the mean over the last window points. A window of 0
// averages the full history.
func (t *Tracker) Average(kind resource.Kind, window int) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.tail(kind, window)
	if len(h) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, p := range h {
		sum += p.Price
	}
	return sum / float64(len(h)), true
}

// Trend is the least-squares slope of price against observation index
// over the last window points (default 10). Positive means rising.
// At least two points are required.
func (t *Tracker) Trend(kind resource.Kind, window int) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if window <= 0 {
		window = defaultWindow
	}
	h := t.tail(kind, window)
	n := len(h)
	if n < 2 {
		return 0, false
	}
	xMean := float64(n-1) / 2
	yMean := 0.0
	for _, p := range h {
		yMean += p.Price
	}
	yMean /= float64(n)

	num, den := 0.0, 0.0
	for i, p := range h {
		dx := float64(i) - xMean
		num += dx * (p.Price - yMean)
		den += dx * dx
	}
	return num / den, true
}

// Volatility is the population standard deviation of the last window
// prices (default 10). At least two points are required.
func (t *Tracker) Volatility(kind resource.Kind, window int) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if window <= 0 {
		window = defaultWindow
	}
	h := t.tail(kind, window)
	n := len(h)
	if n < 2 {
		return 0, false
	}
	mean := 0.0
	for _, p := range h {
		mean += p.Price
	}
	mean /= float64(n)

	variance := 0.0
	for _, p := range h {
		d := p.Price - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(n)), true
}

// History returns recorded points, oldest first. A positive limit keeps
// only the most recent points.
func (t *Tracker) History(kind resource.Kind, limit int) []PricePoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.history[kind]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]PricePoint, len(h))
	copy(out, h)
	return out
}

// Kinds lists every kind with at least one recorded point, sorted.
func (t *Tracker) Kinds() []resource.Kind {
	t.mu.Lock()
	defer t.mu.Unlock()
	kinds := make([]resource.Kind, 0, len(t.history))
	for k, h := range t.history {
		if len(h) > 0 {
			kinds = append(kinds, k)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Clear drops the history for one kind.
func (t *Tracker) Clear(kind resource.Kind) {
	t.mu.Lock()
	delete(t.history, kind)
	t.mu.Unlock()
}

// ClearAll drops every kind's history.
func (t *Tracker) ClearAll() {
	t.mu.Lock()
	t.history = make(map[resource.Kind][]PricePoint)
	t.mu.Unlock()
}

// tail returns the last window points without copying; callers hold the
// lock. A window of 0 means everything.
func (t *Tracker) tail(kind resource.Kind, window int) []PricePoint {
	h := t.history[kind]
	if window > 0 && len(h) > window {
		return h[len(h)-window:]
	}
	return h
}
