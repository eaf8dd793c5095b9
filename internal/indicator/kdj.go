package indicator

import "github.com/tradesentinel/core/internal/model"

// KDJ computes the KDJ(9,3) oscillator via the iterative recurrence:
//
//	K_t = (2/3)·K_{t-1} + (1/3)·RSV_t
//	D_t = (2/3)·D_{t-1} + (1/3)·K_t
//	J_t = 3·K_t - 2·D_t
//
// K and D are seeded at 50 before the first valid RSV; RSV is skipped while
// the lookback window isn't yet full.
type KDJ struct {
	period  int
	highBuf []float64
	lowBuf  []float64
	idx     int
	count   int

	k, d, j float64
	seeded  bool
	ready   bool
}

// NewKDJ creates a KDJ(period) calculator (period 9 ).
func NewKDJ(period int) *KDJ {
	return &KDJ{
		period:  period,
		highBuf: make([]float64, period),
		lowBuf:  make([]float64, period),
		k:       50,
		d:       50,
	}
}

func (k *KDJ) Name() string { return "KDJ" }

func (k *KDJ) Update(c model.CandleRecord) {
	k.highBuf[k.idx] = c.High
	k.lowBuf[k.idx] = c.Low
	k.idx = (k.idx + 1) % k.period
	if k.count < k.period {
		k.count++
	}
	if k.count < k.period {
		return // RSV skipped while NaN
	}

	highest, lowest := k.highBuf[0], k.lowBuf[0]
	for i := 1; i < k.period; i++ {
		if k.highBuf[i] > highest {
			highest = k.highBuf[i]
		}
		if k.lowBuf[i] < lowest {
			lowest = k.lowBuf[i]
		}
	}

	rsv := 50.0
	if highest != lowest {
		rsv = (c.Close - lowest) / (highest - lowest) * 100.0
	}

	k.k = (2.0/3.0)*k.k + (1.0/3.0)*rsv
	k.d = (2.0/3.0)*k.d + (1.0/3.0)*k.k
	k.j = 3*k.k - 2*k.d
	k.seeded = true
	k.ready = true
}

// Value returns K.
func (k *KDJ) Value() float64 { return k.k }
func (k *KDJ) Ready() bool    { return k.ready }

func (k *KDJ) K() float64 { return k.k }
func (k *KDJ) D() float64 { return k.d }
func (k *KDJ) J() float64 { return k.j }
