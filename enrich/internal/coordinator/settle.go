package coordinator

import "time"

const (
	DefaultSettle    = 150 * time.Millisecond
	DefaultMaxSettle = time.Second
)

// settleConfig controls the re-scan delay.
type settleConfig struct {
	// Window is the quiet time required after the last notification.
	Window time.Duration
	// MaxWait bounds the delay under continuous mutation.
	MaxWait time.Duration
}

func (sc *settleConfig) defaults() {
	if sc.Window <= 0 {
		sc.Window = DefaultSettle
	}
	if sc.MaxWait < sc.Window {
		sc.MaxWait = DefaultMaxSettle
		if sc.MaxWait < sc.Window {
			sc.MaxWait = sc.Window
		}
	}
}

// settler coalesces mutation notifications into a single timer. It is only
// touched from the coordinator loop.
type settler struct {
	cfg     settleConfig
	now     func() time.Time
	first   time.Time
	pending bool
	timer   *time.Timer
	timerCh <-chan time.Time
}

func newSettler(cfg settleConfig) *settler {
	cfg.defaults()
	return &settler{cfg: cfg, now: time.Now}
}

// poke (re)arms the timer. The deadline slides with every call but never
// past MaxWait after the first notification of the burst.
func (s *settler) poke() {
	now := s.now()
	if !s.pending {
		s.first = now
		s.pending = true
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.NewTimer(s.delay(now))
	s.timerCh = s.timer.C
}

func (s *settler) delay(now time.Time) time.Duration {
	wait := s.cfg.Window
	if left := s.cfg.MaxWait - now.Sub(s.first); left < wait {
		wait = max(left, 0)
	}
	return wait
}

// timerC fires when the burst has settled. It is nil while idle.
func (s *settler) timerC() <-chan time.Time {
	return s.timerCh
}

// fired resets the settler after the timer expired.
func (s *settler) fired() {
	s.pending = false
	s.timer = nil
	s.timerCh = nil
}

func (s *settler) stop() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.fired()
}

func (s *settler) idle() bool {
	return !s.pending
}
