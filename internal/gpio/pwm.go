package gpio

import (
	"sync"
	"time"
)

// valueSetter is the part of a requested output line that software PWM needs.
type valueSetter interface {
	SetValue(value int) error
}

// softPWM generates a duty cycle on a plain output line by toggling it from
// a dedicated goroutine. Timing precision is bounded by the Go scheduler,
// which is adequate for LED dimming.
type softPWM struct {
	out    valueSetter
	period time.Duration

	mu      sync.Mutex
	percent float64
	lastErr error

	update   chan struct{}
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func startSoftPWM(out valueSetter, freqHz, percent float64) *softPWM {
	p := &softPWM{
		out:     out,
		period:  time.Duration(float64(time.Second) / freqHz),
		percent: clampPercent(percent),
		update:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *softPWM) set(percent float64) {
	p.mu.Lock()
	p.percent = clampPercent(percent)
	p.mu.Unlock()
	select {
	case p.update <- struct{}{}:
	default:
	}
}

func (p *softPWM) duty() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.percent
}

// err returns and clears the last line write error seen by the PWM goroutine.
func (p *softPWM) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.lastErr
	p.lastErr = nil
	return err
}

// stop terminates the goroutine and waits for it to exit.
func (p *softPWM) stop() {
	p.stopOnce.Do(func() { close(p.quit) })
	<-p.done
}

func (p *softPWM) run() {
	defer close(p.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	sleep := func(d time.Duration) bool {
		timer.Reset(d)
		select {
		case <-timer.C:
			return true
		case <-p.quit:
			return false
		}
	}

	for {
		duty := p.duty()
		switch {
		case duty <= 0 || duty >= 100:
			level := 0
			if duty >= 100 {
				level = 1
			}
			p.write(level)
			// Steady level: nothing to do until the duty cycle changes.
			select {
			case <-p.update:
			case <-p.quit:
				return
			}
		default:
			high := time.Duration(float64(p.period) * duty / 100)
			p.write(1)
			if !sleep(high) {
				return
			}
			p.write(0)
			if !sleep(p.period - high) {
				return
			}
		}
	}
}

func (p *softPWM) write(level int) {
	if err := p.out.SetValue(level); err != nil {
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
	}
}
