package detection

import "time"

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(interval time.Duration) Ticker

type timeTicker struct {
	ticker *time.Ticker
}

func NewTimeTicker(interval time.Duration) Ticker {
	return &timeTicker{ticker: time.NewTicker(interval)}
}

func (t *timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t *timeTicker) Stop() {
	t.ticker.Stop()
}
