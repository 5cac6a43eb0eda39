package pipeline

import (
	"time"

	"cabinet/internal/model"
)

// Debounce collects events until delay passes without a new one, then emits
// the batch with one event per path (the latest). Pending events are flushed
// when inCh closes.
func Debounce(inCh <-chan model.FileEvent, delay time.Duration) <-chan []model.FileEvent {
	outCh := make(chan []model.FileEvent, 1)

	go func() {
		defer close(outCh)

		var (
			order  []string
			latest = make(map[string]model.FileEvent)
			timer  *time.Timer
			fire   <-chan time.Time
		)

		flush := func() {
			if len(order) == 0 {
				return
			}
			batch := make([]model.FileEvent, 0, len(order))
			for _, path := range order {
				batch = append(batch, latest[path])
			}
			outCh <- batch

			order = nil
			latest = make(map[string]model.FileEvent)
		}

		for {
			select {
			case event, ok := <-inCh:
				if !ok {
					if timer != nil {
						timer.Stop()
					}
					flush()
					return
				}

				if _, seen := latest[event.Path]; !seen {
					order = append(order, event.Path)
				}
				latest[event.Path] = event

				if timer == nil {
					timer = time.NewTimer(delay)
				} else {
					timer.Reset(delay)
				}
				fire = timer.C

			case <-fire:
				fire = nil
				flush()
			}
		}
	}()

	return outCh
}
