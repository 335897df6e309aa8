package controller

import "time"

// ResolutionEvent describes one discovery attempt.
type ResolutionEvent struct {
	DeviceID string
	Address  string
	Outcome  Outcome
	Duration time.Duration
	Err      error
	Time     time.Time
}

// DispatchEvent describes one dispatch call.
type DispatchEvent struct {
	DeviceID string
	Command  string
	Outcome  Outcome
	Duration time.Duration
	Err      error
	Time     time.Time
}

// Observer receives an event for every resolution and dispatch.
// Implementations are called inline and must not block.
type Observer interface {
	ObserveResolution(ResolutionEvent)
	ObserveDispatch(DispatchEvent)
}

// Observers fans events out to several observers in order.
type Observers []Observer

// ObserveResolution implements Observer.
func (o Observers) ObserveResolution(ev ResolutionEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveResolution(ev)
		}
	}
}

// ObserveDispatch implements Observer.
func (o Observers) ObserveDispatch(ev DispatchEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveDispatch(ev)
		}
	}
}

type noopObserver struct{}

func (noopObserver) ObserveResolution(ResolutionEvent) {}
func (noopObserver) ObserveDispatch(DispatchEvent)     {}
