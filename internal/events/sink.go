package events

import goevents "github.com/docker/go-events"

// FuncSink adapts a plain function to a goevents.Sink, so a caller that
// just wants a callback doesn't have to declare its own Sink type.
type FuncSink func(Event)

func (f FuncSink) Write(e goevents.Event) error {
	if ev, ok := e.(Event); ok {
		f(ev)
	}
	return nil
}

func (f FuncSink) Close() error { return nil }
