package eventsink

import "context"

// MultiSink fans each record out to several sinks in order.
type MultiSink struct {
	sinks []Sink
}

// Multi combines sinks, skipping nils.
func Multi(sinks ...Sink) *MultiSink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

func (m *MultiSink) Log(ctx context.Context, rec Record) {
	for _, s := range m.sinks {
		s.Log(ctx, rec)
	}
}
