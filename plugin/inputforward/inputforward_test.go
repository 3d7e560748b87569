package inputforward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventMarshalUnmarshalRoundTrip(t *testing.T) {
	in := Event{Kind: EventPointerMove, A: -5, B: 1000}
	b := in.Marshal()
	require.Len(t, b, 9)

	out, err := unmarshalEvent(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestUnmarshalEventRejectsWrongLength(t *testing.T) {
	_, err := unmarshalEvent([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestNoopBackendAcceptsAnyEvent(t *testing.T) {
	var b NoopBackend
	assert.NoError(t, b.Apply(Event{Kind: EventKeyDown, A: 65}))
}

func TestParseParametersPassesThrough(t *testing.T) {
	p := &Plugin{}
	out, err := p.ParseParameters([]byte("anything"))
	require.NoError(t, err)
	assert.Equal(t, []byte("anything"), out)
}

type recordingBackend struct {
	events []Event
}

func (r *recordingBackend) Apply(e Event) error {
	r.events = append(r.events, e)
	return nil
}

func TestRecordingBackendReceivesAppliedEvents(t *testing.T) {
	rb := &recordingBackend{}
	ev := Event{Kind: EventPointerButton, A: 1, B: 0}
	require.NoError(t, rb.Apply(ev))
	require.Len(t, rb.events, 1)
	assert.Equal(t, ev, rb.events[0])
}
