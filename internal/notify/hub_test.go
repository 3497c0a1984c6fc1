package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu   sync.Mutex
	got  [][]byte
	full bool
}

func (f *fakeConn) Send(b []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.got = append(f.got, b)
	return true
}

func (f *fakeConn) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got
}

func TestHubLifecycle(t *testing.T) {
	h := NewHub()
	a, b := &fakeConn{}, &fakeConn{}

	h.Register(1, a)
	h.Register(1, b)
	assert.Equal(t, 1, h.Len())
	assert.True(t, h.Online(1))

	assert.True(t, h.Send(1, []byte("hi")))
	assert.Len(t, a.messages(), 1)
	assert.Len(t, b.messages(), 1)

	h.Unregister(a)
	assert.True(t, h.Send(1, []byte("again")))
	assert.Len(t, a.messages(), 1)
	assert.Len(t, b.messages(), 2)

	h.Unregister(b)
	assert.Equal(t, 0, h.Len())
	assert.False(t, h.Send(1, []byte("lost")), "absent user is a silent drop")
}

func TestHubRegisterMovesConnection(t *testing.T) {
	h := NewHub()
	c := &fakeConn{}
	h.Register(1, c)
	h.Register(2, c)
	assert.False(t, h.Online(1))
	assert.True(t, h.Online(2))
}

func TestHubSlowConsumer(t *testing.T) {
	h := NewHub()
	h.Register(5, &fakeConn{full: true})
	assert.False(t, h.Send(5, []byte("x")))
}

func TestLocalNotifier(t *testing.T) {
	h := NewHub()
	c := &fakeConn{}
	h.Register(3, c)
	n := LocalNotifier{Hub: h}
	require.NoError(t, n.Notify(context.Background(), 3, Message{Type: "reservation", Data: map[string]int{"postId": 9}}))
	require.Len(t, c.messages(), 1)
	assert.JSONEq(t, `{"type":"reservation","data":{"postId":9}}`, string(c.messages()[0]))
}

func TestEnvelopeRoundTrip(t *testing.T) {
	b, err := encodeEnvelope(12, Message{Type: "reservation"})
	require.NoError(t, err)
	uid, payload, err := decodeEnvelope(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), uid)
	assert.JSONEq(t, `{"type":"reservation"}`, string(payload))

	_, _, err = decodeEnvelope([]byte("nope"))
	assert.Error(t, err)
}
