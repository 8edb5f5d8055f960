package broker

import (
	"context"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/require"
	"github.com/timeflux-go/timeflux/internal/frame"
)

func TestGobSerializerRoundTrip(t *testing.T) {
	s := GobSerializer{}
	require.Equal(t, "gob", s.Tag())

	original := Payload{Data: frame.NewSignal([][]interface{}{{"a"}}, []time.Time{time.Now()}, []string{"c"})}
	blob, err := s.Encode(original)
	require.NoError(t, err)

	var decoded Payload
	require.NoError(t, s.Decode(blob, &decoded))
	fr, ok := decoded.Data.(*frame.Frame)
	require.True(t, ok)
	require.Equal(t, 1, fr.Len())
	require.Equal(t, "a", fr.Values[0][0])
}

func TestGobSerializerRoundTripsDatalessPayload(t *testing.T) {
	s := GobSerializer{}

	blob, err := s.Encode(Payload{})
	require.NoError(t, err)

	var decoded Payload
	require.NoError(t, s.Decode(blob, &decoded))
	fr, _ := decoded.Data.(*frame.Frame)
	require.Nil(t, fr)
}

func TestLVCStoreAndLookup(t *testing.T) {
	b := NewLVC("tcp://127.0.0.1:0", "tcp://127.0.0.1:0")
	_, ok := b.lookup([]byte("x"))
	require.False(t, ok)

	b.store([]byte("x"), []byte("data"), []byte("meta"))
	entry, ok := b.lookup([]byte("x"))
	require.True(t, ok)
	require.Equal(t, []byte("data"), entry.data)
	require.Equal(t, []byte("meta"), entry.meta)
}

func TestLVCReplaysCachedMessageToLateSubscriber(t *testing.T) {
	ingressAddr := "tcp://127.0.0.1:45691"
	egressAddr := "tcp://127.0.0.1:45692"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewLVC(ingressAddr, egressAddr)
	go b.Run(ctx)

	pub := zmq4.NewPub(ctx)
	defer pub.Close()
	require.Eventually(t, func() bool {
		return pub.Dial(ingressAddr) == nil
	}, 5*time.Second, 100*time.Millisecond)

	// A PUB send is dropped until the broker's ingress handshake
	// completes, so publish until the cache confirms a relay happened.
	msg := zmq4.NewMsgFrom([]byte("x"), []byte("7"), []byte("meta"))
	require.Eventually(t, func() bool {
		_ = pub.Send(msg)
		_, ok := b.lookup([]byte("x"))
		return ok
	}, 5*time.Second, 100*time.Millisecond)

	// The subscriber joins only after the last publish; the cached
	// message must still reach it.
	sub := zmq4.NewSub(ctx)
	defer sub.Close()
	require.NoError(t, sub.Dial(egressAddr))
	require.NoError(t, sub.SetOption(zmq4.OptionSubscribe, "x"))

	received := make(chan zmq4.Msg, 1)
	go func() {
		m, err := sub.Recv()
		if err == nil {
			received <- m
		}
	}()

	select {
	case m := <-received:
		require.Len(t, m.Frames, 3)
		require.Equal(t, []byte("x"), m.Frames[0])
		require.Equal(t, []byte("7"), m.Frames[1])
	case <-time.After(5 * time.Second):
		t.Fatal("late subscriber never received the cached message")
	}
}

func TestSanitizeTopicCollapsesSeparators(t *testing.T) {
	require.Equal(t, "a_b", sanitizeTopic("a::b"))
	require.Equal(t, "eeg", sanitizeTopic("eeg"))
	require.Equal(t, "a_b", sanitizeTopic("__a--b__"))
	require.Equal(t, "topic", sanitizeTopic("***"))
}

func TestMergeFramesConcatenatesRowsAndMergesMeta(t *testing.T) {
	now := time.Now()
	f1 := frame.NewSignal([][]interface{}{{1.0}}, []time.Time{now}, []string{"a"})
	f2 := frame.NewSignal([][]interface{}{{2.0}}, []time.Time{now.Add(time.Millisecond)}, []string{"a"})

	msgs := []subMessage{
		{topic: "x", data: f1, meta: map[string]interface{}{"k": 1}},
		{topic: "x", data: f2, meta: map[string]interface{}{"k": 2}},
	}
	result := mergeFrames(msgs)
	require.Equal(t, 2, result.data.Len())
	require.Equal(t, 2, result.meta["k"])
}

func TestNewPublisherRequiresTopicAndAddress(t *testing.T) {
	_, err := newPublisher(map[string]interface{}{})
	require.Error(t, err)
	_, err = newPublisher(map[string]interface{}{"topic": "x"})
	require.Error(t, err)
	inst, err := newPublisher(map[string]interface{}{"topic": "x", "address": "tcp://127.0.0.1:5555"})
	require.NoError(t, err)
	require.NotNil(t, inst)
}

func TestNewSubscriberRequiresTopicsAndAddress(t *testing.T) {
	_, err := newSubscriber(map[string]interface{}{"address": "tcp://127.0.0.1:5555"})
	require.Error(t, err)
	_, err = newSubscriber(map[string]interface{}{"topics": []interface{}{"x"}})
	require.Error(t, err)
	inst, err := newSubscriber(map[string]interface{}{
		"topics":  []interface{}{"x", "y"},
		"address": "tcp://127.0.0.1:5555",
	})
	require.NoError(t, err)
	require.NotNil(t, inst)
}
