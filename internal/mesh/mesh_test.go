package mesh

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig returns a session config with intervals short enough for
// tests; values that must not fire mid-test are set long instead of
// relying on the defaults.
func testConfig() Config {
	return Config{
		DisplayName:         "test-node",
		ControlPort:         8888,
		DiscoveryInterval:   50 * time.Millisecond,
		HeartbeatInterval:   50 * time.Millisecond,
		MaintenanceInterval: 25 * time.Millisecond,
		NodeTimeout:         time.Minute,
		MaxRouteAge:         time.Minute,
		DedupRetention:      time.Minute,
		ResponseInterval:    time.Second,
		ResponseRetention:   time.Minute,
		ConnectDebounce:     time.Minute,
		ConnectCooldown:     time.Minute,
		ConnectTimeout:      3 * time.Second,
		ScanProbeTimeout:    50 * time.Millisecond,
		ScanBatchSize:       50,
		ScanBatchPause:      time.Millisecond,
	}
}

func newTestMesh(t *testing.T, network *MemoryNetwork, id, address, broadcast string, mutate func(*Config)) *Mesh {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	m, err := New(id, cfg, network.Host(address, broadcast), nil)
	require.NoError(t, err)
	return m
}

func startMesh(t *testing.T, m *Mesh) {
	t.Helper()
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop() })
}

// recvMessage reads datagrams off a raw socket until one decodes and
// matches the filter, or the timeout elapses.
func recvMessage(t *testing.T, sock Socket, timeout time.Duration, match func(*Message) bool) *Message {
	t.Helper()

	found := make(chan *Message, 1)
	go func() {
		for {
			data, _, err := sock.Receive()
			if err != nil {
				return
			}
			msg, err := Deserialize(data)
			if err != nil {
				continue
			}
			if match == nil || match(msg) {
				found <- msg
				return
			}
		}
	}()

	select {
	case msg := <-found:
		return msg
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a matching datagram")
		return nil
	}
}

func TestMeshLifecycle(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)

	assert.False(t, m.Running())
	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Running())

	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyRunning)

	require.NoError(t, m.Stop())
	assert.False(t, m.Running())
	assert.ErrorIs(t, m.Stop(), ErrNotRunning)
}

func TestMeshGeneratesLocalID(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "", "10.0.0.1", "10.0.0.255", nil)
	assert.Contains(t, m.LocalID(), "node-")
}

func TestMeshRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ControlPort = 0
	_, err := New("node-a", cfg, NewMemoryNetwork().Host("10.0.0.1", "10.0.0.255"), nil)
	assert.Error(t, err)
}

func TestMutualDiscovery(t *testing.T) {
	network := NewMemoryNetwork()
	a := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)
	b := newTestMesh(t, network, "node-b", "10.0.0.2", "10.0.0.255", nil)

	var changed atomic.Int32
	a.SetNodesChangedHandler(func(nodes []*Node) { changed.Add(1) })

	startMesh(t, a)
	startMesh(t, b)

	assert.Eventually(t, func() bool {
		_, aKnowsB := a.nodes.Get("node-b")
		_, bKnowsA := b.nodes.Get("node-a")
		return aKnowsB && bKnowsA
	}, 2*time.Second, 10*time.Millisecond, "both sides converge on each other")

	node, ok := a.nodes.Get("node-b")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", node.Address)
	assert.Equal(t, "test-node", node.DisplayName)
	assert.Equal(t, 1, node.HopCount)

	// Discovery creates the one-hop route alongside the node.
	next, ok := a.nodes.NextHop("node-b")
	require.True(t, ok)
	assert.Equal(t, "node-b", next.ID)

	assert.Positive(t, changed.Load(), "membership observer notified")
}

func TestControlMessageDelivery(t *testing.T) {
	network := NewMemoryNetwork()
	a := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)
	b := newTestMesh(t, network, "node-b", "10.0.0.2", "10.0.0.255", nil)

	received := make(chan string, 1)
	b.SetControlHandler(func(text, sourceID string) {
		received <- sourceID + ":" + text
	})

	startMesh(t, a)
	startMesh(t, b)

	require.Eventually(t, func() bool {
		_, ok := a.nodes.Get("node-b")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.SendControlMessage("hello", "node-b"))

	select {
	case got := <-received:
		assert.Equal(t, "node-a:hello", got)
	case <-time.After(2 * time.Second):
		t.Fatal("control message never delivered")
	}
}

func TestSendControlMessageNoRoute(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)

	assert.ErrorIs(t, m.SendControlMessage("x", "node-b"), ErrNotRunning)

	startMesh(t, m)
	assert.ErrorIs(t, m.SendControlMessage("x", "node-ghost"), ErrNoRouteToNode)
}

func TestDuplicateSuppression(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)

	var delivered atomic.Int32
	m.SetControlHandler(func(text, sourceID string) { delivered.Add(1) })
	startMesh(t, m)

	injector, err := network.Host("10.0.1.9", "10.0.1.255").OpenSocket(9999, ControlRecvBufferSize)
	require.NoError(t, err)
	defer injector.Close()

	msg := &Message{
		ID:            "dup-1",
		SourceID:      "node-x",
		DestinationID: "node-a",
		Type:          MsgTypeControl,
		TTL:           5,
		Timestamp:     time.Now().UnixMilli(),
		Payload:       []byte("once"),
	}
	data := Serialize(msg)

	// Same message ID three times, as a flooding relay would produce.
	for i := 0; i < 3; i++ {
		require.NoError(t, injector.Send(data, "10.0.0.1", 8888))
	}

	assert.Eventually(t, func() bool {
		return delivered.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), delivered.Load(), "exactly one dispatch per message ID")
}

func TestSelfEchoSuppressed(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)

	var delivered atomic.Int32
	m.SetControlHandler(func(text, sourceID string) { delivered.Add(1) })
	startMesh(t, m)

	injector, err := network.Host("10.0.1.9", "10.0.1.255").OpenSocket(9999, ControlRecvBufferSize)
	require.NoError(t, err)
	defer injector.Close()

	// A message claiming to come from ourselves, as a reflected broadcast
	// would.
	echo := NewMessage("node-a", "node-a", MsgTypeControl, []byte("loop"))
	require.NoError(t, injector.Send(Serialize(echo), "10.0.0.1", 8888))

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, delivered.Load())
	assert.False(t, m.seen.Has(echo.ID), "self-echoes are dropped before dedup bookkeeping")
}

func TestControlForwardDecrementsTTL(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "node-m", "10.0.0.1", "10.0.0.255", nil)
	startMesh(t, m)

	// A raw listener standing in for the destination node, outside the
	// relay's broadcast domain so only forwarded traffic reaches it.
	zSock, err := network.Host("10.0.1.2", "10.0.1.255").OpenSocket(8888, ControlRecvBufferSize)
	require.NoError(t, err)
	defer zSock.Close()

	m.nodes.Upsert("node-z", "zeta", "10.0.1.2", 8888, 1, false)

	injector, err := network.Host("10.0.1.3", "10.0.1.255").OpenSocket(9999, ControlRecvBufferSize)
	require.NoError(t, err)
	defer injector.Close()

	msg := &Message{
		ID:            "fwd-1",
		SourceID:      "node-x",
		DestinationID: "node-z",
		Type:          MsgTypeControl,
		TTL:           3,
		Timestamp:     time.Now().UnixMilli(),
		Payload:       []byte("relay me"),
	}
	require.NoError(t, injector.Send(Serialize(msg), "10.0.0.1", 8888))

	fwd := recvMessage(t, zSock, 2*time.Second, func(m *Message) bool {
		return m.Type == MsgTypeControl
	})
	assert.Equal(t, "fwd-1", fwd.ID, "forwarding preserves the message ID")
	assert.Equal(t, "node-x", fwd.SourceID)
	assert.Equal(t, 2, fwd.TTL, "forwarding decrements the TTL")
	assert.Equal(t, []byte("relay me"), fwd.Payload)
}

func TestControlForwardDropsExhaustedTTL(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "node-m", "10.0.0.1", "10.0.0.255", nil)
	startMesh(t, m)

	zSock, err := network.Host("10.0.1.2", "10.0.1.255").OpenSocket(8888, ControlRecvBufferSize)
	require.NoError(t, err)
	defer zSock.Close()

	m.nodes.Upsert("node-z", "zeta", "10.0.1.2", 8888, 1, false)

	injector, err := network.Host("10.0.1.3", "10.0.1.255").OpenSocket(9999, ControlRecvBufferSize)
	require.NoError(t, err)
	defer injector.Close()

	msg := &Message{
		ID:            "dead-1",
		SourceID:      "node-x",
		DestinationID: "node-z",
		Type:          MsgTypeControl,
		TTL:           0,
		Timestamp:     time.Now().UnixMilli(),
		Payload:       []byte("too far"),
	}
	require.NoError(t, injector.Send(Serialize(msg), "10.0.0.1", 8888))

	// Heartbeats toward node-z still flow; only a forwarded CONTROL
	// message would be a failure.
	forwarded := make(chan struct{}, 1)
	go func() {
		for {
			data, _, err := zSock.Receive()
			if err != nil {
				return
			}
			if got, err := Deserialize(data); err == nil && got.Type == MsgTypeControl {
				forwarded <- struct{}{}
				return
			}
		}
	}()
	select {
	case <-forwarded:
		t.Fatal("TTL-exhausted message was forwarded")
	case <-time.After(250 * time.Millisecond):
	}
}

func TestHeartbeatRefreshesKnownNode(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)
	startMesh(t, m)

	m.nodes.Upsert("node-b", "bravo", "10.0.1.2", 8888, 1, false)
	before, _ := m.nodes.Get("node-b")

	time.Sleep(10 * time.Millisecond)

	injector, err := network.Host("10.0.1.2", "10.0.1.255").OpenSocket(9999, ControlRecvBufferSize)
	require.NoError(t, err)
	defer injector.Close()

	hb := NewMessage("node-b", "node-a", MsgTypeHeartbeat, []byte(heartbeatPayload))
	require.NoError(t, injector.Send(Serialize(hb), "10.0.0.1", 8888))

	assert.Eventually(t, func() bool {
		after, ok := m.nodes.Get("node-b")
		return ok && after.LastSeen.After(before.LastSeen)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHeartbeatFromUnknownNodeIgnored(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)
	startMesh(t, m)

	injector, err := network.Host("10.0.1.9", "10.0.1.255").OpenSocket(9999, ControlRecvBufferSize)
	require.NoError(t, err)
	defer injector.Close()

	hb := NewMessage("node-ghost", "node-a", MsgTypeHeartbeat, []byte(heartbeatPayload))
	require.NoError(t, injector.Send(Serialize(hb), "10.0.0.1", 8888))

	// A heartbeat must never resurrect or create a node entry.
	time.Sleep(150 * time.Millisecond)
	_, ok := m.nodes.Get("node-ghost")
	assert.False(t, ok)
}

func TestMaintenanceEvictsSilentNodes(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", func(cfg *Config) {
		cfg.NodeTimeout = 50 * time.Millisecond
		cfg.MaintenanceInterval = 20 * time.Millisecond
		cfg.HeartbeatInterval = time.Minute
	})
	startMesh(t, m)

	m.nodes.Upsert("node-b", "bravo", "10.0.9.2", 8888, 1, false)

	assert.Eventually(t, func() bool {
		_, ok := m.nodes.Get("node-b")
		return !ok
	}, 2*time.Second, 10*time.Millisecond, "silent node evicted after NodeTimeout")

	_, ok := m.nodes.GetRoute("node-b")
	assert.False(t, ok, "route evicted with its node")
}

func TestAudioDelivery(t *testing.T) {
	network := NewMemoryNetwork()
	a := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)
	b := newTestMesh(t, network, "node-b", "10.0.0.2", "10.0.0.255", nil)

	type frame struct {
		payload []byte
		source  string
	}
	received := make(chan frame, 4)
	b.SetAudioHandler(func(payload []byte, sourceID string) {
		received <- frame{payload: payload, source: sourceID}
	})

	startMesh(t, a)
	startMesh(t, b)

	require.Eventually(t, func() bool {
		_, ok := a.nodes.Get("node-b")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.SendAudioData([]byte("hello"), "node-b"))

	select {
	case got := <-received:
		assert.Equal(t, []byte("hello"), got.payload)
		assert.Equal(t, "node-a", got.source)
	case <-time.After(2 * time.Second):
		t.Fatal("audio frame never delivered")
	}
}

func TestAudioWireFormat(t *testing.T) {
	network := NewMemoryNetwork()
	a := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)
	startMesh(t, a)

	// Raw listener on the destination's audio port, outside the broadcast
	// domain.
	bAudio, err := network.Host("10.0.1.2", "10.0.1.255").OpenSocket(8889, AudioRecvBufferSize)
	require.NoError(t, err)
	defer bAudio.Close()

	a.nodes.Upsert("node-b", "bravo", "10.0.1.2", 8888, 1, false)

	require.NoError(t, a.SendAudioData([]byte("pcm-frame"), "node-b"))

	msg := recvMessage(t, bAudio, 2*time.Second, nil)
	assert.Equal(t, MsgTypeAudioData, msg.Type)
	assert.Equal(t, "node-a", msg.SourceID)
	assert.Equal(t, "node-b", msg.DestinationID)
	assert.Equal(t, DefaultTTL, msg.TTL)
	assert.Equal(t, []byte("pcm-frame"), msg.Payload)
}

func TestAudioFanOut(t *testing.T) {
	network := NewMemoryNetwork()
	a := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)
	b := newTestMesh(t, network, "node-b", "10.0.0.2", "10.0.0.255", nil)
	c := newTestMesh(t, network, "node-c", "10.0.0.3", "10.0.0.255", nil)

	bGot := make(chan []byte, 4)
	cGot := make(chan []byte, 4)
	b.SetAudioHandler(func(payload []byte, sourceID string) { bGot <- payload })
	c.SetAudioHandler(func(payload []byte, sourceID string) { cGot <- payload })

	startMesh(t, a)
	startMesh(t, b)
	startMesh(t, c)

	require.Eventually(t, func() bool {
		return a.nodes.Count() == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Empty destination fans the frame out to every known node.
	require.NoError(t, a.SendAudioData([]byte("all"), ""))

	for name, ch := range map[string]chan []byte{"b": bGot, "c": cGot} {
		select {
		case payload := <-ch:
			assert.Equal(t, []byte("all"), payload)
		case <-time.After(2 * time.Second):
			t.Fatalf("node %s never received the fan-out frame", name)
		}
	}
}

func TestSendAudioDataValidation(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)

	assert.ErrorIs(t, m.SendAudioData([]byte("x"), ""), ErrNotRunning)

	startMesh(t, m)

	assert.ErrorIs(t, m.SendAudioData(nil, ""), ErrEmptyPayload)
	assert.ErrorIs(t, m.SendAudioData(make([]byte, MaxAudioPayload+1), ""), ErrPayloadTooLarge)
	assert.ErrorIs(t, m.SendAudioData([]byte("x"), "node-ghost"), ErrNoRouteToNode)
}

func TestControlPlaneIgnoresAudioOnWrongPort(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)

	var delivered atomic.Int32
	m.SetAudioHandler(func(payload []byte, sourceID string) { delivered.Add(1) })
	startMesh(t, m)

	injector, err := network.Host("10.0.1.9", "10.0.1.255").OpenSocket(9999, ControlRecvBufferSize)
	require.NoError(t, err)
	defer injector.Close()

	// AUDIO_DATA on the control port is ignored, and CONTROL on the audio
	// port is dropped as wrong-plane.
	audio := NewMessage("node-x", "node-a", MsgTypeAudioData, []byte("pcm"))
	require.NoError(t, injector.Send(Serialize(audio), "10.0.0.1", 8888))

	control := NewMessage("node-x", "node-a", MsgTypeControl, []byte("text"))
	require.NoError(t, injector.Send(Serialize(control), "10.0.0.1", 8889))

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, delivered.Load())
}

func TestAddDirectConnection(t *testing.T) {
	network := NewMemoryNetwork()
	// Different broadcast domains so only the unicast probes can introduce
	// the two nodes.
	a := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)
	b := newTestMesh(t, network, "node-b", "10.0.1.2", "10.0.1.255", nil)

	startMesh(t, a)
	startMesh(t, b)

	require.NoError(t, a.AddDirectConnection(context.Background(), "10.0.1.2", 8888))

	node, ok := a.nodes.Get("node-b")
	require.True(t, ok, "peer materialized from its discovery response")
	assert.Equal(t, "10.0.1.2", node.Address)

	// The peer learned about us from the probe itself.
	assert.Eventually(t, func() bool {
		_, ok := b.nodes.Get("node-a")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAddDirectConnectionGuards(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", func(cfg *Config) {
		cfg.ConnectTimeout = 100 * time.Millisecond
	})

	assert.ErrorIs(t, m.AddDirectConnection(context.Background(), "10.0.1.2", 8888), ErrNotRunning)

	startMesh(t, m)

	assert.ErrorIs(t, m.AddDirectConnection(context.Background(), "10.0.0.1", 8888), ErrOwnAddress)

	// Nothing is listening at the target: the attempt probes, times out,
	// and crucially never fabricates a node entry.
	err := m.AddDirectConnection(context.Background(), "10.0.1.99", 8888)
	assert.ErrorIs(t, err, ErrConnectTimeout)
	assert.Zero(t, m.nodes.Count())

	// Immediate retry to the same address hits the cooldown.
	assert.ErrorIs(t, m.AddDirectConnection(context.Background(), "10.0.1.99", 8888), ErrConnectCooldown)
}

func TestAddDirectConnectionDebounce(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)
	startMesh(t, m)

	// A recently-seen node at the derived ID short-circuits the attempt.
	addr := "10.0.1.2"
	m.nodes.Upsert(DeriveNodeID(addr), "bravo", addr, 8888, 1, false)

	start := time.Now()
	require.NoError(t, m.AddDirectConnection(context.Background(), addr, 8888))
	assert.Less(t, time.Since(start), 100*time.Millisecond, "debounced attempt returns without probing")
}

func TestScanAndConnect(t *testing.T) {
	network := NewMemoryNetwork()
	// Peers share a /24 but not a broadcast domain, so passive discovery
	// cannot find them; only the active sweep can.
	a := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)
	b := newTestMesh(t, network, "node-b", "10.0.0.2", "10.0.1.255", nil)

	startMesh(t, a)
	startMesh(t, b)

	require.NoError(t, a.ScanAndConnect(context.Background()))

	assert.Eventually(t, func() bool {
		_, aKnowsB := a.nodes.Get("node-b")
		_, bKnowsA := b.nodes.Get("node-a")
		return aKnowsB && bKnowsA
	}, 3*time.Second, 10*time.Millisecond)
}

func TestScanAndConnectNotRunning(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)
	assert.ErrorIs(t, m.ScanAndConnect(context.Background()), ErrNotRunning)
}

func TestHandlerPanicDoesNotKillListener(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)

	calls := make(chan string, 2)
	m.SetControlHandler(func(text, sourceID string) {
		calls <- text
		if text == "boom" {
			panic("handler bug")
		}
	})
	startMesh(t, m)

	injector, err := network.Host("10.0.1.9", "10.0.1.255").OpenSocket(9999, ControlRecvBufferSize)
	require.NoError(t, err)
	defer injector.Close()

	first := NewMessage("node-x", "node-a", MsgTypeControl, []byte("boom"))
	require.NoError(t, injector.Send(Serialize(first), "10.0.0.1", 8888))

	second := NewMessage("node-x", "node-a", MsgTypeControl, []byte("still alive"))
	require.NoError(t, injector.Send(Serialize(second), "10.0.0.1", 8888))

	for _, want := range []string{"boom", "still alive"} {
		select {
		case got := <-calls:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("never saw %q after the panic", want)
		}
	}
}

func TestUndecodableDatagramDropped(t *testing.T) {
	network := NewMemoryNetwork()
	m := newTestMesh(t, network, "node-a", "10.0.0.1", "10.0.0.255", nil)

	var delivered atomic.Int32
	m.SetControlHandler(func(text, sourceID string) { delivered.Add(1) })
	startMesh(t, m)

	injector, err := network.Host("10.0.1.9", "10.0.1.255").OpenSocket(9999, ControlRecvBufferSize)
	require.NoError(t, err)
	defer injector.Close()

	require.NoError(t, injector.Send([]byte("garbage datagram"), "10.0.0.1", 8888))
	require.NoError(t, injector.Send([]byte(strings.Repeat("|", 3)), "10.0.0.1", 8888))

	// A well-formed message afterwards still goes through.
	ok := NewMessage("node-x", "node-a", MsgTypeControl, []byte("fine"))
	require.NoError(t, injector.Send(Serialize(ok), "10.0.0.1", 8888))

	assert.Eventually(t, func() bool {
		return delivered.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
