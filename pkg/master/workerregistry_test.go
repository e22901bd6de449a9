package master

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikieden/tachyon/pkg/tachyon"
)

func TestWorkerRegistryRegisterAssignsIncreasingIDs(t *testing.T) {
	r := newWorkerRegistry(1000)
	id1, prev1 := r.register(tachyon.NetAddress{Host: "w1", Port: 1}, 100, 0, nil, 1)
	assert.EqualValues(t, 1, id1)
	assert.Nil(t, prev1)

	id2, _ := r.register(tachyon.NetAddress{Host: "w2", Port: 1}, 100, 0, nil, 1)
	assert.EqualValues(t, 2, id2)
}

func TestWorkerRegistryReRegisterSameAddressReusesID(t *testing.T) {
	r := newWorkerRegistry(1000)
	id1, _ := r.register(tachyon.NetAddress{Host: "w1", Port: 1}, 100, 0, []tachyon.FileID{5, 6}, 1)

	id2, prev := r.register(tachyon.NetAddress{Host: "w1", Port: 1}, 100, 0, []tachyon.FileID{7}, 2)
	assert.Equal(t, id1, id2)
	assert.ElementsMatch(t, []tachyon.FileID{5, 6}, prev)
}

func TestWorkerRegistryKnownWorkerID(t *testing.T) {
	r := newWorkerRegistry(1000)
	assert.False(t, r.knownWorkerID(99))

	id, _ := r.register(tachyon.NetAddress{Host: "w1", Port: 1}, 100, 0, nil, 1)
	assert.True(t, r.knownWorkerID(id))
}

func TestWorkerRegistryHeartbeatUnknownWorkerForcesRegister(t *testing.T) {
	r := newWorkerRegistry(1000)
	cmd := r.heartbeat(999, 0, nil, 5)
	assert.Equal(t, tachyon.CommandRegister, cmd.Type)
}

func TestWorkerRegistryHeartbeatDrainsCommandQueueFIFO(t *testing.T) {
	r := newWorkerRegistry(1000)
	id, _ := r.register(tachyon.NetAddress{Host: "w1", Port: 1}, 100, 0, nil, 1)

	r.enqueue(id, tachyon.Command{Type: tachyon.CommandFree, Data: []tachyon.FileID{1}})
	r.enqueue(id, tachyon.Command{Type: tachyon.CommandDelete, Data: []tachyon.FileID{2}})

	cmd1 := r.heartbeat(id, 10, nil, 2)
	assert.Equal(t, tachyon.CommandFree, cmd1.Type)

	cmd2 := r.heartbeat(id, 10, nil, 3)
	assert.Equal(t, tachyon.CommandDelete, cmd2.Type)

	cmd3 := r.heartbeat(id, 10, nil, 4)
	assert.Equal(t, tachyon.CommandNothing, cmd3.Type)
}

func TestWorkerRegistryDetectTimedOut(t *testing.T) {
	r := newWorkerRegistry(1000)
	id, _ := r.register(tachyon.NetAddress{Host: "w1", Port: 1}, 100, 0, nil, 0)

	dead := r.detectTimedOut(10*time.Second, 20000)
	require.Len(t, dead, 1)
	assert.Equal(t, id, dead[0])

	notDead := r.detectTimedOut(10*time.Second, 5)
	assert.Empty(t, notDead)
}
