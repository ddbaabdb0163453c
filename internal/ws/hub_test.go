package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

func TestHubAddAndRemove(t *testing.T) {
	hub := NewHub()
	client := NewClient(nil, ConnInfo{UserID: 1})

	hub.Add(client)
	assert.Equal(t, 1, hub.Len())

	hub.Remove(client)
	assert.Equal(t, 0, hub.Len())
}

func TestHubBroadcastReachesRegisteredClients(t *testing.T) {
	hub := NewHub()
	a := NewClient(nil, ConnInfo{UserID: 1})
	b := NewClient(nil, ConnInfo{UserID: 2})
	hub.Add(a)
	hub.Add(b)

	hub.Broadcast(models.RefreshUsersEvent())

	for _, client := range []*Client{a, b} {
		select {
		case event := <-client.send:
			assert.Equal(t, models.EventRefreshUsers, event.Type)
		default:
			t.Fatalf("client %d did not receive broadcast", client.UserID())
		}
	}
}

func TestHubBroadcastSkipsRemovedClient(t *testing.T) {
	hub := NewHub()
	gone := NewClient(nil, ConnInfo{UserID: 1})
	hub.Add(gone)
	hub.Remove(gone)

	hub.Broadcast(models.RefreshUsersEvent())

	select {
	case <-gone.send:
		t.Fatal("removed client received broadcast")
	default:
	}
}

func TestClientSendEventDropsWhenClosed(t *testing.T) {
	client := NewClient(nil, ConnInfo{UserID: 1})
	// nothing queued yet, so Close only signals done
	close(client.done)

	client.SendEvent(models.RefreshUsersEvent())

	select {
	case <-client.send:
		t.Fatal("closed client accepted event")
	default:
	}
}

func TestClientSendEventDropsWhenBufferFull(t *testing.T) {
	client := NewClient(nil, ConnInfo{UserID: 1})

	for i := 0; i < sendBuffer; i++ {
		client.SendEvent(models.RefreshUsersEvent())
	}
	// buffer full: the next event must be dropped, not block
	client.SendEvent(models.RefreshUsersEvent())

	require.Len(t, client.send, sendBuffer)
}
