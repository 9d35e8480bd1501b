package websocket

import (
	"context"
	"sort"
)

type roomQuery struct {
	reply chan []RoomRes
}

// Hub owns the room table. Every mutation happens on the Run goroutine.
type Hub struct {
	Rooms      map[string]*Room
	Register   chan *WSClient
	Unregister chan *WSClient
	Broadcast  chan *WSMessage

	queries chan roomQuery
	done    chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[string]*Room),
		Register:   make(chan *WSClient),
		Unregister: make(chan *WSClient),
		Broadcast:  make(chan *WSMessage),
		queries:    make(chan roomQuery),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			room, ok := h.Rooms[client.RoomID]
			if !ok {
				room = &Room{ID: client.RoomID, Clients: make(map[string]*WSClient)}
				h.Rooms[client.RoomID] = room
				setRooms(len(h.Rooms))
			}
			room.Clients[client.ID] = client
			incConnections()

		case client := <-h.Unregister:
			h.remove(client)

		case message := <-h.Broadcast:
			room, ok := h.Rooms[message.RoomID]
			if !ok {
				continue
			}
			delivered := 0
			for _, client := range room.Clients {
				select {
				case client.Message <- message:
					delivered++
				default:
					h.remove(client)
				}
			}
			if delivered > 0 {
				addDelivered(delivered)
			}

		case q := <-h.queries:
			rooms := make([]RoomRes, 0, len(h.Rooms))
			for _, room := range h.Rooms {
				rooms = append(rooms, RoomRes{ID: room.ID, Clients: len(room.Clients)})
			}
			sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
			q.reply <- rooms
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Snapshot lists the rooms with listeners. It returns nil once the hub stopped.
func (h *Hub) Snapshot() []RoomRes {
	q := roomQuery{reply: make(chan []RoomRes, 1)}
	select {
	case h.queries <- q:
		return <-q.reply
	case <-h.done:
		return nil
	}
}

// RoomSize returns the number of clients joined to roomID.
func (h *Hub) RoomSize(roomID string) int {
	for _, room := range h.Snapshot() {
		if room.ID == roomID {
			return room.Clients
		}
	}
	return 0
}

func (h *Hub) remove(client *WSClient) {
	room, ok := h.Rooms[client.RoomID]
	if !ok {
		return
	}
	if _, ok := room.Clients[client.ID]; !ok {
		return
	}
	delete(room.Clients, client.ID)
	close(client.Message)
	decConnections()

	if len(room.Clients) == 0 {
		delete(h.Rooms, room.ID)
		setRooms(len(h.Rooms))
	}
}

func (h *Hub) closeAll() {
	for _, room := range h.Rooms {
		for _, client := range room.Clients {
			h.remove(client)
		}
	}
}
