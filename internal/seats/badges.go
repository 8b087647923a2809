// internal/seats/badges.go
package seats

import (
	"errors"
	"sync"

	"github.com/chatwave/lowcard/internal/protocol"
)

// Badge assignment failures. Returned as values so callers can distinguish
// causes; none of these is fatal.
var (
	ErrRoomUnknown       = errors.New("room has no occupied seats")
	ErrSeatOutOfRange    = errors.New("seat number out of range")
	ErrSeatUnoccupied    = errors.New("seat is not occupied")
	ErrSeatNotAssignable = errors.New("seat occupant cannot hold a badge")
)

// BroadcastFunc fans a message out to every connection in a room.
type BroadcastFunc func(room string, msg protocol.Outbound)

// Badge is a VIP annotation on an occupied seat.
type Badge struct {
	Count int
	Color string
}

// Badges is the seat-indexed VIP annotation store for all rooms. It layers
// on a Table it does not own: occupancy changes invalidate annotations,
// reconciled by CleanupForUser.
type Badges struct {
	mu    sync.Mutex
	table *Table
	rooms map[string]map[int]badgeEntry

	broadcastFn BroadcastFunc
}

// badgeEntry remembers the occupant the badge was assigned to, so cleanup
// can detect the seat changing hands underneath it.
type badgeEntry struct {
	badge    Badge
	username string
}

// NewBadges builds a badge store over the given seat table.
func NewBadges(table *Table, broadcast BroadcastFunc) *Badges {
	return &Badges{
		table:       table,
		rooms:       make(map[string]map[int]badgeEntry),
		broadcastFn: broadcast,
	}
}

// Assign writes a badge annotation on an occupied seat and broadcasts it.
// The seat must be held by a real user, not a placeholder or locked slot.
func (b *Badges) Assign(room string, seat, count int, color string) error {
	if seat < 1 || seat > MaxSeats {
		return ErrSeatOutOfRange
	}
	if !b.table.HasRoom(room) {
		return ErrRoomUnknown
	}
	occ, ok := b.table.Occupant(room, seat)
	if !ok {
		return ErrSeatUnoccupied
	}
	if !occ.Real() {
		return ErrSeatNotAssignable
	}

	b.mu.Lock()
	roomBadges, ok := b.rooms[room]
	if !ok {
		roomBadges = make(map[int]badgeEntry)
		b.rooms[room] = roomBadges
	}
	roomBadges[seat] = badgeEntry{
		badge:    Badge{Count: count, Color: color},
		username: occ.Username,
	}
	b.mu.Unlock()

	b.broadcast(room, protocol.BadgeSet{Seat: seat, Count: count, Color: color})
	return nil
}

// Remove clears the badge on a seat, if present. Tolerant of absence: the
// removal broadcast only goes out when something was actually cleared.
func (b *Badges) Remove(room string, seat int) error {
	if seat < 1 || seat > MaxSeats {
		return ErrSeatOutOfRange
	}

	b.mu.Lock()
	roomBadges, ok := b.rooms[room]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	_, had := roomBadges[seat]
	delete(roomBadges, seat)
	if len(roomBadges) == 0 {
		delete(b.rooms, room)
	}
	b.mu.Unlock()

	if had {
		b.broadcast(room, protocol.BadgeRemove{Seat: seat})
	}
	return nil
}

// ListAll returns the room's seat→badge pairs.
func (b *Badges) ListAll(room string) map[int]Badge {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[int]Badge)
	for seat, entry := range b.rooms[room] {
		out[seat] = entry.badge
	}
	return out
}

// CleanupForUser removes every badge whose seat is no longer held by the
// user it was assigned to. Called on disconnect and seat changes.
func (b *Badges) CleanupForUser(username string) {
	type removal struct {
		room string
		seat int
	}
	var removed []removal

	b.mu.Lock()
	for room, roomBadges := range b.rooms {
		for seat, entry := range roomBadges {
			if entry.username != username {
				continue
			}
			occ, ok := b.table.Occupant(room, seat)
			if ok && occ.Username == username {
				continue
			}
			delete(roomBadges, seat)
			removed = append(removed, removal{room: room, seat: seat})
		}
		if len(roomBadges) == 0 {
			delete(b.rooms, room)
		}
	}
	b.mu.Unlock()

	for _, r := range removed {
		b.broadcast(r.room, protocol.BadgeRemove{Seat: r.seat})
	}
}

func (b *Badges) broadcast(room string, msg protocol.Outbound) {
	if b.broadcastFn != nil {
		b.broadcastFn(room, msg)
	}
}
