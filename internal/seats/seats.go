// internal/seats/seats.go
package seats

import "sync"

// Seats are numbered 1 through MaxSeats within a room.
const MaxSeats = 35

// Occupant describes who holds a seat. Placeholder and Locked seats belong
// to the room scenery (bots, reserved slots) rather than a real user.
type Occupant struct {
	Username    string
	Placeholder bool
	Locked      bool
}

// Real reports whether the seat is held by an actual user.
func (o Occupant) Real() bool {
	return !o.Placeholder && !o.Locked && o.Username != ""
}

// Table tracks seat occupancy across rooms. Safe for concurrent use.
type Table struct {
	mu    sync.Mutex
	rooms map[string]map[int]Occupant
}

// NewTable builds an empty seat table.
func NewTable() *Table {
	return &Table{rooms: make(map[string]map[int]Occupant)}
}

// Occupy places o in the given seat, displacing any previous occupant.
// Returns false when the seat number is out of range.
func (t *Table) Occupy(room string, seat int, o Occupant) bool {
	if seat < 1 || seat > MaxSeats {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	seatsInRoom, ok := t.rooms[room]
	if !ok {
		seatsInRoom = make(map[int]Occupant)
		t.rooms[room] = seatsInRoom
	}
	seatsInRoom[seat] = o
	return true
}

// OccupyFirstFree seats o in the lowest-numbered free seat and returns its
// number, or 0 when the room is full.
func (t *Table) OccupyFirstFree(room string, o Occupant) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	seatsInRoom, ok := t.rooms[room]
	if !ok {
		seatsInRoom = make(map[int]Occupant)
		t.rooms[room] = seatsInRoom
	}
	for seat := 1; seat <= MaxSeats; seat++ {
		if _, taken := seatsInRoom[seat]; !taken {
			seatsInRoom[seat] = o
			return seat
		}
	}
	return 0
}

// Vacate frees the given seat. No-op if empty or out of range.
func (t *Table) Vacate(room string, seat int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seatsInRoom, ok := t.rooms[room]; ok {
		delete(seatsInRoom, seat)
		if len(seatsInRoom) == 0 {
			delete(t.rooms, room)
		}
	}
}

// Occupant returns the seat's occupant, if any.
func (t *Table) Occupant(room string, seat int) (Occupant, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	seatsInRoom, ok := t.rooms[room]
	if !ok {
		return Occupant{}, false
	}
	o, ok := seatsInRoom[seat]
	return o, ok
}

// Rooms returns the names of all rooms with at least one occupied seat.
func (t *Table) Rooms() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.rooms))
	for room := range t.rooms {
		names = append(names, room)
	}
	return names
}

// HasRoom reports whether any seat in room is occupied.
func (t *Table) HasRoom(room string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.rooms[room]
	return ok
}
