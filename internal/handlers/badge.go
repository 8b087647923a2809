// internal/handlers/badge.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chatwave/lowcard/internal/seats"
)

type assignBadgeRequest struct {
	Room  string `json:"room"`
	Seat  int    `json:"seat"`
	Count int    `json:"count"`
	Color string `json:"color"`
}

type removeBadgeRequest struct {
	Room string `json:"room"`
	Seat int    `json:"seat"`
}

// AssignBadgeHandler writes a VIP badge on an occupied seat and broadcasts
// it to the room.
func AssignBadgeHandler(rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assignBadgeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		if err := rs.Badges.Assign(req.Room, req.Seat, req.Count, req.Color); err != nil {
			http.Error(w, err.Error(), badgeErrorStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// RemoveBadgeHandler clears a seat's badge, tolerating absence.
func RemoveBadgeHandler(rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req removeBadgeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		if err := rs.Badges.Remove(req.Room, req.Seat); err != nil {
			http.Error(w, err.Error(), badgeErrorStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// ListBadgesHandler enumerates a room's seat→badge pairs.
func ListBadgesHandler(rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := r.URL.Query().Get("room")
		if room == "" {
			http.Error(w, "missing room query parameter", http.StatusBadRequest)
			return
		}

		type entry struct {
			Seat  int    `json:"seat"`
			Count int    `json:"count"`
			Color string `json:"color"`
		}
		out := []entry{}
		for seat, b := range rs.Badges.ListAll(room) {
			out = append(out, entry{Seat: seat, Count: b.Count, Color: b.Color})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func badgeErrorStatus(err error) int {
	switch {
	case errors.Is(err, seats.ErrSeatOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, seats.ErrRoomUnknown), errors.Is(err, seats.ErrSeatUnoccupied):
		return http.StatusNotFound
	case errors.Is(err, seats.ErrSeatNotAssignable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
