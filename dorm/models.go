// Package dorm is the relational store for dormitory rooms and students.
// Every mutating operation runs in a single transaction and reports domain
// rule violations (room full, duplicate id, not found) as typed errors, so
// callers can treat them as normal business outcomes.
package dorm

import (
	"errors"
	"fmt"
)

// Room is one dormitory room. RoomID is the human-facing identifier
// ("A100", "B201"); Building/Floor/RoomNumber exist for ordering.
type Room struct {
	RoomID     string `gorm:"column:room_id;primaryKey" json:"room_id"`
	Building   string `gorm:"column:building" json:"building"`
	Floor      int    `gorm:"column:floor" json:"floor"`
	RoomNumber int    `gorm:"column:room_number" json:"room_number"`
	Capacity   int    `gorm:"column:capacity" json:"capacity"`
}

func (Room) TableName() string { return "rooms" }

// Student is one registered student. Column names follow the dormitory
// schema: mssv (student id), ten (name), nam_sinh (birth year).
type Student struct {
	StudentID string `gorm:"column:mssv;primaryKey" json:"mssv"`
	Name      string `gorm:"column:ten" json:"ten"`
	BirthYear int    `gorm:"column:nam_sinh" json:"nam_sinh"`
	RoomID    string `gorm:"column:room_id" json:"room_id"`
}

func (Student) TableName() string { return "students" }

// RoomStatus is the occupancy snapshot reported after a mutation.
type RoomStatus struct {
	CurrentStudents int `json:"current_students"`
	Capacity        int `json:"capacity"`
	AvailableSlots  int `json:"available_slots"`
}

// RoomInfo is a room plus its occupants, ordered by student id.
type RoomInfo struct {
	Room            Room      `json:"room"`
	Students        []Student `json:"students"`
	CurrentStudents int       `json:"current_students"`
	AvailableSlots  int       `json:"available_slots"`
}

// StudentInfo is a student joined with their room's location data.
type StudentInfo struct {
	Student  Student `json:"student"`
	Building string  `json:"building,omitempty"`
	Floor    int     `json:"floor,omitempty"`
	Capacity int     `json:"capacity,omitempty"`
}

// RoomAvailability is one row of the available-rooms listing.
type RoomAvailability struct {
	RoomID          string `gorm:"column:room_id" json:"room_id"`
	Building        string `gorm:"column:building" json:"building"`
	Floor           int    `gorm:"column:floor" json:"floor"`
	Capacity        int    `gorm:"column:capacity" json:"capacity"`
	CurrentStudents int    `gorm:"column:current_students" json:"current_students"`
	AvailableSlots  int    `gorm:"column:available_slots" json:"available_slots"`
}

// Domain rule violations. These are expected business outcomes, not
// faults; tool dispatch maps them to {ok:false, error} results.
var (
	ErrStudentExists   = errors.New("student already exists")
	ErrStudentNotFound = errors.New("student not found")
	ErrRoomNotFound    = errors.New("room not found")
)

// ErrRoomFull reports an add against a room at capacity, carrying the
// occupancy so the summary can state it.
type ErrRoomFull struct {
	RoomID          string
	Capacity        int
	CurrentStudents int
}

func (e *ErrRoomFull) Error() string {
	return fmt.Sprintf("room %s is full (%d students)", e.RoomID, e.Capacity)
}
