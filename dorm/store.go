package dorm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store executes dormitory operations against a GORM-managed database.
// Mutations validate and write inside a single transaction; a failed
// validation leaves the database untouched.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore wraps an open GORM handle. A nil logger falls back to no-op.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// AutoMigrate creates the rooms and students tables when they are
// missing. Production deployments use the SQL migrations instead; this
// exists for tests and local runs against SQLite.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Room{}, &Student{})
}

// AddStudent registers a student into a room. Checks run in order:
// the room must exist, it must have a free slot, and the student id
// must be unused. On success it returns the room status after the
// insert.
func (s *Store) AddStudent(ctx context.Context, st Student) (*RoomStatus, error) {
	var status RoomStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room Room
		if err := tx.First(&room, "room_id = ?", st.RoomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoomNotFound
			}
			return fmt.Errorf("load room: %w", err)
		}

		var count int64
		if err := tx.Model(&Student{}).Where("room_id = ?", st.RoomID).Count(&count).Error; err != nil {
			return fmt.Errorf("count occupants: %w", err)
		}
		if int(count) >= room.Capacity {
			return &ErrRoomFull{RoomID: room.RoomID, Capacity: room.Capacity, CurrentStudents: int(count)}
		}

		var existing Student
		err := tx.First(&existing, "mssv = ?", st.StudentID).Error
		if err == nil {
			return ErrStudentExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check student id: %w", err)
		}

		if err := tx.Create(&st).Error; err != nil {
			return fmt.Errorf("insert student: %w", err)
		}

		status = RoomStatus{
			CurrentStudents: int(count) + 1,
			Capacity:        room.Capacity,
			AvailableSlots:  room.Capacity - int(count) - 1,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("student added",
		zap.String("mssv", st.StudentID),
		zap.String("room_id", st.RoomID),
		zap.Int("available_slots", status.AvailableSlots))
	return &status, nil
}

// RemoveStudent deletes a student by id and returns the removed record
// so callers can report the vacated room.
func (s *Store) RemoveStudent(ctx context.Context, studentID string) (*Student, error) {
	var removed Student
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&removed, "mssv = ?", studentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStudentNotFound
			}
			return fmt.Errorf("load student: %w", err)
		}
		if err := tx.Delete(&Student{}, "mssv = ?", studentID).Error; err != nil {
			return fmt.Errorf("delete student: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("student removed",
		zap.String("mssv", removed.StudentID),
		zap.String("room_id", removed.RoomID))
	return &removed, nil
}

// GetStudentInfo returns a student joined with their room. A student
// whose room row is missing still resolves; the location fields stay
// zero.
func (s *Store) GetStudentInfo(ctx context.Context, studentID string) (*StudentInfo, error) {
	var st Student
	if err := s.db.WithContext(ctx).First(&st, "mssv = ?", studentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("load student: %w", err)
	}
	info := StudentInfo{Student: st}
	var room Room
	err := s.db.WithContext(ctx).First(&room, "room_id = ?", st.RoomID).Error
	if err == nil {
		info.Building = room.Building
		info.Floor = room.Floor
		info.Capacity = room.Capacity
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load room: %w", err)
	}
	return &info, nil
}

// GetRoomInfo returns a room with its occupants ordered by student id.
func (s *Store) GetRoomInfo(ctx context.Context, roomID string) (*RoomInfo, error) {
	var room Room
	if err := s.db.WithContext(ctx).First(&room, "room_id = ?", roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("load room: %w", err)
	}
	var students []Student
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("mssv").
		Find(&students).Error; err != nil {
		return nil, fmt.Errorf("list occupants: %w", err)
	}
	return &RoomInfo{
		Room:            room,
		Students:        students,
		CurrentStudents: len(students),
		AvailableSlots:  room.Capacity - len(students),
	}, nil
}

// ListAvailableRooms returns every room with at least one free slot,
// ordered by building, floor, then room number.
func (s *Store) ListAvailableRooms(ctx context.Context) ([]RoomAvailability, error) {
	var rows []RoomAvailability
	err := s.db.WithContext(ctx).Raw(`
		SELECT r.room_id, r.building, r.floor, r.capacity,
		       COUNT(s.mssv) AS current_students,
		       r.capacity - COUNT(s.mssv) AS available_slots
		FROM rooms r
		LEFT JOIN students s ON s.room_id = r.room_id
		GROUP BY r.room_id, r.building, r.floor, r.room_number, r.capacity
		HAVING r.capacity - COUNT(s.mssv) > 0
		ORDER BY r.building, r.floor, r.room_number`).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list available rooms: %w", err)
	}
	return rows, nil
}
