package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"studyspace-reservation/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for all database operations.
type Store interface {
	// WithinTx runs fn against a Store bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Store) error) error

	GetOrCreateStudent(ctx context.Context, studentID int64) (*model.Student, error)
	FindStudent(ctx context.Context, studentID int64) (*model.Student, error)
	SaveStudent(ctx context.Context, s *model.Student) error

	ResourceExists(ctx context.Context, kind model.ReservationKind, id int64) (bool, error)
	ResourceIDs(ctx context.Context, kind model.ReservationKind) ([]int64, error)
	Rooms(ctx context.Context) ([]model.Room, error)

	ResourceBookings(ctx context.Context, kind model.ReservationKind, resourceID int64, date string) ([]model.Reservation, error)
	StudentBookings(ctx context.Context, studentID int64, date string) ([]model.Reservation, error)

	CreateReservation(ctx context.Context, r *model.Reservation) error
	GetReservation(ctx context.Context, id int64) (*model.Reservation, error)
	MarkCanceled(ctx context.Context, id int64, status model.ReservationStatus) error
	DeleteReservation(ctx context.Context, id int64) error
	ListStudentReservations(ctx context.Context, studentID int64, kind model.ReservationKind) ([]model.Reservation, error)
	ListActiveByDate(ctx context.Context, kind model.ReservationKind, date string) ([]model.Reservation, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// GetOrCreateStudent returns the student row, inserting an empty one first
// if the student has never booked.
func (s *gormStore) GetOrCreateStudent(ctx context.Context, studentID int64) (*model.Student, error) {
	db := s.db.WithContext(ctx)
	fresh := model.Student{StudentID: studentID}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}},
		DoNothing: true,
	}).Create(&fresh).Error; err != nil {
		return nil, fmt.Errorf("failed to create student %d: %w", studentID, err)
	}
	return s.FindStudent(ctx, studentID)
}

func (s *gormStore) FindStudent(ctx context.Context, studentID int64) (*model.Student, error) {
	var st model.Student
	err := s.db.WithContext(ctx).Where("student_id = ?", studentID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch student %d: %w", studentID, err)
	}
	return &st, nil
}

func (s *gormStore) SaveStudent(ctx context.Context, st *model.Student) error {
	if err := s.db.WithContext(ctx).Save(st).Error; err != nil {
		return fmt.Errorf("failed to save student %d: %w", st.StudentID, err)
	}
	return nil
}

func resourceModel(kind model.ReservationKind) (interface{}, error) {
	switch kind {
	case model.KindSeat:
		return &model.Seat{}, nil
	case model.KindRoom:
		return &model.Room{}, nil
	default:
		return nil, fmt.Errorf("unknown resource kind %q", kind)
	}
}

func (s *gormStore) ResourceExists(ctx context.Context, kind model.ReservationKind, id int64) (bool, error) {
	m, err := resourceModel(kind)
	if err != nil {
		return false, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(m).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up %s %d: %w", kind, id, err)
	}
	return count > 0, nil
}

func (s *gormStore) ResourceIDs(ctx context.Context, kind model.ReservationKind) ([]int64, error) {
	m, err := resourceModel(kind)
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := s.db.WithContext(ctx).Model(m).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", kind, err)
	}
	return ids, nil
}

func (s *gormStore) Rooms(ctx context.Context) ([]model.Room, error) {
	var rooms []model.Room
	if err := s.db.WithContext(ctx).Order("id").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// ResourceBookings returns the active reservations of one resource on a date.
func (s *gormStore) ResourceBookings(ctx context.Context, kind model.ReservationKind, resourceID int64, date string) ([]model.Reservation, error) {
	var rs []model.Reservation
	err := s.db.WithContext(ctx).
		Where("kind = ? AND resource_id = ? AND date = ? AND status = ?", kind, resourceID, date, model.StatusActive).
		Order("start_time").
		Find(&rs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bookings of %s %d on %s: %w", kind, resourceID, date, err)
	}
	return rs, nil
}

// StudentBookings returns the active reservations of any kind the student
// participates in on a date.
func (s *gormStore) StudentBookings(ctx context.Context, studentID int64, date string) ([]model.Reservation, error) {
	var rs []model.Reservation
	err := s.db.WithContext(ctx).
		Joins("JOIN reservation_participants rp ON rp.reservation_id = reservations.id").
		Where("rp.student_id = ? AND reservations.date = ? AND reservations.status = ?", studentID, date, model.StatusActive).
		Order("reservations.start_time").
		Find(&rs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bookings of student %d on %s: %w", studentID, date, err)
	}
	return rs, nil
}

// CreateReservation inserts the reservation together with its participants.
func (s *gormStore) CreateReservation(ctx context.Context, r *model.Reservation) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

func (s *gormStore) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	var r model.Reservation
	err := s.db.WithContext(ctx).Preload("Participants").First(&r, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reservation %d: %w", id, err)
	}
	return &r, nil
}

// MarkCanceled moves an active reservation to a terminal status. It returns
// ErrNotFound when no active reservation with that id exists.
func (s *gormStore) MarkCanceled(ctx context.Context, id int64, status model.ReservationStatus) error {
	res := s.db.WithContext(ctx).
		Model(&model.Reservation{}).
		Where("id = ? AND status = ?", id, model.StatusActive).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to cancel reservation %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReservation removes the reservation and its participant links.
func (s *gormStore) DeleteReservation(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("reservation_id = ?", id).Delete(&model.ReservationParticipant{}).Error; err != nil {
			return fmt.Errorf("failed to delete participants of reservation %d: %w", id, err)
		}
		res := tx.Delete(&model.Reservation{}, id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete reservation %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListStudentReservations returns every reservation of a kind the student
// participates in, newest first, with participants loaded.
func (s *gormStore) ListStudentReservations(ctx context.Context, studentID int64, kind model.ReservationKind) ([]model.Reservation, error) {
	var rs []model.Reservation
	err := s.db.WithContext(ctx).
		Preload("Participants").
		Joins("JOIN reservation_participants rp ON rp.reservation_id = reservations.id").
		Where("rp.student_id = ? AND reservations.kind = ?", studentID, kind).
		Order("reservations.date DESC, reservations.start_time DESC").
		Find(&rs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations of student %d: %w", studentID, err)
	}
	return rs, nil
}

// ListActiveByDate returns the active reservations of a kind on a date,
// ordered by resource and start time.
func (s *gormStore) ListActiveByDate(ctx context.Context, kind model.ReservationKind, date string) ([]model.Reservation, error) {
	var rs []model.Reservation
	err := s.db.WithContext(ctx).
		Preload("Participants").
		Where("kind = ? AND date = ? AND status = ?", kind, date, model.StatusActive).
		Order("resource_id, start_time").
		Find(&rs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s reservations on %s: %w", kind, date, err)
	}
	return rs, nil
}
