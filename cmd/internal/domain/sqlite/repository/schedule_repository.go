package repository

import (
	"errors"
	"fieldconfirm/cmd/internal/domain/entity"
	"fieldconfirm/cmd/internal/utils"
	"fmt"
	"gorm.io/gorm"
)

type DefaultScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *DefaultScheduleRepository {
	return &DefaultScheduleRepository{db: db}
}

func (s *DefaultScheduleRepository) FindByID(id string) (*entity.Schedule, error) {
	var sched entity.Schedule
	err := s.db.First(&sched, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sched, nil
}

// FindByIDs returns the schedules among ids that exist, oldest first.
// Unknown ids are silently dropped.
func (s *DefaultScheduleRepository) FindByIDs(ids []string, limit int) ([]*entity.Schedule, error) {
	var scheds []*entity.Schedule
	if len(ids) == 0 {
		return scheds, nil
	}

	err := s.db.Where("id IN ?", ids).
		Order("created_at asc").
		Limit(limit).
		Find(&scheds).Error
	return scheds, err
}

// FindActive selects schedules still waiting on a human response, oldest first.
func (s *DefaultScheduleRepository) FindActive(limit int) ([]*entity.Schedule, error) {
	var scheds []*entity.Schedule
	err := s.db.Where("status IN ?", entity.ActiveStatuses).
		Order("created_at asc").
		Limit(limit).
		Find(&scheds).Error
	return scheds, err
}

// ApplyUpdate writes the schedule update, and optionally rolls the owning
// ticket back to triaged, in a single transaction.
func (s *DefaultScheduleRepository) ApplyUpdate(id string, upd *entity.ScheduleUpdate, rollbackTicketID string) error {
	now := utils.NowUTC()
	return s.db.Transaction(func(tx *gorm.DB) error {
		if rollbackTicketID != "" {
			err := tx.Model(&entity.Ticket{}).
				Where("id = ?", rollbackTicketID).
				Updates(map[string]any{"status": entity.TicketStatusTriaged, "updated_at": now}).Error
			if err != nil {
				return fmt.Errorf("rollback ticket %s: %w", rollbackTicketID, err)
			}
		}

		cols := upd.Columns()
		cols["updated_at"] = now
		res := tx.Model(&entity.Schedule{}).Where("id = ?", id).Updates(cols)
		if res.Error != nil {
			return fmt.Errorf("update schedule %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("update schedule %s: %w", id, gorm.ErrRecordNotFound)
		}
		return nil
	})
}

func (s *DefaultScheduleRepository) Save(schedule *entity.Schedule) error {
	return s.db.Save(schedule).Error
}
