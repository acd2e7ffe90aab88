package repository

import (
	"errors"
	"fieldconfirm/cmd/internal/domain/entity"
	"gorm.io/gorm"
)

type DefaultTicketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) *DefaultTicketRepository {
	return &DefaultTicketRepository{db: db}
}

func (t *DefaultTicketRepository) FindByID(id string) (*entity.Ticket, error) {
	var ticket entity.Ticket
	err := t.db.First(&ticket, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (t *DefaultTicketRepository) Save(ticket *entity.Ticket) error {
	return t.db.Save(ticket).Error
}
