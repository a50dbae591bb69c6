package history

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ecolote/leadengine/pkg/db/models"
	"github.com/ecolote/leadengine/pkg/enums"
)

// Repository persists and queries lead status history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, record *models.LeadStatusHistory) error
	AppendBatch(ctx context.Context, records []models.LeadStatusHistory) error
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]models.LeadStatusHistory, error)
	ListByLeads(ctx context.Context, leadIDs []uuid.UUID) ([]models.LeadStatusHistory, error)
	Window(ctx context.Context, q WindowQuery) ([]models.LeadStatusHistory, error)
	Recent(ctx context.Context, q RecentQuery) ([]RecentEntry, error)
	LeadAssignees(ctx context.Context, leadIDs []uuid.UUID) (map[uuid.UUID]*uuid.UUID, error)
}

// WindowQuery filters history records by time range and actors.
type WindowQuery struct {
	From      *time.Time
	To        *time.Time
	ChangedBy *uuid.UUID
	NewStatus *enums.LeadStatus
	// AssignedTo restricts records to leads currently assigned to this seller.
	AssignedTo *uuid.UUID
}

// RecentQuery selects records changed after Since, newest first.
type RecentQuery struct {
	Since      time.Time
	Limit      int
	AssignedTo *uuid.UUID
}

// RecentEntry is a history record joined with its lead name.
type RecentEntry struct {
	models.LeadStatusHistory
	LeadName string `gorm:"column:lead_name" json:"lead_name"`
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, record *models.LeadStatusHistory) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) AppendBatch(ctx context.Context, records []models.LeadStatusHistory) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&records).Error
}

func (r *repository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]models.LeadStatusHistory, error) {
	var rows []models.LeadStatusHistory
	err := r.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("changed_at DESC").
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListByLeads(ctx context.Context, leadIDs []uuid.UUID) ([]models.LeadStatusHistory, error) {
	var rows []models.LeadStatusHistory
	if len(leadIDs) == 0 {
		return rows, nil
	}
	err := r.db.WithContext(ctx).
		Where("lead_id IN ?", leadIDs).
		Order("changed_at DESC").
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) Window(ctx context.Context, q WindowQuery) ([]models.LeadStatusHistory, error) {
	query := r.db.WithContext(ctx).Model(&models.LeadStatusHistory{})
	if q.From != nil {
		query = query.Where("lead_status_history.changed_at >= ?", *q.From)
	}
	if q.To != nil {
		query = query.Where("lead_status_history.changed_at <= ?", *q.To)
	}
	if q.ChangedBy != nil {
		query = query.Where("lead_status_history.changed_by = ?", *q.ChangedBy)
	}
	if q.NewStatus != nil {
		query = query.Where("lead_status_history.new_status = ?", *q.NewStatus)
	}
	if q.AssignedTo != nil {
		query = query.
			Joins("JOIN leads ON leads.id = lead_status_history.lead_id").
			Where("leads.assigned_to = ?", *q.AssignedTo)
	}

	var rows []models.LeadStatusHistory
	err := query.
		Select("lead_status_history.*").
		Order("lead_status_history.changed_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) Recent(ctx context.Context, q RecentQuery) ([]RecentEntry, error) {
	query := r.db.WithContext(ctx).
		Table("lead_status_history AS h").
		Select("h.*, l.name AS lead_name").
		Joins("JOIN leads l ON l.id = h.lead_id").
		Where("h.changed_at >= ?", q.Since)
	if q.AssignedTo != nil {
		query = query.Where("l.assigned_to = ?", *q.AssignedTo)
	}

	var rows []RecentEntry
	err := query.
		Order("h.changed_at DESC").
		Limit(q.Limit).
		Scan(&rows).Error
	return rows, err
}

func (r *repository) LeadAssignees(ctx context.Context, leadIDs []uuid.UUID) (map[uuid.UUID]*uuid.UUID, error) {
	out := make(map[uuid.UUID]*uuid.UUID, len(leadIDs))
	if len(leadIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ID         uuid.UUID
		AssignedTo *uuid.UUID
	}
	err := r.db.WithContext(ctx).
		Model(&models.Lead{}).
		Select("id, assigned_to").
		Where("id IN ?", leadIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.AssignedTo
	}
	return out, nil
}
