package leads

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ecolote/leadengine/pkg/db/models"
	"github.com/ecolote/leadengine/pkg/enums"
	"github.com/ecolote/leadengine/pkg/pagination"
)

// ErrNotMatched is returned when a guarded update touched no rows.
var ErrNotMatched = errors.New("lead did not match update guard")

// Guard is one extra predicate a conditional update must satisfy.
type Guard struct {
	Query string
	Args  []any
}

// StatusIs guards on the observed status.
func StatusIs(status enums.LeadStatus) Guard {
	return Guard{Query: "status = ?", Args: []any{status}}
}

// AssignedTo guards on the current assignee.
func AssignedTo(actorID uuid.UUID) Guard {
	return Guard{Query: "assigned_to = ?", Args: []any{actorID}}
}

// Repository persists leads. Every state change goes through a guarded update.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	ListAvailable(ctx context.Context, q ListQuery) ([]models.Lead, *pagination.Cursor, error)
	ListAwaiting(ctx context.Context, assignedTo uuid.UUID) ([]models.Lead, error)
	Insert(ctx context.Context, lead *models.Lead) error
	ConditionalUpdate(ctx context.Context, id uuid.UUID, guards []Guard, updates map[string]any) (*models.Lead, error)
	BulkConditionalUpdate(ctx context.Context, ids []uuid.UUID, guards []Guard, updates map[string]any) ([]models.Lead, error)
	FindDedupPool(ctx context.Context, q DedupQuery) ([]models.Lead, error)
	CountAvailableByType(ctx context.Context, types []string) (map[string]int64, error)
	Stalled(ctx context.Context, statuses []enums.LeadStatus, cutoff time.Time) ([]StalledLead, error)
	Summary(ctx context.Context) (*Summary, error)
}

// ListQuery selects a page of available leads.
type ListQuery struct {
	Type   string
	Limit  int
	Cursor *pagination.Cursor
}

// DedupQuery narrows the candidate pool before the in-memory duplicate rules run.
type DedupQuery struct {
	NameToken    string
	AddressToken string
	PlaceID      string
}

// StalledLead is a sweep candidate with the status it was observed in.
type StalledLead struct {
	ID     uuid.UUID
	Status enums.LeadStatus
}

// Summary is a store-wide overview of collected leads.
type Summary struct {
	Total          int64
	ByType         map[string]int64
	ByStatus       map[string]int64
	WithoutPhone   int64
	CollectedTimes []time.Time
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

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	var lead models.Lead
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&lead).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Lead{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *repository) ListAvailable(ctx context.Context, q ListQuery) ([]models.Lead, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Lead{}).
		Where("status = ?", enums.LeadStatusAvailable)
	if t := strings.TrimSpace(q.Type); t != "" {
		query = query.Where("type = ?", t)
	}
	query = pagination.After(query, q.Cursor)

	var rows []models.Lead
	err := query.
		Order("created_at ASC").
		Order("id ASC").
		Limit(pagination.LimitWithBuffer(q.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, q.Limit, func(l models.Lead) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	return page, next, nil
}

func (r *repository) ListAwaiting(ctx context.Context, assignedTo uuid.UUID) ([]models.Lead, error) {
	var rows []models.Lead
	err := r.db.WithContext(ctx).
		Where("status = ? AND assigned_to = ?", enums.LeadStatusAwaitingReactivation, assignedTo).
		Order("reactivation_due_date ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) Insert(ctx context.Context, lead *models.Lead) error {
	return r.db.WithContext(ctx).Create(lead).Error
}

func (r *repository) ConditionalUpdate(ctx context.Context, id uuid.UUID, guards []Guard, updates map[string]any) (*models.Lead, error) {
	rows, err := r.guardedUpdate(ctx, r.db.WithContext(ctx).Where("id = ?", id), guards, updates)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotMatched
	}
	return &rows[0], nil
}

func (r *repository) BulkConditionalUpdate(ctx context.Context, ids []uuid.UUID, guards []Guard, updates map[string]any) ([]models.Lead, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.guardedUpdate(ctx, r.db.WithContext(ctx).Where("id IN ?", ids), guards, updates)
}

// guardedUpdate issues a single UPDATE ... WHERE <guards> RETURNING id and
// re-reads the matched rows on the same connection.
func (r *repository) guardedUpdate(ctx context.Context, scoped *gorm.DB, guards []Guard, updates map[string]any) ([]models.Lead, error) {
	var matched []models.Lead
	query := scoped.Model(&matched).Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}}})
	for _, g := range guards {
		query = query.Where(g.Query, g.Args...)
	}
	if err := query.Updates(updates).Error; err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(matched))
	for _, row := range matched {
		ids = append(ids, row.ID)
	}
	var rows []models.Lead
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindDedupPool(ctx context.Context, q DedupQuery) ([]models.Lead, error) {
	conds := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if q.NameToken != "" {
		conds = append(conds, `LOWER(name) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(q.NameToken)+"%")
	}
	if q.AddressToken != "" {
		conds = append(conds, `LOWER(formatted_address) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(q.AddressToken)+"%")
	}
	if q.PlaceID != "" {
		conds = append(conds, "place_id = ?")
		args = append(args, q.PlaceID)
	}
	var rows []models.Lead
	if len(conds) == 0 {
		return rows, nil
	}
	err := r.db.WithContext(ctx).
		Where(strings.Join(conds, " OR "), args...).
		Find(&rows).Error
	return rows, err
}

func (r *repository) CountAvailableByType(ctx context.Context, leadTypes []string) (map[string]int64, error) {
	out := make(map[string]int64, len(leadTypes))
	for _, t := range leadTypes {
		out[t] = 0
	}
	if len(leadTypes) == 0 {
		return out, nil
	}
	var rows []struct {
		Type  string
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Lead{}).
		Select("type, COUNT(*) AS count").
		Where("status = ? AND type IN ?", enums.LeadStatusAvailable, leadTypes).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.Type] = row.Count
	}
	return out, nil
}

func (r *repository) Stalled(ctx context.Context, statuses []enums.LeadStatus, cutoff time.Time) ([]StalledLead, error) {
	var rows []StalledLead
	err := r.db.WithContext(ctx).
		Model(&models.Lead{}).
		Select("id, status").
		Where("status IN ? AND last_status_update_at < ?", statuses, cutoff).
		Order("last_status_update_at ASC").
		Order("id ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) Summary(ctx context.Context) (*Summary, error) {
	summary := &Summary{ByType: map[string]int64{}, ByStatus: map[string]int64{}}
	base := r.db.WithContext(ctx).Model(&models.Lead{})

	if err := base.Session(&gorm.Session{}).Count(&summary.Total).Error; err != nil {
		return nil, err
	}

	var grouped []struct {
		Bucket string
		Count  int64
	}
	if err := base.Session(&gorm.Session{}).Select("type AS bucket, COUNT(*) AS count").Group("type").Scan(&grouped).Error; err != nil {
		return nil, err
	}
	for _, g := range grouped {
		summary.ByType[g.Bucket] = g.Count
	}

	grouped = nil
	if err := base.Session(&gorm.Session{}).Select("status AS bucket, COUNT(*) AS count").Group("status").Scan(&grouped).Error; err != nil {
		return nil, err
	}
	for _, g := range grouped {
		summary.ByStatus[g.Bucket] = g.Count
	}

	if err := base.Session(&gorm.Session{}).Where("phone IS NULL OR phone = ''").Count(&summary.WithoutPhone).Error; err != nil {
		return nil, err
	}

	if err := base.Session(&gorm.Session{}).
		Where("collected_at IS NOT NULL").
		Order("collected_at ASC").
		Pluck("collected_at", &summary.CollectedTimes).Error; err != nil {
		return nil, err
	}
	return summary, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(token string) string {
	return likeEscaper.Replace(token)
}
