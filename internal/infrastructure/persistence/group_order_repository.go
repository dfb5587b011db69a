package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/groupbuy/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormGroupOrderRepository implements groupbuy.GroupOrderRepository using GORM
type GormGroupOrderRepository struct {
	db *gorm.DB
}

// NewGormGroupOrderRepository creates a new GormGroupOrderRepository
func NewGormGroupOrderRepository(db *gorm.DB) *GormGroupOrderRepository {
	return &GormGroupOrderRepository{db: db}
}

// WithTx returns a repository bound to a transaction
func (r *GormGroupOrderRepository) WithTx(tx *gorm.DB) *GormGroupOrderRepository {
	return &GormGroupOrderRepository{db: tx}
}

// FindByID loads a group order with its ledger and reminder log
func (r *GormGroupOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*groupbuy.GroupOrder, error) {
	g, err := loadGroupOrder(r.db.WithContext(ctx), id)
	if err != nil {
		return nil, storageErr("find group order", err)
	}
	return g, nil
}

func loadGroupOrder(db *gorm.DB, id uuid.UUID) (*groupbuy.GroupOrder, error) {
	var model models.GroupOrderModel
	err := db.
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC, id ASC")
		}).
		Preload("Reminders").
		First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("group order not found")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActive returns open, unexpired groups ordered by committed quantity
// descending then deadline ascending
func (r *GormGroupOrderRepository) FindActive(ctx context.Context, q groupbuy.ActiveQuery) ([]*groupbuy.GroupOrder, error) {
	query := r.db.WithContext(ctx).
		Model(&models.GroupOrderModel{}).
		Where("status = ? AND deadline > ?", groupbuy.StatusOpen, q.Now)
	if q.ExcludeProductID != "" {
		query = query.Where("product_id <> ?", q.ExcludeProductID)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var rows []models.GroupOrderModel
	if err := query.Order("current_qty DESC, deadline ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, storageErr("list active group orders", err)
	}
	return toDomainList(rows), nil
}

// FindPendingProposals returns client proposals awaiting approval, oldest first
func (r *GormGroupOrderRepository) FindPendingProposals(ctx context.Context, filter shared.Filter) ([]*groupbuy.GroupOrder, int64, error) {
	filter = filter.Normalize(100)
	query := r.db.WithContext(ctx).
		Model(&models.GroupOrderModel{}).
		Where("status = ? AND origin = ?", groupbuy.StatusPendingApproval, groupbuy.OriginClient)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storageErr("count pending proposals", err)
	}

	var rows []models.GroupOrderModel
	err := query.
		Order("created_at ASC, id ASC").
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, storageErr("list pending proposals", err)
	}
	return toDomainList(rows), total, nil
}

// FindAll lists group orders for operators
func (r *GormGroupOrderRepository) FindAll(ctx context.Context, filter shared.Filter, statuses ...groupbuy.Status) ([]*groupbuy.GroupOrder, int64, error) {
	filter = filter.Normalize(100)
	query := r.db.WithContext(ctx).Model(&models.GroupOrderModel{})
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if productID, ok := filter.Filters["product_id"].(string); ok && productID != "" {
		query = query.Where("product_id = ?", productID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storageErr("count group orders", err)
	}

	sortField := ValidateSortField(filter.OrderBy, GroupOrderSortFields, "created_at")
	sortDir := ValidateSortOrder(filter.OrderDir)

	var rows []models.GroupOrderModel
	err := query.
		Order(sortField + " " + sortDir).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, storageErr("list group orders", err)
	}
	return toDomainList(rows), total, nil
}

// FindOpenIDs returns the ids of every open group, nearest deadline first
func (r *GormGroupOrderRepository) FindOpenIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.GroupOrderModel{}).
		Where("status = ?", groupbuy.StatusOpen).
		Order("deadline ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, storageErr("list open group orders", err)
	}
	return ids, nil
}

// Create inserts a new group order
func (r *GormGroupOrderRepository) Create(ctx context.Context, g *groupbuy.GroupOrder) error {
	model := models.GroupOrderModelFromDomain(g)
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(model).Error; err != nil {
		return storageErr("create group order", err)
	}
	return nil
}

// Save writes operator-owned fields guarded by the aggregate version. The
// ledger counter is owned by Join/Leave and is not written.
func (r *GormGroupOrderRepository) Save(ctx context.Context, g *groupbuy.GroupOrder, repriced ...*groupbuy.Participant) error {
	model := models.GroupOrderModelFromDomain(g)
	currentVersion := g.Version
	nextVersion := currentVersion + 1

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.GroupOrderModel{}).
			Where("id = ? AND version = ?", g.ID, currentVersion).
			Updates(map[string]any{
				"price_tiers":        model.TiersJSON,
				"min_qty":            model.MinQty,
				"target_qty":         model.TargetQty,
				"current_unit_price": model.CurrentUnitPrice,
				"status":             model.Status,
				"deadline":           model.Deadline,
				"internal_notes":     model.InternalNotes,
				"chat_enabled":       model.ChatEnabled,
				"cancel_reason":      model.CancelReason,
				"published_at":       model.PublishedAt,
				"approved_at":        model.ApprovedAt,
				"filled_at":          model.FilledAt,
				"ordering_at":        model.OrderingAt,
				"ordered_at":         model.OrderedAt,
				"shipped_at":         model.ShippedAt,
				"delivered_at":       model.DeliveredAt,
				"cancelled_at":       model.CancelledAt,
				"version":            nextVersion,
				"updated_at":         model.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.GroupOrderModel{}).Where("id = ?", g.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return shared.NewNotFoundError("group order not found")
			}
			return shared.NewDomainError(shared.CodeConcurrencyConflict, "group order was modified by another request, reload and retry")
		}
		return writeParticipantPrices(tx, repriced, model.UpdatedAt)
	})
	if err != nil {
		return storageErr("save group order", err)
	}
	g.Version = nextVersion
	return nil
}

// Join appends a participant and increments current_qty in one transaction.
// The increment is a conditional UPDATE on the group row, so concurrent joins
// serialize on the row lock and re-check the status guard after each commit.
func (r *GormGroupOrderRepository) Join(ctx context.Context, cmd groupbuy.JoinCommand) (*groupbuy.LedgerChange, error) {
	p := cmd.Participant
	p.GroupID = cmd.GroupID

	var change *groupbuy.LedgerChange
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		guard := tx.Model(&models.GroupOrderModel{}).
			Where("id = ? AND status IN ? AND min_qty <= ?", cmd.GroupID, groupbuy.JoinableStatuses(cmd.Mode), p.Qty)
		if cmd.Mode == groupbuy.JoinModePublic {
			guard = guard.Where("deadline >= ?", cmd.Now)
		}
		result := guard.Updates(map[string]any{
			"current_qty": gorm.Expr("current_qty + ?", p.Qty),
			"version":     gorm.Expr("version + 1"),
			"updated_at":  cmd.Now,
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return explainRejectedJoin(tx, cmd)
		}

		if err := tx.Create(models.ParticipantModelFromDomain(p, cmd.Now)).Error; err != nil {
			return err
		}

		g, err := loadGroupOrder(tx, cmd.GroupID)
		if err != nil {
			return err
		}
		joined, ok := g.FindParticipant(p.ID)
		if !ok {
			return shared.NewNotFoundError("participant not found after join")
		}
		repriced := g.SettleJoin(joined, cmd.Policy, cmd.Now)
		if err := writeSettlement(tx, g, repriced, cmd.Now); err != nil {
			return err
		}
		change = &groupbuy.LedgerChange{Group: g, Participant: joined, Repriced: repriced}
		return nil
	})
	if err != nil {
		return nil, storageErr("join group order", err)
	}
	return change, nil
}

// explainRejectedJoin turns a guarded UPDATE that matched no row into the
// domain error the caller should see
func explainRejectedJoin(tx *gorm.DB, cmd groupbuy.JoinCommand) error {
	var model models.GroupOrderModel
	if err := tx.Omit(clause.Associations).First(&model, "id = ?", cmd.GroupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.NewNotFoundError("group order not found")
		}
		return err
	}
	g := model.ToDomain()
	if err := g.CheckJoinable(cmd.Mode, cmd.Now); err != nil {
		return err
	}
	if err := g.ValidateJoinQty(cmd.Participant.Qty); err != nil {
		return err
	}
	return shared.ErrConcurrencyConflict
}

// Leave removes a participant and decrements current_qty in one transaction.
// The ledger row is deleted first so two concurrent leaves of the same
// participant cannot both decrement.
func (r *GormGroupOrderRepository) Leave(ctx context.Context, cmd groupbuy.LeaveCommand) (*groupbuy.LedgerChange, error) {
	var change *groupbuy.LedgerChange
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.ParticipantModel
		if err := tx.First(&row, "id = ? AND group_id = ?", cmd.ParticipantID, cmd.GroupID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.NewNotFoundError("participant not found in this group order")
			}
			return err
		}

		deleted := tx.Delete(&models.ParticipantModel{}, "id = ? AND group_id = ?", cmd.ParticipantID, cmd.GroupID)
		if deleted.Error != nil {
			return deleted.Error
		}
		if deleted.RowsAffected == 0 {
			return shared.NewNotFoundError("participant not found in this group order")
		}

		result := tx.Model(&models.GroupOrderModel{}).
			Where("id = ? AND status IN ?", cmd.GroupID, groupbuy.LeavableStatuses()).
			Updates(map[string]any{
				"current_qty": gorm.Expr("current_qty - ?", row.Qty),
				"version":     gorm.Expr("version + 1"),
				"updated_at":  cmd.Now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			g, err := loadGroupOrder(tx, cmd.GroupID)
			if err != nil {
				return err
			}
			if err := g.CheckLeavable(); err != nil {
				return err
			}
			return shared.ErrConcurrencyConflict
		}

		g, err := loadGroupOrder(tx, cmd.GroupID)
		if err != nil {
			return err
		}
		removed := row.ToDomain()
		repriced := g.SettleLeave(removed, cmd.Policy, cmd.Now)
		if err := writeSettlement(tx, g, repriced, cmd.Now); err != nil {
			return err
		}
		change = &groupbuy.LedgerChange{Group: g, Participant: removed, Repriced: repriced}
		return nil
	})
	if err != nil {
		return nil, storageErr("leave group order", err)
	}
	return change, nil
}

// writeSettlement persists what SettleJoin/SettleLeave derived: the tier
// price, a possible open -> filled transition and re-rated ledger rows
func writeSettlement(tx *gorm.DB, g *groupbuy.GroupOrder, repriced []*groupbuy.Participant, now time.Time) error {
	err := tx.Model(&models.GroupOrderModel{}).
		Where("id = ?", g.ID).
		Updates(map[string]any{
			"current_unit_price": g.CurrentUnitPrice,
			"status":             g.Status,
			"filled_at":          g.FilledAt,
			"updated_at":         now,
		}).Error
	if err != nil {
		return err
	}
	return writeParticipantPrices(tx, repriced, now)
}

func writeParticipantPrices(tx *gorm.DB, repriced []*groupbuy.Participant, now time.Time) error {
	for _, p := range repriced {
		err := tx.Model(&models.ParticipantModel{}).
			Where("id = ?", p.ID).
			Updates(map[string]any{
				"unit_price":   p.UnitPrice,
				"total_amount": p.TotalAmount,
				"updated_at":   now,
			}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// FindParticipant loads one ledger entry of a group
func (r *GormGroupOrderRepository) FindParticipant(ctx context.Context, groupID, participantID uuid.UUID) (*groupbuy.Participant, error) {
	var row models.ParticipantModel
	err := r.db.WithContext(ctx).First(&row, "id = ? AND group_id = ?", participantID, groupID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("participant not found in this group order")
		}
		return nil, storageErr("find participant", err)
	}
	return row.ToDomain(), nil
}

func toDomainList(rows []models.GroupOrderModel) []*groupbuy.GroupOrder {
	out := make([]*groupbuy.GroupOrder, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out
}

// storageErr passes domain errors through and reports anything else as a
// transient storage failure
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return shared.NewUnavailableError(op, err)
}

// Ensure GormGroupOrderRepository implements the domain interface
var _ groupbuy.GroupOrderRepository = (*GormGroupOrderRepository)(nil)
