package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-retail/meridian/internal/costing"
	"github.com/meridian-retail/meridian/internal/shared"
)

const sequenceModule = "TRF"

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates branch-to-branch transfers.
type Service struct {
	store StorePort
	audit AuditPort
}

// NewService constructs Service.
func NewService(store StorePort, audit AuditPort) *Service {
	return &Service{store: store, audit: audit}
}

// Create consumes stock at the source branch, capturing which cost layers
// each item drew from, and persists a PENDING transfer. Everything commits
// in one transaction; insufficient stock on any line aborts the whole
// transfer.
func (s *Service) Create(ctx context.Context, in CreateInput) (Transfer, error) {
	if in.FromBranchID == in.ToBranchID {
		return Transfer{}, ErrSameBranch
	}
	if in.FromBranchID == 0 || in.ToBranchID == 0 {
		return Transfer{}, fmt.Errorf("transfer: both branches required")
	}
	if len(in.Items) == 0 {
		return Transfer{}, ErrNoItems
	}
	for _, item := range in.Items {
		if item.Qty <= 0 {
			return Transfer{}, fmt.Errorf("%w: item %d", ErrInvalidQuantity, item.ItemID)
		}
	}

	var created Transfer
	err := s.store.WithTx(ctx, func(ctx context.Context, ts TxStore, cs costing.TxStore) error {
		fromCode, err := ts.BranchCode(ctx, in.FromBranchID)
		if err != nil {
			return err
		}
		period := time.Now().UTC().Format("200601")
		number, err := ts.NextSequence(ctx, shared.SequenceKey(sequenceModule, fromCode, period))
		if err != nil {
			return err
		}
		transferNo := fmt.Sprintf("%s-%s-%s-%05d", sequenceModule, fromCode, period, number)

		tr := Transfer{
			TransferNo:   transferNo,
			FromBranchID: in.FromBranchID,
			ToBranchID:   in.ToBranchID,
			Status:       StatusPending,
			CreatedBy:    in.CreatedBy,
		}
		tr.ID, err = ts.InsertTransfer(ctx, tr)
		if err != nil {
			return err
		}

		for _, req := range in.Items {
			cost, fragments, err := costing.ConsumeTx(ctx, cs, in.FromBranchID, req.ItemID, req.Qty, transferNo, costing.MovementTransferOut)
			if err != nil {
				return err
			}
			item := TransferItem{
				TransferID: tr.ID,
				ItemID:     req.ItemID,
				Qty:        req.Qty,
				TotalCost:  cost,
			}
			item.ID, err = ts.InsertItem(ctx, item)
			if err != nil {
				return err
			}
			for _, frag := range fragments {
				rec := TransferLayerRecord{
					TransferItemID: item.ID,
					SourceLayerID:  frag.LayerID,
					Qty:            frag.Qty,
					UnitCost:       frag.UnitCost,
				}
				rec.ID, err = ts.InsertLayerRecord(ctx, rec)
				if err != nil {
					return err
				}
				item.Layers = append(item.Layers, rec)
			}
			tr.Items = append(tr.Items, item)
		}
		created = tr
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.record(ctx, in.CreatedBy, "transfer.create", created.TransferNo, map[string]any{
		"from_branch_id": in.FromBranchID,
		"to_branch_id":   in.ToBranchID,
		"items":          len(in.Items),
	})
	return created, nil
}

// Receive recreates the captured fragments as destination cost layers, one
// layer per fragment at its original unit cost. The transfer becomes
// RECEIVED when every reported quantity matches what was sent, otherwise
// MISMATCH; the discrepancy is recorded for manual reconciliation, never
// auto-corrected.
func (s *Service) Receive(ctx context.Context, in ReceiveInput) (Transfer, error) {
	received := make(map[int64]int64, len(in.Received))
	for _, item := range in.Received {
		if item.Qty < 0 {
			return Transfer{}, fmt.Errorf("%w: item %d", ErrInvalidQuantity, item.ItemID)
		}
		received[item.ItemID] = item.Qty
	}

	var result Transfer
	err := s.store.WithTx(ctx, func(ctx context.Context, ts TxStore, cs costing.TxStore) error {
		tr, err := ts.GetTransferForUpdate(ctx, in.TransferID)
		if err != nil {
			return err
		}
		if tr.Status != StatusPending {
			return ErrAlreadyReceived
		}

		onTransfer := make(map[int64]bool, len(tr.Items))
		for _, item := range tr.Items {
			onTransfer[item.ItemID] = true
		}
		for itemID := range received {
			if !onTransfer[itemID] {
				return fmt.Errorf("%w: item %d", ErrUnknownItem, itemID)
			}
		}

		status := StatusReceived
		for i := range tr.Items {
			item := &tr.Items[i]
			for _, rec := range item.Layers {
				if _, err := costing.ReceiveTx(ctx, cs, costing.ReceiveInput{
					BranchID:   tr.ToBranchID,
					ItemID:     item.ItemID,
					Qty:        rec.Qty,
					UnitCost:   rec.UnitCost,
					SourceType: costing.SourceTransferIn,
					SourceRef:  tr.TransferNo,
				}); err != nil {
					return err
				}
			}
			item.ReceivedQty = received[item.ItemID]
			if err := ts.SetItemReceived(ctx, item.ID, item.ReceivedQty); err != nil {
				return err
			}
			if item.ReceivedQty != item.Qty {
				status = StatusMismatch
			}
		}
		if err := ts.SetStatus(ctx, tr.ID, status, in.ReceivedBy); err != nil {
			return err
		}
		tr.Status = status
		tr.ReceivedBy = in.ReceivedBy
		result = tr
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.record(ctx, in.ReceivedBy, "transfer.receive", result.TransferNo, map[string]any{
		"transfer_id": result.ID,
		"status":      string(result.Status),
	})
	return result, nil
}

// Get loads one transfer with its items and fragment records.
func (s *Service) Get(ctx context.Context, id int64) (Transfer, error) {
	return s.store.GetTransfer(ctx, id)
}

// List returns recent transfers touching a branch.
func (s *Service) List(ctx context.Context, branchID int64, limit int) ([]Transfer, error) {
	return s.store.ListTransfers(ctx, branchID, limit)
}

func (s *Service) record(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "transfer",
		EntityID: entityID,
		Meta:     meta,
	})
}
