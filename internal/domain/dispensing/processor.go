package dispensing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/medledger/internal/domain/catalog"
	"github.com/ehr/medledger/internal/domain/inventory"
	"github.com/ehr/medledger/internal/domain/ledger"
	"github.com/ehr/medledger/internal/platform/apperror"
)

// TxRunner runs fn inside one storage transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Processor is the only writer of inventory quantities. Every operation
// locks the keys it touches, then adjusts the store and appends to the
// ledger inside a single transaction.
type Processor struct {
	store         inventory.Store
	locker        *inventory.KeyLocker
	ledger        ledger.Repository
	orders        OrderRepository
	prescriptions PrescriptionRepository
	catalog       catalog.Repository
	tx            TxRunner
	log           zerolog.Logger
	now           func() time.Time
}

type Deps struct {
	Store         inventory.Store
	Locker        *inventory.KeyLocker
	Ledger        ledger.Repository
	Orders        OrderRepository
	Prescriptions PrescriptionRepository
	Catalog       catalog.Repository
	Tx            TxRunner
	Logger        zerolog.Logger
}

func NewProcessor(d Deps) *Processor {
	return &Processor{
		store:         d.Store,
		locker:        d.Locker,
		ledger:        d.Ledger,
		orders:        d.Orders,
		prescriptions: d.Prescriptions,
		catalog:       d.Catalog,
		tx:            d.Tx,
		log:           d.Logger.With().Str("component", "processor").Logger(),
		now:           time.Now,
	}
}

// adjustment is a delta that has been applied and may need undoing.
type adjustment struct {
	key   inventory.Key
	delta int64
}

// compensate reverses applied adjustments, newest first. Inside a database
// transaction the rollback restores the same state; this keeps stores that
// are not transactional consistent as well.
func (p *Processor) compensate(ctx context.Context, applied []adjustment) {
	for i := len(applied) - 1; i >= 0; i-- {
		a := applied[i]
		if _, err := p.store.Adjust(ctx, a.key, -a.delta, nil); err != nil {
			p.log.Warn().Err(err).Str("key", a.key.String()).Int64("delta", -a.delta).Msg("compensation failed")
		}
	}
}

func seedFor(m *catalog.Medicine) *inventory.Seed {
	return &inventory.Seed{
		MedicineName: m.Name,
		MedicineCode: m.Code,
		ThresholdQty: m.ThresholdQty,
		ExpiryDate:   m.ExpiryDate,
	}
}

func (p *Processor) entry(tx ledger.TxType, ref uuid.UUID, key inventory.Key, m *catalog.Medicine, manufacturer string,
	dir ledger.Direction, qty, balance int64, at time.Time) *ledger.Entry {
	return &ledger.Entry{
		InstituteID:      key.InstituteID,
		TxType:           tx,
		ReferenceID:      ref,
		MedicineID:       key.MedicineID,
		MedicineName:     m.Name,
		ManufacturerName: manufacturer,
		Tier:             key.Tier,
		ExpiryDate:       m.ExpiryDate,
		Direction:        dir,
		Quantity:         qty,
		BalanceAfter:     balance,
		RecordedAt:       at,
	}
}

// DeliverOrder loads a stored order and records its delivery.
func (p *Processor) DeliverOrder(ctx context.Context, orderID uuid.UUID) (*Order, *DeliveryResult, error) {
	o, err := p.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	res, err := p.RecordDelivery(ctx, o)
	return o, res, err
}

// RecordDelivery credits the order's quantity once both tracks report
// DELIVERED. Calling it before then, or again afterwards, changes nothing.
func (p *Processor) RecordDelivery(ctx context.Context, o *Order) (*DeliveryResult, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	log := p.log.With().Str("order_id", o.ID.String()).Logger()
	if !o.BothDelivered() {
		log.Debug().
			Str("manufacturer_status", string(o.ManufacturerStatus)).
			Str("institute_status", string(o.InstituteStatus)).
			Msg("delivery pending")
		return &DeliveryResult{Pending: true}, nil
	}

	if _, err := p.catalog.GetInstitute(ctx, o.InstituteID); err != nil {
		return nil, err
	}
	med, err := p.catalog.GetMedicine(ctx, o.MedicineID)
	if err != nil {
		return nil, err
	}
	mf, err := p.catalog.GetManufacturer(ctx, o.ManufacturerID)
	if err != nil {
		return nil, err
	}

	key := inventory.Key{InstituteID: o.InstituteID, MedicineID: o.MedicineID, Tier: o.DestinationTier()}
	release, err := p.locker.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	res := &DeliveryResult{}
	err = p.tx.InTx(ctx, func(ctx context.Context) error {
		seen, err := p.ledger.HasReference(ctx, ledger.TxOrderDelivery, o.ID)
		if err != nil {
			return err
		}
		if seen {
			res.Duplicate = true
			return nil
		}
		e, err := p.credit(ctx, o, key, med, mf.Name)
		if err != nil {
			return err
		}
		res.Applied, res.Entry, res.Balance = true, e, e.BalanceAfter
		return nil
	})
	if errors.Is(err, ledger.ErrDuplicateReference) {
		// another process credited the order between our check and append
		res = &DeliveryResult{Duplicate: true}
		err = nil
	}
	if err != nil {
		log.Error().Err(err).Msg("delivery failed")
		return nil, err
	}
	if res.Duplicate {
		res.Balance, _ = p.store.GetQuantity(ctx, key)
		log.Info().Msg("delivery already recorded")
		return res, nil
	}
	log.Info().
		Str("institute_id", key.InstituteID.String()).
		Str("medicine_id", key.MedicineID.String()).
		Str("tier", string(key.Tier)).
		Int64("quantity", o.Quantity).
		Int64("balance", res.Balance).
		Msg("delivery recorded")
	return res, nil
}

// credit applies a delivered order. It refuses orders that are not
// delivered on both tracks.
func (p *Processor) credit(ctx context.Context, o *Order, key inventory.Key, med *catalog.Medicine, manufacturer string) (*ledger.Entry, error) {
	if !o.BothDelivered() {
		return nil, fmt.Errorf("order %s is %s/%s: %w", o.ID, o.ManufacturerStatus, o.InstituteStatus, apperror.ErrInvalidState)
	}
	balance, err := p.store.Adjust(ctx, key, o.Quantity, seedFor(med))
	if err != nil {
		return nil, err
	}
	e := p.entry(ledger.TxOrderDelivery, o.ID, key, med, manufacturer, ledger.In, o.Quantity, balance, p.now())
	if err := p.ledger.Append(ctx, e); err != nil {
		p.compensate(ctx, []adjustment{{key, o.Quantity}})
		return nil, err
	}
	return e, nil
}

// RecordIssuance debits every line of the draft from the SUB tier as one
// batch. Either all lines are debited, the prescription is stored and one
// OUT entry per line is appended, or nothing changes.
func (p *Processor) RecordIssuance(ctx context.Context, d *PrescriptionDraft) (*Prescription, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if _, err := p.catalog.GetInstitute(ctx, d.InstituteID); err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(d.Lines))
	for i, l := range d.Lines {
		ids[i] = l.MedicineID
	}
	meds, err := catalog.GetMedicines(ctx, p.catalog, ids)
	if err != nil {
		return nil, err
	}
	makers := make(map[uuid.UUID]string, len(meds))
	for id, m := range meds {
		if makers[id], err = catalog.ManufacturerName(ctx, p.catalog, m); err != nil {
			return nil, err
		}
	}

	keys := make([]inventory.Key, len(d.Lines))
	for i, l := range d.Lines {
		keys[i] = inventory.Key{InstituteID: d.InstituteID, MedicineID: l.MedicineID, Tier: inventory.TierSub}
	}
	release, err := p.locker.Lock(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer release()

	rx := &Prescription{
		ID:          uuid.New(),
		InstituteID: d.InstituteID,
		PatientKind: d.PatientKind,
		PatientID:   d.PatientID,
		Notes:       d.Notes,
		IssuedBy:    d.IssuedBy,
		IssuedAt:    p.now().UTC(),
		Lines:       append([]Line(nil), d.Lines...),
	}
	log := p.log.With().Str("prescription_id", rx.ID.String()).Str("institute_id", d.InstituteID.String()).Logger()

	err = p.tx.InTx(ctx, func(ctx context.Context) error {
		if err := p.checkAvailable(ctx, keys, d.Lines); err != nil {
			return err
		}

		applied := make([]adjustment, 0, len(d.Lines))
		balances := make([]int64, len(d.Lines))
		for i, l := range d.Lines {
			bal, err := p.store.Adjust(ctx, keys[i], -l.Quantity, nil)
			if err != nil {
				p.compensate(ctx, applied)
				var short *inventory.InsufficientStockError
				if errors.As(err, &short) {
					return short.AtLine(i + 1)
				}
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			applied = append(applied, adjustment{keys[i], -l.Quantity})
			balances[i] = bal
		}

		if err := p.prescriptions.Create(ctx, rx); err != nil {
			p.compensate(ctx, applied)
			return err
		}
		entries := make([]*ledger.Entry, len(d.Lines))
		for i, l := range d.Lines {
			entries[i] = p.entry(ledger.TxPrescriptionIssue, rx.ID, keys[i], meds[l.MedicineID], makers[l.MedicineID],
				ledger.Out, l.Quantity, balances[i], rx.IssuedAt)
		}
		if err := p.ledger.Append(ctx, entries...); err != nil {
			p.compensate(ctx, applied)
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperror.ErrInsufficientStock) {
			log.Info().Err(err).Msg("issuance rejected")
		} else {
			log.Error().Err(err).Msg("issuance failed")
		}
		return nil, err
	}
	log.Info().Int("lines", len(rx.Lines)).Str("issued_by", rx.IssuedBy).Msg("issuance recorded")
	return rx, nil
}

// checkAvailable compares the running total requested per key against the
// current balance, so a shortfall is reported before anything is debited.
func (p *Processor) checkAvailable(ctx context.Context, keys []inventory.Key, lines []Line) error {
	requested := make(map[inventory.Key]int64, len(keys))
	available := make(map[inventory.Key]int64, len(keys))
	for i, l := range lines {
		k := keys[i]
		if _, ok := available[k]; !ok {
			qty, err := p.store.GetQuantity(ctx, k)
			if err != nil {
				return err
			}
			available[k] = qty
		}
		requested[k] += l.Quantity
		if requested[k] > available[k] {
			return &inventory.InsufficientStockError{Key: k, Requested: requested[k], Available: available[k], Line: i + 1}
		}
	}
	return nil
}

// GetPrescription returns a stored prescription with its lines.
func (p *Processor) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return p.prescriptions.GetByID(ctx, id)
}

// TransferStock moves quantity between the two tiers of one institute. The
// OUT and IN entries share a reference id.
func (p *Processor) TransferStock(ctx context.Context, d *TransferDraft) ([]*ledger.Entry, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if _, err := p.catalog.GetInstitute(ctx, d.InstituteID); err != nil {
		return nil, err
	}
	med, err := p.catalog.GetMedicine(ctx, d.MedicineID)
	if err != nil {
		return nil, err
	}
	maker, err := catalog.ManufacturerName(ctx, p.catalog, med)
	if err != nil {
		return nil, err
	}

	from := inventory.Key{InstituteID: d.InstituteID, MedicineID: d.MedicineID, Tier: d.From}
	to := inventory.Key{InstituteID: d.InstituteID, MedicineID: d.MedicineID, Tier: d.To}
	release, err := p.locker.Lock(ctx, from, to)
	if err != nil {
		return nil, err
	}
	defer release()

	ref := uuid.New()
	log := p.log.With().Str("transfer_id", ref.String()).Logger()
	var entries []*ledger.Entry
	err = p.tx.InTx(ctx, func(ctx context.Context) error {
		outBal, err := p.store.Adjust(ctx, from, -d.Quantity, nil)
		if err != nil {
			return err
		}
		applied := []adjustment{{from, -d.Quantity}}
		inBal, err := p.store.Adjust(ctx, to, d.Quantity, seedFor(med))
		if err != nil {
			p.compensate(ctx, applied)
			return err
		}
		applied = append(applied, adjustment{to, d.Quantity})

		at := p.now()
		entries = []*ledger.Entry{
			p.entry(ledger.TxStockTransfer, ref, from, med, maker, ledger.Out, d.Quantity, outBal, at),
			p.entry(ledger.TxStockTransfer, ref, to, med, maker, ledger.In, d.Quantity, inBal, at),
		}
		if err := p.ledger.Append(ctx, entries...); err != nil {
			p.compensate(ctx, applied)
			return err
		}
		return nil
	})
	if err != nil {
		log.Info().Err(err).Msg("transfer rejected")
		return nil, err
	}
	log.Info().
		Str("medicine_id", d.MedicineID.String()).
		Str("from", string(d.From)).
		Str("to", string(d.To)).
		Int64("quantity", d.Quantity).
		Msg("transfer recorded")
	return entries, nil
}
