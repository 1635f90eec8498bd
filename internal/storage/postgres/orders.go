package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/kiwari-pos/ordering/internal/enum"
	"github.com/kiwari-pos/ordering/internal/order"
)

var _ order.Repository = (*Store)(nil)

const orderColumns = `id, order_number, channel, customer_ref, table_ref, delivery_address, notes, created_by,
	items, discounts, taxes,
	subtotal, total_discount, total_tax, total, round_off, final_amount,
	status, is_complimentary, is_split, is_pos, kot_printed, number_degraded,
	created_at, confirmed_at, preparing_at, ready_at, served_at, billed_at, paid_at, cancelled_at,
	version`

const insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
	        $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32)`

const insertPaymentSQL = `INSERT INTO payments (id, order_id, method, amount, external_reference, applied_by, applied_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

const insertHistorySQL = `INSERT INTO order_status_history (order_id, from_status, to_status, actor_id, actor_role, reason, at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

// statusColumns maps a status to the timestamp column its transition sets.
var statusColumns = map[enum.OrderStatus]string{
	enum.OrderStatusConfirmed: "confirmed_at",
	enum.OrderStatusPreparing: "preparing_at",
	enum.OrderStatusReady:     "ready_at",
	enum.OrderStatusServed:    "served_at",
	enum.OrderStatusBilled:    "billed_at",
	enum.OrderStatusPaid:      "paid_at",
	enum.OrderStatusCancelled: "cancelled_at",
}

type lineRow struct {
	ProductRef     uuid.UUID         `json:"product_ref"`
	Name           string            `json:"name"`
	UnitPrice      decimal.Decimal   `json:"unit_price"`
	Quantity       int64             `json:"quantity"`
	DiscountKind   enum.DiscountKind `json:"discount_kind,omitempty"`
	DiscountValue  decimal.Decimal   `json:"discount_value"`
	DiscountAmount decimal.Decimal   `json:"discount_amount"`
	ItemTotal      decimal.Decimal   `json:"item_total"`
	Notes          string            `json:"notes,omitempty"`
}

type discountRow struct {
	Kind      enum.DiscountKind `json:"kind"`
	Value     decimal.Decimal   `json:"value"`
	Amount    decimal.Decimal   `json:"amount"`
	Reason    string            `json:"reason,omitempty"`
	AppliedBy uuid.UUID         `json:"applied_by"`
}

type taxRow struct {
	Name        string          `json:"name"`
	RatePercent decimal.Decimal `json:"rate_percent"`
	Amount      decimal.Decimal `json:"amount"`
}

func encodeLines(o *order.Order) (items, discounts, taxes []byte, err error) {
	lines := make([]lineRow, len(o.Items))
	for i, it := range o.Items {
		lines[i] = lineRow(it)
	}
	ds := make([]discountRow, len(o.Discounts))
	for i, d := range o.Discounts {
		ds[i] = discountRow(d)
	}
	ts := make([]taxRow, len(o.Taxes))
	for i, t := range o.Taxes {
		ts[i] = taxRow(t)
	}

	if items, err = json.Marshal(lines); err != nil {
		return nil, nil, nil, errors.Wrap(err, "marshal items")
	}
	if discounts, err = json.Marshal(ds); err != nil {
		return nil, nil, nil, errors.Wrap(err, "marshal discounts")
	}
	if taxes, err = json.Marshal(ts); err != nil {
		return nil, nil, nil, errors.Wrap(err, "marshal taxes")
	}
	return items, discounts, taxes, nil
}

func decodeLines(o *order.Order, items, discounts, taxes []byte) error {
	var (
		lines []lineRow
		ds    []discountRow
		ts    []taxRow
	)
	if err := json.Unmarshal(items, &lines); err != nil {
		return errors.Wrap(err, "unmarshal items")
	}
	if err := json.Unmarshal(discounts, &ds); err != nil {
		return errors.Wrap(err, "unmarshal discounts")
	}
	if err := json.Unmarshal(taxes, &ts); err != nil {
		return errors.Wrap(err, "unmarshal taxes")
	}
	o.Items = make([]order.LineItem, len(lines))
	for i, l := range lines {
		o.Items[i] = order.LineItem(l)
	}
	o.Discounts = make([]order.Discount, len(ds))
	for i, d := range ds {
		o.Discounts[i] = order.Discount(d)
	}
	o.Taxes = make([]order.Tax, len(ts))
	for i, t := range ts {
		o.Taxes[i] = order.Tax(t)
	}
	return nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o                       order.Order
		items, discounts, taxes []byte
	)
	ts, a := &o.Timestamps, &o.Amounts
	err := row.Scan(
		&o.ID, &o.Number, &o.Channel, &o.CustomerRef, &o.TableRef, &o.DeliveryAddress, &o.Notes, &o.CreatedBy,
		&items, &discounts, &taxes,
		&a.Subtotal, &a.TotalDiscount, &a.TotalTax, &a.Total, &a.RoundOff, &a.FinalAmount,
		&o.Status, &o.Flags.Complimentary, &o.Flags.Split, &o.Flags.POS, &o.Flags.KOTPrinted, &o.Flags.NumberDegraded,
		&ts.Created, &ts.Confirmed, &ts.Preparing, &ts.Ready, &ts.Served, &ts.Billed, &ts.Paid, &ts.Cancelled,
		&o.Version,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeLines(&o, items, discounts, taxes); err != nil {
		return nil, err
	}
	return &o, nil
}

// load reads the full aggregate: order row, payment ledger and history.
func load(ctx context.Context, q querier, id uuid.UUID) (*order.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if err := loadChildren(ctx, q, o); err != nil {
		return nil, err
	}
	return o, nil
}

func loadChildren(ctx context.Context, q querier, o *order.Order) error {
	rows, err := q.Query(ctx,
		`SELECT id, method, amount, COALESCE(external_reference, ''), applied_by, applied_at
		 FROM payments WHERE order_id = $1 ORDER BY seq`, o.ID)
	if err != nil {
		return errors.Wrap(err, "list payments")
	}
	o.Payments, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Payment, error) {
		var p order.Payment
		err := row.Scan(&p.ID, &p.Method, &p.Amount, &p.ExternalReference, &p.AppliedBy, &p.AppliedAt)
		return p, err
	})
	if err != nil {
		return errors.Wrap(err, "scan payments")
	}

	rows, err = q.Query(ctx,
		`SELECT from_status, to_status, actor_id, actor_role, reason, at
		 FROM order_status_history WHERE order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return errors.Wrap(err, "list history")
	}
	o.History, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.StatusChange, error) {
		var c order.StatusChange
		err := row.Scan(&c.From, &c.To, &c.ActorID, &c.Role, &c.Reason, &c.At)
		return c, err
	})
	if err != nil {
		return errors.Wrap(err, "scan history")
	}
	return nil
}

func (s *Store) Create(ctx context.Context, o *order.Order) error {
	items, discounts, taxes, err := encodeLines(o)
	if err != nil {
		return err
	}
	ts, a := o.Timestamps, o.Amounts

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.Number, o.Channel, o.CustomerRef, o.TableRef, o.DeliveryAddress, o.Notes, o.CreatedBy,
			items, discounts, taxes,
			a.Subtotal, a.TotalDiscount, a.TotalTax, a.Total, a.RoundOff, a.FinalAmount,
			o.Status, o.Flags.Complimentary, o.Flags.Split, o.Flags.POS, o.Flags.KOTPrinted, o.Flags.NumberDegraded,
			ts.Created, ts.Confirmed, ts.Preparing, ts.Ready, ts.Served, ts.Billed, ts.Paid, ts.Cancelled,
			1,
		)
		if err != nil {
			if c, ok := uniqueViolation(err); ok && c == "orders_order_number_key" {
				return order.ErrDuplicateNumber
			}
			return errors.Wrap(err, "insert order")
		}
		return insertPayments(ctx, tx, o.ID, o.Payments)
	})
	if err != nil {
		return err
	}
	o.Version = 1
	return nil
}

func insertPayments(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, payments []order.Payment) error {
	for _, p := range payments {
		var ref *string
		if p.ExternalReference != "" {
			ref = &p.ExternalReference
		}
		_, err := tx.Exec(ctx, insertPaymentSQL, p.ID, orderID, p.Method, p.Amount, ref, p.AppliedBy, p.AppliedAt)
		if err != nil {
			if c, ok := uniqueViolation(err); ok && c == "payments_external_reference_key" {
				return order.ErrDuplicateReference
			}
			return errors.Wrap(err, "insert payment")
		}
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return load(ctx, s.pool, id)
}

func (s *Store) List(ctx context.Context, f order.ListFilter) ([]*order.Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Channel != "" {
		add("channel = $%d", f.Channel)
	}
	if f.CustomerRef != nil {
		add("customer_ref = $%d", *f.CustomerRef)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, order_number DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*order.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	for _, o := range orders {
		if err := loadChildren(ctx, s.pool, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// guardMiss resolves a compare-and-swap update that matched no row.
func guardMiss(ctx context.Context, q querier, id uuid.UUID) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return errors.Wrap(err, "check order")
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrConflict
}

func (s *Store) UpdateStatus(ctx context.Context, u order.StatusUpdate) (*order.Order, error) {
	col, ok := statusColumns[u.To]
	if !ok {
		return nil, errors.Errorf("no timestamp column for status %q", u.To)
	}
	query := fmt.Sprintf(`UPDATE orders
		SET status = $4, %[1]s = COALESCE(%[1]s, $5), version = version + 1
		WHERE id = $1 AND status = $2 AND version = $3`, col)

	var out *order.Order
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, u.ID, u.From, u.ExpectedVersion, u.To, u.At)
		if err != nil {
			return errors.Wrap(err, "update status")
		}
		if tag.RowsAffected() == 0 {
			return guardMiss(ctx, tx, u.ID)
		}
		if _, err := tx.Exec(ctx, insertHistorySQL,
			u.ID, u.From, u.To, u.Actor.ID, u.Actor.Role, u.Reason, u.At,
		); err != nil {
			return errors.Wrap(err, "insert history")
		}
		out, err = load(ctx, tx, u.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) AppendPayments(ctx context.Context, id uuid.UUID, expectedVersion int64, payments []order.Payment) (*order.Order, error) {
	var out *order.Order
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE orders SET version = version + 1 WHERE id = $1 AND version = $2`,
			id, expectedVersion)
		if err != nil {
			return errors.Wrap(err, "bump version")
		}
		if tag.RowsAffected() == 0 {
			return guardMiss(ctx, tx, id)
		}
		if err := insertPayments(ctx, tx, id, payments); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE orders SET is_split = (SELECT count(*) > 1 FROM payments WHERE order_id = $1) WHERE id = $1`,
			id); err != nil {
			return errors.Wrap(err, "update split flag")
		}
		out, err = load(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) MarkKOTPrinted(ctx context.Context, id uuid.UUID, expectedVersion int64) (*order.Order, error) {
	var out *order.Order
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE orders SET kot_printed = true, version = version + 1 WHERE id = $1 AND version = $2`,
			id, expectedVersion)
		if err != nil {
			return errors.Wrap(err, "mark kot printed")
		}
		if tag.RowsAffected() == 0 {
			return guardMiss(ctx, tx, id)
		}
		out, err = load(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) FindPaymentByReference(ctx context.Context, ref string) (*order.Order, error) {
	if ref == "" {
		return nil, order.ErrNotFound
	}
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `SELECT order_id FROM payments WHERE external_reference = $1`, ref).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find payment")
	}
	return load(ctx, s.pool, id)
}

// NextSequence increments the day's counter. The row lock taken by the
// upsert serializes concurrent callers.
func (s *Store) NextSequence(ctx context.Context, day string) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO order_counters (day, last_value) VALUES ($1, 1)
		 ON CONFLICT (day) DO UPDATE SET last_value = order_counters.last_value + 1
		 RETURNING last_value`, day).Scan(&seq)
	if err != nil {
		return 0, errors.Wrap(err, "next sequence")
	}
	return seq, nil
}
