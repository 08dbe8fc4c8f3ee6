package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/facinv/closing-engine/inventory"
)

// =============================================================================
// DAILY CLOSINGS
// =============================================================================

const closingColumns = `id, company_id, closing_date, user_id, state, notes, total_sales, invoice_count, created_at, updated_at`

func (s *Store) CreateClosing(ctx context.Context, c *inventory.DailyClosing) error {
	if c.ID == "" {
		c.ID = inventory.ClosingID(inventory.NewID())
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO daily_closings (`+closingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CompanyID, c.Date.String(), nullString(c.UserID), c.State, nullString(c.Notes),
		c.TotalSales, c.InvoiceCount, formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	return writeErr(err, "closing", "date", c.Date.String())
}

func (s *Store) UpdateClosing(ctx context.Context, c *inventory.DailyClosing) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE daily_closings
		SET user_id = ?, state = ?, notes = ?, total_sales = ?, invoice_count = ?, updated_at = ?
		WHERE id = ? AND company_id = ?`,
		nullString(c.UserID), c.State, nullString(c.Notes), c.TotalSales, c.InvoiceCount,
		formatTime(c.UpdatedAt), c.ID, c.CompanyID,
	)
	if err != nil {
		return writeErr(err, "closing", "id", string(c.ID))
	}
	return expectOne(res, &inventory.NotFoundError{Entity: "closing", ID: string(c.ID)})
}

func (s *Store) GetClosing(ctx context.Context, companyID inventory.CompanyID, id inventory.ClosingID) (*inventory.DailyClosing, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+closingColumns+` FROM daily_closings WHERE id = ? AND company_id = ?`, id, companyID)
	c, err := scanClosing(row)
	if err != nil {
		return nil, notFound(err, "closing", string(id))
	}
	return &c, nil
}

func (s *Store) FindClosingByDate(ctx context.Context, companyID inventory.CompanyID, date inventory.Date) (*inventory.DailyClosing, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+closingColumns+` FROM daily_closings WHERE company_id = ? AND closing_date = ?`,
		companyID, date.String())
	c, err := scanClosing(row)
	if err != nil {
		return nil, notFound(err, "closing", date.String())
	}
	return &c, nil
}

func (s *Store) ListClosings(ctx context.Context, companyID inventory.CompanyID) ([]inventory.DailyClosing, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+closingColumns+` FROM daily_closings WHERE company_id = ? ORDER BY closing_date DESC`,
		companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list closings: %w", err)
	}
	defer rows.Close()

	var out []inventory.DailyClosing
	for rows.Next() {
		c, err := scanClosing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ClosingExists(ctx context.Context, companyID inventory.CompanyID, date inventory.Date, state inventory.ClosingState) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM daily_closings
		WHERE company_id = ? AND closing_date = ? AND state = ?`,
		companyID, date.String(), state,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check closing: %w", err)
	}
	return n > 0, nil
}

func (s *Store) LatestClosingBefore(ctx context.Context, companyID inventory.CompanyID, state inventory.ClosingState, before inventory.Date) (*inventory.DailyClosing, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+closingColumns+` FROM daily_closings
		WHERE company_id = ? AND state = ? AND closing_date < ?
		ORDER BY closing_date DESC LIMIT 1`,
		companyID, state, before.String())
	c, err := scanClosing(row)
	if err != nil {
		return nil, notFound(err, "closing", "before "+before.String())
	}
	return &c, nil
}

func scanClosing(sc scanner) (inventory.DailyClosing, error) {
	var (
		c                inventory.DailyClosing
		date             string
		userID, notes    sql.NullString
		created, updated string
	)
	err := sc.Scan(&c.ID, &c.CompanyID, &date, &userID, &c.State, &notes,
		&c.TotalSales, &c.InvoiceCount, &created, &updated)
	if err != nil {
		return c, err
	}
	if c.Date, err = inventory.ParseDate(date); err != nil {
		return c, err
	}
	c.UserID = userID.String
	c.Notes = notes.String
	if c.CreatedAt, err = parseTime(created); err != nil {
		return c, err
	}
	c.UpdatedAt, err = parseTime(updated)
	return c, err
}

// =============================================================================
// LINE ITEMS
// =============================================================================

const lineItemColumns = `li.id, li.closing_id, li.subject_kind, li.subject_id, li.theoretical_stock,
	li.real_stock, li.shrinkage, li.waste, li.unit_cost, li.counted, li.variance, li.variance_value`

func (s *Store) CreateLineItems(ctx context.Context, items []inventory.ClosingLineItem) error {
	return s.atomic(ctx, func(q querier) error {
		for i := range items {
			it := &items[i]
			if it.Subject.IsZero() {
				return &inventory.ValidationError{Field: "subject", Message: "line item must reference an ingredient or a product"}
			}
			if it.ID == "" {
				it.ID = inventory.LineItemID(inventory.NewID())
			}
			_, err := q.ExecContext(ctx, `
				INSERT INTO closing_line_items
				(id, closing_id, subject_kind, subject_id, theoretical_stock, real_stock, shrinkage,
				 waste, unit_cost, counted, variance, variance_value, position)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				it.ID, it.ClosingID, it.Subject.Kind().String(), it.Subject.ID(), it.TheoreticalStock,
				it.RealStock, it.Shrinkage, it.Waste, it.UnitCost, it.Counted,
				it.Variance, it.VarianceValue, i,
			)
			if err != nil {
				return writeErr(err, "closing line item", "subject", it.Subject.String())
			}
		}
		return nil
	})
}

func (s *Store) GetLineItem(ctx context.Context, companyID inventory.CompanyID, id inventory.LineItemID) (*inventory.ClosingLineItem, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+lineItemColumns+`
		FROM closing_line_items li
		JOIN daily_closings c ON c.id = li.closing_id
		WHERE li.id = ? AND c.company_id = ?`, id, companyID)
	it, err := scanLineItem(row)
	if err != nil {
		return nil, notFound(err, "closing line item", string(id))
	}
	return &it, nil
}

func (s *Store) ListLineItems(ctx context.Context, companyID inventory.CompanyID, closingID inventory.ClosingID) ([]inventory.ClosingLineItem, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+lineItemColumns+`
		FROM closing_line_items li
		JOIN daily_closings c ON c.id = li.closing_id
		WHERE li.closing_id = ? AND c.company_id = ?
		ORDER BY li.position`, closingID, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list line items: %w", err)
	}
	defer rows.Close()

	var out []inventory.ClosingLineItem
	for rows.Next() {
		it, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) UpdateLineItem(ctx context.Context, it *inventory.ClosingLineItem) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE closing_line_items
		SET real_stock = ?, shrinkage = ?, waste = ?, unit_cost = ?, counted = ?, variance = ?, variance_value = ?
		WHERE id = ? AND closing_id = ?`,
		it.RealStock, it.Shrinkage, it.Waste, it.UnitCost, it.Counted, it.Variance, it.VarianceValue,
		it.ID, it.ClosingID,
	)
	if err != nil {
		return writeErr(err, "closing line item", "id", string(it.ID))
	}
	return expectOne(res, &inventory.NotFoundError{Entity: "closing line item", ID: string(it.ID)})
}

func scanLineItem(sc scanner) (inventory.ClosingLineItem, error) {
	var (
		it        inventory.ClosingLineItem
		kind, sid string
	)
	err := sc.Scan(&it.ID, &it.ClosingID, &kind, &sid, &it.TheoreticalStock,
		&it.RealStock, &it.Shrinkage, &it.Waste, &it.UnitCost, &it.Counted,
		&it.Variance, &it.VarianceValue)
	if err != nil {
		return it, err
	}
	it.Subject, err = inventory.ParseStockRef(kind, sid)
	return it, err
}
