package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/facinv/closing-engine/inventory"
)

// =============================================================================
// INVOICES
// =============================================================================

const invoiceColumns = `id, company_id, number, customer_id, invoice_date, subtotal, tax, total, state, payment_method, created_at`

func (s *Store) CreateInvoice(ctx context.Context, inv *inventory.Invoice) error {
	if inv.ID == "" {
		inv.ID = inventory.InvoiceID(inventory.NewID())
	}
	return s.atomic(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO invoices (`+invoiceColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, inv.CompanyID, inv.Number, nullString(string(inv.CustomerID)), inv.Date.String(),
			inv.Subtotal, inv.Tax, inv.Total, inv.State, nullString(string(inv.PaymentMethod)),
			formatTime(inv.CreatedAt),
		)
		if err != nil {
			return writeErr(err, "invoice", "number", inv.Number)
		}
		for i := range inv.Lines {
			line := &inv.Lines[i]
			if line.ID == "" {
				line.ID = inventory.NewID()
			}
			line.ComputeSubtotal()
			_, err := q.ExecContext(ctx, `
				INSERT INTO invoice_lines (id, invoice_id, product_id, quantity, unit_price, subtotal, position)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				line.ID, inv.ID, line.ProductID, line.Quantity, line.UnitPrice, line.Subtotal, i,
			)
			if err != nil {
				return writeErr(err, "invoice line", "id", line.ID)
			}
		}
		return nil
	})
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *inventory.Invoice) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE invoices SET subtotal = ?, tax = ?, total = ?, state = ?, payment_method = ?
		WHERE id = ? AND company_id = ?`,
		inv.Subtotal, inv.Tax, inv.Total, inv.State, nullString(string(inv.PaymentMethod)),
		inv.ID, inv.CompanyID,
	)
	if err != nil {
		return writeErr(err, "invoice", "id", string(inv.ID))
	}
	return expectOne(res, &inventory.NotFoundError{Entity: "invoice", ID: string(inv.ID)})
}

func (s *Store) GetInvoice(ctx context.Context, companyID inventory.CompanyID, id inventory.InvoiceID) (*inventory.Invoice, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ? AND company_id = ?`, id, companyID)
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, notFound(err, "invoice", string(id))
	}
	if inv.Lines, err = s.invoiceLines(ctx, inv.ID); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, companyID inventory.CompanyID, filter inventory.InvoiceFilter) ([]inventory.Invoice, error) {
	where, args := documentFilter(companyID, "invoice_date", filter)
	if filter.CustomerID != "" {
		where += ` AND customer_id = ?`
		args = append(args, filter.CustomerID)
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE `+where+` ORDER BY invoice_date DESC, created_at DESC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	var out []inventory.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Lines, err = s.invoiceLines(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) CountInvoices(ctx context.Context, companyID inventory.CompanyID) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM invoices WHERE company_id = ?`, companyID)
}

func (s *Store) InvoiceNumberExists(ctx context.Context, companyID inventory.CompanyID, number string) (bool, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM invoices WHERE company_id = ? AND number = ?`, companyID, number)
	return n > 0, err
}

func (s *Store) invoiceLines(ctx context.Context, id inventory.InvoiceID) ([]inventory.InvoiceLine, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, product_id, quantity, unit_price, subtotal FROM invoice_lines
		WHERE invoice_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice lines: %w", err)
	}
	defer rows.Close()

	var lines []inventory.InvoiceLine
	for rows.Next() {
		var l inventory.InvoiceLine
		if err := rows.Scan(&l.ID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanInvoice(sc scanner) (inventory.Invoice, error) {
	var (
		inv                inventory.Invoice
		customerID, method sql.NullString
		date, created      string
	)
	err := sc.Scan(&inv.ID, &inv.CompanyID, &inv.Number, &customerID, &date,
		&inv.Subtotal, &inv.Tax, &inv.Total, &inv.State, &method, &created)
	if err != nil {
		return inv, err
	}
	if inv.Date, err = inventory.ParseDate(date); err != nil {
		return inv, err
	}
	inv.CustomerID = inventory.CustomerID(customerID.String)
	inv.PaymentMethod = inventory.PaymentMethod(method.String)
	inv.CreatedAt, err = parseTime(created)
	return inv, err
}

// =============================================================================
// PURCHASES
// =============================================================================

const purchaseColumns = `id, company_id, number, supplier_id, purchase_date, subtotal, tax, total, state, created_at`

func (s *Store) CreatePurchase(ctx context.Context, p *inventory.Purchase) error {
	if p.ID == "" {
		p.ID = inventory.PurchaseID(inventory.NewID())
	}
	return s.atomic(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO purchases (`+purchaseColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.CompanyID, p.Number, nullString(string(p.SupplierID)), p.Date.String(),
			p.Subtotal, p.Tax, p.Total, p.State, formatTime(p.CreatedAt),
		)
		if err != nil {
			return writeErr(err, "purchase", "number", p.Number)
		}
		for i := range p.Lines {
			line := &p.Lines[i]
			if line.ID == "" {
				line.ID = inventory.NewID()
			}
			line.ComputeSubtotal()
			_, err := q.ExecContext(ctx, `
				INSERT INTO purchase_lines (id, purchase_id, ingredient_id, quantity, unit_price, subtotal, position)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				line.ID, p.ID, line.IngredientID, line.Quantity, line.UnitPrice, line.Subtotal, i,
			)
			if err != nil {
				return writeErr(err, "purchase line", "id", line.ID)
			}
		}
		return nil
	})
}

func (s *Store) UpdatePurchase(ctx context.Context, p *inventory.Purchase) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE purchases SET subtotal = ?, tax = ?, total = ?, state = ?
		WHERE id = ? AND company_id = ?`,
		p.Subtotal, p.Tax, p.Total, p.State, p.ID, p.CompanyID,
	)
	if err != nil {
		return writeErr(err, "purchase", "id", string(p.ID))
	}
	return expectOne(res, &inventory.NotFoundError{Entity: "purchase", ID: string(p.ID)})
}

func (s *Store) GetPurchase(ctx context.Context, companyID inventory.CompanyID, id inventory.PurchaseID) (*inventory.Purchase, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = ? AND company_id = ?`, id, companyID)
	p, err := scanPurchase(row)
	if err != nil {
		return nil, notFound(err, "purchase", string(id))
	}
	if p.Lines, err = s.purchaseLines(ctx, p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPurchases(ctx context.Context, companyID inventory.CompanyID, filter inventory.InvoiceFilter) ([]inventory.Purchase, error) {
	where, args := documentFilter(companyID, "purchase_date", filter)
	if filter.SupplierID != "" {
		where += ` AND supplier_id = ?`
		args = append(args, filter.SupplierID)
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE `+where+` ORDER BY purchase_date DESC, created_at DESC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	var out []inventory.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Lines, err = s.purchaseLines(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) CountPurchases(ctx context.Context, companyID inventory.CompanyID) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM purchases WHERE company_id = ?`, companyID)
}

func (s *Store) PurchaseNumberExists(ctx context.Context, companyID inventory.CompanyID, number string) (bool, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM purchases WHERE company_id = ? AND number = ?`, companyID, number)
	return n > 0, err
}

func (s *Store) purchaseLines(ctx context.Context, id inventory.PurchaseID) ([]inventory.PurchaseLine, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, ingredient_id, quantity, unit_price, subtotal FROM purchase_lines
		WHERE purchase_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase lines: %w", err)
	}
	defer rows.Close()

	var lines []inventory.PurchaseLine
	for rows.Next() {
		var l inventory.PurchaseLine
		if err := rows.Scan(&l.ID, &l.IngredientID, &l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanPurchase(sc scanner) (inventory.Purchase, error) {
	var (
		p             inventory.Purchase
		supplierID    sql.NullString
		date, created string
	)
	err := sc.Scan(&p.ID, &p.CompanyID, &p.Number, &supplierID, &date,
		&p.Subtotal, &p.Tax, &p.Total, &p.State, &created)
	if err != nil {
		return p, err
	}
	if p.Date, err = inventory.ParseDate(date); err != nil {
		return p, err
	}
	p.SupplierID = inventory.SupplierID(supplierID.String)
	p.CreatedAt, err = parseTime(created)
	return p, err
}

// =============================================================================
// HELPERS
// =============================================================================

// documentFilter builds the shared WHERE clause of invoice and purchase listings.
func documentFilter(companyID inventory.CompanyID, dateColumn string, f inventory.InvoiceFilter) (string, []any) {
	where := `company_id = ?`
	args := []any{companyID}
	if f.State != "" {
		where += ` AND state = ?`
		args = append(args, f.State)
	}
	if !f.From.IsZero() {
		where += ` AND ` + dateColumn + ` >= ?`
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where += ` AND ` + dateColumn + ` <= ?`
		args = append(args, f.To.String())
	}
	return where, args
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}
