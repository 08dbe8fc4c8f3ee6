package sqlite

import (
	"context"
	"database/sql"

	"github.com/facinv/closing-engine/inventory"
)

// =============================================================================
// COMPANIES
// =============================================================================

func (s *Store) CreateCompany(ctx context.Context, c *inventory.Company) error {
	if c.ID == "" {
		c.ID = inventory.CompanyID(inventory.NewID())
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO companies (id, name, subdomain, active, contact_email, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Subdomain, c.Active, nullString(c.ContactEmail), formatTime(c.CreatedAt),
	)
	return writeErr(err, "company", "subdomain", c.Subdomain)
}

func (s *Store) GetCompany(ctx context.Context, id inventory.CompanyID) (*inventory.Company, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, name, subdomain, active, contact_email, created_at
		FROM companies WHERE id = ?`, id)
	c, err := scanCompany(row)
	if err != nil {
		return nil, notFound(err, "company", string(id))
	}
	return &c, nil
}

func (s *Store) FindCompanyBySubdomain(ctx context.Context, subdomain string) (*inventory.Company, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, name, subdomain, active, contact_email, created_at
		FROM companies WHERE subdomain = ?`, subdomain)
	c, err := scanCompany(row)
	if err != nil {
		return nil, notFound(err, "company", subdomain)
	}
	return &c, nil
}

func scanCompany(sc scanner) (inventory.Company, error) {
	var (
		c       inventory.Company
		email   sql.NullString
		created string
	)
	if err := sc.Scan(&c.ID, &c.Name, &c.Subdomain, &c.Active, &email, &created); err != nil {
		return c, err
	}
	c.ContactEmail = email.String
	var err error
	c.CreatedAt, err = parseTime(created)
	return c, err
}

// =============================================================================
// CUSTOMERS AND SUPPLIERS
// =============================================================================

func (s *Store) CreateCustomer(ctx context.Context, c *inventory.Customer) error {
	if c.ID == "" {
		c.ID = inventory.CustomerID(inventory.NewID())
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO customers (id, company_id, name, document, email) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.CompanyID, c.Name, nullString(c.Document), nullString(c.Email),
	)
	return writeErr(err, "customer", "id", string(c.ID))
}

func (s *Store) GetCustomer(ctx context.Context, companyID inventory.CompanyID, id inventory.CustomerID) (*inventory.Customer, error) {
	var (
		c          inventory.Customer
		doc, email sql.NullString
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, company_id, name, document, email FROM customers WHERE id = ? AND company_id = ?`,
		id, companyID,
	).Scan(&c.ID, &c.CompanyID, &c.Name, &doc, &email)
	if err != nil {
		return nil, notFound(err, "customer", string(id))
	}
	c.Document, c.Email = doc.String, email.String
	return &c, nil
}

func (s *Store) CreateSupplier(ctx context.Context, sup *inventory.Supplier) error {
	if sup.ID == "" {
		sup.ID = inventory.SupplierID(inventory.NewID())
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO suppliers (id, company_id, name, document, phone) VALUES (?, ?, ?, ?, ?)`,
		sup.ID, sup.CompanyID, sup.Name, nullString(sup.Document), nullString(sup.Phone),
	)
	return writeErr(err, "supplier", "id", string(sup.ID))
}

func (s *Store) GetSupplier(ctx context.Context, companyID inventory.CompanyID, id inventory.SupplierID) (*inventory.Supplier, error) {
	var (
		sup        inventory.Supplier
		doc, phone sql.NullString
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, company_id, name, document, phone FROM suppliers WHERE id = ? AND company_id = ?`,
		id, companyID,
	).Scan(&sup.ID, &sup.CompanyID, &sup.Name, &doc, &phone)
	if err != nil {
		return nil, notFound(err, "supplier", string(id))
	}
	sup.Document, sup.Phone = doc.String, phone.String
	return &sup, nil
}
