/*
onboard.go - Company Onboarding

PURPOSE:
  Creates a tenant ready to work on day one. Alongside the company row a
  COMPLETADO closing is seeded for yesterday with zero sales, so the
  closing gate finds its required date closed from the first 05:00
  rollover on.

  Sample data is optional and goes through the catalog service, so it obeys
  the same invariants as anything staff would enter.

SEE ALSO:
  - resolver.go:        host -> company
  - closing/gate.go:    the rule the seeded closing satisfies
*/
package tenant

import (
	"context"
	"regexp"
	"strings"

	"github.com/facinv/closing-engine/catalog"
	"github.com/facinv/closing-engine/inventory"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const module = "tenant"

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// reservedSubdomains never resolve to a tenant.
var reservedSubdomains = map[string]bool{"www": true, "api": true, "superadmin": true}

type Service struct {
	Store   inventory.TxStore
	Catalog *catalog.Service
	Clock   inventory.Clock
	Logger  logrus.FieldLogger
}

func NewService(store inventory.TxStore, cat *catalog.Service, clock inventory.Clock, logger logrus.FieldLogger) *Service {
	if clock == nil {
		clock = inventory.SystemClock{}
	}
	if logger == nil {
		logger = inventory.NopLogger()
	}
	if cat == nil {
		cat = catalog.NewService(store, nil, logger)
	}
	return &Service{Store: store, Catalog: cat, Clock: clock, Logger: logger}
}

type OnboardInput struct {
	Name         string
	Subdomain    string
	ContactEmail string
	SampleData   bool
}

// NormalizeSubdomain lowercases and validates a subdomain label.
func NormalizeSubdomain(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !subdomainPattern.MatchString(s) {
		return "", &inventory.ValidationError{Field: "subdomain", Message: "must be a DNS label of lowercase letters, digits and hyphens"}
	}
	if reservedSubdomains[s] {
		return "", &inventory.ValidationError{Field: "subdomain", Message: s + " is reserved"}
	}
	return s, nil
}

func (s *Service) Onboard(ctx context.Context, in OnboardInput) (*inventory.Company, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &inventory.ValidationError{Field: "name", Message: "is required"}
	}
	sub, err := NormalizeSubdomain(in.Subdomain)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	company := &inventory.Company{
		ID:           inventory.CompanyID(inventory.NewID()),
		Name:         name,
		Subdomain:    sub,
		Active:       true,
		ContactEmail: strings.TrimSpace(in.ContactEmail),
		CreatedAt:    now,
	}
	err = s.Store.WithTx(ctx, func(tx inventory.Store) error {
		if _, err := tx.FindCompanyBySubdomain(ctx, sub); err == nil {
			return &inventory.ConflictError{Entity: "company", Field: "subdomain", Value: sub}
		} else if !inventory.IsNotFound(err) {
			return err
		}
		if err := tx.CreateCompany(ctx, company); err != nil {
			return err
		}
		return tx.CreateClosing(ctx, &inventory.DailyClosing{
			CompanyID:  company.ID,
			Date:       inventory.DateOf(now).AddDays(-1),
			State:      inventory.ClosingCompleted,
			Notes:      "opening closing",
			TotalSales: decimal.Zero,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	})
	if err != nil {
		if !inventory.IsConflict(err) {
			inventory.LogError(s.Logger, module, "Onboard", "create company", logrus.Fields{"subdomain": sub}, err)
		}
		return nil, err
	}

	if in.SampleData {
		if err := s.seedSampleCatalog(ctx, company.ID); err != nil {
			inventory.LogError(s.Logger, module, "Onboard", "seed sample catalog", logrus.Fields{"company_id": company.ID}, err)
			return nil, err
		}
	}

	s.Logger.WithFields(logrus.Fields{
		"company_id":  company.ID,
		"subdomain":   sub,
		"sample_data": in.SampleData,
	}).Info("company onboarded")
	return company, nil
}

func (s *Service) seedSampleCatalog(ctx context.Context, companyID inventory.CompanyID) error {
	d := decimal.RequireFromString
	type sample struct {
		name, unit, stock, min, price string
	}
	ingredients := map[string]*inventory.Ingredient{}
	for _, smp := range []sample{
		{"Harina", "g", "10000", "2000", "4"},
		{"Queso", "g", "5000", "1000", "30"},
		{"Salsa de tomate", "ml", "4000", "500", "10"},
	} {
		ing, err := s.Catalog.CreateIngredient(ctx, companyID, catalog.IngredientInput{
			Name: smp.name, Unit: smp.unit, Stock: d(smp.stock), MinStock: d(smp.min), UnitPrice: d(smp.price),
		})
		if err != nil {
			return err
		}
		ingredients[smp.name] = ing
	}

	pizza, err := s.Catalog.CreateRecipe(ctx, companyID, catalog.RecipeInput{
		Name: "Pizza margarita",
		Lines: []catalog.RecipeLineInput{
			{IngredientID: ingredients["Harina"].ID, QuantityPerUnit: d("250")},
			{IngredientID: ingredients["Queso"].ID, QuantityPerUnit: d("150")},
			{IngredientID: ingredients["Salsa de tomate"].ID, QuantityPerUnit: d("80")},
		},
	})
	if err != nil {
		return err
	}
	if _, err := s.Catalog.CreateProduct(ctx, companyID, catalog.ProductInput{
		Name: "Pizza margarita", HasRecipe: true, RecipeID: pizza.ID, SaleUnit: "unidad",
	}); err != nil {
		return err
	}
	_, err = s.Catalog.CreateProduct(ctx, companyID, catalog.ProductInput{
		Name: "Gaseosa", Stock: d("48"), PurchaseCost: d("1800"), SalePrice: d("3500"), SaleUnit: "botella",
	})
	return err
}

func (s *Service) Get(ctx context.Context, id inventory.CompanyID) (*inventory.Company, error) {
	return s.Store.GetCompany(ctx, id)
}
