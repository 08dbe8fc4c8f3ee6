package tenant

import (
	"context"
	"net"
	"strings"

	"github.com/facinv/closing-engine/inventory"
)

// CompanyFinder is the lookup the resolver needs.
type CompanyFinder interface {
	FindCompanyBySubdomain(ctx context.Context, subdomain string) (*inventory.Company, error)
}

// Resolver maps a request host to its company. With BaseDomain
// "facinv.com", "acme.facinv.com:8080" resolves subdomain "acme". An
// override (the configured header, for local development) wins over the
// host.
type Resolver struct {
	Companies  CompanyFinder
	BaseDomain string
}

func NewResolver(companies CompanyFinder, baseDomain string) *Resolver {
	return &Resolver{Companies: companies, BaseDomain: strings.ToLower(strings.Trim(baseDomain, "."))}
}

// Resolve returns nil without error when the request carries no tenant,
// names an unknown one, or names an inactive one.
func (r *Resolver) Resolve(ctx context.Context, host, override string) (*inventory.Company, error) {
	sub := strings.ToLower(strings.TrimSpace(override))
	if sub == "" {
		sub = r.Subdomain(host)
	}
	if sub == "" || reservedSubdomains[sub] {
		return nil, nil
	}

	c, err := r.Companies.FindCompanyBySubdomain(ctx, sub)
	if inventory.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, nil
	}
	return c, nil
}

// Subdomain extracts the tenant label of host, or "" when host is the base
// domain itself, lies outside it, or nests more than one label.
func (r *Resolver) Subdomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")

	var label string
	if r.BaseDomain != "" {
		suffix := "." + r.BaseDomain
		if !strings.HasSuffix(host, suffix) {
			return ""
		}
		label = strings.TrimSuffix(host, suffix)
	} else {
		// Without a base domain, the first label of a 3+ label host.
		parts := strings.Split(host, ".")
		if len(parts) < 3 {
			return ""
		}
		label = parts[0]
	}
	if label == "" || strings.Contains(label, ".") {
		return ""
	}
	return label
}
