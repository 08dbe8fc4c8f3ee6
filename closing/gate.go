/*
gate.go - Closing Gate, the request-time guard

PURPOSE:
  Decides for every incoming operation whether a company may proceed now,
  based on the wall clock and its closing history. The gate is a pure
  decision over (company, path, now, history) and keeps no state between
  calls, so the 05:00 rollover takes effect mid-session.

ALGORITHM:
  1. No company, or an allow-listed path     -> Allow
  2. Today already COMPLETED                 -> DenyBlocked until tomorrow 05:00
  3. required := RequiredClosedDate(now)
  4. required has no COMPLETED closing       -> DenyMustClose(required)
  5. otherwise                               -> Allow

ALLOW-LIST:
  Entries match the exact path or any sub-path ("/static" matches
  "/static/app.css"). "/" matches only the root.

SEE ALSO:
  - inventory/time.go:    RequiredClosedDate, NextRollover
  - api/middleware.go:    turns decisions into redirects
  - invoicing/sales.go:   calls EnsurePriorDayClosed directly
*/
package closing

import (
	"context"
	"strings"
	"time"

	"github.com/facinv/closing-engine/inventory"
	"github.com/sirupsen/logrus"
)

// History is the slice of closing persistence the gate reads.
type History interface {
	ClosingExists(ctx context.Context, companyID inventory.CompanyID, date inventory.Date, state inventory.ClosingState) (bool, error)
}

// Outcome of a gate evaluation.
type Outcome int

const (
	Allow Outcome = iota
	DenyBlocked
	DenyMustClose
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case DenyBlocked:
		return "deny_blocked"
	case DenyMustClose:
		return "deny_must_close"
	}
	return "unknown"
}

// Decision is the result of Evaluate. NextAllowedAt is set for DenyBlocked,
// RequiredDate for DenyMustClose.
type Decision struct {
	Outcome       Outcome
	NextAllowedAt time.Time
	RequiredDate  inventory.Date
}

func (d Decision) Allowed() bool { return d.Outcome == Allow }

// DefaultAllowList holds the public paths and the closing workflow's own paths.
var DefaultAllowList = []string{
	"/",
	"/health",
	"/error",
	"/login",
	"/static",
	"/metrics",
	"/superadmin",
	"/api/closings",
}

type Gate struct {
	History   History
	AllowList []string
	Logger    logrus.FieldLogger
}

func NewGate(history History, logger logrus.FieldLogger) *Gate {
	if logger == nil {
		logger = inventory.NopLogger()
	}
	return &Gate{History: history, AllowList: DefaultAllowList, Logger: logger}
}

// Evaluate runs the gate algorithm. now must already be in the business
// time zone.
func (g *Gate) Evaluate(ctx context.Context, companyID inventory.CompanyID, path string, now time.Time) (Decision, error) {
	if companyID == "" || g.allowListed(path) {
		return Decision{Outcome: Allow}, nil
	}

	today := inventory.DateOf(now)
	closedToday, err := g.History.ClosingExists(ctx, companyID, today, inventory.ClosingCompleted)
	if err != nil {
		return Decision{}, err
	}
	if closedToday {
		return Decision{Outcome: DenyBlocked, NextAllowedAt: inventory.NextRollover(now)}, nil
	}

	required := inventory.RequiredClosedDate(now)
	closed, err := g.History.ClosingExists(ctx, companyID, required, inventory.ClosingCompleted)
	if err != nil {
		return Decision{}, err
	}
	if !closed {
		g.Logger.WithFields(logrus.Fields{
			"company_id":    companyID,
			"path":          path,
			"required_date": required.String(),
		}).Debug("gate requires closing")
		return Decision{Outcome: DenyMustClose, RequiredDate: required}, nil
	}
	return Decision{Outcome: Allow}, nil
}

func (g *Gate) allowListed(path string) bool {
	for _, entry := range g.AllowList {
		if entry == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		if path == entry || strings.HasPrefix(path, entry+"/") {
			return true
		}
	}
	return false
}

// EnsurePriorDayClosed applies the required-date rule outside a request.
// Invoicing calls it before any sale.
func EnsurePriorDayClosed(ctx context.Context, history History, companyID inventory.CompanyID, now time.Time) error {
	required := inventory.RequiredClosedDate(now)
	closed, err := history.ClosingExists(ctx, companyID, required, inventory.ClosingCompleted)
	if err != nil {
		return err
	}
	if !closed {
		return &inventory.PriorDayNotClosedError{Date: required}
	}
	return nil
}
