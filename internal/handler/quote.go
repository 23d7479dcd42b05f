package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/zezo2030/hall-reservation/internal/model"
	"github.com/zezo2030/hall-reservation/internal/pricing"
	"github.com/zezo2030/hall-reservation/internal/repository"
)

// errUnknownAddOn marks a quote referencing an add-on that does not exist
// in the branch catalog (or is inactive).
var errUnknownAddOn = errors.New("unknown add-on")

// addOnSelection is one requested catalog add-on with its quantity.
type addOnSelection struct {
	AddOnID  uint64 `json:"add_on_id"`
	Quantity uint32 `json:"quantity"`
}

// quoteRequest is the shared request shape of the quote and booking
// endpoints.  HallID zero means "pick any hall in the branch that fits".
type quoteRequest struct {
	HallID        uint64           `json:"hall_id"`
	BranchID      uint64           `json:"branch_id"`
	StartsAt      time.Time        `json:"starts_at"`
	DurationHours uint32           `json:"duration_hours"`
	Persons       uint32           `json:"persons"`
	AddOns        []addOnSelection `json:"add_ons"`
	CouponCode    string           `json:"coupon_code"`
	EnforceCoupon bool             `json:"enforce_coupon"`
}

// validate performs the structural checks shared by both endpoints.  It
// returns a human-readable message, empty when the request is sound.
func (q *quoteRequest) validate(now time.Time) string {
	if q.HallID == 0 && q.BranchID == 0 {
		return "hall_id or branch_id is required"
	}
	if q.StartsAt.IsZero() || !q.StartsAt.After(now) {
		return "starts_at must be in the future"
	}
	if q.DurationHours < 1 || q.DurationHours > 24 {
		return "duration_hours must be between 1 and 24"
	}
	if q.Persons < 1 {
		return "persons must be at least 1"
	}
	for _, a := range q.AddOns {
		if a.AddOnID == 0 || a.Quantity < 1 {
			return "add_ons entries need add_on_id and quantity"
		}
	}
	return ""
}

// quoteResult is the outcome of resolving a quote request against the
// catalog and the booking calendar.
type quoteResult struct {
	Hall      *model.Hall
	Breakdown pricing.Breakdown
	Lines     []pricing.AddOnLine
	Available bool
	Reason    string // set when Available is false
}

// quoter resolves quote requests.  It is embedded by both the quote and
// booking handlers so the advisory price and the authoritative price
// charged inside the booking transaction come from the exact same code.
type quoter struct {
	halls    *repository.HallRepo
	bookings *repository.BookingRepo
	coupons  *repository.CouponRepo
}

// resolve computes availability and price for a request.  When tx is
// non-nil the hall row is locked and the overlap check runs inside the
// transaction, making the answer authoritative; with a nil tx the same
// checks run without locks and the answer is advisory.
func (qt quoter) resolve(ctx context.Context, tx *sql.Tx, req quoteRequest) (*quoteResult, error) {
	var q repository.Querier = qt.halls.DB()
	if tx != nil {
		q = tx
	}

	candidates, err := qt.candidates(ctx, q, tx, req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &quoteResult{Available: false, Reason: "no hall with sufficient capacity"}, nil
	}
	branchID := candidates[0].BranchID

	holiday, err := qt.halls.IsHoliday(ctx, q, req.StartsAt)
	if err != nil {
		return nil, err
	}
	dayType := model.DayTypeOf(req.StartsAt, holiday)

	lines, err := qt.resolveAddOns(ctx, q, branchID, req.AddOns)
	if err != nil {
		return nil, err
	}

	var coupon *model.Coupon
	if req.CouponCode != "" {
		coupon, err = qt.coupons.GetByCode(ctx, q, req.CouponCode)
		if err != nil {
			return nil, err
		}
		if coupon == nil && req.EnforceCoupon {
			return nil, pricing.ErrCouponNotApplicable
		}
	}

	end := req.StartsAt.Add(time.Duration(req.DurationHours) * time.Hour)
	chosen, reason, err := qt.pickAvailable(ctx, q, candidates, req, end)
	if err != nil {
		return nil, err
	}
	if chosen == nil {
		res := &quoteResult{Available: false, Reason: reason}
		// An explicit hall still gets priced so the caller sees what the
		// slot would have cost.
		if req.HallID != 0 {
			bd, perr := pricing.Compute(pricing.Request{
				Hall: &candidates[0], StartsAt: req.StartsAt, DurationHours: req.DurationHours,
				Persons: req.Persons, DayType: dayType, AddOns: lines,
				Coupon: coupon, EnforceCoupon: req.EnforceCoupon,
			})
			if perr != nil {
				return nil, perr
			}
			res.Hall = &candidates[0]
			res.Breakdown = bd
		}
		return res, nil
	}

	// Auto-selected halls were found without a row lock.  Inside a
	// transaction the chosen hall must be locked and the overlap re-read
	// under the lock, same as the explicit-hall path.
	if tx != nil && req.HallID == 0 {
		locked, err := qt.halls.LockByIDTx(ctx, tx, chosen.ID)
		if err != nil {
			return nil, err
		}
		n, err := qt.bookings.CountOverlapping(ctx, q, locked.ID, req.StartsAt, end)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return &quoteResult{Available: false, Reason: "hall is already booked for this window"}, nil
		}
		chosen = locked
	}

	bd, err := pricing.Compute(pricing.Request{
		Hall: chosen, StartsAt: req.StartsAt, DurationHours: req.DurationHours,
		Persons: req.Persons, DayType: dayType, AddOns: lines,
		Coupon: coupon, EnforceCoupon: req.EnforceCoupon,
	})
	if err != nil {
		return nil, err
	}
	return &quoteResult{Hall: chosen, Breakdown: bd, Lines: lines, Available: true}, nil
}

// candidates returns the halls to consider: the explicit hall, or every
// hall in the branch with enough capacity.  Inside a transaction the
// explicit hall is loaded with a row lock.
func (qt quoter) candidates(ctx context.Context, q repository.Querier, tx *sql.Tx, req quoteRequest) ([]model.Hall, error) {
	if req.HallID != 0 {
		var h *model.Hall
		var err error
		if tx != nil {
			h, err = qt.halls.LockByIDTx(ctx, tx, req.HallID)
		} else {
			h, err = qt.halls.GetByID(ctx, q, req.HallID)
		}
		if err != nil {
			return nil, err
		}
		if h.Capacity < req.Persons {
			return nil, nil
		}
		return []model.Hall{*h}, nil
	}
	return qt.halls.CandidatesByBranch(ctx, q, req.BranchID, req.Persons)
}

// resolveAddOns maps client selections onto catalog prices, collapsing
// duplicate ids by summing quantities.  A selection the catalog does not
// know is a client error, never a silently dropped line.
func (qt quoter) resolveAddOns(ctx context.Context, q repository.Querier, branchID uint64, sel []addOnSelection) ([]pricing.AddOnLine, error) {
	if len(sel) == 0 {
		return nil, nil
	}
	qty := make(map[uint64]uint32, len(sel))
	order := make([]uint64, 0, len(sel))
	for _, s := range sel {
		if _, seen := qty[s.AddOnID]; !seen {
			order = append(order, s.AddOnID)
		}
		qty[s.AddOnID] += s.Quantity
	}
	catalog, err := qt.halls.ActiveAddOnsByIDs(ctx, q, branchID, order)
	if err != nil {
		return nil, err
	}
	lines := make([]pricing.AddOnLine, 0, len(order))
	for _, id := range order {
		item, ok := catalog[id]
		if !ok {
			return nil, errUnknownAddOn
		}
		lines = append(lines, pricing.AddOnLine{
			AddOnID:        id,
			Quantity:       qty[id],
			UnitPriceCents: item.PriceCents,
		})
	}
	return lines, nil
}

// pickAvailable returns the first candidate whose operating hours admit
// the window and whose calendar has no overlapping claim.  Candidates are
// pre-sorted by capacity, so auto-selection prefers the tightest fit.
func (qt quoter) pickAvailable(ctx context.Context, q repository.Querier, candidates []model.Hall, req quoteRequest, end time.Time) (*model.Hall, string, error) {
	reason := "no hall available for the requested window"
	for i := range candidates {
		h := &candidates[i]
		if !pricing.WithinOperatingHours(h, req.StartsAt, req.DurationHours) {
			if req.HallID != 0 {
				reason = "outside hall operating hours"
			}
			continue
		}
		n, err := qt.bookings.CountOverlapping(ctx, q, h.ID, req.StartsAt, end)
		if err != nil {
			return nil, "", err
		}
		if n > 0 {
			if req.HallID != 0 {
				reason = "hall is already booked for this window"
			}
			continue
		}
		return h, "", nil
	}
	return nil, reason, nil
}

// QuoteHandler serves the advisory pricing endpoint.
type QuoteHandler struct {
	quoter
}

// NewQuoteHandler wires the quote endpoint to its repositories.
func NewQuoteHandler(halls *repository.HallRepo, bookings *repository.BookingRepo, coupons *repository.CouponRepo) *QuoteHandler {
	return &QuoteHandler{quoter{halls: halls, bookings: bookings, coupons: coupons}}
}

// Quote handles POST /v1/quote.  The response is a price preview plus an
// availability flag; it never holds locks and never reserves anything.
func (h *QuoteHandler) Quote(c echo.Context) error {
	var req quoteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if msg := req.validate(time.Now().UTC()); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	ctx := c.Request().Context()
	res, err := h.resolve(ctx, nil, req)
	switch {
	case errors.Is(err, repository.ErrHallNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "hall not found"})
	case errors.Is(err, errUnknownAddOn):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown add-on in request"})
	case errors.Is(err, pricing.ErrCouponNotApplicable):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "coupon not applicable"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute quote"})
	}

	if !res.Available {
		body := echo.Map{"available": false, "reason": res.Reason}
		if res.Hall != nil {
			body["quote"] = res.Breakdown
		}
		return c.JSON(http.StatusOK, body)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"available": true,
		"quote":     res.Breakdown,
	})
}
