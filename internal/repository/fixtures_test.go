package repository

import (
	"time"

	"github.com/zezo2030/hall-reservation/internal/model"
)

func testBooking() *model.Booking {
	return &model.Booking{
		UserID:        1,
		HallID:        7,
		BranchID:      2,
		StartsAt:      time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC),
		DurationHours: 3,
		Persons:       25,
		TotalCents:    131250,
		ContactName:   "Dana",
		ContactPhone:  "+100200300",
	}
}
