package plans

import "time"

type Plan struct {
	ID           int64
	Name         string
	DurationDays int
	Price        float64
	Currency     string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type GetCriteria struct {
	ID   *int64
	Name *string
}

type ListCriteria struct {
	IsActive *bool
	Limit    int
	Offset   int
}

type UpdateParams struct {
	Name         *string
	DurationDays *int
	Price        *float64
	Currency     *string
	IsActive     *bool
}
