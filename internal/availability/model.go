package availability

// CreateWindowRequest declares a recurring weekly open window.
type CreateWindowRequest struct {
	DayOfWeek int    `json:"dayOfWeek" validate:"gte=0,lte=6"`
	StartTime string `json:"startTime" validate:"required,clock"`
	EndTime   string `json:"endTime" validate:"required,clock"`
}

// CreateBlockRequest blocks out a single calendar date range.
type CreateBlockRequest struct {
	Date      string `json:"date" validate:"required,date"`
	StartTime string `json:"startTime" validate:"required,clock"`
	EndTime   string `json:"endTime" validate:"required,clock"`
}
