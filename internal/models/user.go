package models

import "time"

// Field-of-study values a profile may carry. Honarestan students store
// their exact branch as "honarestan:<branch>".
const (
	FieldDaneshgah  = "daneshgah"
	FieldRiazi      = "riazi"
	FieldEnsani     = "ensani"
	FieldTajrobi    = "tajrobi"
	FieldHonarestan = "honarestan"
)

type User struct {
	ID               string    `json:"user_id"`
	Name             string    `json:"name"`
	Field            string    `json:"field"`
	Grade            int       `json:"grade"`
	ProfileCompleted bool      `json:"profile_completed"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
