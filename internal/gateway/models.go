package gateway

import "storysync/internal/domain"

// The story API wraps every payload in an explicit error flag.

type listResponse struct {
	Error     bool           `json:"error"`
	Message   string         `json:"message"`
	ListStory []domain.Story `json:"listStory"`
}

type detailResponse struct {
	Error   bool          `json:"error"`
	Message string        `json:"message"`
	Story   *domain.Story `json:"story"`
}

type createResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}
