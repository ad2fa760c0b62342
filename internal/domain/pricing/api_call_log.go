package pricing

import (
	"time"

	"github.com/google/uuid"
)

// ApiCallLog records a single external provider call, success or failure.
// The table is append-only and is the sole source of truth for quota
// accounting: the monthly budget is the configured limit minus the count of
// rows for the provider in the current calendar month.
type ApiCallLog struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Provider     string    `gorm:"type:varchar(50);not null;index:idx_api_call_provider_created"`
	Endpoint     string    `gorm:"type:varchar(200);not null"`
	Success      bool      `gorm:"not null"`
	ErrorMessage string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"index:idx_api_call_provider_created"`
}

// TableName returns the table name for GORM
func (ApiCallLog) TableName() string {
	return "api_call_logs"
}

// NewApiCallLog creates a call log entry
func NewApiCallLog(provider, endpoint string, success bool, errMsg string) *ApiCallLog {
	return &ApiCallLog{
		ID:           uuid.New(),
		Provider:     provider,
		Endpoint:     endpoint,
		Success:      success,
		ErrorMessage: errMsg,
		CreatedAt:    time.Now(),
	}
}
