package messagequeue

// AnomalyDetectedPayload is the schema for cost.anomaly.detected messages.
type AnomalyDetectedPayload struct {
	TenantID     string  `json:"tenant_id"`
	AnomalyID    string  `json:"anomaly_id"`
	Provider     string  `json:"provider"`
	Service      string  `json:"service"`
	Date         string  `json:"date"` // YYYY-MM-DD
	Severity     string  `json:"severity"`
	ExpectedCost float64 `json:"expected_cost"`
	ActualCost   float64 `json:"actual_cost"`
}

// CollectionCompletedPayload is the schema for cost.collection.completed messages.
type CollectionCompletedPayload struct {
	TenantID     string `json:"tenant_id"`
	AccountID    string `json:"account_id"`
	Provider     string `json:"provider"`
	Success      bool   `json:"success"`
	RecordsSaved int    `json:"records_saved"`
	DurationMS   int64  `json:"duration_ms"`
}

// RecommendationGeneratedPayload is the schema for recommendation.generated messages.
type RecommendationGeneratedPayload struct {
	TenantID         string  `json:"tenant_id"`
	RecommendationID string  `json:"recommendation_id"`
	Type             string  `json:"type"`
	Priority         string  `json:"priority"`
	Provider         string  `json:"provider"`
	Service          string  `json:"service"`
	ResourceID       string  `json:"resource_id"`
	EstimatedSavings float64 `json:"estimated_savings"`
}
