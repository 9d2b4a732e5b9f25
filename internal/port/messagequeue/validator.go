package messagequeue

import (
	"encoding/json"
	"fmt"
)

// Validate reports whether data is a usable event for subject. Beyond
// well-formedness it requires the identity fields consumers route on:
// the websocket relay fans out by tenant_id, and dashboards key on the
// per-event ID. Unknown subjects pass, so new producers can ship before
// every consumer upgrades.
func Validate(subject string, data []byte) error {
	switch subject {
	case SubjectAnomalyDetected:
		var p AnomalyDetectedPayload
		return decode(subject, data, &p, func() string {
			switch {
			case p.TenantID == "":
				return "tenant_id"
			case p.AnomalyID == "":
				return "anomaly_id"
			}
			return ""
		})
	case SubjectCollectionCompleted:
		var p CollectionCompletedPayload
		return decode(subject, data, &p, func() string {
			switch {
			case p.TenantID == "":
				return "tenant_id"
			case p.AccountID == "":
				return "account_id"
			}
			return ""
		})
	case SubjectRecommendationGenerated:
		var p RecommendationGeneratedPayload
		return decode(subject, data, &p, func() string {
			switch {
			case p.TenantID == "":
				return "tenant_id"
			case p.RecommendationID == "":
				return "recommendation_id"
			}
			return ""
		})
	}
	return nil
}

// decode unmarshals data into target, then asks missing for the first
// required field the event left empty.
func decode(subject string, data []byte, target any, missing func() string) error {
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("malformed %s event: %w", subject, err)
	}
	if field := missing(); field != "" {
		return fmt.Errorf("%s event missing %s", subject, field)
	}
	return nil
}
