package services

import (
	"github.com/opendisclosures/disclosure-backend/models"
)

// Destination names the single output a record is routed to.
type Destination int

const (
	DestinationCurated Destination = iota
	DestinationQuarantine
)

// RoutedRecord is the routing decision for one input record. Exactly one
// of Masked/Quarantined is set, matching the destination.
type RoutedRecord struct {
	Destination Destination
	Masked      *models.MaskedDisclosureRecord
	Quarantined *models.QuarantinedRecord
}

// RecordRouter classifies each record as curated or quarantined based on
// the validator outcome and shapes the payload for its destination. Every
// record gets exactly one destination; quarantined records never reach the
// serving store.
type RecordRouter struct{}

func NewRecordRouter() *RecordRouter {
	return &RecordRouter{}
}

// Route decides the destination for one record. For valid records the
// masked form is passed in; for invalid records the original field values
// travel to quarantine with the failure reason.
func (r *RecordRouter) Route(raw *models.RawDisclosureRecord, valid bool, reason string, masked *models.MaskedDisclosureRecord) RoutedRecord {
	if !valid {
		return RoutedRecord{
			Destination: DestinationQuarantine,
			Quarantined: &models.QuarantinedRecord{
				Row:    raw.Fields(),
				Reason: reason,
			},
		}
	}

	return RoutedRecord{
		Destination: DestinationCurated,
		Masked:      masked,
	}
}
