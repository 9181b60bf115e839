package access

import (
	"fmt"

	"github.com/carehub/carehub/internal/domain/records"
	"github.com/carehub/carehub/internal/platform/notification"
)

type BillingFilter struct {
	Search    string
	Status    records.PaymentStatus
	PatientID string
}

func (f BillingFilter) match(b records.Billing) bool {
	if f.Status != "" && b.PaymentStatus != f.Status {
		return false
	}
	if f.PatientID != "" && b.PatientID != f.PatientID {
		return false
	}
	fields := []string{b.PatientName}
	for _, item := range b.ServiceItems {
		fields = append(fields, item.ServiceName)
	}
	return matchesText(f.Search, fields...)
}

func (s *Service) ListBilling(p Principal, f BillingFilter) ([]records.Billing, error) {
	return list(s, p, EntityBilling, s.store.Billing(), f.match)
}

func (s *Service) GetBilling(p Principal, id string) (records.Billing, error) {
	return get(s, p, EntityBilling, s.store.Billing(), id)
}

// CreateBilling stores a bill. The total is always recomputed from the
// service items.
func (s *Service) CreateBilling(p Principal, draft records.Billing) (records.Billing, error) {
	bill, err := create(s, p, EntityBilling, s.store.Billing(), "Billing Record Created", func(scope Scope) (records.Billing, error) {
		stamp(scope, p, draft.SetOwner)
		if err := s.requireUsers("patient_id", draft.PatientID); err != nil {
			return draft, err
		}
		if draft.BillingDate.IsZero() {
			draft.BillingDate = s.store.Now()
		}
		draft.PatientName = s.userName(draft.PatientID)
		return draft, nil
	})
	if err != nil {
		return bill, err
	}
	s.notify(bill.PatientID, records.NotifyBilling, notification.BillIssued, map[string]string{
		"amount": fmt.Sprintf("$%.2f", bill.TotalAmount),
	})
	return bill, nil
}

func (s *Service) UpdateBilling(p Principal, id string, patch records.BillingPatch) (records.Billing, error) {
	return update(s, p, EntityBilling, OpUpdate, s.store.Billing(), id, "Billing Record Updated", func(b *records.Billing) error {
		patch.Apply(b)
		return nil
	})
}

func (s *Service) DeleteBilling(p Principal, id string) error {
	return remove(s, p, EntityBilling, s.store.Billing(), id, "Billing Record Deleted")
}
