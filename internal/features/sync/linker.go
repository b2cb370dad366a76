package sync

import (
	"context"
	"fmt"

	"aspire-sync/internal/aspire"
	"aspire-sync/internal/features/record"

	"go.uber.org/zap"
)

// LinkWorkTicketsToProperties repairs work tickets whose property reference
// could not be resolved during sync. The chain runs work ticket ->
// opportunity service -> opportunity -> contract -> property.
func (s *ServiceImpl) LinkWorkTicketsToProperties(ctx context.Context) (LinkResult, error) {
	var res LinkResult

	unlinked, err := s.store.FindUnlinked(ctx, record.CollWorkTickets, "aspire_opportunity_service_id", "property")
	if err != nil {
		return res, fmt.Errorf("failed to find unlinked work tickets: %w", err)
	}
	if len(unlinked) == 0 {
		return res, nil
	}

	client, err := s.newClient()
	if err != nil {
		return res, err
	}

	contractProperties, err := s.store.LookupField(ctx, record.CollContracts, record.FieldOpportunityID, "property")
	if err != nil {
		return res, err
	}

	oppIDs := make([]int64, 0, len(contractProperties))
	for id := range contractProperties {
		oppIDs = append(oppIDs, id)
	}

	services, err := client.FetchOpportunityServices(ctx, oppIDs)
	if err != nil {
		return res, err
	}

	serviceToOpp := make(map[int64]int64, len(services))
	for _, svc := range services {
		if sid := svc.Int64("OpportunityServiceID"); sid != 0 {
			serviceToOpp[sid] = svc.Int64("OpportunityID")
		}
	}

	for i, ticket := range unlinked {
		oppID, ok := serviceToOpp[ticket.Ref]
		if !ok {
			res.NotFound++
			continue
		}
		propertyID, ok := contractProperties[oppID]
		if !ok {
			res.NotFound++
			continue
		}
		s.store.SetField(record.CollWorkTickets, ticket.ID, "property", propertyID)
		res.Updated++
		if err := s.checkpoint(ctx, i+1); err != nil {
			return res, err
		}
	}

	s.log.Info("work ticket link repair finished",
		zap.Int("updated", res.Updated), zap.Int("not_found", res.NotFound))
	return res, s.store.Flush(ctx)
}

// LinkPropertiesToCompanies repairs properties whose company reference is
// missing, using the PropertyContacts association on the remote property
// record.
func (s *ServiceImpl) LinkPropertiesToCompanies(ctx context.Context) (LinkResult, error) {
	var res LinkResult

	unlinked, err := s.store.FindUnlinked(ctx, record.CollProperties, record.FieldPropertyID, "company")
	if err != nil {
		return res, fmt.Errorf("failed to find unlinked properties: %w", err)
	}
	if len(unlinked) == 0 {
		return res, nil
	}

	client, err := s.newClient()
	if err != nil {
		return res, err
	}

	properties, err := client.FetchProperties(ctx, aspire.FetchOptions{})
	if err != nil {
		return res, err
	}

	propertyCompany := make(map[int64]int64, len(properties))
	for _, prop := range properties {
		pid := prop.Int64("PropertyID")
		if pid == 0 {
			continue
		}
		if cid := firstContactCompany(prop); cid != 0 {
			propertyCompany[pid] = cid
		}
	}

	companies, err := s.store.Lookup(ctx, record.CollCompanies, record.FieldCompanyID)
	if err != nil {
		return res, err
	}

	for i, prop := range unlinked {
		companyExtID, ok := propertyCompany[prop.Ref]
		if !ok {
			res.NotFound++
			continue
		}
		companyID, ok := companies[companyExtID]
		if !ok {
			res.NotFound++
			continue
		}
		s.store.SetField(record.CollProperties, prop.ID, "company", companyID)
		res.Updated++
		if err := s.checkpoint(ctx, i+1); err != nil {
			return res, err
		}
	}

	s.log.Info("property link repair finished",
		zap.Int("updated", res.Updated), zap.Int("not_found", res.NotFound))
	return res, s.store.Flush(ctx)
}

// firstContactCompany returns the first non-zero CompanyID among the
// property's contact associations.
func firstContactCompany(prop aspire.Record) int64 {
	contacts, ok := prop["PropertyContacts"].([]any)
	if !ok {
		return 0
	}
	for _, c := range contacts {
		contact, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if cid := aspire.Record(contact).Int64("CompanyID"); cid != 0 {
			return cid
		}
	}
	return 0
}
