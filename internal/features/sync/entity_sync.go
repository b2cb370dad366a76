package sync

import (
	"context"
	"fmt"
	"time"

	"aspire-sync/internal/aspire"
	"aspire-sync/internal/features/record"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Batch settings to avoid overwhelming the local store and the remote API.
const (
	BatchSize  = 100
	BatchDelay = 500 * time.Millisecond
)

// Updatable fields per entity kind. Updates merge exactly these fields;
// _id and created_at are never overwritten.
var (
	companyUpdatable = []string{
		"company_name", "active", "last_aspire_sync",
	}
	propertyUpdatable = []string{
		"property_name", "company", "property_status_name", "industry_name",
		"budget", "property_address_line1", "property_address_city",
		"property_address_state_province_code", "property_address_zip_code",
		"geo_location_latitude", "geo_location_longitude",
		"account_owner_contact_name", "last_aspire_sync",
	}
	contactUpdatable = []string{
		"first_name", "last_name", "email", "mobile_phone", "office_phone",
		"company", "active", "last_aspire_sync",
	}
	contractUpdatable = []string{
		"company", "property", "contract_status", "renewal_date", "sales_rep",
		"estimated_value", "gross_margin", "branch", "division", "won_date",
		"aspire_modified_date", "last_aspire_sync",
	}
	workTicketUpdatable = []string{
		"work_ticket_number", "work_ticket_status_name", "property",
		"scheduled_start_date", "complete_date", "hours_est", "hours_act",
		"labor_cost_act", "material_cost_act", "equipment_cost_act",
		"earned_revenue", "crew_leader_name", "aspire_opportunity_service_id",
		"last_aspire_sync",
	}
)

func pick(doc bson.M, fields []string) bson.M {
	out := bson.M{}
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

func ref(lookup map[int64]primitive.ObjectID, externalID int64) *primitive.ObjectID {
	if id, ok := lookup[externalID]; ok {
		return &id
	}
	return nil
}

// upsert matches by external id and queues an insert or an allow-listed
// merge. Returns whether a new document was created.
//
// queued tracks inserts from the current pull that are not flushed yet and
// so are invisible to FindByExternal. A remote record can appear on two
// pages when the collection shifts between $skip reads; the repeat must
// merge into the queued insert, not queue a second one (the unique index
// would fail the whole bulk write).
func (s *ServiceImpl) upsert(ctx context.Context, collection, externalField string, externalID int64, doc bson.M, updatable []string, queued map[int64]primitive.ObjectID) (bool, error) {
	if externalID == 0 {
		return false, fmt.Errorf("missing %s", externalField)
	}

	if id, ok := queued[externalID]; ok {
		s.store.Update(collection, id, pick(doc, updatable))
		return false, nil
	}

	id, found, err := s.store.FindByExternal(ctx, collection, externalField, externalID)
	if err != nil {
		return false, err
	}

	if found {
		s.store.Update(collection, id, pick(doc, updatable))
		return false, nil
	}

	queued[externalID] = s.store.Insert(collection, doc)
	return true, nil
}

// checkpoint flushes pending writes every BatchSize records and pauses
// BatchDelay before continuing.
func (s *ServiceImpl) checkpoint(ctx context.Context, processed int) error {
	if processed%BatchSize != 0 {
		return nil
	}
	if err := s.store.Flush(ctx); err != nil {
		return err
	}
	time.Sleep(s.batchDelay)
	return nil
}

func (s *ServiceImpl) syncCompanies(ctx context.Context, client API, opts aspire.FetchOptions) (Result, error) {
	var res Result

	companies, err := client.FetchCompanies(ctx, opts)
	if err != nil {
		return res, err
	}
	res.Pulled = len(companies)

	queued := make(map[int64]primitive.ObjectID)
	for i, rec := range companies {
		externalID := rec.Int64("CompanyID")
		doc := aspire.Company(rec)

		created, err := s.upsert(ctx, record.CollCompanies, record.FieldCompanyID, externalID, doc, companyUpdatable, queued)
		if err != nil {
			res.Errors = append(res.Errors, ErrorEntry{Entity: "Company", ExternalID: externalID, Error: err.Error()})
		} else if created {
			res.Created++
		} else {
			res.Updated++
		}

		if err := s.checkpoint(ctx, i+1); err != nil {
			return res, err
		}
	}

	return res, s.store.Flush(ctx)
}

func (s *ServiceImpl) syncProperties(ctx context.Context, client API, opts aspire.FetchOptions) (Result, error) {
	var res Result

	properties, err := client.FetchProperties(ctx, opts)
	if err != nil {
		return res, err
	}
	res.Pulled = len(properties)

	companies, err := s.store.Lookup(ctx, record.CollCompanies, record.FieldCompanyID)
	if err != nil {
		return res, err
	}

	queued := make(map[int64]primitive.ObjectID)
	for i, rec := range properties {
		externalID := rec.Int64("PropertyID")
		doc := aspire.Property(rec, ref(companies, rec.Int64("CompanyID")))

		created, err := s.upsert(ctx, record.CollProperties, record.FieldPropertyID, externalID, doc, propertyUpdatable, queued)
		if err != nil {
			res.Errors = append(res.Errors, ErrorEntry{Entity: "Property", ExternalID: externalID, Error: err.Error()})
		} else if created {
			res.Created++
		} else {
			res.Updated++
		}

		if err := s.checkpoint(ctx, i+1); err != nil {
			return res, err
		}
	}

	return res, s.store.Flush(ctx)
}

func (s *ServiceImpl) syncContacts(ctx context.Context, client API, opts aspire.FetchOptions) (Result, error) {
	var res Result

	contacts, err := client.FetchContacts(ctx, opts)
	if err != nil {
		return res, err
	}
	res.Pulled = len(contacts)

	companies, err := s.store.Lookup(ctx, record.CollCompanies, record.FieldCompanyID)
	if err != nil {
		return res, err
	}

	queued := make(map[int64]primitive.ObjectID)
	for i, rec := range contacts {
		externalID := rec.Int64("ContactID")
		doc := aspire.Contact(rec, ref(companies, rec.Int64("CompanyID")))

		created, err := s.upsert(ctx, record.CollContacts, record.FieldContactID, externalID, doc, contactUpdatable, queued)
		if err != nil {
			res.Errors = append(res.Errors, ErrorEntry{Entity: "Contact", ExternalID: externalID, Error: err.Error()})
		} else if created {
			res.Created++
		} else {
			res.Updated++
		}

		if err := s.checkpoint(ctx, i+1); err != nil {
			return res, err
		}
	}

	return res, s.store.Flush(ctx)
}

// syncContracts skips records whose company cannot be resolved: a contract
// requires a company, and creating orphans now would only pollute the store
// until a later resync picks them up.
func (s *ServiceImpl) syncContracts(ctx context.Context, client API, opts aspire.FetchOptions) (Result, error) {
	var res Result

	contracts, err := client.FetchContracts(ctx, opts)
	if err != nil {
		return res, err
	}
	res.Pulled = len(contracts)

	companies, err := s.store.Lookup(ctx, record.CollCompanies, record.FieldCompanyID)
	if err != nil {
		return res, err
	}
	properties, err := s.store.Lookup(ctx, record.CollProperties, record.FieldPropertyID)
	if err != nil {
		return res, err
	}

	queued := make(map[int64]primitive.ObjectID)
	for i, rec := range contracts {
		externalID := rec.Int64("OpportunityID")

		companyID := rec.Int64("BillingCompanyID")
		if companyID == 0 {
			companyID = rec.Int64("CompanyID")
		}

		company, ok := companies[companyID]
		if !ok {
			// Silent skip: not created, not counted as an error
			continue
		}

		doc := aspire.Contract(rec, company, ref(properties, rec.Int64("PropertyID")))

		created, err := s.upsert(ctx, record.CollContracts, record.FieldOpportunityID, externalID, doc, contractUpdatable, queued)
		if err != nil {
			res.Errors = append(res.Errors, ErrorEntry{Entity: "Contract", ExternalID: externalID, Error: err.Error()})
		} else if created {
			res.Created++
		} else {
			res.Updated++
		}

		if err := s.checkpoint(ctx, i+1); err != nil {
			return res, err
		}
	}

	return res, s.store.Flush(ctx)
}

func (s *ServiceImpl) syncWorkTickets(ctx context.Context, client API, opts aspire.FetchOptions) (Result, error) {
	var res Result

	tickets, err := client.FetchWorkTickets(ctx, opts)
	if err != nil {
		return res, err
	}
	res.Pulled = len(tickets)

	properties, err := s.store.Lookup(ctx, record.CollProperties, record.FieldPropertyID)
	if err != nil {
		return res, err
	}

	queued := make(map[int64]primitive.ObjectID)
	for i, rec := range tickets {
		externalID := rec.Int64("WorkTicketID")
		doc := aspire.WorkTicket(rec, ref(properties, rec.Int64("PropertyID")))

		created, err := s.upsert(ctx, record.CollWorkTickets, record.FieldWorkTicketID, externalID, doc, workTicketUpdatable, queued)
		if err != nil {
			res.Errors = append(res.Errors, ErrorEntry{Entity: "WorkTicket", ExternalID: externalID, Error: err.Error()})
		} else if created {
			res.Created++
		} else {
			res.Updated++
		}

		if err := s.checkpoint(ctx, i+1); err != nil {
			return res, err
		}
	}

	return res, s.store.Flush(ctx)
}
