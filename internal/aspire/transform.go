package aspire

import (
	"strings"
	"time"
	"unicode"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Transforms map raw API records (PascalCase) to local document shape
// (snake_case). They are pure field mapping: no lookups, no writes.

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate parses an ISO-8601 string to a date value. Empty or malformed
// input yields nil, never an error.
func ParseDate(s string) *time.Time {
	dt := ParseDateTime(s)
	if dt == nil {
		return nil
	}
	d := time.Date(dt.Year(), dt.Month(), dt.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// ParseDateTime parses an ISO-8601 string to a datetime truncated to whole
// seconds with the timezone dropped. Empty or malformed input yields nil.
func ParseDateTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC().Truncate(time.Second)
			return &t
		}
	}
	return nil
}

// CleanPhone strips extension suffixes and invalid characters.
//
// Handles cases like:
//
//	"506-284-097 not in servi" -> "506-284-097"
//	"1-952-947-0007 E"         -> "1-952-947-0007"
//	"902-579-3084 ext 123"     -> "902-579-3084"
//
// Returns "" when fewer than 7 digits remain.
func CleanPhone(s string) string {
	if s == "" {
		return ""
	}

	// Cut at the first letter: covers "x", "ext" and stray trailing text
	for i, r := range s {
		if unicode.IsLetter(r) {
			s = s[:i]
			break
		}
	}

	// Keep only valid phone characters
	var b strings.Builder
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
			b.WriteRune(r)
		case r == '+' || r == '-' || r == '(' || r == ')' || r == ' ':
			b.WriteRune(r)
		}
	}

	if digits < 7 {
		return ""
	}
	return strings.TrimSpace(b.String())
}

// ContractStatus maps an opportunity status name by substring.
func ContractStatus(statusName string) string {
	switch {
	case strings.Contains(statusName, "Won"):
		return "Won"
	case strings.Contains(statusName, "Lost"):
		return "Lost"
	default:
		return "Open"
	}
}

var propertyStatusMap = map[string]string{
	"Customer": "Customer",
	"Prospect": "Prospect",
}

// PropertyStatus maps a property status name, falling back to Inactive.
func PropertyStatus(statusName string) string {
	if s, ok := propertyStatusMap[statusName]; ok {
		return s
	}
	return "Inactive"
}

var workTicketStatusMap = map[string]string{
	"Scheduled":   "Scheduled",
	"In Progress": "In Progress",
	"Complete":    "Complete",
	"Cancelled":   "Cancelled",
}

// WorkTicketStatus maps a work ticket status name, falling back to Scheduled.
func WorkTicketStatus(statusName string) string {
	if s, ok := workTicketStatusMap[statusName]; ok {
		return s
	}
	return "Scheduled"
}

// PropertyDisplayName disambiguates colliding property names by appending
// the city, e.g. "Cyber Centre" becomes "Cyber Centre - Halifax".
func PropertyDisplayName(name, city string) string {
	city = strings.TrimSpace(city)
	if city == "" {
		return name
	}
	return name + " - " + city
}

func syncStamp() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func idOrNil(r Record, key string) any {
	if id := r.Int64(key); id != 0 {
		return id
	}
	return nil
}

func phoneOrNil(s string) any {
	if p := CleanPhone(s); p != "" {
		return p
	}
	return nil
}

// Company maps an Aspire Company to a local company document.
func Company(rec Record) bson.M {
	return bson.M{
		"company_name":      rec.Str("CompanyName"),
		"active":            rec.BoolDefault("Active", true),
		"aspire_company_id": rec.Int64("CompanyID"),
		"last_aspire_sync":  syncStamp(),
	}
}

// Contact maps an Aspire Contact to a local contact document. company is
// the resolved local company reference, nil when unresolved.
func Contact(rec Record, company *primitive.ObjectID) bson.M {
	return bson.M{
		"first_name":        rec.Str("FirstName"),
		"last_name":         rec.Str("LastName"),
		"email":             rec.Str("Email"),
		"mobile_phone":      phoneOrNil(rec.Str("MobilePhone")),
		"office_phone":      phoneOrNil(rec.Str("OfficePhone")),
		"company":           company,
		"active":            rec.BoolDefault("Active", true),
		"aspire_contact_id": rec.Int64("ContactID"),
		"last_aspire_sync":  syncStamp(),
	}
}

// Property maps an Aspire Property to a local property document.
func Property(rec Record, company *primitive.ObjectID) bson.M {
	return bson.M{
		"property_name": PropertyDisplayName(rec.Str("PropertyName"), rec.Str("PropertyAddressCity")),
		"company":       company,
		"property_status_name": PropertyStatus(rec.Str("PropertyStatusName")),
		"industry_name":        rec["IndustryName"],
		"budget":               rec["Budget"],
		"property_address_line1":               rec["PropertyAddressLine1"],
		"property_address_city":                rec["PropertyAddressCity"],
		"property_address_state_province_code": rec["PropertyAddressStateProvinceCode"],
		"property_address_zip_code":            rec["PropertyAddressZipCode"],
		"geo_location_latitude":                rec["GEOLocationLatitude"],
		"geo_location_longitude":               rec["GEOLocationLongitude"],
		"account_owner_contact_name":           rec["AccountOwnerContactName"],
		"aspire_property_id":                   rec.Int64("PropertyID"),
		"last_aspire_sync":                     syncStamp(),
	}
}

// Contract maps an Aspire Opportunity to a local contract document. The
// company reference is required; callers skip records they cannot resolve.
func Contract(rec Record, company primitive.ObjectID, property *primitive.ObjectID) bson.M {
	return bson.M{
		"company":               company,
		"property":              property,
		"contract_status":       ContractStatus(rec.Str("OpportunityStatusName")),
		"renewal_date":          ParseDate(rec.Str("RenewalDate")),
		"sales_rep":             rec["SalesRepContactName"],
		"estimated_value":       rec["EstimatedDollars"],
		"gross_margin":          rec["EstimatedGrossMarginDollars"],
		"branch":                rec["BranchName"],
		"division":              rec["DivisionName"],
		"won_date":              ParseDate(rec.Str("WonDate")),
		"aspire_modified_date":  ParseDateTime(rec.Str("ModifiedDate")),
		"aspire_opportunity_id": rec.Int64("OpportunityID"),
		"last_aspire_sync":      syncStamp(),
	}
}

// WorkTicket maps an Aspire Work Ticket to a local work ticket document.
func WorkTicket(rec Record, property *primitive.ObjectID) bson.M {
	earned := rec["EarnedRevenue"]
	if earned == nil {
		earned = rec["ActualRevenue"]
	}

	return bson.M{
		"work_ticket_number":      rec["WorkTicketNumber"],
		"work_ticket_status_name": WorkTicketStatus(rec.Str("WorkTicketStatusName")),
		"property":                property,
		"scheduled_start_date":    ParseDate(rec.Str("ScheduledStartDate")),
		"complete_date":           ParseDate(rec.Str("CompletedDate")),
		"hours_est":               rec["HoursEstimated"],
		"hours_act":               rec["HoursActual"],
		"labor_cost_act":          rec["ActualLaborCost"],
		"material_cost_act":       rec["ActualMaterialCost"],
		"equipment_cost_act":      rec["ActualEquipmentCost"],
		"earned_revenue":          earned,
		"crew_leader_name":        rec["CrewLeaderName"],
		"aspire_work_ticket_id":   rec.Int64("WorkTicketID"),
		"aspire_opportunity_service_id": idOrNil(rec, "OpportunityServiceID"),
		"last_aspire_sync":              syncStamp(),
	}
}
