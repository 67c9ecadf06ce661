package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Details is the type-specific payload of a request. Each RequestType has
// exactly one variant.
type Details interface {
	Kind() RequestType
	clone() Details
}

// LeaveDetails is a leave request. Days may be fractional for half days.
type LeaveDetails struct {
	LeaveType string    `json:"leave_type"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Days      float64   `json:"days"`
	Reason    string    `json:"reason,omitempty"`
}

// ExpenseDetails is an expense claim. Amount is in minor currency units.
type ExpenseDetails struct {
	Category    string    `json:"category"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	SpentAt     time.Time `json:"spent_at"`
	ReceiptIDs  []string  `json:"receipt_ids,omitempty"`
	Description string    `json:"description,omitempty"`
}

// OvertimeDetails records overtime worked on a single date.
type OvertimeDetails struct {
	Date   time.Time `json:"date"`
	Hours  float64   `json:"hours"`
	Reason string    `json:"reason,omitempty"`
}

// BusinessTripDetails is a business trip with its estimated budget.
type BusinessTripDetails struct {
	Destination     string    `json:"destination"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	Purpose         string    `json:"purpose"`
	EstimatedBudget int64     `json:"estimated_budget"`
}

// RemoteWorkDetails is a remote work period at Location.
type RemoteWorkDetails struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Location  string    `json:"location"`
	Reason    string    `json:"reason,omitempty"`
}

// PurchaseDetails is a purchase order. When Amount is zero the total is
// Quantity times UnitPrice.
type PurchaseDetails struct {
	Item      string `json:"item"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Vendor    string `json:"vendor,omitempty"`
	Amount    int64  `json:"amount"`
}

// BankAccountChangeDetails changes the account salaries are paid into.
type BankAccountChangeDetails struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder"`
}

// FamilyInfoChangeDetails adds, updates or removes a family member.
type FamilyInfoChangeDetails struct {
	ChangeType   string `json:"change_type"`
	MemberName   string `json:"member_name"`
	Relationship string `json:"relationship"`
	Dependent    bool   `json:"dependent"`
}

// CommuteRouteChangeDetails changes the registered commute route.
type CommuteRouteChangeDetails struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Method      string `json:"method"`
	MonthlyCost int64  `json:"monthly_cost"`
}

// DocumentApprovalDetails asks for sign-off on one document version.
type DocumentApprovalDetails struct {
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	Version      string `json:"version,omitempty"`
}

// ShiftChangeDetails moves a shift, optionally swapping with a colleague.
type ShiftChangeDetails struct {
	Date      time.Time `json:"date"`
	FromShift string    `json:"from_shift"`
	ToShift   string    `json:"to_shift"`
	SwapWith  string    `json:"swap_with,omitempty"`
}

func (LeaveDetails) Kind() RequestType              { return TypeLeave }
func (ExpenseDetails) Kind() RequestType            { return TypeExpense }
func (OvertimeDetails) Kind() RequestType           { return TypeOvertime }
func (BusinessTripDetails) Kind() RequestType       { return TypeBusinessTrip }
func (RemoteWorkDetails) Kind() RequestType         { return TypeRemoteWork }
func (PurchaseDetails) Kind() RequestType           { return TypePurchase }
func (BankAccountChangeDetails) Kind() RequestType  { return TypeBankAccountChange }
func (FamilyInfoChangeDetails) Kind() RequestType   { return TypeFamilyInfoChange }
func (CommuteRouteChangeDetails) Kind() RequestType { return TypeCommuteRouteChange }
func (DocumentApprovalDetails) Kind() RequestType   { return TypeDocumentApproval }
func (ShiftChangeDetails) Kind() RequestType        { return TypeShiftChange }

func (d LeaveDetails) clone() Details { return d }
func (d ExpenseDetails) clone() Details {
	d.ReceiptIDs = append([]string(nil), d.ReceiptIDs...)
	return d
}
func (d OvertimeDetails) clone() Details           { return d }
func (d BusinessTripDetails) clone() Details       { return d }
func (d RemoteWorkDetails) clone() Details         { return d }
func (d PurchaseDetails) clone() Details           { return d }
func (d BankAccountChangeDetails) clone() Details  { return d }
func (d FamilyInfoChangeDetails) clone() Details   { return d }
func (d CommuteRouteChangeDetails) clone() Details { return d }
func (d DocumentApprovalDetails) clone() Details   { return d }
func (d ShiftChangeDetails) clone() Details        { return d }

// Valid reports whether t is a known request type.
func (t RequestType) Valid() bool {
	_, err := newDetails(t)
	return err == nil
}

func newDetails(t RequestType) (Details, error) {
	switch t {
	case TypeLeave:
		return &LeaveDetails{}, nil
	case TypeExpense:
		return &ExpenseDetails{}, nil
	case TypeOvertime:
		return &OvertimeDetails{}, nil
	case TypeBusinessTrip:
		return &BusinessTripDetails{}, nil
	case TypeRemoteWork:
		return &RemoteWorkDetails{}, nil
	case TypePurchase:
		return &PurchaseDetails{}, nil
	case TypeBankAccountChange:
		return &BankAccountChangeDetails{}, nil
	case TypeFamilyInfoChange:
		return &FamilyInfoChangeDetails{}, nil
	case TypeCommuteRouteChange:
		return &CommuteRouteChangeDetails{}, nil
	case TypeDocumentApproval:
		return &DocumentApprovalDetails{}, nil
	case TypeShiftChange:
		return &ShiftChangeDetails{}, nil
	}
	return nil, fmt.Errorf("unknown request type %q", t)
}

// DecodeDetails decodes raw JSON into the variant selected by t.
func DecodeDetails(t RequestType, raw []byte) (Details, error) {
	ptr, err := newDetails(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, ptr); err != nil {
		return nil, fmt.Errorf("failed to decode %s details: %v", t, err)
	}
	// newDetails hands out pointers so json can fill them; callers get values.
	switch v := ptr.(type) {
	case *LeaveDetails:
		return *v, nil
	case *ExpenseDetails:
		return *v, nil
	case *OvertimeDetails:
		return *v, nil
	case *BusinessTripDetails:
		return *v, nil
	case *RemoteWorkDetails:
		return *v, nil
	case *PurchaseDetails:
		return *v, nil
	case *BankAccountChangeDetails:
		return *v, nil
	case *FamilyInfoChangeDetails:
		return *v, nil
	case *CommuteRouteChangeDetails:
		return *v, nil
	case *DocumentApprovalDetails:
		return *v, nil
	case *ShiftChangeDetails:
		return *v, nil
	}
	return nil, fmt.Errorf("unknown request type %q", t)
}

// DetailsFields flattens details into a generic map, used as the
// environment of routing expressions.
func DetailsFields(d Details) (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if d == nil {
		return fields, nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

type requestAlias WorkflowRequest

type requestJSON struct {
	*requestAlias
	Details json.RawMessage `json:"details,omitempty"`
}

// MarshalJSON writes the request with its details under "details"; the
// top-level "type" field selects the variant on decode.
func (r WorkflowRequest) MarshalJSON() ([]byte, error) {
	out := requestJSON{requestAlias: (*requestAlias)(&r)}
	if r.Details != nil {
		raw, err := json.Marshal(r.Details)
		if err != nil {
			return nil, err
		}
		out.Details = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the details variant keyed by the request type.
func (r *WorkflowRequest) UnmarshalJSON(data []byte) error {
	in := requestJSON{requestAlias: (*requestAlias)(r)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.Details = nil
	if len(in.Details) == 0 || string(in.Details) == "null" {
		return nil
	}
	d, err := DecodeDetails(r.Type, in.Details)
	if err != nil {
		return err
	}
	r.Details = d
	return nil
}
