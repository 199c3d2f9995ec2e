package dto

// CaptureLeadRequest represents the first inbound interaction of a prospective customer
type CaptureLeadRequest struct {
	Phone string `json:"phone" validate:"required,min=8,max=32"`
	Name  string `json:"name" validate:"max=255"`
}

// SelectQuoteRequest represents the quote chosen by a lead
type SelectQuoteRequest struct {
	InsurerID    uint   `json:"insurer_id" validate:"required"`
	CoverageType string `json:"coverage_type" validate:"required,oneof=full_coverage third_party"`
}

// LeadCommandRequest represents a structured intent produced by the conversation layer
type LeadCommandRequest struct {
	Type         string          `json:"type" validate:"required,oneof=set_vehicle request_quotes select_quote request_broker"`
	Vehicle      *VehicleRequest `json:"vehicle,omitempty" validate:"omitempty"`
	InsurerID    uint            `json:"insurer_id,omitempty"`
	CoverageType string          `json:"coverage_type,omitempty" validate:"omitempty,oneof=full_coverage third_party"`
}

// LeadResponse represents a lead and its assignment state
type LeadResponse struct {
	ID                      uint    `json:"id"`
	UUID                    string  `json:"uuid"`
	Phone                   string  `json:"phone"`
	Name                    string  `json:"name"`
	VehicleMake             string  `json:"vehicle_make,omitempty"`
	VehicleModel            string  `json:"vehicle_model,omitempty"`
	VehicleYear             int     `json:"vehicle_year,omitempty"`
	InsuredValue            *string `json:"insured_value,omitempty"`
	Status                  string  `json:"status"`
	AssignedBrokerID        *uint   `json:"assigned_broker_id,omitempty"`
	SLAFirstContactDeadline *string `json:"sla_first_contact_deadline,omitempty"`
	SLAReassignmentDeadline *string `json:"sla_reassignment_deadline,omitempty"`
	SelectedInsurerID       *uint   `json:"selected_insurer_id,omitempty"`
	SelectedCoverageType    *string `json:"selected_coverage_type,omitempty"`
	SelectedMonthlyPremium  *string `json:"selected_monthly_premium,omitempty"`
	CreatedAt               string  `json:"created_at"`
}

// LeadQuotesResponse represents the quotes computed for a lead
type LeadQuotesResponse struct {
	Lead   LeadResponse    `json:"lead"`
	Quotes []QuoteResponse `json:"quotes"`
}

// LeadSelectionResponse represents a recorded selection and its assignment outcome
type LeadSelectionResponse struct {
	Lead     LeadResponse  `json:"lead"`
	Quote    QuoteResponse `json:"quote"`
	BrokerID *uint         `json:"broker_id,omitempty"`
	Assigned bool          `json:"assigned"`
}

// AssignLeadResponse represents the result of an assignment attempt
type AssignLeadResponse struct {
	LeadID   uint  `json:"lead_id"`
	BrokerID *uint `json:"broker_id,omitempty"`
	Assigned bool  `json:"assigned"`
}

// LeadCommandResponse represents the result of an applied command
type LeadCommandResponse struct {
	Lead     LeadResponse    `json:"lead"`
	Quotes   []QuoteResponse `json:"quotes,omitempty"`
	BrokerID *uint           `json:"broker_id,omitempty"`
}
