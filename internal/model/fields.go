package model

// Intent values for ExtractedFields.Intent.
const (
	IntentSeek  = "SEEK"
	IntentOffer = "OFFER"
)

// ExtractedFields is the structured state recovered from free text. Every
// field is independently nullable and no field implies another.
type ExtractedFields struct {
	Intent      *string  `json:"intent"`
	Category    *string  `json:"category"`
	Origin      *string  `json:"origin"`
	Destination *string  `json:"destination"`
	StartDate   *Date    `json:"startDate"`
	EndDate     *Date    `json:"endDate"`
	DepartDate  *Date    `json:"departDate"`
	ArriveDate  *Date    `json:"arriveDate"`
	CheckIn     *Date    `json:"checkIn"`
	CheckOut    *Date    `json:"checkOut"`
	HolderName  *string  `json:"holderName"`
	Price       *float64 `json:"price"`
	Currency    *string  `json:"currency"`
}

// HasDate reports whether any start, end or alias date is known.
func (f ExtractedFields) HasDate() bool {
	return f.StartDate != nil || f.EndDate != nil ||
		f.DepartDate != nil || f.ArriveDate != nil ||
		f.CheckIn != nil || f.CheckOut != nil
}

// HasLocation reports whether origin or destination is known.
func (f ExtractedFields) HasLocation() bool {
	return f.Origin != nil || f.Destination != nil
}

// IsEmpty reports whether no field is set.
func (f ExtractedFields) IsEmpty() bool {
	return f == ExtractedFields{}
}
