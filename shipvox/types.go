package shipvox

// RateRequest asks the rate service for shipping quotes.
type RateRequest struct {
	OriginZip       string      `json:"origin_zip"`
	DestinationZip  string      `json:"destination_zip"`
	Weight          float64     `json:"weight"` // pounds
	Dimensions      *Dimensions `json:"dimensions,omitempty"`
	PickupRequested bool        `json:"pickup_requested,omitempty"`
}

// Dimensions of a package, in inches.
type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Quote is a single carrier/service rate option.
type Quote struct {
	Carrier      string  `json:"carrier"`
	ServiceName  string  `json:"service_name"`
	Cost         float64 `json:"cost"`
	Currency     string  `json:"currency"`
	TransitDays  int     `json:"transit_days"`
	DeliveryDate string  `json:"delivery_date,omitempty"`
}

// RateResponse is the rate service's answer, with the original request echoed
// back so downstream consumers can render "from/to" without keeping state.
type RateResponse struct {
	CheapestOption *Quote      `json:"cheapest_option,omitempty"`
	FastestOption  *Quote      `json:"fastest_option,omitempty"`
	AllOptions     []Quote     `json:"all_options"`
	Request        RateRequest `json:"request"`
}

// Address is a shipper or recipient address.
type Address struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

// Package describes the parcel being shipped.
type Package struct {
	Weight     float64     `json:"weight"`
	Dimensions *Dimensions `json:"dimensions,omitempty"`
}

// LabelRequest asks the label service to purchase a shipping label.
type LabelRequest struct {
	Carrier     string  `json:"carrier"`
	Shipper     Address `json:"shipper"`
	Recipient   Address `json:"recipient"`
	Package     Package `json:"package"`
	ServiceType string  `json:"service_type"`
}

// LabelResponse is the label service's answer.
type LabelResponse struct {
	TrackingNumber     string `json:"tracking_number"`
	Carrier            string `json:"carrier"`
	LabelURL           string `json:"label_url"`
	FallbackQRCodeURL  string `json:"fallback_qr_code_url,omitempty"`
	NativeQRCodeBase64 string `json:"native_qr_code_base64,omitempty"`
	EstimatedDelivery  string `json:"estimated_delivery,omitempty"`
}
