package entity

// Airline is a carrier resolved from its IATA code
type Airline struct {
	Code string
	Name string
}

// Label is the display name used on fare quotes
func (a Airline) Label() string {
	if a.Name == "" {
		return a.Code
	}
	return a.Name
}
