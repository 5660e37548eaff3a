package entity

// Airport represents a known airport that searches may start or end at
type Airport struct {
	Code     string
	Name     string
	CityCode string
	CityName string
	TzName   string
}
