package domain

import "strings"

// Customer is owned by the customer collaborator; repairs reference it by id only.
type Customer struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	TelephoneNumber string `json:"telephoneNumber"`
	LicensePlate    string `json:"licensePlate"`
}

// NewCustomer validates a customer registration.
func NewCustomer(name, telephone, licensePlate string) (*Customer, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &InvalidInputError{Field: "name"}
	}
	return &Customer{Name: name, TelephoneNumber: telephone, LicensePlate: licensePlate}, nil
}
