package shared

import "strings"

// Customer identifies the buyer on quotations and invoices.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	TIN     string `json:"tin,omitempty"`
}

// Normalize trims whitespace and lower-cases the email.
func (c Customer) Normalize() Customer {
	return Customer{
		Name:    strings.TrimSpace(c.Name),
		Email:   strings.ToLower(strings.TrimSpace(c.Email)),
		Phone:   strings.TrimSpace(c.Phone),
		Address: strings.TrimSpace(c.Address),
		TIN:     strings.TrimSpace(c.TIN),
	}
}
