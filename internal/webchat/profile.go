package webchat

import (
	"encoding/json"
	"strings"
)

// ContactProfile holds the contact details a visitor chose to share.
type ContactProfile struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Address  string `json:"address"`
}

func (p ContactProfile) IsEmpty() bool {
	return p.FullName == "" && p.Phone == "" && p.Email == "" && p.Address == ""
}

func (p ContactProfile) trimmed() ContactProfile {
	return ContactProfile{
		FullName: strings.TrimSpace(p.FullName),
		Phone:    strings.TrimSpace(p.Phone),
		Email:    strings.TrimSpace(p.Email),
		Address:  strings.TrimSpace(p.Address),
	}
}

type customerPayload struct {
	FullName flexString `json:"fullName"`
	Phone    flexString `json:"phone"`
	Email    flexString `json:"email"`
	Address  flexString `json:"address"`
}

// decodeCustomer returns nil for null, absent or non-object customer records.
func decodeCustomer(data json.RawMessage) *ContactProfile {
	if len(data) == 0 {
		return nil
	}
	var c *customerPayload
	if err := json.Unmarshal(data, &c); err != nil || c == nil {
		return nil
	}
	return &ContactProfile{
		FullName: string(c.FullName),
		Phone:    string(c.Phone),
		Email:    string(c.Email),
		Address:  string(c.Address),
	}
}

func isGuestName(name, guest string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	return n == "" || n == strings.ToLower(strings.TrimSpace(guest))
}

// profileFromCustomer clears the placeholder guest name.
func profileFromCustomer(c ContactProfile, guest string) ContactProfile {
	if isGuestName(c.FullName, guest) {
		c.FullName = ""
	}
	return c
}

// mergeProfile lets the server value win per field, falling back to what was submitted.
func mergeProfile(server ContactProfile, submitted ContactProfile) ContactProfile {
	return ContactProfile{
		FullName: firstNonEmpty(server.FullName, submitted.FullName),
		Phone:    firstNonEmpty(server.Phone, submitted.Phone),
		Email:    firstNonEmpty(server.Email, submitted.Email),
		Address:  firstNonEmpty(server.Address, submitted.Address),
	}
}

// contactSummary renders the plain-text message agents see after a profile save.
func contactSummary(p ContactProfile) string {
	var lines []string
	if p.FullName != "" {
		lines = append(lines, "• Full name: "+p.FullName)
	}
	if p.Phone != "" {
		lines = append(lines, "• Phone: "+p.Phone)
	}
	if p.Email != "" {
		lines = append(lines, "• Email: "+p.Email)
	}
	if p.Address != "" {
		lines = append(lines, "• Address: "+p.Address)
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(append([]string{"Visitor contact details:"}, lines...), "\n")
}
