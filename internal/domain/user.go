package domain

import "strings"

// User represents the signed-in account as reported by the backend
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email,omitempty"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

// DisplayName returns the name shown in the UI
func (u User) DisplayName() string {
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	email := strings.TrimSpace(u.Email)

	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case email != "":
		local, _, _ := strings.Cut(email, "@")
		return local
	default:
		return "User"
	}
}
