package models

import "strings"

// UserRecord is a users row in the remote store's field naming.
type UserRecord struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Role        string `json:"role"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	MiddleName  string `json:"middle_name,omitempty"`
	FullName    string `json:"full_name,omitempty"`
}

// UserPayload is the UpsertUser queue payload.
type UserPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Role        string `json:"role"`
	Password    string `json:"password,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	MiddleName  string `json:"middle_name,omitempty"`
	FullName    string `json:"full_name,omitempty"`
}

// User is the application-side view of a user.
type User struct {
	ID         string
	Email      string
	Phone      string
	Role       string
	FirstName  string
	LastName   string
	MiddleName string
	FullName   string
}

// IsDriver reports whether the user drives trips.
func (u User) IsDriver() bool { return u.Role == RoleDriver }

func (r UserRecord) ToUser() User {
	u := User{
		ID:         r.ID,
		Email:      r.Email,
		Phone:      r.PhoneNumber,
		Role:       r.Role,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		MiddleName: r.MiddleName,
		FullName:   r.FullName,
	}
	if u.FullName == "" {
		u.FullName = joinName(r.LastName, r.FirstName, r.MiddleName)
	}
	return u
}

// UserRecordFrom converts a user back to its remote form.
func UserRecordFrom(u User) UserRecord {
	return UserRecord{
		ID:          u.ID,
		Email:       u.Email,
		PhoneNumber: u.Phone,
		Role:        u.Role,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		MiddleName:  u.MiddleName,
		FullName:    u.FullName,
	}
}

func joinName(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
