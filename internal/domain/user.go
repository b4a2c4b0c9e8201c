package domain

import "time"

type UserRole string

const (
	RoleEmployer  UserRole = "Employer"
	RoleJobSeeker UserRole = "Job Seeker"
)

// User is the subset of the job-board user record the messaging core reads.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Role         UserRole  `json:"role,omitempty"`
	ProfilePhoto string    `json:"profile_photo,omitempty"`
	IsOnline     bool      `json:"is_online"`
	LastSeen     time.Time `json:"last_seen"`
}

// Profile is the public view of a user attached to conversation payloads.
type Profile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Role         UserRole  `json:"role,omitempty"`
	ProfilePhoto string    `json:"profile_photo,omitempty"`
	IsOnline     bool      `json:"is_online"`
	LastSeen     time.Time `json:"last_seen"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:           u.ID,
		Name:         u.Name,
		Role:         u.Role,
		ProfilePhoto: u.ProfilePhoto,
		IsOnline:     u.IsOnline,
		LastSeen:     u.LastSeen,
	}
}
