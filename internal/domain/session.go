package domain

import "time"

// ActivityType discriminates single-session classes from multi-session courses
type ActivityType string

const (
	ActivityTypeClass  ActivityType = "class"
	ActivityTypeCourse ActivityType = "course"
)

// IsValid checks if the type is a valid ActivityType
func (t ActivityType) IsValid() bool {
	switch t {
	case ActivityTypeClass, ActivityTypeCourse:
		return true
	}
	return false
}

// ActivityStatus represents the publication status of an activity
type ActivityStatus string

const (
	ActivityStatusDraft     ActivityStatus = "draft"
	ActivityStatusPublished ActivityStatus = "published"
	ActivityStatusArchived  ActivityStatus = "archived"
)

// Activity is a bookable class or course
type Activity struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Type           ActivityType   `json:"type"`
	Status         ActivityStatus `json:"status"`
	UnitPriceCents int64          `json:"unit_price_cents"`
	Currency       string         `json:"currency"`
	MaxCapacity    int            `json:"max_capacity"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// IsBookable checks if the activity accepts new bookings
func (a *Activity) IsBookable() bool {
	return a.Status == ActivityStatusPublished
}

// IsCourse checks if booking the activity enrolls all of its sessions
func (a *Activity) IsCourse() bool {
	return a.Type == ActivityTypeCourse
}

// SessionStatus represents the status of a scheduled session
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusCancelled SessionStatus = "cancelled"
	SessionStatusCompleted SessionStatus = "completed"
)

// IsValid checks if the status is a valid SessionStatus
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionStatusScheduled, SessionStatusCancelled, SessionStatusCompleted:
		return true
	}
	return false
}

// Session is a scheduled occurrence of an activity. AvailableSpots is nil
// until the first reservation touches it; nil means the full MaxCapacity of
// the parent activity is still open.
type Session struct {
	ID             string        `json:"id"`
	ActivityID     string        `json:"activity_id"`
	StartsAt       time.Time     `json:"starts_at"`
	EndsAt         time.Time     `json:"ends_at"`
	Status         SessionStatus `json:"status"`
	AvailableSpots *int          `json:"available_spots,omitempty"`
	MaxCapacity    int           `json:"max_capacity"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// IsBookable checks if the session can still receive reservations
func (s *Session) IsBookable() bool {
	return s.Status == SessionStatusScheduled
}

// SpotsLeft resolves the nullable availability to a concrete count
func (s *Session) SpotsLeft() int {
	if s.AvailableSpots != nil {
		return *s.AvailableSpots
	}
	return s.MaxCapacity
}

// HasCapacityFor checks if the session can seat the requested party
func (s *Session) HasCapacityFor(people int) bool {
	return s.SpotsLeft() >= people
}
