package advisory

import "time"

// refreshRequest is the body of POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse is the token pair returned by login and refresh.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

// Credentials is the body of POST /auth/login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is the response of POST /auth/login.
type LoginResult struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    int     `json:"expires_in,omitempty"`
	User         Profile `json:"user"`
}

// Profile is a user profile as returned by the backend.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// Advisory is a scheduled advisory session.
type Advisory struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subject_id"`
	ProfessorID string    `json:"professor_id"`
	VenueID     string    `json:"venue_id"`
	Topic       string    `json:"topic"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Status      string    `json:"status"` // scheduled | completed | cancelled
}

// AdvisoryRequest is a student's request for an advisory session.
type AdvisoryRequest struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	SubjectID string    `json:"subject_id"`
	Topic     string    `json:"topic"`
	Status    string    `json:"status"` // pending | approved | rejected
	CreatedAt time.Time `json:"created_at"`
}

// Invitation invites a student to an existing advisory session.
type Invitation struct {
	ID         string `json:"id"`
	AdvisoryID string `json:"advisory_id"`
	StudentID  string `json:"student_id"`
	Status     string `json:"status"` // pending | accepted | declined
}

// Venue is a physical or virtual meeting place.
type Venue struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Capacity int    `json:"capacity"`
}

// Subject is an academic subject advisories are held for.
type Subject struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// AttendanceRecord marks a student's attendance at a session.
type AttendanceRecord struct {
	ID         string    `json:"id"`
	AdvisoryID string    `json:"advisory_id"`
	StudentID  string    `json:"student_id"`
	Present    bool      `json:"present"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Notification is a user-facing notification.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// AdminStats is the platform summary shown on the admin dashboard.
type AdminStats struct {
	TotalUsers       int `json:"total_users"`
	TotalAdvisories  int `json:"total_advisories"`
	PendingRequests  int `json:"pending_requests"`
	SessionsThisWeek int `json:"sessions_this_week"`
	ActiveProfessors int `json:"active_professors"`
	RegisteredVenues int `json:"registered_venues"`
}
