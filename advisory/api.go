package advisory

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// Login exchanges credentials for a token pair and the user's profile.
// Login never enters the refresh path: a 401 here means bad credentials,
// not an expired session.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var result LoginResult
	err := c.send(ctx, http.MethodPost, "/auth/login", nil, Credentials{
		Email:    email,
		Password: password,
	}, &result, "")
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Token converts a login result into the token pair to hand to storage.
func (r *LoginResult) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    "Bearer",
	}
	if r.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return tok
}

// Profile fetches the full profile of the authenticated user.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, "/users/profile", nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Advisories lists advisory sessions. An empty status lists all of the
// caller's sessions.
func (c *Client) Advisories(ctx context.Context, status string) ([]Advisory, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	var out []Advisory
	if err := c.do(ctx, http.MethodGet, "/advisories", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateAdvisory schedules a new advisory session (professor only).
func (c *Client) CreateAdvisory(ctx context.Context, a Advisory) (*Advisory, error) {
	var out Advisory
	if err := c.do(ctx, http.MethodPost, "/advisories", nil, a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAdvisoryStatus transitions an advisory session's status.
func (c *Client) UpdateAdvisoryStatus(ctx context.Context, id, status string) error {
	body := map[string]string{"status": status}
	return c.do(ctx, http.MethodPatch, "/advisories/"+id+"/status", nil, body, nil)
}

// Requests lists advisory requests visible to the caller.
func (c *Client) Requests(ctx context.Context, status string) ([]AdvisoryRequest, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	var out []AdvisoryRequest
	if err := c.do(ctx, http.MethodGet, "/requests", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateRequest submits a new advisory request (student only).
func (c *Client) CreateRequest(ctx context.Context, r AdvisoryRequest) (*AdvisoryRequest, error) {
	var out AdvisoryRequest
	if err := c.do(ctx, http.MethodPost, "/requests", nil, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Invitations lists the caller's advisory invitations.
func (c *Client) Invitations(ctx context.Context, status string) ([]Invitation, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	var out []Invitation
	if err := c.do(ctx, http.MethodGet, "/invitations", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RespondInvitation accepts or declines an invitation.
func (c *Client) RespondInvitation(ctx context.Context, id string, accept bool) error {
	status := "declined"
	if accept {
		status = "accepted"
	}
	body := map[string]string{"status": status}
	return c.do(ctx, http.MethodPatch, "/invitations/"+id, nil, body, nil)
}

// Venues lists registered venues.
func (c *Client) Venues(ctx context.Context) ([]Venue, error) {
	var out []Venue
	if err := c.do(ctx, http.MethodGet, "/venues", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Subjects lists academic subjects.
func (c *Client) Subjects(ctx context.Context) ([]Subject, error) {
	var out []Subject
	if err := c.do(ctx, http.MethodGet, "/subjects", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Users lists platform users (admin only).
func (c *Client) Users(ctx context.Context, role string) ([]Profile, error) {
	query := url.Values{}
	if role != "" {
		query.Set("role", role)
	}
	var out []Profile
	if err := c.do(ctx, http.MethodGet, "/users", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RecordAttendance records attendance for a session (professor only).
func (c *Client) RecordAttendance(ctx context.Context, advisoryID string, records []AttendanceRecord) error {
	return c.do(ctx, http.MethodPost, "/advisories/"+advisoryID+"/attendance", nil, records, nil)
}

// Attendance lists attendance records for a session.
func (c *Client) Attendance(ctx context.Context, advisoryID string) ([]AttendanceRecord, error) {
	var out []AttendanceRecord
	if err := c.do(ctx, http.MethodGet, "/advisories/"+advisoryID+"/attendance", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Notifications lists the caller's notifications.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	query := url.Values{}
	if unreadOnly {
		query.Set("unread", "true")
	}
	var out []Notification
	if err := c.do(ctx, http.MethodGet, "/notifications", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPatch, "/notifications/"+id+"/read", nil, nil, nil)
}

// AdminStats fetches the platform summary (admin only).
func (c *Client) AdminStats(ctx context.Context) (*AdminStats, error) {
	var out AdminStats
	if err := c.do(ctx, http.MethodGet, "/admin/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
