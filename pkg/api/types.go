package api

// Role is a user's role on the platform
type Role string

const (
	RoleUser       Role = "USER"
	RoleSubscriber Role = "SUBSCRIBER"
	RoleStreamer   Role = "STREAMER"
	RoleModerator  Role = "MODERATOR"
	RoleAdmin      Role = "ADMIN"
)

// User is the signed-in account
type User struct {
	ID             int64   `json:"id"`
	Username       string  `json:"username"`
	Email          string  `json:"email"`
	DisplayName    string  `json:"displayName"`
	ProfilePicture *string `json:"profilePicture"`
	Role           Role    `json:"role"`
	CreatedAt      string  `json:"createdAt"`
	LastLogin      string  `json:"lastLogin"`
}

// Name returns the username, falling back to the display name
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return u.DisplayName
}

type loginRequest struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
}

// LoginResponse is the body returned by a successful login
type LoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NotificationUpdate changes the read flag of one notification
type NotificationUpdate struct {
	ID     int64 `json:"id"`
	IsRead bool  `json:"isRead"`
}

type notificationsBody[T any] struct {
	Notifications []T `json:"notifications"`
}
