package event

import "time"

// Event names used by the chat client. Names follow "domain:action".
const (
	AuthLoginSuccess = "auth:login_success"
	AuthLogout       = "auth:logout"
	RoomSelected     = "room:selected"
	RoomJoined       = "room:joined"
	RoomLeft         = "room:left"
	MessageReceived  = "message:received"
	ProfileUpdated   = "profile:updated"
	SettingsChanged  = "settings:changed"
	SyncComplete     = "sync:complete"
	SyncError        = "sync:error"
)

// Login is the payload of auth:login_success.
type Login struct {
	UserID   string
	DeviceID string
}

// Logout is the payload of auth:logout.
type Logout struct {
	UserID string
	Reason string
}

// RoomSelection is the payload of room:selected.
type RoomSelection struct {
	RoomID string
}

// Membership is the payload of room:joined and room:left.
type Membership struct {
	RoomID string
	Name   string
	UserID string
}

// Message is the payload of message:received.
type Message struct {
	RoomID    string
	EventID   string
	Sender    string
	Body      string
	Timestamp time.Time
}

// Profile is the payload of profile:updated.
type Profile struct {
	UserID      string
	DisplayName string
	AvatarURL   string
}

// Settings is the payload of settings:changed. Values holds the new
// configuration, typically a *config.Config.
type Settings struct {
	Source string
	Values any
}

// SyncStatus is the payload of sync:complete.
type SyncStatus struct {
	NextBatch string
	Rooms     int
}

// SyncFailure is the payload of sync:error.
type SyncFailure struct {
	Err       error
	Retryable bool
}

var (
	LoginTopic    = NewTopic[Login](AuthLoginSuccess)
	LogoutTopic   = NewTopic[Logout](AuthLogout)
	SelectTopic   = NewTopic[RoomSelection](RoomSelected)
	JoinTopic     = NewTopic[Membership](RoomJoined)
	LeaveTopic    = NewTopic[Membership](RoomLeft)
	MessageTopic  = NewTopic[Message](MessageReceived)
	ProfileTopic  = NewTopic[Profile](ProfileUpdated)
	SettingsTopic = NewTopic[Settings](SettingsChanged)
	SyncTopic     = NewTopic[SyncStatus](SyncComplete)
	SyncFailTopic = NewTopic[SyncFailure](SyncError)
)

// Catalog returns every event name above in sorted order.
func Catalog() []string {
	return []string{
		AuthLoginSuccess,
		AuthLogout,
		MessageReceived,
		ProfileUpdated,
		RoomJoined,
		RoomLeft,
		RoomSelected,
		SettingsChanged,
		SyncComplete,
		SyncError,
	}
}
