package models

import "time"

// Flat push payload keys shared with the relay.
const (
	PushKeyUserID   = "userId"
	PushKeyName     = "name"
	PushKeyFCMToken = "fcmToken"
	PushKeyMessage  = "message"
)

type PushToken string

// NotificationRequest is the decoded form of an inbound push payload. UserID
// is the counterpart that sent the message.
type NotificationRequest struct {
	UserID  string `json:"userId"`
	Name    string `json:"name"`
	Token   string `json:"fcmToken"`
	Message string `json:"message"`
}

func NotificationRequestFromData(data map[string]string) NotificationRequest {
	return NotificationRequest{
		UserID:  data[PushKeyUserID],
		Name:    data[PushKeyName],
		Token:   data[PushKeyFCMToken],
		Message: data[PushKeyMessage],
	}
}

func (r NotificationRequest) Data() map[string]string {
	return map[string]string{
		PushKeyUserID:   r.UserID,
		PushKeyName:     r.Name,
		PushKeyFCMToken: r.Token,
		PushKeyMessage:  r.Message,
	}
}

type NotificationImportance int

const (
	ImportanceLow     NotificationImportance = 2
	ImportanceDefault NotificationImportance = 3
	ImportanceHigh    NotificationImportance = 4
)

type NotificationChannel struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Importance  NotificationImportance `json:"importance"`
}

// TapAction is the deep link opened when a notification is tapped.
type TapAction struct {
	Route           string `json:"route"`
	CounterpartID   string `json:"counterpart_id"`
	CounterpartName string `json:"counterpart_name"`
	CounterpartFCM  string `json:"counterpart_fcm_token,omitempty"`
	ClearTask       bool   `json:"clear_task"`
}

type Notification struct {
	ID         string                 `json:"id"`
	ChannelID  string                 `json:"channel_id"`
	Title      string                 `json:"title"`
	Body       string                 `json:"body"`
	BigText    string                 `json:"big_text"`
	Priority   NotificationImportance `json:"priority"`
	AutoCancel bool                   `json:"auto_cancel"`
	Tap        TapAction              `json:"tap"`
	PostedAt   time.Time              `json:"posted_at"`
}
