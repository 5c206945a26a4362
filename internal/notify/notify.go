// Package notify fans out notifications across channels according to
// per-user preferences: confidence threshold (signals only), quiet
// hours (bypassed by CRITICAL), and a per-priority channel list
// (grounded on original_source's NotificationService §6).
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Type enumerates the kinds of events that can raise a notification.
type Type string

const (
	TypeSignalGenerated Type = "signal_generated"
	TypeRiskWarning     Type = "risk_warning"
	TypeEmergencyExit   Type = "emergency_exit"
	TypePositionUpdate  Type = "position_update"
	TypeCampaignUpdate  Type = "campaign_update"
)

// Priority drives both quiet-hours bypass and channel selection.
type Priority string

const (
	PriorityInfo     Priority = "info"
	PriorityWarning  Priority = "warning"
	PriorityCritical Priority = "critical"
)

// Channel is a delivery surface.
type Channel string

const (
	ChannelToast Channel = "toast"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// QuietHours defines a per-user do-not-disturb window. Only the hour
// and minute of Start/End are used; a window that wraps midnight
// (Start > End) is handled by IsQuiet.
type QuietHours struct {
	Enabled bool
	Start   time.Time
	End     time.Time
}

// IsQuiet reports whether clock (only its time-of-day component
// matters) falls within the quiet window, handling midnight wraps.
func (q QuietHours) IsQuiet(clock time.Time) bool {
	if !q.Enabled {
		return false
	}
	start := minutesOfDay(q.Start)
	end := minutesOfDay(q.End)
	now := minutesOfDay(clock)
	if start <= end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// ChannelPreferences maps each priority to the channels it should
// reach.
type ChannelPreferences struct {
	InfoChannels     []Channel
	WarningChannels  []Channel
	CriticalChannels []Channel
}

// Preferences is one user's notification configuration.
type Preferences struct {
	UserID                 string
	EmailEnabled           bool
	EmailAddress           string
	SMSEnabled             bool
	SMSPhoneNumber         string
	PushEnabled            bool
	MinConfidenceThreshold int
	QuietHours             QuietHours
	ChannelPreferences     ChannelPreferences
}

// Notification is one fanned-out message.
type Notification struct {
	ID       string
	UserID   string
	Type     Type
	Priority Priority
	Title    string
	Message  string
	Metadata map[string]any
	SentAt   time.Time
}

// Sender delivers a notification over one channel. Concrete
// implementations (Twilio SMS, SMTP email, push gateway, WebSocket
// toast) each satisfy this.
type Sender interface {
	Send(ctx context.Context, channel Channel, prefs Preferences, n Notification) error
}

// PreferencesStore resolves a user's notification preferences.
type PreferencesStore interface {
	GetPreferences(ctx context.Context, userID string) (Preferences, error)
}

// Service filters and routes notifications to their configured
// channels.
type Service struct {
	logger      *zap.Logger
	preferences PreferencesStore
	senders     map[Channel]Sender
	now         func() time.Time
}

// NewService creates a Service. now defaults to time.Now; tests may
// override it to exercise quiet-hours boundaries deterministically.
func NewService(logger *zap.Logger, preferences PreferencesStore, senders map[Channel]Sender, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{logger: logger.Named("notify"), preferences: preferences, senders: senders, now: now}
}

// Send filters the notification against the user's preferences and,
// if it survives, delivers it on every channel configured for its
// priority. Returns nil, nil when filtered (not an error).
func (s *Service) Send(ctx context.Context, userID string, n Notification) (*Notification, error) {
	prefs, err := s.preferences.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	n.UserID = userID
	n.SentAt = s.now()

	if n.Type == TypeSignalGenerated {
		confidence, _ := n.Metadata["confidence"].(int)
		if confidence < prefs.MinConfidenceThreshold {
			s.logger.Debug("notification filtered by confidence threshold",
				zap.String("user_id", userID), zap.Int("confidence", confidence))
			return nil, nil
		}
	}

	if n.Priority != PriorityCritical && prefs.QuietHours.IsQuiet(s.now()) {
		s.logger.Debug("notification filtered by quiet hours", zap.String("user_id", userID))
		return nil, nil
	}

	for _, channel := range s.channelsForPriority(prefs, n.Priority) {
		sender, ok := s.senders[channel]
		if !ok {
			continue
		}
		if err := sender.Send(ctx, channel, prefs, n); err != nil {
			s.logger.Warn("notification delivery failed",
				zap.String("channel", string(channel)), zap.String("user_id", userID), zap.Error(err))
		}
	}
	return &n, nil
}

func (s *Service) channelsForPriority(prefs Preferences, priority Priority) []Channel {
	switch priority {
	case PriorityInfo:
		return prefs.ChannelPreferences.InfoChannels
	case PriorityWarning:
		return prefs.ChannelPreferences.WarningChannels
	case PriorityCritical:
		return prefs.ChannelPreferences.CriticalChannels
	}
	return nil
}
