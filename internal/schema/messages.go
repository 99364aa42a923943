package schema

// Notification message types.
const (
	MessageAgentDigest   = "agent_digest"
	MessageBillReminder  = "bill_reminder"
	MessageSleepTip      = "sleep_tip"
	MessageGiftReminder  = "gift_reminder"
	MessageCoupleSummary = "couple_summary"
	MessageBriefing      = "morning_briefing"
)

// Notification change events published to live subscribers.
const (
	EventNotificationCreated   = "notification.created"
	EventNotificationRead      = "notification.read"
	EventNotificationDismissed = "notification.dismissed"
)
