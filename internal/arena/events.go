package arena

// Event names broadcast through the notification hub. Delivery is
// best-effort: a client that missed one reconciles by re-fetching the
// session by ID.
const (
	EventSessionStart = "session_start"
	EventMovePlayed   = "move_played"
	EventSessionEnd   = "session_end"
	EventDrawOffered  = "draw_offered"
	EventDrawDeclined = "draw_declined"
	EventQueueExpired = "queue_expired"
)
