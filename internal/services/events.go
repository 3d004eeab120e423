package services

// Типы событий, которые уходят в WebSocket
const (
	EventNotificationCreated = "notification.created"
	EventMessageCreated      = "message.created"
	EventConversationUpdated = "conversation.updated"
	EventSubscriptionChanged = "subscription.changed"
)

// EventPublisher - реалтайм доставка событий аккаунту (ws.WebSocketManager)
type EventPublisher interface {
	PublishToUser(userID, eventType string, data any)
}

type noopPublisher struct{}

func (noopPublisher) PublishToUser(string, string, any) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}
