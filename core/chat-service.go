package core

// ChatService is the conversational entry point consumed by transports
// that only deal in plain text replies, such as the Telegram channel.
type ChatService interface {
	GetResponse(userId string, question string) (string, error)
}
