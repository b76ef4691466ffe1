package store

// Channel kinds.
const (
	ChannelGroup  = "group"
	ChannelDirect = "direct"
)

// User is a directory entry.
type User struct {
	ID          string
	DisplayName string
	AvatarURL   string
	LastSeenAt  int64 // unix ms, 0 if never recorded
}

// Channel is a container for messages: a named group or an unnamed
// two-party direct channel.
type Channel struct {
	ID        string
	Kind      string
	Name      string
	CreatedAt int64
}

// Membership links a user to a channel. Existence implies read/write access.
type Membership struct {
	ChannelID string
	UserID    string
	JoinedAt  int64
}

// Attachment describes an optional file carried by a message.
type Attachment struct {
	FileURL  string
	FileName string
	FileType string
	FileSize int64
}

// Message is one chat utterance. ParentMessageID is empty for top-level
// messages and set for thread replies. Messages are never mutated after
// creation.
type Message struct {
	ID              string
	ChannelID       string
	SenderID        string
	Content         string
	ParentMessageID string
	Attachment      *Attachment
	CreatedAt       int64
}
