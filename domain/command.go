package domain

// Command is an intent emitted by a connection session.
type Command interface {
	Issuer() ParticipantID
}

type SendMessageCommand struct {
	Sender   ParticipantID
	Receiver ParticipantID
	Body     Body
}

func (c SendMessageCommand) Issuer() ParticipantID { return c.Sender }

type TypingCommand struct {
	Sender   ParticipantID
	Receiver ParticipantID
}

func (c TypingCommand) Issuer() ParticipantID { return c.Sender }

type MarkReadCommand struct {
	MessageID string
	Reader    ParticipantID
}

func (c MarkReadCommand) Issuer() ParticipantID { return c.Reader }

type JoinRoomCommand struct {
	ParticipantA ParticipantID
	ParticipantB ParticipantID
}

func (c JoinRoomCommand) Issuer() ParticipantID { return c.ParticipantA }

type GetMessagesCommand struct {
	Self   ParticipantID
	Peer   ParticipantID
	Cursor *string
}

type SearchCommand struct {
	Self  ParticipantID
	Peer  ParticipantID
	Terms string
	Limit int
}
