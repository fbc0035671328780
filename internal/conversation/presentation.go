package conversation

// Position places a message inside a run of consecutive messages from the
// same sender.
type Position string

const (
	Single Position = "single"
	First  Position = "first"
	Middle Position = "middle"
	Last   Position = "last"
)

// Group assigns a bubble position to every message.
func Group(msgs []Message) []Position {
	out := make([]Position, len(msgs))
	for i := range msgs {
		prevSame := i > 0 && msgs[i-1].Sender == msgs[i].Sender
		nextSame := i < len(msgs)-1 && msgs[i+1].Sender == msgs[i].Sender
		switch {
		case prevSame && nextSame:
			out[i] = Middle
		case prevSame:
			out[i] = Last
		case nextSame:
			out[i] = First
		default:
			out[i] = Single
		}
	}
	return out
}

// SeenIndicatorIndex returns the index of the most recent message sent by me
// if it has been seen, otherwise -1.
func SeenIndicatorIndex(msgs []Message, me string) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender != me {
			continue
		}
		if msgs[i].Status == Seen {
			return i
		}
		return -1
	}
	return -1
}
