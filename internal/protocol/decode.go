package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/studyhall/chatsync/internal/apperr"
)

// Decode parses one server push into its typed frame: *InboxData,
// *InboxUpdate, *Chat, *Seen or *TotalUnseen. Any frame that cannot be
// parsed, has an unknown type, or lacks its required fields is reported as
// apperr.MalformedFrame.
func Decode(raw []byte) (any, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, malformed(err)
	}

	switch head.Type {
	case TypeInboxData:
		var f InboxData
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, malformed(err)
		}
		return &f, nil
	case TypeInboxUpdate:
		var f InboxUpdate
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, malformed(err)
		}
		if f.Peer() == "" {
			return nil, malformed(errors.New("inbox_update without user"))
		}
		return &f, nil
	case TypeChat:
		var f Chat
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, malformed(err)
		}
		if f.Sender == "" {
			return nil, malformed(errors.New("chat without sender"))
		}
		return &f, nil
	case TypeSeen:
		var f Seen
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, malformed(err)
		}
		if f.MessageID <= 0 {
			return nil, malformed(errors.New("seen without message_id"))
		}
		return &f, nil
	case TypeTotalUnseenCount:
		var f struct {
			Count  *int   `json:"total_unseen_count"`
			Sender string `json:"sender"`
		}
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, malformed(err)
		}
		if f.Count == nil || *f.Count < 0 {
			return nil, malformed(errors.New("total_unseen_count missing or negative"))
		}
		return &TotalUnseen{Type: TypeTotalUnseenCount, Count: *f.Count, Sender: f.Sender}, nil
	case "":
		return nil, malformed(errors.New("frame without type"))
	default:
		return nil, malformed(fmt.Errorf("unknown frame type %q", head.Type))
	}
}

// Encode serializes an outgoing frame.
func Encode(frame any) ([]byte, error) {
	b, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return b, nil
}

func malformed(err error) error {
	return apperr.New(apperr.MalformedFrame, "decode frame", err)
}
