package transport

import (
	"encoding/json"
	"fmt"

	"github.com/koopa0/system-design/14-chess-session/internal/rules"
	"github.com/koopa0/system-design/14-chess-session/internal/session"
	apperrors "github.com/koopa0/system-design/14-chess-session/pkg/errors"
)

// 客戶端送來的事件名稱；joinRoom / move 是舊版客戶端使用的別名
const (
	InboundJoinIntent = "joinIntent"
	InboundJoinRoom   = "joinRoom"
	InboundSubmitMove = "submitMove"
	InboundMove       = "move"
)

// InboundKind 解碼後的訊息種類
type InboundKind int

const (
	KindUnknown InboundKind = iota
	KindJoin
	KindMove
)

// Envelope 雙向共用的訊息外殼
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound 解碼後的客戶端訊息
type Inbound struct {
	Kind InboundKind
	Join session.JoinRequest
	Move session.MoveRequest
}

type joinPayload struct {
	SessionID string       `json:"sessionId"`
	RoomID    string       `json:"roomId"`
	Role      session.Role `json:"role"`
	As        session.Role `json:"as"`
}

type movePayload struct {
	SessionID string `json:"sessionId"`
	RoomID    string `json:"roomId"`
	rules.Move
}

var (
	// ErrMalformedEnvelope 無法解析的訊息外殼
	ErrMalformedEnvelope = apperrors.New(apperrors.ErrCodeInvalidInput, "malformed envelope")
	// ErrUnknownEvent 不認得的事件
	ErrUnknownEvent = apperrors.New(apperrors.ErrCodeInvalidInput, "unknown event")
	// ErrMalformedPayload 事件內容格式錯誤
	ErrMalformedPayload = apperrors.New(apperrors.ErrCodeInvalidInput, "malformed payload")
)

// Decode 解析一則客戶端訊息
//
// 內容錯誤時仍回傳已辨識的 Kind，讓呼叫方決定如何回應。
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Inbound{}, apperrors.Wrap(err, ErrMalformedEnvelope.Code, ErrMalformedEnvelope.Message)
	}

	switch env.Event {
	case InboundJoinIntent, InboundJoinRoom:
		in := Inbound{Kind: KindJoin}
		var p joinPayload
		if len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, &p); err != nil {
				return in, apperrors.Wrap(err, ErrMalformedPayload.Code, ErrMalformedPayload.Message)
			}
		}
		in.Join = session.JoinRequest{
			SessionID: firstNonEmpty(p.SessionID, p.RoomID),
			Role:      session.Role(firstNonEmpty(string(p.Role), string(p.As))),
		}
		return in, nil

	case InboundSubmitMove, InboundMove:
		in := Inbound{Kind: KindMove}
		var p movePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return in, apperrors.Wrap(err, ErrMalformedPayload.Code, ErrMalformedPayload.Message)
		}
		in.Move = session.MoveRequest{SessionID: firstNonEmpty(p.SessionID, p.RoomID), Move: p.Move}
		if in.Move.From == "" || in.Move.To == "" {
			return in, ErrMalformedPayload.WithDetails("missing from/to")
		}
		return in, nil

	default:
		return Inbound{}, ErrUnknownEvent.WithDetails(env.Event)
	}
}

// Encode 序列化送往客戶端的事件
func Encode(evt session.Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.Type, err)
	}
	return data, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
