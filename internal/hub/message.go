package hub

import "encoding/json"

// Message type tags. Values are part of the wire protocol; keep them stable.
const (
	// client -> hub
	TypeAuth                   = "auth"
	TypeTyping                 = "typing"
	TypeChatMessage            = "chat_message"
	TypeInitiateCall           = "initiate_call"
	TypeAcceptCall             = "accept_call"
	TypeRejectCall             = "reject_call"
	TypeEndCall                = "end_call"
	TypeWebRTCOffer            = "webrtc_offer"
	TypeWebRTCAnswer           = "webrtc_answer"
	TypeWebRTCICECandidate     = "webrtc_ice_candidate"
	TypeStartGroupCall         = "start_group_call"
	TypeJoinGroupCall          = "join_group_call"
	TypeLeaveGroupCall         = "leave_group_call"
	TypeRejectGroupCall        = "reject_group_call"
	TypeGroupCallResyncRequest = "group_call_resync_request"
	TypeGroupWebRTCOffer       = "group_webrtc_offer"
	TypeGroupWebRTCAnswer      = "group_webrtc_answer"
	TypeGroupWebRTCICE         = "group_webrtc_ice_candidate"

	// hub -> client
	TypePresence              = "presence"
	TypeNewMessage            = "new_message"
	TypeIncomingCall          = "incoming_call"
	TypeIncomingGroupCall     = "incoming_group_call"
	TypeCallAccepted          = "call_accepted"
	TypeCallRejected          = "call_rejected"
	TypeCallMissed            = "call_missed"
	TypeCallFailed            = "call_failed"
	TypeCallEnded             = "call_ended"
	TypeSessionTerminated     = "session_terminated"
	TypeGroupCallStarted      = "group_call_started"
	TypeGroupCallParticipants = "group_call_participants_update"
	TypeGroupCallResync       = "group_call_resync"
	TypeGroupCallPeerJoined   = "group_call_peer_joined"
	TypeGroupCallRejected     = "group_call_rejected"
	TypeError                 = "error"
)

// Envelope is the tagged wire message exchanged with clients. It is transient:
// the hub never queues or persists envelopes.
type Envelope struct {
	Type string `json:"type"`
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	UserID string `json:"user_id,omitempty"`
	Token  string `json:"token,omitempty"`

	CallID         string `json:"call_id,omitempty"`
	RoomID         string `json:"room_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	CallType       string `json:"call_type,omitempty"`
	CallerName     string `json:"caller_name,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Status         string `json:"status,omitempty"`
	IsTyping       bool   `json:"is_typing,omitempty"`
	Content        string `json:"content,omitempty"`
	MessageID      string `json:"message_id,omitempty"`

	Participants []string `json:"participants,omitempty"`

	// Data carries opaque payloads forwarded verbatim, such as SDP offers
	// and ICE candidates. The hub never inspects it.
	Data json.RawMessage `json:"data,omitempty"`
}

// Participant is a participant entry with a resolved display name, sent in
// group call resync packets.
type Participant struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

func encodeEnvelope(env Envelope) []byte {
	payload, _ := json.Marshal(env)
	return payload
}

func mustMarshal(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
