package domain

import "github.com/google/uuid"

// Client to server realtime events
const (
	EventUserOnline         = "userOnline"
	EventInitiateCall       = "initiateCall"
	EventAcceptCall         = "acceptCall"
	EventSendIceCandidate   = "sendIceCandidate"
	EventCandidate          = "candidate" // legacy alias of sendIceCandidate, also the legacy server event
	EventOffer              = "offer"
	EventAnswer             = "answer"
	EventEndCall            = "endCall"
	EventArchiveCall        = "archiveCall"
	EventGetCallDetails     = "getCallDetails"
	EventSendMessage        = "sendMessage"
	EventMessageReceived    = "messageReceived"
	EventMessageSeen        = "messageSeen"
	EventGetAllChatMessages = "getAllChatMessages"
	EventCreateMeeting      = "createMeeting"
	EventJoinMeeting        = "joinMeeting"
	EventLeaveMeeting       = "leaveMeeting"
	EventEndMeeting         = "endMeeting"
)

// Server to client realtime events
const (
	EventAck               = "ack"
	EventOnlineUsers       = "onlineUsers"
	EventCallRequest       = "callRequest"
	EventCallAccepted      = "callAccepted"
	EventIceCandidate      = "iceCandidate"
	EventCallEnded         = "callEnded"
	EventCallMissed        = "callMissed"
	EventReceiveMessage    = "receiveMessage"
	EventMessageStatus     = "messageStatus"
	EventParticipantJoined = "participantJoined"
	EventParticipantLeft   = "participantLeft"
	EventMeetingEnded      = "meetingEnded"
)

// MessageStatusPayload tells the sender that a message was delivered or seen
type MessageStatusPayload struct {
	MessageID uuid.UUID `json:"messageId"`
	ChatID    uuid.UUID `json:"chatId"`
	Delivered bool      `json:"delivered"`
	Seen      bool      `json:"seen"`
}

// MeetingParticipantPayload is sent with participantJoined and participantLeft
type MeetingParticipantPayload struct {
	MeetingID uuid.UUID `json:"meetingId"`
	UserID    uuid.UUID `json:"userId"`
}

// MeetingEndedPayload is sent with meetingEnded
type MeetingEndedPayload struct {
	MeetingID uuid.UUID `json:"meetingId"`
}
