package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcall-backend/internal/domain"
	"chatcall-backend/pkg/push"
)

// MockSender is a mock implementation of Sender
type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendToUser(ctx context.Context, userID uuid.UUID, kind string, n *push.Notification) (*push.SendResult, error) {
	args := m.Called(ctx, userID, kind, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.SendResult), args.Error(1)
}

func newCall(callType domain.CallType) *domain.Call {
	return &domain.Call{
		CallID:       uuid.New(),
		Participants: []uuid.UUID{uuid.New(), uuid.New()},
		CallType:     callType,
		Status:       domain.CallStatusInitiated,
	}
}

func TestNotifyIncomingCall(t *testing.T) {
	sender := new(MockSender)
	service := NewService(sender, 30*time.Second)
	call := newCall(domain.CallTypeVideo)
	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}

	var sent *push.Notification

	// Setup expectations
	sender.On("SendToUser", mock.Anything, call.CalleeID(), KindIncomingCall, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(3).(*push.Notification) }).
		Return(&push.SendResult{SuccessCount: 1}, nil)

	// Execute
	err := service.NotifyIncomingCall(context.Background(), call, offer)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, "Incoming Call", sent.Title)
	assert.Equal(t, "You have an incoming video call", sent.Body)
	assert.Equal(t, call.CallID.String(), sent.Data["callId"])
	assert.Equal(t, call.CallerID().String(), sent.Data["callerId"])
	assert.Equal(t, "video", sent.Data["callType"])
	assert.Equal(t, push.PriorityHigh, sent.Priority)
	assert.Equal(t, 30*time.Second, sent.TTL)

	var decoded webrtc.SessionDescription
	require.NoError(t, json.Unmarshal([]byte(sent.Data["offer"]), &decoded))
	assert.Equal(t, webrtc.SDPTypeOffer, decoded.Type)
	assert.Equal(t, offer.SDP, decoded.SDP)
}

func TestNotifyIncomingCall_SendFailure(t *testing.T) {
	sender := new(MockSender)
	service := NewService(sender, 30*time.Second)
	call := newCall(domain.CallTypeAudio)

	sender.On("SendToUser", mock.Anything, call.CalleeID(), KindIncomingCall, mock.Anything).
		Return(nil, errors.New("no provider"))

	err := service.NotifyIncomingCall(context.Background(), call, nil)

	assert.Error(t, err)
}

func TestNotifyMissedCall(t *testing.T) {
	sender := new(MockSender)
	service := NewService(sender, 30*time.Second)
	call := newCall(domain.CallTypeAudio)

	// Setup expectations
	sender.On("SendToUser", mock.Anything, call.CalleeID(), KindMissedCall, mock.MatchedBy(func(n *push.Notification) bool {
		return n.Title == "Missed Call" &&
			n.Body == "Missed audio call" &&
			n.CollapseKey == "call-"+call.CallID.String() &&
			n.Data["callId"] == call.CallID.String()
	})).Return(&push.SendResult{SuccessCount: 1}, nil)

	// Execute
	err := service.NotifyMissedCall(context.Background(), call)

	// Assert
	require.NoError(t, err)
	sender.AssertExpectations(t)
}
