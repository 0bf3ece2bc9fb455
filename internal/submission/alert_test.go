package submission

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"clinic-forms/internal/notification"
)

type MockSNSService struct {
	mock.Mock
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sns.PublishOutput), args.Error(1)
}

func TestSMSAlerter_Alert(t *testing.T) {
	client := new(MockSNSService)
	client.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.PhoneNumber) == "+923001111111" &&
			aws.ToString(in.Message) == "New Doctor Registration: Dr. Jane Roe (Cardiology) Ref DR-1" &&
			aws.ToString(in.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue) == "CLINIC"
	})).Return(&sns.PublishOutput{MessageId: aws.String("sms-1")}, nil).Once()
	client.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.PhoneNumber) == "+923002222222"
	})).Return(nil, errors.New("opted out")).Once()

	alerter := NewSMSAlerter(client, []string{"+923001111111", "+923002222222"}, "CLINIC")
	err := alerter.Alert(context.Background(), &notification.Message{
		Subject:   "New Doctor Registration: Dr. Jane Roe (Cardiology)",
		Reference: "DR-1",
	})

	assert.ErrorContains(t, err, "+923002222222")
	assert.ErrorContains(t, err, "opted out")
	client.AssertExpectations(t)
}

func TestSMSAlerter_Truncates(t *testing.T) {
	client := new(MockSNSService)
	client.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		msg := aws.ToString(in.Message)
		_, hasSender := in.MessageAttributes["AWS.SNS.SMS.SenderID"]
		return len(msg) == 160 && strings.HasSuffix(msg, "...") && !hasSender
	})).Return(&sns.PublishOutput{}, nil).Once()

	alerter := NewSMSAlerter(client, []string{"+923001111111"}, "")
	err := alerter.Alert(context.Background(), &notification.Message{Subject: strings.Repeat("x", 200)})

	assert.NoError(t, err)
	client.AssertExpectations(t)
}
