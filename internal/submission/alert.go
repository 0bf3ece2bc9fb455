package submission

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"clinic-forms/internal/notification"
)

// SNSService is the part of the SNS client the alerter calls.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Alerter notifies on-call staff about urgent submissions.
type Alerter interface {
	Alert(ctx context.Context, msg *notification.Message) error
}

// SMSAlerter texts a short summary to each configured phone.
type SMSAlerter struct {
	client   SNSService
	phones   []string
	senderID string
}

func NewSMSAlerter(client SNSService, phones []string, senderID string) *SMSAlerter {
	return &SMSAlerter{client: client, phones: phones, senderID: senderID}
}

func (a *SMSAlerter) Alert(ctx context.Context, msg *notification.Message) error {
	text := msg.Subject
	if msg.Reference != "" {
		text += " Ref " + msg.Reference
	}
	if len(text) > 160 {
		text = text[:157] + "..."
	}

	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if a.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(a.senderID)}
	}

	var errs []error
	for _, phone := range a.phones {
		_, err := a.client.Publish(ctx, &sns.PublishInput{
			PhoneNumber:       aws.String(phone),
			Message:           aws.String(text),
			MessageAttributes: attrs,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("sms to %s: %w", phone, err))
		}
	}
	return errors.Join(errs...)
}
