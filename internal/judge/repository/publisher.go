package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"codejudge/internal/common/mq"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
)

// FirstAcceptPublisher delivers the first-accept signal downstream.
type FirstAcceptPublisher interface {
	PublishFirstAccept(ctx context.Context, event model.FirstAcceptEvent) error
}

// MQFirstAcceptPublisher publishes first-accept events to a message queue.
// Delivery is at-least-once; the message id lets consumers drop duplicates.
type MQFirstAcceptPublisher struct {
	producer mq.Producer
	topic    string
}

func NewMQFirstAcceptPublisher(producer mq.Producer, topic string) *MQFirstAcceptPublisher {
	return &MQFirstAcceptPublisher{producer: producer, topic: topic}
}

func (p *MQFirstAcceptPublisher) PublishFirstAccept(ctx context.Context, event model.FirstAcceptEvent) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("first accept publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("first accept topic is required")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal first accept event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = FirstAcceptMessageID(event.UserID, event.ProblemID)
	message.Key = strconv.FormatInt(event.UserID, 10)
	message.SetHeader("event", "first_accept")
	message.SetHeader("submission_id", event.SubmissionID)
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.PublishFailed, "publish first accept event failed")
	}
	return nil
}

// FirstAcceptMessageID is stable per (user, problem) so redeliveries carry the same id.
func FirstAcceptMessageID(userID, problemID int64) string {
	return "first-accept:" + strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(problemID, 10)
}
