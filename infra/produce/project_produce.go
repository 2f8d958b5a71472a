package produce

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ProjectExchange = "cmp.exchange"

	ProjectReconcileQueue      = "cmp.project.reconcile"
	ProjectReconcileRoutingKey = "cmp.project.reconcile"

	ProjectDestroyQueue      = "cmp.project.destroy"
	ProjectDestroyRoutingKey = "cmp.project.destroy"
)

type ProjectService struct {
	channel *amqp.Channel
}

// ReconcileProjectMessage asks the consumer to run one reconcile pass for a
// project. Duplicate messages are harmless: the per-project lease coalesces
// them into one run.
type ReconcileProjectMessage struct {
	ProjectID string `json:"project_id"`
	Timestamp int64  `json:"timestamp"`
}

// DestroyProjectMessage asks the consumer to tear down every cloud resource
// in the project's stack.
type DestroyProjectMessage struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"timestamp"`
}

func InitProjectService(channel *amqp.Channel) *ProjectService {
	service := &ProjectService{
		channel: channel,
	}

	err := channel.ExchangeDeclare(
		ProjectExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		panic("Failed to declare project exchange: " + err.Error())
	}

	for queue, routingKey := range map[string]string{
		ProjectReconcileQueue: ProjectReconcileRoutingKey,
		ProjectDestroyQueue:   ProjectDestroyRoutingKey,
	} {
		_, err = channel.QueueDeclare(
			queue,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			panic("Failed to declare queue " + queue + ": " + err.Error())
		}

		err = channel.QueueBind(
			queue,
			routingKey,
			ProjectExchange,
			false,
			nil,
		)
		if err != nil {
			panic("Failed to bind queue " + queue + ": " + err.Error())
		}
	}

	return service
}

func (s *ProjectService) PublishReconcileProject(ctx context.Context, projectID string) error {
	msg := ReconcileProjectMessage{
		ProjectID: projectID,
		Timestamp: time.Now().Unix(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return s.channel.PublishWithContext(
		ctx,
		ProjectExchange,
		ProjectReconcileRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (s *ProjectService) PublishDestroyProject(ctx context.Context, projectID, userID string) error {
	msg := DestroyProjectMessage{
		ProjectID: projectID,
		UserID:    userID,
		Timestamp: time.Now().Unix(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return s.channel.PublishWithContext(
		ctx,
		ProjectExchange,
		ProjectDestroyRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
