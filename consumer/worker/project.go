package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/datatypes"

	"github.com/opencmp/cmp-orchestrator/entity"
	"github.com/opencmp/cmp-orchestrator/infra"
	"github.com/opencmp/cmp-orchestrator/infra/produce"
	"github.com/opencmp/cmp-orchestrator/reconcile"
	"github.com/opencmp/cmp-orchestrator/repository"
)

type ProjectConsumer struct {
	channel      *amqp.Channel
	infra        *infra.Infra
	repository   *repository.Repository
	store        *repository.ReconcileStore
	orchestrator *reconcile.Orchestrator
}

func NewProjectConsumer(channel *amqp.Channel, infraClient *infra.Infra, repo *repository.Repository, orchestrator *reconcile.Orchestrator) *ProjectConsumer {
	return &ProjectConsumer{
		channel:      channel,
		infra:        infraClient,
		repository:   repo,
		store:        repository.NewReconcileStore(repo),
		orchestrator: orchestrator,
	}
}

func (c *ProjectConsumer) Start(ctx context.Context) error {
	if err := c.startReconcileConsumer(ctx); err != nil {
		return fmt.Errorf("failed to start project reconcile consumer: %w", err)
	}
	if err := c.startDestroyConsumer(ctx); err != nil {
		return fmt.Errorf("failed to start project destroy consumer: %w", err)
	}

	return nil
}

func (c *ProjectConsumer) startReconcileConsumer(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		produce.ProjectReconcileQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register project reconcile consumer: %w", err)
	}

	c.infra.Logger.InfoWithContextf(ctx, "[Project Consumer] Started listening for reconcile jobs on queue: %s", produce.ProjectReconcileQueue)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.infra.Logger.InfoWithContextf(ctx, "[Project Consumer - Reconcile] Shutting down...")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.infra.Logger.WarningWithContextf(ctx, "[Project Consumer - Reconcile] Channel closed")
					return
				}
				c.handleReconcile(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *ProjectConsumer) startDestroyConsumer(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		produce.ProjectDestroyQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register project destroy consumer: %w", err)
	}

	c.infra.Logger.InfoWithContextf(ctx, "[Project Consumer] Started listening for destroy jobs on queue: %s", produce.ProjectDestroyQueue)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.infra.Logger.InfoWithContextf(ctx, "[Project Consumer - Destroy] Shutting down...")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.infra.Logger.WarningWithContextf(ctx, "[Project Consumer - Destroy] Channel closed")
					return
				}
				c.handleDestroy(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *ProjectConsumer) handleReconcile(ctx context.Context, msg amqp.Delivery) {
	var payload produce.ReconcileProjectMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Project Consumer - Reconcile] Failed to unmarshal message: %v", err)
		_ = msg.Nack(false, false)
		return
	}

	projectID, err := uuid.Parse(payload.ProjectID)
	if err != nil {
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Project Consumer - Reconcile] Invalid project ID: %v", err)
		_ = msg.Nack(false, false)
		return
	}

	maxRetries := 3
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = c.orchestrator.Run(ctx, projectID)
		if err == nil {
			c.infra.Logger.InfoWithContextf(ctx, "[Project Consumer - Reconcile] Reconciled project: %s", projectID)
			_ = msg.Ack(false)
			return
		}

		if errors.Is(err, reconcile.ErrLeaseHeld) {
			// Another run already covers this project; coalesce.
			c.infra.Logger.InfoWithContextf(ctx, "[Project Consumer - Reconcile] Lease held for project %s, coalescing", projectID)
			_ = msg.Ack(false)
			return
		}

		c.infra.Logger.ErrorWithContextf(ctx, err, "[Project Consumer - Reconcile] Attempt %d/%d failed for project %s: %v", attempt, maxRetries, projectID, err)

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
	}

	c.infra.Logger.ErrorWithContextf(ctx, err, "[Project Consumer - Reconcile] Failed after %d attempts, requeueing message", maxRetries)
	_ = msg.Nack(false, true)
}

func (c *ProjectConsumer) handleDestroy(ctx context.Context, msg amqp.Delivery) {
	var payload produce.DestroyProjectMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Project Consumer - Destroy] Failed to unmarshal message: %v", err)
		_ = msg.Nack(false, false)
		return
	}

	projectID, err := uuid.Parse(payload.ProjectID)
	if err != nil {
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Project Consumer - Destroy] Invalid project ID: %v", err)
		_ = msg.Nack(false, false)
		return
	}

	var userID *uuid.UUID
	if payload.UserID != "" {
		if id, err := uuid.Parse(payload.UserID); err == nil {
			userID = &id
		}
	}

	maxRetries := 3
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = c.executeDestroy(ctx, projectID, userID)
		if err == nil {
			c.infra.Logger.InfoWithContextf(ctx, "[Project Consumer - Destroy] Destroyed project: %s", projectID)
			_ = msg.Ack(false)
			return
		}

		c.infra.Logger.ErrorWithContextf(ctx, err, "[Project Consumer - Destroy] Attempt %d/%d failed for project %s: %v", attempt, maxRetries, projectID, err)

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
	}

	c.infra.Logger.ErrorWithContextf(ctx, err, "[Project Consumer - Destroy] Failed after %d attempts, requeueing message", maxRetries)
	_ = msg.Nack(false, true)
}

// executeDestroy tears down the project's stack, then marks every surviving
// row TERMINATED with identity cleared, all in one transaction.
func (c *ProjectConsumer) executeDestroy(ctx context.Context, projectID uuid.UUID, userID *uuid.UUID) error {
	if err := c.infra.Pulumi.Destroy(ctx, projectID.String()); err != nil {
		return fmt.Errorf("failed to destroy stack for project %s: %w", projectID, err)
	}

	resources, err := c.repository.ResourceRepo.ListByProject(projectID)
	if err != nil {
		return fmt.Errorf("failed to list resources for project %s: %w", projectID, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var updated []*entity.Resource
	var events []entity.AuditEvent

	for i := range resources {
		res := &resources[i]
		if res.State == entity.StateTerminated {
			continue
		}

		prior := res.State
		meta := entity.MetaFor(res)
		details := datatypes.JSONMap{
			"prior_state": string(prior),
			"new_state":   string(entity.StateTerminated),
		}
		if id := meta.NativeID(); id != "" {
			details["native_id"] = id
		}
		if ip := meta.PublicIP(); ip != "" {
			details["public_ip"] = ip
		}

		meta.ClearIdentity()
		delete(res.Meta, entity.MetaLastError)
		res.State = entity.StateTerminated
		res.UpdatedAt = now

		updated = append(updated, res)
		events = append(events, entity.AuditEvent{
			ID:         uuid.New(),
			UserID:     userID,
			ProjectID:  &projectID,
			Action:     entity.ActionDeprovisionSuccess,
			ObjectType: string(res.ResourceType),
			ObjectID:   res.ID.String(),
			Timestamp:  now,
			Details:    details,
		})
	}

	events = append(events, entity.AuditEvent{
		ID:         uuid.New(),
		UserID:     userID,
		ProjectID:  &projectID,
		Action:     entity.ActionProjectDestroyed,
		ObjectType: "project",
		ObjectID:   projectID.String(),
		Timestamp:  now,
		Details:    datatypes.JSONMap{"resources_terminated": len(updated)},
	})

	return c.store.Commit(updated, events)
}
