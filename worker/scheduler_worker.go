package worker

import (
	"context"
	"log"
	"time"

	"terracrm/models"
	"terracrm/pipeline"
)

const (
	pollInterval = 30 * time.Second
	pollBatch    = 50
	sendTimeout  = 20 * time.Second
)

// SchedulerWorker delivers durable delayed messages. Rows are polled from the
// database so scheduled sends survive restarts; a row whose conversation has
// left the open set is marked skipped instead of delivered.
type SchedulerWorker struct {
	Schedules     pipeline.ScheduleRepository
	Conversations pipeline.ConversationRepository
	Messages      pipeline.MessageRepository
	Sender        pipeline.Sender
	Logger        *log.Logger
}

func NewSchedulerWorker(schedules pipeline.ScheduleRepository, conversations pipeline.ConversationRepository, messages pipeline.MessageRepository, sender pipeline.Sender, logger *log.Logger) *SchedulerWorker {
	return &SchedulerWorker{
		Schedules:     schedules,
		Conversations: conversations,
		Messages:      messages,
		Sender:        sender,
		Logger:        logger,
	}
}

func (sw *SchedulerWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	sw.Logger.Println("Scheduler worker started")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.Logger.Println("Scheduler worker shutting down...")
			return
		case <-ticker.C:
			sw.processDue(ctx)
		}
	}
}

func (sw *SchedulerWorker) processDue(ctx context.Context) {
	due, err := sw.Schedules.DuePending(ctx, time.Now(), pollBatch)
	if err != nil {
		sw.Logger.Printf("Error fetching due scheduled messages: %v", err)
		return
	}

	for _, scheduled := range due {
		if err := sw.deliver(ctx, scheduled); err != nil {
			sw.Logger.Printf("Error delivering scheduled message %d: %v", scheduled.ID, err)
		}
	}
}

func (sw *SchedulerWorker) deliver(ctx context.Context, scheduled models.ScheduledMessage) error {
	conv, err := sw.Conversations.Get(ctx, scheduled.ConversationID)
	if err != nil {
		// Conversation gone; nothing left to deliver to.
		return sw.Schedules.SetStatus(ctx, scheduled.ID, models.ScheduledSkipped)
	}

	if !conv.IsOpen() {
		sw.Logger.Printf("Skipping scheduled message %d: conversation %d is %s", scheduled.ID, conv.ID, conv.Status)
		return sw.Schedules.SetStatus(ctx, scheduled.ID, models.ScheduledSkipped)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	deliveryStatus := models.DeliverySent
	if err := sw.Sender.SendText(sendCtx, conv.Channel, conv.ExternalContactID, scheduled.Content); err != nil {
		sw.Logger.Printf("Failed to send scheduled message %d: %v", scheduled.ID, err)
		deliveryStatus = models.DeliveryFailed
	}

	msg := models.Message{
		ConversationID: conv.ID,
		SenderKind:     models.SenderAI,
		SenderName:     "Assistente",
		Content:        scheduled.Content,
		ContentType:    "text",
		DeliveryStatus: deliveryStatus,
		SentAt:         time.Now(),
	}
	if err := sw.Messages.Create(ctx, &msg); err != nil {
		sw.Logger.Printf("Failed to record scheduled message %d: %v", scheduled.ID, err)
	}

	// The row is consumed either way; a failed provider call is not retried.
	return sw.Schedules.SetStatus(ctx, scheduled.ID, models.ScheduledSent)
}
