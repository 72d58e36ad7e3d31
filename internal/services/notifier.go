package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// TaskTypeMessageNotification is the queue task for the new-message webhook.
const TaskTypeMessageNotification = "chat:message_notification"

const (
	notificationMaxRetry = 3
	notificationTimeout  = 10 * time.Second
	webhookTimeout       = 5 * time.Second
)

// NotificationQueue enqueues webhook notifications on Redis via asynq. Retry
// and backoff for failed deliveries are the queue's job, not the caller's.
type NotificationQueue struct {
	client *asynq.Client
}

func NewNotificationQueue(redisURL string) (*NotificationQueue, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("notifier: parse redis url: %w", err)
	}
	return &NotificationQueue{client: asynq.NewClient(opt)}, nil
}

func (q *NotificationQueue) EnqueueMessageNotification(
	ctx context.Context,
	notification MessageNotification,
) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("notifier: encode payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeMessageNotification, payload)
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(notificationMaxRetry),
		asynq.Timeout(notificationTimeout),
	)
	return err
}

func (q *NotificationQueue) Close() error {
	return q.client.Close()
}

// NotificationWorker consumes queued notifications and posts them to the
// configured webhook with a bounded per-attempt timeout.
type NotificationWorker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	webhookURL string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewNotificationWorker(redisURL, webhookURL string, logger *logrus.Logger) (*NotificationWorker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("notifier: parse redis url: %w", err)
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{"default": 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.WithError(err).WithField("task", task.Type()).Warn("notifier: task failed")
		}),
	})

	worker := &NotificationWorker{
		server:     server,
		mux:        asynq.NewServeMux(),
		webhookURL: strings.TrimSpace(webhookURL),
		httpClient: &http.Client{Timeout: webhookTimeout},
		logger:     logger,
	}
	worker.mux.HandleFunc(TaskTypeMessageNotification, worker.handleMessageNotification)
	return worker, nil
}

// Run blocks until ctx is canceled, then shuts the server down.
func (w *NotificationWorker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}

func (w *NotificationWorker) handleMessageNotification(ctx context.Context, task *asynq.Task) error {
	var notification MessageNotification
	if err := json.Unmarshal(task.Payload(), &notification); err != nil {
		// Malformed payloads never succeed; do not retry.
		return fmt.Errorf("notifier: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("notifier: encode webhook body: %v: %w", err, asynq.SkipRetry)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notifier: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notifier: post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notifier: webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	w.logger.WithFields(logrus.Fields{
		"message_id":   notification.MessageID,
		"recipient_id": notification.RecipientID,
	}).Debug("notifier: webhook delivered")
	return nil
}
