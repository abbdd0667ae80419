package worker

import (
	"context"
	"errors"
	"time"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/service/classification"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/queue/sqs"
)

// Receiver long-polls the completion queue.
type Receiver interface {
	Receive(ctx context.Context, opts sqs.ReceiveOptions) ([]models.CompletionMessage, error)
}

// BatchProcessor handles one received batch.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, msgs []models.CompletionMessage) classification.BatchResult
}

// CompletionPoller feeds OCR completion notifications to the classifier.
type CompletionPoller struct {
	receiver  Receiver
	processor BatchProcessor
	opts      sqs.ReceiveOptions
	logger    logger.Logger
	// errorBackoff is the pause after a failed receive.
	errorBackoff time.Duration
	done         chan struct{}
}

func NewCompletionPoller(receiver Receiver, processor BatchProcessor, opts sqs.ReceiveOptions, log logger.Logger) *CompletionPoller {
	return &CompletionPoller{
		receiver:     receiver,
		processor:    processor,
		opts:         opts,
		logger:       log,
		errorBackoff: 5 * time.Second,
		done:         make(chan struct{}),
	}
}

// Start polls in the background until ctx is cancelled.
func (p *CompletionPoller) Start(ctx context.Context) error {
	go func() {
		defer close(p.done)
		p.Run(ctx)
	}()
	return nil
}

// Wait blocks until a started poller has exited.
func (p *CompletionPoller) Wait() {
	<-p.done
}

// Run polls until ctx is cancelled. The in-flight batch is finished first.
func (p *CompletionPoller) Run(ctx context.Context) {
	p.logger.Info("Completion poller started",
		logger.Int("batchSize", int(p.opts.MaxMessages)),
		logger.Int("waitTimeSeconds", int(p.opts.WaitTimeSeconds)),
	)
	for {
		if ctx.Err() != nil {
			p.logger.Info("Completion poller stopped")
			return
		}

		msgs, err := p.receiver.Receive(ctx, p.opts)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				continue
			}
			p.logger.Error("Failed to receive messages", logger.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(p.errorBackoff):
			}
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		// 批次处理不随轮询取消而中断
		p.processor.ProcessBatch(context.WithoutCancel(ctx), msgs)
	}
}
