package listener

import (
	"context"
	"errors"
	"time"

	"github.com/fekuna/omnipos-commerce-service/internal/auth"
	"github.com/fekuna/omnipos-commerce-service/internal/errs"
	"github.com/fekuna/omnipos-commerce-service/internal/mutation"
	"github.com/fekuna/omnipos-commerce-service/internal/mutation/dto"
	"github.com/fekuna/omnipos-commerce-service/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// MutationListener feeds mutation envelopes from Kafka into the orchestrator.
type MutationListener struct {
	consumer messageReader
	uc       mutation.UseCase
	logger   logger.ZapLogger
	backoff  time.Duration
}

func NewMutationListener(consumer messageReader, uc mutation.UseCase, logger logger.ZapLogger) *MutationListener {
	return &MutationListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
		backoff:  time.Second,
	}
}

func (l *MutationListener) Start(ctx context.Context) {
	l.logger.Info("Starting mutation Kafka listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping mutation Kafka listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				// Don't log context canceled error as error
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(l.backoff)
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

func (l *MutationListener) processMessage(ctx context.Context, value []byte) {
	req, err := dto.DecodeEnvelope(value)
	if err != nil {
		l.logger.Error("Failed to decode mutation envelope", zap.Error(err))
		return
	}
	if req.OwnerID == "" {
		l.logger.Warn("Dropping mutation without owner", zap.String("mutation_id", req.ID))
		return
	}

	m, err := l.uc.Submit(auth.WithOwnerID(ctx, req.OwnerID), req)
	fields := []zap.Field{
		zap.String("mutation_id", m.ID),
		zap.String("owner_id", req.OwnerID),
		zap.String("kind", string(req.Kind)),
		zap.String("op", string(req.Op)),
		zap.String("state", string(m.State)),
	}
	switch {
	case err == nil:
		l.logger.Info("Applied mutation", fields...)
	case errors.Is(err, errs.ErrIntegrity):
		l.logger.Error("Mutation broke an invariant", append(fields, zap.Error(err))...)
	default:
		// refusals are answered to the producer, not retried here
		l.logger.Warn("Mutation not applied", append(fields, zap.Error(err))...)
	}
}
