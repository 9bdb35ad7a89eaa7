package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"
)

// Handler обрабатывает одно сообщение очереди. Возврат ошибки
// возвращает сообщение в очередь на повторную доставку.
type Handler func(ctx context.Context, body []byte) error

// maxWorkers ограничение параллельной обработки сообщений очереди.
const maxWorkers = 10

// ConsumerMessage запускает потребителя очереди. Обработчик получает
// контекст потребителя: отмена контекста останавливает и прием новых
// сообщений, и начатую в обработчике работу.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queueName string, log *slog.Logger, handler Handler) error {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	sem := make(chan struct{}, maxWorkers)
	go func() {
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					return
				}
				sem <- struct{}{}
				go func(d amqp.Delivery) {
					defer func() { <-sem }()
					if err := handler(ctx, d.Body); err != nil {
						if nackErr := d.Nack(false, true); nackErr != nil {
							log.Error("failed to nack message",
								slog.String("queue", queueName), slog.Any("err", nackErr))
						}
						return
					}
					if ackErr := d.Ack(false); ackErr != nil {
						log.Error("failed to ack message",
							slog.String("queue", queueName), slog.Any("err", ackErr))
					}
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
