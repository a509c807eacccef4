// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package privchan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/blinklabs-io/diploma/database/types"
	"github.com/blinklabs-io/diploma/document"
)

// amqpChannel is the subset of *amqp.Channel used here
type amqpChannel interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple bool, requeue bool) error
	Close() error
}

type Config struct {
	Logger   *slog.Logger
	Store    Store
	URL      string
	Exchange string
	// Queue defaults to the organisation name
	Queue string
	// Org is this node's organisation. It is the routing key of its queue
	// and the sender of outgoing messages.
	Org string
}

// AMQPChannel implements Channel on a RabbitMQ direct exchange
type AMQPChannel struct {
	config Config
	logger *slog.Logger
	conn   io.Closer
	ch     amqpChannel
	mu     sync.Mutex
}

var _ Channel = (*AMQPChannel)(nil)

// Dial connects to the broker and declares the exchange and this
// organisation's queue
func Dial(cfg Config) (*AMQPChannel, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declare(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	ret := newChannel(cfg, ch)
	ret.conn = conn
	ret.logger.Info(
		"connected to private channel",
		"exchange", cfg.Exchange,
		"queue", cfg.Queue,
		"org", cfg.Org,
	)
	return ret, nil
}

func declare(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.Org, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", cfg.Queue, err)
	}
	return nil
}

func (c *Config) setDefaults() error {
	if c.Org == "" {
		return errors.New("private channel: organisation must be set")
	}
	if c.Store == nil {
		return errors.New("private channel: store must be set")
	}
	if c.Exchange == "" {
		c.Exchange = DefaultExchange
	}
	if c.Queue == "" {
		c.Queue = c.Org
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return nil
}

func newChannel(cfg Config, ch amqpChannel) *AMQPChannel {
	return &AMQPChannel{
		config: cfg,
		logger: cfg.Logger.With("component", "privchan"),
		ch:     ch,
	}
}

// GetMessages pulls up to limit pending messages without acknowledging
// them. Data items are stored so RetrieveData can return them. Envelopes
// that cannot be decoded are rejected without requeue.
func (c *AMQPChannel) GetMessages(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultGetLimit
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var ret []Message
	for len(ret) < limit {
		if err := ctx.Err(); err != nil {
			return ret, err
		}
		delivery, ok, err := c.ch.Get(c.config.Queue, false)
		if err != nil {
			return ret, fmt.Errorf("get message: %w", err)
		}
		if !ok {
			break
		}
		msg, err := c.receive(ctx, delivery)
		if err != nil {
			c.logger.Warn(
				"dropping malformed message",
				"message_id", delivery.MessageId,
				"error", err,
			)
			if err := c.ch.Nack(delivery.DeliveryTag, false, false); err != nil {
				return ret, fmt.Errorf("reject message: %w", err)
			}
			continue
		}
		ret = append(ret, msg)
	}
	return ret, nil
}

func (c *AMQPChannel) receive(ctx context.Context, delivery amqp.Delivery) (Message, error) {
	var env envelope
	if err := json.Unmarshal(delivery.Body, &env); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.ID == "" || env.Type == "" {
		return Message{}, errors.New("envelope without id or type")
	}
	msg := Message{
		ID:          env.ID,
		Type:        env.Type,
		SenderOrg:   env.SenderOrg,
		SentAt:      env.SentAt,
		Refs:        make([]string, 0, len(env.Data)),
		deliveryTag: delivery.DeliveryTag,
	}
	for _, item := range env.Data {
		if item.ID == "" {
			return Message{}, errors.New("data item without id")
		}
		if err := c.config.Store.PutDocument(ctx, dataKeyPrefix+item.ID, item.Value); err != nil {
			return Message{}, fmt.Errorf("store data %s: %w", item.ID, err)
		}
		msg.Refs = append(msg.Refs, item.ID)
	}
	c.logger.Debug(
		"received message",
		"message_id", msg.ID,
		"type", msg.Type,
		"sender", msg.SenderOrg,
	)
	return msg, nil
}

// RetrieveData returns the data items for the given references, in order
func (c *AMQPChannel) RetrieveData(ctx context.Context, refs []string) ([]Data, error) {
	ret := make([]Data, 0, len(refs))
	for _, ref := range refs {
		value, err := c.config.Store.GetDocument(ctx, dataKeyPrefix+ref)
		if err != nil {
			if errors.Is(err, types.ErrBlobKeyNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrDataNotFound, ref)
			}
			return nil, fmt.Errorf("retrieve data %s: %w", ref, err)
		}
		ret = append(ret, Data{ID: ref, Value: value})
	}
	return ret, nil
}

// SendPrivate publishes payload to the queue of targetOrg as a persistent
// message
func (c *AMQPChannel) SendPrivate(ctx context.Context, payload Payload, targetOrg string) error {
	if targetOrg == "" {
		return ErrNoTargetOrg
	}
	value, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	env := envelope{
		ID:        uuid.NewString(),
		Type:      payload.Type,
		SenderOrg: c.config.Org,
		SentAt:    time.Now().UTC(),
		Data: []dataItem{
			{ID: uuid.NewString(), Value: value},
		},
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	err = c.ch.PublishWithContext(
		ctx,
		c.config.Exchange,
		targetOrg,
		false,
		false,
		amqp.Publishing{
			ContentType:  contentTypeJSON,
			DeliveryMode: amqp.Persistent,
			MessageId:    env.ID,
			Timestamp:    env.SentAt,
			Type:         env.Type,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", targetOrg, err)
	}
	c.logger.Debug(
		"sent private message",
		"message_id", env.ID,
		"type", env.Type,
		"target", targetOrg,
	)
	return nil
}

// UploadBlob stores data under its content id, so repeated uploads of the
// same bytes share one blob
func (c *AMQPChannel) UploadBlob(ctx context.Context, data []byte, metadata BlobMetadata) (BlobRef, error) {
	return uploadBlob(ctx, c.config.Store, data, metadata)
}

func uploadBlob(ctx context.Context, store Store, data []byte, metadata BlobMetadata) (BlobRef, error) {
	cid, err := document.ContentID(data)
	if err != nil {
		return BlobRef{}, err
	}
	if err := store.PutDocument(ctx, cid, data); err != nil {
		return BlobRef{}, fmt.Errorf("store blob %s: %w", cid, err)
	}
	return BlobRef{
		ID:          cid,
		Hash:        document.Hash(data),
		Name:        metadata.Name,
		ContentType: metadata.ContentType,
		Size:        len(data),
	}, nil
}

// Ack acknowledges a message returned by GetMessages
func (c *AMQPChannel) Ack(_ context.Context, msg Message) error {
	if msg.deliveryTag == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, msg.ID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ch.Ack(msg.deliveryTag, false); err != nil {
		return fmt.Errorf("ack message %s: %w", msg.ID, err)
	}
	return nil
}

func (c *AMQPChannel) Close() error {
	err := c.ch.Close()
	if c.conn != nil {
		err = errors.Join(err, c.conn.Close())
	}
	return err
}
