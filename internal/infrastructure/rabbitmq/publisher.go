package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/logger"
)

// channel は amqp.Channel のうち使用するメソッド
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialFunc はブローカーへ接続してチャネルを開く
type dialFunc func(url string) (channel, func() error, error)

func dialAMQP(url string) (channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq 接続に失敗: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq チャネル作成に失敗: %w", err)
	}
	return ch, conn.Close, nil
}

// SoldPublisher は seats.sold キューへ販売確定イベントを発行する
// 接続は初回発行時に確立し、失敗した場合は次回発行時に張り直す
type SoldPublisher struct {
	url   string
	queue string
	dial  dialFunc

	mu        sync.Mutex
	ch        channel
	closeConn func() error
}

// NewSoldPublisher は新しい SoldPublisher を作成する
func NewSoldPublisher(url, queue string) *SoldPublisher {
	return &SoldPublisher{url: url, queue: queue, dial: dialAMQP}
}

// PublishSold はイベントを永続メッセージとして発行する
func (p *SoldPublisher) PublishSold(ctx context.Context, event seat.SoldEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("イベントのエンコードに失敗: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureChannel(); err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    event.OrderRef,
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.resetLocked()
		return fmt.Errorf("イベント発行に失敗: %w", err)
	}
	return nil
}

func (p *SoldPublisher) ensureChannel() error {
	if p.ch != nil {
		return nil
	}
	ch, closeConn, err := p.dial(p.url)
	if err != nil {
		return err
	}
	// キューは永続化（ブローカー再起動後も残る）
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if closeConn != nil {
			_ = closeConn()
		}
		return fmt.Errorf("キュー宣言に失敗: %w", err)
	}
	p.ch = ch
	p.closeConn = closeConn
	logger.Info("rabbitmq に接続しました", zap.String("queue", p.queue))
	return nil
}

func (p *SoldPublisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.closeConn != nil {
		_ = p.closeConn()
	}
	p.ch = nil
	p.closeConn = nil
}

// Close は接続を閉じる
func (p *SoldPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
