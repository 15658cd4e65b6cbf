package mq

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"fuzzshim/config"
)

const poolSize = 4

type RabbitMQ interface {
	GetChannel() *amqp.Channel
}

type rabbitMQImpl struct {
	logger      *zap.Logger
	rabbitmqURL string
	context     context.Context
	connections []*pooledConn
	mu          sync.Mutex
}

type pooledConn struct {
	conn      *amqp.Connection
	closeChan chan *amqp.Error
	logger    *zap.Logger

	closed bool
	mu     sync.Mutex
}

type RabbitMQParams struct {
	fx.In

	Config    *config.AppConfig
	Logger    *zap.Logger
	Lifecycle fx.Lifecycle
}

// NewRabbitMQ builds a pooled RabbitMQ client. Optional: returns nil when
// no RABBITMQ_URL is configured, and seed events are then not published.
func NewRabbitMQ(p RabbitMQParams) RabbitMQ {
	if p.Config.RabbitMQURL == "" {
		p.Logger.Info("no rabbitmq configured, seed events will not be published")
		return nil
	}

	mqCtx, cancel := context.WithCancel(context.Background())

	svc := &rabbitMQImpl{
		logger:      p.Logger,
		rabbitmqURL: p.Config.RabbitMQURL,
		context:     mqCtx,
		connections: make([]*pooledConn, 0, poolSize),
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			svc.logger.Debug("initializing rabbitmq connection pool", zap.Int("pool_size", poolSize))
			for range poolSize {
				conn, err := svc.dial()
				if err != nil {
					svc.logger.Error("failed to create initial rabbitmq connection", zap.Error(err))
					return err
				}
				svc.mu.Lock()
				svc.connections = append(svc.connections, conn)
				svc.mu.Unlock()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
	return svc
}

func (r *rabbitMQImpl) GetChannel() *amqp.Channel {
	conn, err := r.activeConnection()
	if err != nil {
		r.logger.Error("failed to get rabbitmq connection", zap.Error(err))
		return nil
	}

	ch, err := conn.conn.Channel()
	if err != nil {
		r.logger.Error("failed to open rabbitmq channel", zap.Error(err))
		return nil
	}
	return ch
}

// activeConnection picks a random live connection, replenishing the pool
// when closed connections have thinned it out.
func (r *rabbitMQImpl) activeConnection() (*pooledConn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	live := r.connections[:0]
	for _, c := range r.connections {
		c.mu.Lock()
		if !c.closed {
			live = append(live, c)
		}
		c.mu.Unlock()
	}
	r.connections = live

	for len(r.connections) < poolSize {
		conn, err := r.dial()
		if err != nil {
			r.logger.Error("failed to refill rabbitmq pool", zap.Error(err))
			break
		}
		r.connections = append(r.connections, conn)
	}

	if len(r.connections) == 0 {
		return nil, errors.New("no active rabbitmq connections")
	}
	return r.connections[rand.Intn(len(r.connections))], nil
}

func (r *rabbitMQImpl) dial() (*pooledConn, error) {
	conn, err := amqp.Dial(r.rabbitmqURL)
	if err != nil {
		return nil, err
	}

	pc := &pooledConn{
		conn:      conn,
		closeChan: make(chan *amqp.Error),
		logger:    r.logger,
	}
	go pc.monitor(r.context)
	return pc, nil
}

// monitor marks the connection closed when the broker drops it.
func (c *pooledConn) monitor(ctx context.Context) {
	c.conn.NotifyClose(c.closeChan)

	select {
	case err := <-c.closeChan:
		c.logger.Error("rabbitmq connection closed", zap.Error(err))
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
	case <-ctx.Done():
	}

	c.conn.Close()
}
