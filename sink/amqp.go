package sink

import (
  "context"
  "encoding/json"
  "errors"
  "fmt"
  "sync"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  amqp "github.com/rabbitmq/amqp091-go"
  "github.com/rs/zerolog/log"

  "github.com/robertof/go-scale-bridge/device"
)

const (
  DefaultReconnectDelay = 5 * time.Second
  DefaultPublishTimeout = 30 * time.Second

  mailboxSize = 64
)

var (
  ErrSinkClosed = errors.New("sink closed")

  publishedCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "scale_bridge_amqp_published_total",
    Help: "Measurements published to the AMQP broker.",
  })
  droppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "scale_bridge_amqp_dropped_total",
    Help: "Measurements dropped because the publisher was full or closed.",
  })
)

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(publishedCounter, droppedCounter)
}

type AMQPOptions struct {
  URL string
  Exchange string
  // RoutingKey is also the queue declared when Exchange is empty.
  RoutingKey string
  ReconnectDelay time.Duration
  PublishTimeout time.Duration
}

// Message is the JSON body published for every measurement.
type Message struct {
  Scale string `json:"scale"`
  UserID int `json:"user_id"`
  Timestamp time.Time `json:"timestamp"`
  Weight float32 `json:"weight"`
  Fat float32 `json:"fat,omitempty"`
  Water float32 `json:"water,omitempty"`
  Muscle float32 `json:"muscle,omitempty"`
  Bone float32 `json:"bone,omitempty"`
  VisceralFat float32 `json:"visceral_fat,omitempty"`
  LBM float32 `json:"lbm,omitempty"`
  BMI float32 `json:"bmi,omitempty"`
  BMR float32 `json:"bmr,omitempty"`
  AMR float32 `json:"amr,omitempty"`
  Impedance float32 `json:"impedance,omitempty"`
}

func NewMessage(scale string, m device.Measurement) Message {
  return Message{
    Scale: scale,
    UserID: m.UserID,
    Timestamp: m.Timestamp,
    Weight: m.Weight,
    Fat: m.Fat,
    Water: m.Water,
    Muscle: m.Muscle,
    Bone: m.Bone,
    VisceralFat: m.VisceralFat,
    LBM: m.LBM,
    BMI: m.BMI,
    BMR: m.BMR,
    AMR: m.AMR,
    Impedance: m.Impedance,
  }
}

// broker is the part of an AMQP connection the publisher needs.
type broker interface {
  Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
  Closed() <-chan struct{}
  Close() error
}

type amqpBroker struct {
  conn *amqp.Connection
  ch *amqp.Channel
  closed chan struct{}
}

func dialBroker(opts AMQPOptions) (broker, error) {
  conn, err := amqp.Dial(opts.URL)
  if err != nil {
    return nil, fmt.Errorf("failed to dial broker: %w", err)
  }

  ch, err := conn.Channel()
  if err != nil {
    conn.Close()
    return nil, fmt.Errorf("failed to open channel: %w", err)
  }

  if opts.Exchange == "" {
    _, err = ch.QueueDeclare(
      opts.RoutingKey, // name
      true,            // durable
      false,           // delete when unused
      false,           // exclusive
      false,           // no-wait
      nil,             // arguments
    )

    if err != nil {
      conn.Close()
      return nil, fmt.Errorf("failed to declare queue %q: %w", opts.RoutingKey, err)
    }
  }

  b := &amqpBroker{conn: conn, ch: ch, closed: make(chan struct{})}

  connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
  chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

  go func() {
    select {
    case err := <-connClosed:
      log.Warn().Err(err).Msg("sink: AMQP connection closed")
    case err := <-chanClosed:
      log.Warn().Err(err).Msg("sink: AMQP channel closed")
    }

    close(b.closed)
  }()

  return b, nil
}

func (b *amqpBroker) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
  return b.ch.PublishWithContext(ctx, exchange, key, false, false, msg)
}

func (b *amqpBroker) Closed() <-chan struct{} {
  return b.closed
}

func (b *amqpBroker) Close() error {
  return b.conn.Close()
}

// AMQP publishes measurements to a broker from its own goroutine. Submit never blocks: a
// measurement that does not fit in the mailbox is dropped. Measurements whose publish failed
// are kept and sent again once the connection is back.
type AMQP struct {
  opts AMQPOptions
  dial func(AMQPOptions) (broker, error)

  mu sync.Mutex
  closed bool
  mailbox chan Message
  quit chan struct{}
  stopped chan struct{}
}

func NewAMQP(opts AMQPOptions) *AMQP {
  return newAMQP(opts, dialBroker)
}

func newAMQP(opts AMQPOptions, dial func(AMQPOptions) (broker, error)) *AMQP {
  if opts.ReconnectDelay <= 0 {
    opts.ReconnectDelay = DefaultReconnectDelay
  }

  if opts.PublishTimeout <= 0 {
    opts.PublishTimeout = DefaultPublishTimeout
  }

  s := &AMQP{
    opts: opts,
    dial: dial,
    mailbox: make(chan Message, mailboxSize),
    quit: make(chan struct{}),
    stopped: make(chan struct{}),
  }

  go s.run()

  return s
}

func (s *AMQP) Submit(scale string, m device.Measurement) {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.closed {
    droppedCounter.Inc()
    log.Warn().Err(ErrSinkClosed).Stringer("Measurement", m).Msg("sink: dropping measurement")
    return
  }

  select {
  case s.mailbox <- NewMessage(scale, m):
  default:
    droppedCounter.Inc()
    log.Warn().Stringer("Measurement", m).Msg("sink: AMQP mailbox full, dropping measurement")
  }
}

// Close stops the publisher. Measurements not yet published are lost.
func (s *AMQP) Close() {
  s.mu.Lock()

  if s.closed {
    s.mu.Unlock()
    return
  }

  s.closed = true
  close(s.quit)
  s.mu.Unlock()

  <-s.stopped
}

// connect dials until it succeeds or the publisher is closed.
func (s *AMQP) connect() broker {
  for {
    b, err := s.dial(s.opts)

    if err == nil {
      log.Info().Str("Exchange", s.opts.Exchange).Str("RoutingKey", s.opts.RoutingKey).Msg("sink: connected to AMQP broker")
      return b
    }

    log.Error().Err(err).Dur("RetryIn", s.opts.ReconnectDelay).Msg("sink: failed to connect to AMQP broker")

    select {
    case <-time.After(s.opts.ReconnectDelay):
    case <-s.quit:
      return nil
    }
  }
}

func (s *AMQP) publish(b broker, m Message) error {
  body, err := json.Marshal(m)
  if err != nil {
    return fmt.Errorf("failed to encode measurement: %w", err)
  }

  ctx, cancel := context.WithTimeout(context.Background(), s.opts.PublishTimeout)
  defer cancel()

  return b.Publish(ctx, s.opts.Exchange, s.opts.RoutingKey, amqp.Publishing{
    ContentType: "application/json",
    DeliveryMode: amqp.Persistent,
    Timestamp: m.Timestamp,
    Body: body,
  })
}

func (s *AMQP) run() {
  defer close(s.stopped)

  var b broker
  var pending []Message

  defer func() {
    if b != nil {
      b.Close()
    }

    if len(pending) > 0 {
      log.Warn().Int("Pending", len(pending)).Msg("sink: AMQP publisher closed with unpublished measurements")
    }
  }()

  for {
    if b == nil {
      if b = s.connect(); b == nil {
        return
      }
    }

    for len(pending) > 0 {
      if err := s.publish(b, pending[0]); err != nil {
        log.Error().Err(err).Msg("sink: failed to publish measurement, reconnecting")
        b.Close()
        b = nil

        select {
        case <-time.After(s.opts.ReconnectDelay):
        case <-s.quit:
          return
        }

        break
      }

      publishedCounter.Inc()
      pending = pending[1:]
    }

    if b == nil {
      continue
    }

    select {
    case m := <-s.mailbox:
      pending = append(pending, m)
    case <-b.Closed():
      b = nil
    case <-s.quit:
      return
    }
  }
}
