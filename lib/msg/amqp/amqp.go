// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/streadway/amqp"
	"github.com/tarancss/txd/lib/msg"
)

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// New instantiates a new amqp broker.
func New(uri string) (msg.MsgBroker, error) {
	r := Amqp{}

	var err error

	if r.conn, err = amqp.Dial(uri); err != nil {
		return &r, err
	}

	r.ch = nil

	log.Printf("Connected to %s", uri)

	return &r, err
}

// Setup obtains an amqp channel and declares the message broker exchange:
//
// - ts ("transaction status"): the dispatcher publishes status events to this exchange
func (r *Amqp) Setup(x interface{}) error {
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	return channel.ExchangeDeclare("ts", "topic", true, false, false, false, nil)
}

// Close terminates gracefully the connection to the AMQP message broker.
func (r *Amqp) Close() error {
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			log.Printf("Error closing amqp.Channel:%e", err)
		}

		r.ch = nil

		log.Printf("amqp.Channel closed!")
	}

	return r.conn.Close()
}

// SendStatus publishes a transaction status event to the "ts" exchange.
func (r *Amqp) SendStatus(chain string, e msg.StatusEvent) (err error) {
	var jsonDoc []byte
	if jsonDoc, err = json.Marshal(e); err != nil {
		return
	}

	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return
		}
	}

	m := amqp.Publishing{
		Headers:     amqp.Table{"x-status-name": chain + "." + e.Hash},
		Body:        jsonDoc,
		ContentType: "application/json",
	}

	if err = r.ch.Publish("ts", chain+".status."+e.Hash, false, false, m); err != nil {
		log.Printf("[%s] Error sending status event to message broker %e", chain, err)
	}

	return
}

// GetStatuses consumes status events from the "ts" exchange pushing them to the returned channel. The Mutex
// pointer is provided to ensure the consumed message has been fully dealt with by the management function, so
// the message consumed is only acknowledged when the mutex is unlocked.
func (r *Amqp) GetStatuses(chain string, mut *sync.Mutex) (<-chan msg.StatusEvent, <-chan error, error) {
	var err error
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return nil, nil, err
		}
	}

	if _, err = r.ch.QueueDeclare("ts"+chain, true, false, false, false, nil); err != nil {
		return nil, nil, err
	}

	if err = r.ch.QueueBind("ts"+chain, chain+".*.*", "ts", false, nil); err != nil {
		return nil, nil, err
	}

	msgs, errCons := r.ch.Consume("ts"+chain, "txd-"+chain, false, false, false, false, nil)
	if errCons != nil {
		return nil, nil, errCons
	}

	eves := make(chan msg.StatusEvent)
	errors := make(chan error)

	go func() {
		for m := range msgs {
			var e msg.StatusEvent

			err := json.Unmarshal(m.Body, &e)
			if err != nil {
				errors <- err

				continue
			}

			eves <- e
			mut.Lock() // wait for the consumer to finish processing the event
			m.Ack(false)
		}
	}()

	return eves, errors, nil
}
