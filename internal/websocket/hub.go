package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ln-donations/internal/models"
)

const recentCapacity = 1024

type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
	ID   string
}

// DonationAlert announces a settled donation on the live feed. Anonymous
// donations carry no name.
type DonationAlert struct {
	InvoiceID string          `json:"invoiceId"`
	DonorName string          `json:"donorName"`
	Amount    decimal.Decimal `json:"amount"`
	Tier      models.Tier     `json:"tier,omitempty"`
	SettledAt time.Time       `json:"settledAt"`
}

// AlertFor builds the feed entry for a stored donor record.
func AlertFor(record *models.DonorRecord, settledAt time.Time) DonationAlert {
	name := "Anonymous"
	if record.DonationType == models.DonationNamed && record.Name != "" {
		name = record.Name
	}
	return DonationAlert{
		InvoiceID: record.InvoiceID,
		DonorName: name,
		Amount:    record.Amount,
		Tier:      record.Tier,
		SettledAt: settledAt,
	}
}

type Hub struct {
	log            *logrus.Entry
	Clients        map[*Client]struct{}
	Register       chan *Client
	Unregister     chan *Client
	BroadcastAlert chan DonationAlert

	recent *recentSet
	done   chan struct{}
}

func NewHub(log *logrus.Entry) *Hub {
	return &Hub{
		log:            log,
		Clients:        make(map[*Client]struct{}),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		BroadcastAlert: make(chan DonationAlert, 64),
		recent:         newRecentSet(recentCapacity),
		done:           make(chan struct{}),
	}
}

// Join registers client with the running hub. It reports false once the hub
// has stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Leave unregisters client. It returns immediately once the hub has stopped.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// Announce queues an alert without blocking. It reports false when the queue
// is full and the alert was dropped.
func (h *Hub) Announce(alert DonationAlert) bool {
	select {
	case h.BroadcastAlert <- alert:
		return true
	default:
		h.log.WithField("invoice_id", alert.InvoiceID).Warn("live feed queue full, dropping alert")
		return false
	}
}

// Run serves registrations and broadcasts until ctx is done. Each invoice is
// broadcast at most once. Run must only be called once.
func (h *Hub) Run(ctx context.Context) {
	log := h.log.WithField("method", "Run")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.Clients {
				close(client.Send)
				delete(h.Clients, client)
			}
			return

		case client := <-h.Register:
			h.Clients[client] = struct{}{}
			log.WithField("client", client.ID).Debug("websocket client registered")

		case client := <-h.Unregister:
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				close(client.Send)
				log.WithField("client", client.ID).Debug("websocket client unregistered")
			}

		case alert := <-h.BroadcastAlert:
			if !h.recent.Add(alert.InvoiceID) {
				continue
			}

			jsonData, err := json.Marshal(alert)
			if err != nil {
				log.WithError(err).Warn("failure marshalling donation alert")
				continue
			}

			for client := range h.Clients {
				select {
				case client.Send <- jsonData:
				default:
					close(client.Send)
					delete(h.Clients, client)
				}
			}
		}
	}
}

// recentSet remembers the last n keys.
type recentSet struct {
	keys  map[string]struct{}
	order []string
	next  int
}

func newRecentSet(n int) *recentSet {
	return &recentSet{
		keys:  make(map[string]struct{}, n),
		order: make([]string, n),
	}
}

// Add records key and reports whether it was new.
func (s *recentSet) Add(key string) bool {
	if _, ok := s.keys[key]; ok {
		return false
	}
	if evicted := s.order[s.next]; evicted != "" {
		delete(s.keys, evicted)
	}
	s.order[s.next] = key
	s.next = (s.next + 1) % len(s.order)
	s.keys[key] = struct{}{}
	return true
}
