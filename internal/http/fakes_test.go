package http

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_pos/domain"
	"github.com/fjod/go_pos/internal/channel"
	"github.com/shopspring/decimal"
)

// RemoteMock stands in for the authoritative store behind every handler.
type RemoteMock struct {
	mu        sync.Mutex
	seq       int
	orderErrs []error
	orderKeys map[string]domain.Order
	cowork    map[string]domain.CoworkingSession
	deleted   []string
}

func newRemoteMock() *RemoteMock {
	return &RemoteMock{
		orderKeys: make(map[string]domain.Order),
		cowork:    make(map[string]domain.CoworkingSession),
	}
}

func (m *RemoteMock) id(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *RemoteMock) CreateOrder(_ context.Context, p domain.OrderPayload, key string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.orderErrs) > 0 {
		err := m.orderErrs[0]
		m.orderErrs = m.orderErrs[1:]
		return domain.Order{}, err
	}
	if o, ok := m.orderKeys[key]; ok {
		return o, nil
	}
	o := domain.Order{
		ID:            m.id("o"),
		CreatedAt:     time.Now(),
		Items:         p.Items,
		Subtotal:      p.Subtotal,
		Discount:      p.Discount,
		Tip:           p.Tip,
		Total:         p.Total,
		TotalCost:     p.TotalCost,
		ClientName:    p.ClientName,
		ServiceType:   p.ServiceType,
		PaymentMethod: p.PaymentMethod,
		CustomerID:    p.CustomerID,
	}
	m.orderKeys[key] = o
	return o, nil
}

func (m *RemoteMock) DeleteOrder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *RemoteMock) OpenCashSession(_ context.Context, start decimal.Decimal) (domain.CashSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.CashSession{
		ID:          m.id("cs"),
		StartTime:   time.Now().Add(-time.Second),
		StartAmount: start,
		Status:      domain.CashSessionOpen,
	}, nil
}

func (m *RemoteMock) CloseCashSession(_ context.Context, id string, p domain.CashSessionClose) (domain.CashSession, error) {
	end, amount := p.EndTime, p.EndAmount
	return domain.CashSession{
		ID:           id,
		EndTime:      &end,
		EndAmount:    &amount,
		Status:       p.Status,
		TotalSales:   p.TotalSales,
		ExpectedCash: p.ExpectedCash,
		Difference:   p.Difference,
	}, nil
}

func (m *RemoteMock) CreateWithdrawal(_ context.Context, sessionID string, amount decimal.Decimal, description string) (domain.CashWithdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.CashWithdrawal{
		ID: m.id("wd"), CashSessionID: sessionID, Amount: amount, Description: description, CreatedAt: time.Now(),
	}, nil
}

func (m *RemoteMock) DeleteWithdrawal(context.Context, string) error { return nil }

func (m *RemoteMock) CreateCoworkingSession(_ context.Context, clientName string) (domain.CoworkingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := domain.CoworkingSession{
		ID: m.id("cw"), ClientName: clientName, StartTime: time.Now().Add(-90 * time.Minute), Status: domain.CoworkingActive,
	}
	m.cowork[s.ID] = s
	return s, nil
}

func (m *RemoteMock) UpdateCoworkingSession(_ context.Context, id string, p domain.CoworkingPatch) (domain.CoworkingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.cowork[id]
	if !ok {
		return domain.CoworkingSession{}, domain.ErrNotFound
	}
	if p.Extras != nil {
		s.Extras = p.Extras
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	s.EndTime, s.Total, s.OrderID = p.EndTime, p.Total, p.OrderID
	m.cowork[id] = s
	return s, nil
}

func (m *RemoteMock) DeleteCoworkingSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cowork, id)
	return nil
}

// ChannelMock records the controls the UI sends to the supervisor.
type ChannelMock struct {
	mu          sync.Mutex
	state       channel.ConnState
	online      bool
	visible     bool
	resumes     int
	disconnects int
}

func newChannelMock() *ChannelMock {
	return &ChannelMock{state: channel.StateOpen, online: true, visible: true}
}

func (c *ChannelMock) State() channel.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *ChannelMock) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != channel.StateOpen && c.online && c.visible
}

func (c *ChannelMock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumes++
	c.state = channel.StateConnecting
}

func (c *ChannelMock) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.state = channel.StateClosed
}

func (c *ChannelMock) SetOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = online
	c.state = channel.StateClosed
}

func (c *ChannelMock) SetVisible(visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = visible
}
