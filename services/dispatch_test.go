package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"domiflash/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMsg struct {
	chatID   int64
	text     string
	markdown bool
}

// fakeSender records every outgoing message and can be told to fail
// deliveries to specific chats.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentMsg
	fail map[int64]bool
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, text string, markdown bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[chatID] {
		return errors.New("chat not reachable")
	}
	f.sent = append(f.sent, sentMsg{chatID: chatID, text: text, markdown: markdown})
	return nil
}

func (f *fakeSender) messagesTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.chatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestCoordinator(roster []models.Driver) (*Coordinator, *DriverRegistry, *DispatchLedger, *fakeSender) {
	registry := NewDriverRegistry(roster)
	ledger := NewDispatchLedger()
	sender := &fakeSender{fail: make(map[int64]bool)}
	return NewCoordinator(registry, ledger, sender, quietLogger()), registry, ledger, sender
}

func sampleOrder() models.Order {
	return models.Order{
		Restaurant:    "Pizzeria Orientini - Marinilla",
		Customer:      "Andrés",
		Address:       "Calle 10 #4-20",
		Phone:         "3001234567",
		PaymentMethod: "Efectivo",
		Items: []models.OrderItem{
			{Name: "pizza personal", Quantity: 2, Options: models.ChosenOptions{Bordes: "queso"}},
		},
		Pricing: &models.PricedOrder{
			Restaurant:  "Pizzeria Orientini - Marinilla",
			Currency:    "COP",
			Subtotal:    44000,
			DeliveryFee: 6000,
			Total:       50000,
		},
	}
}

const customerChat int64 = 9001

// The fixture's attached breakdown must be what the pricer computes for
// its items, so total assertions elsewhere stay truthful.
func TestSampleOrderPricingConsistent(t *testing.T) {
	order := sampleOrder()
	priced, err := NewPricer(NewMenuCatalog(models.DefaultMenu())).Price(&order)
	require.NoError(t, err)
	assert.Empty(t, priced.Warnings)
	assert.Equal(t, order.Pricing.Subtotal, priced.Subtotal)
	assert.Equal(t, order.Pricing.DeliveryFee, priced.DeliveryFee)
	assert.Equal(t, order.Pricing.Total, priced.Total)
}

func TestDispatchOrderAssignsRegistersAndNotifies(t *testing.T) {
	coord, registry, ledger, sender := newTestCoordinator(testRoster())

	res, err := coord.DispatchOrder(context.Background(), sampleOrder(), customerChat)
	require.NoError(t, err)
	assert.Equal(t, "d1", res.DriverID)
	assert.True(t, strings.HasPrefix(res.DispatchID, "disp_"))

	d := registry.GetByChat(res.DriverChatID)
	require.NotNil(t, d)
	assert.False(t, d.IsAvailable)

	rec := ledger.Get(res.DispatchID)
	require.NotNil(t, rec)
	assert.Equal(t, DispatchStatusSent, rec.Status)
	assert.Equal(t, customerChat, rec.CustomerChatID)
	assert.Empty(t, rec.ReassignedFrom)
	assert.False(t, rec.CreatedAt.IsZero())

	active := ledger.ActiveDispatchForDriver(res.DriverChatID)
	require.NotNil(t, active)
	assert.Equal(t, res.DispatchID, active.DispatchID)

	msgs := sender.messagesTo(res.DriverChatID)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "📦 *Nuevo pedido*")
	assert.Contains(t, msgs[0], "Responde: *ACEPTO*, *NO PUEDO* o *COMPLETADO*")
}

func TestDispatchOrderNoDriverAvailable(t *testing.T) {
	coord, _, _, _ := newTestCoordinator(nil)

	_, err := coord.DispatchOrder(context.Background(), sampleOrder(), customerChat)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoDriverAvailable)
	assert.Equal(t, "No hay domiciliarios disponibles.", ErrNoDriverAvailable.Error())
}

func TestDispatchOrderRollsBackWhenDriverUnreachable(t *testing.T) {
	coord, registry, ledger, sender := newTestCoordinator(testRoster()[:1])
	sender.fail[101] = true

	_, err := coord.DispatchOrder(context.Background(), sampleOrder(), customerChat)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoDriverAvailable))

	d := registry.GetByChat(101)
	require.NotNil(t, d)
	assert.True(t, d.IsAvailable, "reservation must be released after a failed send")
	assert.Nil(t, ledger.ActiveDispatchForDriver(101))
}

func TestConcurrentDispatchSingleDriver(t *testing.T) {
	coord, _, _, _ := newTestCoordinator(testRoster()[:1])

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.DispatchOrder(context.Background(), sampleOrder(), customerChat)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok, noDriver := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrNoDriverAvailable):
			noDriver++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one dispatch wins the single driver")
	assert.Equal(t, attempts-1, noDriver)
}

func TestAcceptThenComplete(t *testing.T) {
	coord, registry, ledger, sender := newTestCoordinator(testRoster()[:1])

	res, err := coord.DispatchOrder(context.Background(), sampleOrder(), customerChat)
	require.NoError(t, err)

	out := coord.OnDriverReply(context.Background(), 101, "ACEPTO")
	assert.Equal(t, ReplyActionAccepted, out.Action)
	assert.Equal(t, res.DispatchID, out.DispatchID)
	assert.Equal(t, "✅ Pedido aceptado. Cuando entregues, responde COMPLETADO.", out.Reply)

	rec := ledger.Get(res.DispatchID)
	require.NotNil(t, rec)
	assert.Equal(t, DispatchStatusAccepted, rec.Status)
	require.NotNil(t, rec.AcceptedAt)

	// driver stays busy until completion
	d := registry.GetByChat(101)
	require.NotNil(t, d)
	assert.False(t, d.IsAvailable)

	out = coord.OnDriverReply(context.Background(), 101, "completado")
	assert.Equal(t, ReplyActionCompleted, out.Action)
	assert.Equal(t, "✅ Pedido marcado como COMPLETADO. Ya quedaste disponible.", out.Reply)

	rec = ledger.Get(res.DispatchID)
	require.NotNil(t, rec)
	assert.Equal(t, DispatchStatusCompleted, rec.Status)
	require.NotNil(t, rec.CompletedAt)

	d = registry.GetByChat(101)
	require.NotNil(t, d)
	assert.True(t, d.IsAvailable)
	assert.Nil(t, ledger.ActiveDispatchForDriver(101))

	msgs := sender.messagesTo(customerChat)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "✅ Tu pedido fue aceptado por Camila V")
	assert.Contains(t, msgs[0], res.DispatchID)
	assert.Contains(t, msgs[1], "✅ Pedido entregado. ¡Gracias!")
	assert.Contains(t, msgs[1], res.DispatchID)
}

func TestAcceptWithUnreachableCustomer(t *testing.T) {
	coord, _, _, sender := newTestCoordinator(testRoster()[:1])

	_, err := coord.DispatchOrder(context.Background(), sampleOrder(), customerChat)
	require.NoError(t, err)
	sender.fail[customerChat] = true

	out := coord.OnDriverReply(context.Background(), 101, "acepto")
	assert.Equal(t, ReplyActionAccepted, out.Action)
	assert.Equal(t, "✅ Aceptado, pero no pude notificar al cliente.", out.Reply)
}

func TestRejectReassignsToNextDriver(t *testing.T) {
	coord, registry, ledger, sender := newTestCoordinator(testRoster())

	res, err := coord.DispatchOrder(context.Background(), sampleOrder(), customerChat)
	require.NoError(t, err)
	assert.Equal(t, int64(101), res.DriverChatID)

	out := coord.OnDriverReply(context.Background(), 101, "no puedo")
	assert.Equal(t, ReplyActionRejectedReassigned, out.Action)
	assert.Equal(t, res.DispatchID, out.DispatchID)
	assert.Equal(t, "Entendido. Reasigné el pedido a otro domiciliario.", out.Reply)

	// rejecting driver is free again with no active dispatch
	d := registry.GetByChat(101)
	require.NotNil(t, d)
	assert.True(t, d.IsAvailable)
	assert.Nil(t, ledger.ActiveDispatchForDriver(101))

	rec := ledger.Get(res.DispatchID)
	require.NotNil(t, rec)
	assert.Equal(t, DispatchStatusRejected, rec.Status)
	require.NotNil(t, rec.RejectedAt)

	// the new dispatch went to d2 and links back to the rejected one
	next := ledger.ActiveDispatchForDriver(102)
	require.NotNil(t, next)
	assert.NotEqual(t, res.DispatchID, next.DispatchID)
	assert.Equal(t, res.DispatchID, next.ReassignedFrom)
	assert.Equal(t, DispatchStatusSent, next.Status)

	require.NotEmpty(t, sender.messagesTo(102))

	custMsgs := sender.messagesTo(customerChat)
	require.Len(t, custMsgs, 1)
	assert.Contains(t, custMsgs[0], "🔄 El domiciliario anterior no pudo. Ya asigné a Jorge M")
	assert.NotContains(t, custMsgs[0], "⚠️")
}

func TestRejectWithNoOtherDriver(t *testing.T) {
	coord, registry, ledger, sender := newTestCoordinator(testRoster()[:1])

	res, err := coord.DispatchOrder(context.Background(), sampleOrder(), customerChat)
	require.NoError(t, err)

	out := coord.OnDriverReply(context.Background(), 101, "rechazo")
	assert.Equal(t, ReplyActionRejectedNoDriver, out.Action)
	assert.Equal(t, "Entendido. No hay otro domiciliario disponible por ahora.", out.Reply)

	// the rejecting driver is excluded even though they are free again
	d := registry.GetByChat(101)
	require.NotNil(t, d)
	assert.True(t, d.IsAvailable)

	rec := ledger.Get(res.DispatchID)
	require.NotNil(t, rec)
	assert.Equal(t, DispatchStatusRejected, rec.Status)

	custMsgs := sender.messagesTo(customerChat)
	require.Len(t, custMsgs, 1)
	assert.Contains(t, custMsgs[0], "⚠️ El domiciliario no pudo tomar tu pedido")
	assert.Contains(t, custMsgs[0], res.DispatchID)
	assert.Contains(t, custMsgs[0], "¿Deseas esperar o cancelar?")
}

func TestReassignmentChainAfterTwoRejections(t *testing.T) {
	coord, _, ledger, _ := newTestCoordinator(testRoster())

	first, err := coord.DispatchOrder(context.Background(), sampleOrder(), customerChat)
	require.NoError(t, err)

	out := coord.OnDriverReply(context.Background(), 101, "no puedo")
	require.Equal(t, ReplyActionRejectedReassigned, out.Action)

	second := ledger.ActiveDispatchForDriver(102)
	require.NotNil(t, second)

	out = coord.OnDriverReply(context.Background(), 102, "no")
	require.Equal(t, ReplyActionRejectedReassigned, out.Action)

	third := ledger.ActiveDispatchForDriver(103)
	require.NotNil(t, third)

	// walk the chain back to the original dispatch
	assert.Equal(t, second.DispatchID, third.ReassignedFrom)
	assert.Equal(t, first.DispatchID, second.ReassignedFrom)
	prev := ledger.Get(second.ReassignedFrom)
	require.NotNil(t, prev)
	assert.Empty(t, prev.ReassignedFrom)

	// all three records persist and the two rejected ones stay terminal
	assert.Equal(t, DispatchStatusRejected, ledger.Get(first.DispatchID).Status)
	assert.Equal(t, DispatchStatusRejected, ledger.Get(second.DispatchID).Status)
	assert.Equal(t, DispatchStatusSent, ledger.Get(third.DispatchID).Status)
}

func TestRejectReassignToUnreachableDriverRollsBack(t *testing.T) {
	coord, registry, ledger, sender := newTestCoordinator(testRoster()[:2])

	_, err := coord.DispatchOrder(context.Background(), sampleOrder(), customerChat)
	require.NoError(t, err)
	sender.fail[102] = true

	out := coord.OnDriverReply(context.Background(), 101, "no puedo")
	assert.Equal(t, ReplyActionRejectedNoDriver, out.Action)

	// d2's failed reservation was rolled back
	d := registry.GetByChat(102)
	require.NotNil(t, d)
	assert.True(t, d.IsAvailable)
	assert.Nil(t, ledger.ActiveDispatchForDriver(102))

	custMsgs := sender.messagesTo(customerChat)
	require.Len(t, custMsgs, 1)
	assert.Contains(t, custMsgs[0], "⚠️")
}

// A rejection freeing the driver races a concurrent dispatch picking the
// same driver. The active index must be cleared before the driver is
// freed: done the other way around, the late clear deletes the new
// dispatch's mapping and strands a reserved driver with no active record.
func TestRejectRacingDispatchNeverOrphansNewDispatch(t *testing.T) {
	coord, registry, ledger, _ := newTestCoordinator(testRoster()[:1])
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		_, err := coord.DispatchOrder(ctx, sampleOrder(), customerChat)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			coord.OnDriverReply(ctx, 101, "no puedo")
		}()
		go func() {
			defer wg.Done()
			_, _ = coord.DispatchOrder(ctx, sampleOrder(), customerChat)
		}()
		wg.Wait()

		d := registry.GetByChat(101)
		require.NotNil(t, d)
		active := ledger.ActiveDispatchForDriver(101)
		if d.IsAvailable {
			require.Nil(t, active)
			continue
		}
		require.NotNil(t, active, "reserved driver must have an active dispatch")
		require.Equal(t, DispatchStatusSent, active.Status)

		// drain the won dispatch so the next round starts clean
		out := coord.OnDriverReply(ctx, 101, "no puedo")
		require.Equal(t, ReplyActionRejectedNoDriver, out.Action)
	}
}

func TestReplyWithNoActiveDispatch(t *testing.T) {
	coord, _, _, _ := newTestCoordinator(testRoster())

	out := coord.OnDriverReply(context.Background(), 101, "acepto")
	assert.Equal(t, ReplyActionNoActive, out.Action)
	assert.Equal(t, "No tengo un pedido activo. Si te llega uno, responde ACEPTO, NO PUEDO o COMPLETADO.", out.Reply)
}

func TestUnrecognizedReplyPrompts(t *testing.T) {
	coord, _, _, _ := newTestCoordinator(testRoster()[:1])

	res, err := coord.DispatchOrder(context.Background(), sampleOrder(), customerChat)
	require.NoError(t, err)

	out := coord.OnDriverReply(context.Background(), 101, "voy en 10 minutos")
	assert.Equal(t, ReplyActionUnrecognized, out.Action)
	assert.Equal(t, res.DispatchID, out.DispatchID)
	assert.Equal(t, "Responde únicamente con: ACEPTO, NO PUEDO o COMPLETADO.", out.Reply)

	rec := coordLedgerGet(t, coord, res.DispatchID)
	assert.Equal(t, DispatchStatusSent, rec.Status)
}

func TestCompleteBeforeAcceptIsRejected(t *testing.T) {
	coord, _, ledger, _ := newTestCoordinator(testRoster()[:1])

	res, err := coord.DispatchOrder(context.Background(), sampleOrder(), customerChat)
	require.NoError(t, err)

	out := coord.OnDriverReply(context.Background(), 101, "completado")
	assert.Equal(t, ReplyActionUnrecognized, out.Action)
	assert.Equal(t, "Responde únicamente con: ACEPTO, NO PUEDO o COMPLETADO.", out.Reply)

	rec := ledger.Get(res.DispatchID)
	require.NotNil(t, rec)
	assert.Equal(t, DispatchStatusSent, rec.Status)
	assert.Nil(t, rec.CompletedAt)
}

func TestRejectAfterAcceptIsRejected(t *testing.T) {
	coord, registry, ledger, _ := newTestCoordinator(testRoster()[:1])

	res, err := coord.DispatchOrder(context.Background(), sampleOrder(), customerChat)
	require.NoError(t, err)
	require.Equal(t, ReplyActionAccepted, coord.OnDriverReply(context.Background(), 101, "acepto").Action)

	out := coord.OnDriverReply(context.Background(), 101, "no puedo")
	assert.Equal(t, ReplyActionUnrecognized, out.Action)

	rec := ledger.Get(res.DispatchID)
	require.NotNil(t, rec)
	assert.Equal(t, DispatchStatusAccepted, rec.Status)

	d := registry.GetByChat(101)
	require.NotNil(t, d)
	assert.False(t, d.IsAvailable)
}

func coordLedgerGet(t *testing.T, c *Coordinator, dispatchID string) *models.Dispatch {
	t.Helper()
	d := c.ledger.Get(dispatchID)
	require.NotNil(t, d)
	return d
}

func TestFormatOrderMessage(t *testing.T) {
	order := sampleOrder()
	order.Items = append(order.Items, models.OrderItem{
		Name: "gaseosa 1.5l", Quantity: 1,
		Options: models.ChosenOptions{Adiciones: []string{"extra queso"}},
	})
	msg := FormatOrderMessage(&order)

	assert.Contains(t, msg, "📦 *Nuevo pedido*")
	assert.Contains(t, msg, "🏪 Restaurante: Pizzeria Orientini - Marinilla")
	assert.Contains(t, msg, "👤 Cliente: Andrés")
	assert.Contains(t, msg, "📍 Dirección: Calle 10 #4-20")
	assert.Contains(t, msg, "📞 Teléfono: 3001234567")
	assert.Contains(t, msg, "- 2 x pizza personal (Borde: queso)")
	assert.Contains(t, msg, "- 1 x gaseosa 1.5l (Adiciones: extra queso)")
	assert.Contains(t, msg, "💳 Medio de pago: *Efectivo*")
	assert.Contains(t, msg, "💰 *Total a cobrar:* *50,000 COP*")
	assert.Contains(t, msg, "Responde: *ACEPTO*, *NO PUEDO* o *COMPLETADO*")
}

func TestFormatOrderMessageWithoutPricing(t *testing.T) {
	order := sampleOrder()
	order.Pricing = nil
	msg := FormatOrderMessage(&order)
	assert.Contains(t, msg, "💰 *Total a cobrar:* *No especificado*")
}

func TestFormatThousands(t *testing.T) {
	cases := map[int]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		50000:   "50,000",
		1234567: "1,234,567",
		-6000:   "-6,000",
	}
	for in, want := range cases {
		if got := formatThousands(in); got != want {
			t.Errorf("formatThousands(%d) = %q, want %q", in, got, want)
		}
	}
}
