package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"domiflash/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TextSender delivers a message to a human chat. Implemented by bot.Sender
// over the Telegram API; failures are reported, never swallowed, because
// the coordinator rolls reservations back when a driver was never notified.
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string, markdown bool) error
}

// ErrNoDriverAvailable is the expected no-capacity outcome of an
// assignment. Its text is user-facing.
var ErrNoDriverAvailable = errors.New("No hay domiciliarios disponibles.")

// AssignResult identifies the driver reserved for a new dispatch.
type AssignResult struct {
	DispatchID   string
	DriverID     string
	DriverName   string
	DriverChatID int64
}

// Outcome actions for OnDriverReply.
const (
	ReplyActionAccepted           = "accepted"
	ReplyActionRejectedReassigned = "rejected_reassigned"
	ReplyActionRejectedNoDriver   = "rejected_no_driver"
	ReplyActionCompleted          = "completed"
	ReplyActionNoActive           = "no_active"
	ReplyActionUnrecognized       = "unrecognized"
)

// ReplyOutcome describes how a driver reply was handled. Reply is the text
// to send back to the replying driver; customer and new-driver
// notifications have already been sent as side effects.
type ReplyOutcome struct {
	Action     string
	DispatchID string
	Reply      string
}

// Coordinator owns the dispatch lifecycle: assignment, registration,
// rejection-triggered reassignment and completion. It is the only component
// that mutates the registry and ledger together.
type Coordinator struct {
	drivers *DriverRegistry
	ledger  *DispatchLedger
	sender  TextSender
	log     *logrus.Logger
}

func NewCoordinator(drivers *DriverRegistry, ledger *DispatchLedger, sender TextSender, log *logrus.Logger) *Coordinator {
	return &Coordinator{drivers: drivers, ledger: ledger, sender: sender, log: log}
}

func newDispatchID() string {
	return "disp_" + uuid.NewString()
}

// Assign reserves an available driver for the order and mints a dispatch
// ID. ErrNoDriverAvailable is the normal no-capacity result, not a fault.
func (c *Coordinator) Assign(order *models.Order, exclude map[int64]bool) (*AssignResult, error) {
	driver := c.drivers.PickAvailable(exclude)
	if driver == nil {
		return nil, ErrNoDriverAvailable
	}
	return &AssignResult{
		DispatchID:   newDispatchID(),
		DriverID:     driver.DriverID,
		DriverName:   driver.Name,
		DriverChatID: driver.ChatID,
	}, nil
}

// Register persists a new dispatch in status sent and makes it the driver's
// active dispatch.
func (c *Coordinator) Register(dispatchID string, driverChatID, customerChatID int64, order models.Order, reassignedFrom string) models.Dispatch {
	d := models.Dispatch{
		DispatchID:     dispatchID,
		DriverChatID:   driverChatID,
		CustomerChatID: customerChatID,
		Order:          order,
		Status:         DispatchStatusSent,
		CreatedAt:      time.Now(),
		ReassignedFrom: reassignedFrom,
	}
	c.ledger.Save(d)
	c.ledger.SetActiveForDriver(driverChatID, dispatchID)
	return d
}

// DispatchOrder assigns a driver, registers the dispatch and delivers the
// order message. If the driver cannot be notified, the reservation is
// rolled back: an order must never sit "assigned" to a driver who never saw
// it.
func (c *Coordinator) DispatchOrder(ctx context.Context, order models.Order, customerChatID int64) (*AssignResult, error) {
	return c.dispatch(ctx, order, customerChatID, nil, "")
}

func (c *Coordinator) dispatch(ctx context.Context, order models.Order, customerChatID int64, exclude map[int64]bool, reassignedFrom string) (*AssignResult, error) {
	res, err := c.Assign(&order, exclude)
	if err != nil {
		return nil, err
	}
	c.Register(res.DispatchID, res.DriverChatID, customerChatID, order, reassignedFrom)

	if err := c.sender.SendText(ctx, res.DriverChatID, FormatOrderMessage(&order), true); err != nil {
		// Clear the active index before freeing the driver. Registry and
		// ledger are separate locks: freed first, the driver could be
		// re-picked and mapped to a new dispatch that the late clear would
		// then delete, stranding a reserved driver with no active dispatch.
		c.ledger.ClearActiveForDriver(res.DriverChatID)
		c.drivers.SetAvailable(res.DriverChatID, true)
		sendFailures.Inc()
		c.audit(ctx, res.DispatchID, DispatchStatusSent, "send_failed", res.DriverChatID)
		c.log.WithError(err).WithFields(logrus.Fields{
			"dispatch_id":    res.DispatchID,
			"driver_chat_id": res.DriverChatID,
		}).Error("no pude notificar al domiciliario, reserva liberada")
		return nil, fmt.Errorf("No pude enviar el pedido al domiciliario: %w", err)
	}

	dispatchesSent.Inc()
	if reassignedFrom != "" {
		reassignments.Inc()
	}
	c.audit(ctx, res.DispatchID, "", DispatchStatusSent, res.DriverChatID)
	c.log.WithFields(logrus.Fields{
		"dispatch_id":     res.DispatchID,
		"driver_chat_id":  res.DriverChatID,
		"reassigned_from": reassignedFrom,
	}).Info("pedido despachado")
	return res, nil
}

// Reassign creates a fresh dispatch for a rejected order, excluding the
// rejecting driver, and tells the customer a new driver was found (never
// that the previous one declined).
func (c *Coordinator) Reassign(ctx context.Context, dispatch models.Dispatch, excludeDriverChatID int64) (*AssignResult, error) {
	res, err := c.dispatch(ctx, dispatch.Order, dispatch.CustomerChatID, map[int64]bool{excludeDriverChatID: true}, dispatch.DispatchID)
	if err != nil {
		return nil, err
	}

	name := res.DriverName
	if name == "" {
		name = "otro domiciliario"
	}
	notice := fmt.Sprintf("🔄 El domiciliario anterior no pudo. Ya asigné a %s para tu pedido. (ID: %s)", name, res.DispatchID)
	if err := c.sender.SendText(ctx, dispatch.CustomerChatID, notice, false); err != nil {
		c.log.WithError(err).WithField("customer_chat_id", dispatch.CustomerChatID).Warn("no pude notificar la reasignación al cliente")
	}
	return res, nil
}

// OnDriverReply resolves the driver's active dispatch and applies the
// transition the reply asks for. Customer and new-driver notifications are
// sent here; the returned Reply is for the replying driver.
func (c *Coordinator) OnDriverReply(ctx context.Context, driverChatID int64, text string) ReplyOutcome {
	active := c.ledger.ActiveDispatchForDriver(driverChatID)
	if active == nil {
		return ReplyOutcome{
			Action: ReplyActionNoActive,
			Reply:  "No tengo un pedido activo. Si te llega uno, responde ACEPTO, NO PUEDO o COMPLETADO.",
		}
	}

	switch ClassifyReply(text) {
	case ReplyAccept:
		return c.acceptDispatch(ctx, driverChatID, active)
	case ReplyReject:
		return c.rejectDispatch(ctx, driverChatID, active)
	case ReplyComplete:
		return c.completeDispatch(ctx, driverChatID, active)
	}
	return ReplyOutcome{
		Action:     ReplyActionUnrecognized,
		DispatchID: active.DispatchID,
		Reply:      "Responde únicamente con: ACEPTO, NO PUEDO o COMPLETADO.",
	}
}

func (c *Coordinator) acceptDispatch(ctx context.Context, driverChatID int64, active *models.Dispatch) ReplyOutcome {
	d, ok := c.ledger.Transition(active.DispatchID, DispatchStatusAccepted)
	if !ok {
		return c.invalidTransition(driverChatID, active, DispatchStatusAccepted)
	}
	dispatchesAccepted.Inc()
	c.audit(ctx, d.DispatchID, DispatchStatusSent, DispatchStatusAccepted, driverChatID)

	name := "el domiciliario"
	if driver := c.drivers.GetByChat(driverChatID); driver != nil && driver.Name != "" {
		name = driver.Name
	}
	notice := fmt.Sprintf("✅ Tu pedido fue aceptado por %s y va en camino. (ID: %s)", name, d.DispatchID)
	if err := c.sender.SendText(ctx, d.CustomerChatID, notice, false); err != nil {
		c.log.WithError(err).WithField("customer_chat_id", d.CustomerChatID).Error("no pude notificar la aceptación al cliente")
		return ReplyOutcome{
			Action:     ReplyActionAccepted,
			DispatchID: d.DispatchID,
			Reply:      "✅ Aceptado, pero no pude notificar al cliente.",
		}
	}
	return ReplyOutcome{
		Action:     ReplyActionAccepted,
		DispatchID: d.DispatchID,
		Reply:      "✅ Pedido aceptado. Cuando entregues, responde COMPLETADO.",
	}
}

func (c *Coordinator) rejectDispatch(ctx context.Context, driverChatID int64, active *models.Dispatch) ReplyOutcome {
	d, ok := c.ledger.Transition(active.DispatchID, DispatchStatusRejected)
	if !ok {
		return c.invalidTransition(driverChatID, active, DispatchStatusRejected)
	}
	dispatchesRejected.Inc()
	c.audit(ctx, d.DispatchID, DispatchStatusSent, DispatchStatusRejected, driverChatID)

	// Clear before freeing; see the rollback in dispatch.
	c.ledger.ClearActiveForDriver(driverChatID)
	c.drivers.SetAvailable(driverChatID, true)

	if _, err := c.Reassign(ctx, *d, driverChatID); err == nil {
		return ReplyOutcome{
			Action:     ReplyActionRejectedReassigned,
			DispatchID: d.DispatchID,
			Reply:      "Entendido. Reasigné el pedido a otro domiciliario.",
		}
	}

	// No other driver (or the new one was unreachable). The order stays
	// rejected until something outside re-enters via a fresh dispatch.
	notice := fmt.Sprintf("⚠️ El domiciliario no pudo tomar tu pedido (ID: %s). En este momento no tengo otro disponible. ¿Deseas esperar o cancelar?", d.DispatchID)
	if err := c.sender.SendText(ctx, d.CustomerChatID, notice, false); err != nil {
		c.log.WithError(err).WithField("customer_chat_id", d.CustomerChatID).Error("no pude avisar al cliente que no hay domiciliarios")
	}
	return ReplyOutcome{
		Action:     ReplyActionRejectedNoDriver,
		DispatchID: d.DispatchID,
		Reply:      "Entendido. No hay otro domiciliario disponible por ahora.",
	}
}

func (c *Coordinator) completeDispatch(ctx context.Context, driverChatID int64, active *models.Dispatch) ReplyOutcome {
	d, ok := c.ledger.Transition(active.DispatchID, DispatchStatusCompleted)
	if !ok {
		return c.invalidTransition(driverChatID, active, DispatchStatusCompleted)
	}
	dispatchesCompleted.Inc()
	c.audit(ctx, d.DispatchID, DispatchStatusAccepted, DispatchStatusCompleted, driverChatID)

	// Clear before freeing; see the rollback in dispatch.
	c.ledger.ClearActiveForDriver(driverChatID)
	c.drivers.SetAvailable(driverChatID, true)

	notice := fmt.Sprintf("✅ Pedido entregado. ¡Gracias! (ID: %s)", d.DispatchID)
	if err := c.sender.SendText(ctx, d.CustomerChatID, notice, false); err != nil {
		c.log.WithError(err).WithField("customer_chat_id", d.CustomerChatID).Error("no pude notificar la entrega al cliente")
	}
	return ReplyOutcome{
		Action:     ReplyActionCompleted,
		DispatchID: d.DispatchID,
		Reply:      "✅ Pedido marcado como COMPLETADO. Ya quedaste disponible.",
	}
}

func (c *Coordinator) invalidTransition(driverChatID int64, active *models.Dispatch, to string) ReplyOutcome {
	c.log.WithFields(logrus.Fields{
		"dispatch_id":    active.DispatchID,
		"driver_chat_id": driverChatID,
		"status":         active.Status,
		"requested":      to,
	}).Warn("transición de estado inválida ignorada")
	return ReplyOutcome{
		Action:     ReplyActionUnrecognized,
		DispatchID: active.DispatchID,
		Reply:      "Responde únicamente con: ACEPTO, NO PUEDO o COMPLETADO.",
	}
}

func (c *Coordinator) audit(ctx context.Context, dispatchID, from, to string, driverChatID int64) {
	if err := RecordDispatchTransition(ctx, dispatchID, from, to, driverChatID); err != nil {
		c.log.WithError(err).WithField("dispatch_id", dispatchID).Warn("audit insert failed")
	}
}

// FormatOrderMessage renders the order summary sent to a driver. Pure
// function of the order; transport mechanics live in the bot package.
func FormatOrderMessage(order *models.Order) string {
	totalTxt := "No especificado"
	if order.Pricing != nil {
		totalTxt = formatThousands(order.Pricing.Total) + " " + order.Pricing.Currency
	}

	var items strings.Builder
	for _, it := range order.Items {
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		var extras []string
		if it.Options.Bordes != "" {
			extras = append(extras, "Borde: "+it.Options.Bordes)
		}
		if len(it.Options.Adiciones) > 0 {
			extras = append(extras, "Adiciones: "+strings.Join(it.Options.Adiciones, ", "))
		}
		line := fmt.Sprintf("- %d x %s", qty, it.Name)
		if len(extras) > 0 {
			line += " (" + strings.Join(extras, "; ") + ")"
		}
		items.WriteString(line + "\n")
	}

	return fmt.Sprintf(
		"📦 *Nuevo pedido*\n\n"+
			"🏪 Restaurante: %s\n"+
			"👤 Cliente: %s\n"+
			"📍 Dirección: %s\n"+
			"📞 Teléfono: %s\n\n"+
			"🧾 *Pedido:*\n%s\n"+
			"💳 Medio de pago: *%s*\n"+
			"💰 *Total a cobrar:* *%s*\n\n"+
			"Responde: *ACEPTO*, *NO PUEDO* o *COMPLETADO*",
		order.Restaurant, order.Customer, order.Address, order.Phone,
		items.String(), order.PaymentMethod, totalTxt,
	)
}

// formatThousands groups digits with commas (50000 -> "50,000").
func formatThousands(n int) string {
	s := strconv.Itoa(n)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		return "-" + s
	}
	return s
}
