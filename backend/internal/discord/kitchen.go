// Package discord posts order tickets to the kitchen's Discord channel.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"pizza-phone-agent/backend/internal/order"
	"pizza-phone-agent/backend/internal/sink"
	apperrors "pizza-phone-agent/backend/pkg/errors"
)

const (
	colorPickup   = 0x2ECC71
	colorDelivery = 0xE67E22
)

// Poster is the part of *discordgo.Session the kitchen uses.
type Poster interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Kitchen sends one embed per finalized order.
type Kitchen struct {
	poster    Poster
	channelID string
	logger    *zap.Logger
}

// NewKitchen creates a kitchen channel sink.
func NewKitchen(poster Poster, channelID string, logger *zap.Logger) *Kitchen {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kitchen{poster: poster, channelID: channelID, logger: logger}
}

// Name implements sink.Named.
func (k *Kitchen) Name() string { return "discord" }

// Submit posts the ticket.
func (k *Kitchen) Submit(ctx context.Context, r order.Receipt) error {
	msg, err := k.poster.ChannelMessageSendComplex(k.channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{TicketEmbed(r)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return apperrors.NewSinkFailed(k.Name(), true, err)
	}

	fields := []zap.Field{zap.String("order_id", r.OrderID)}
	if msg != nil {
		fields = append(fields, zap.String("message_id", msg.ID))
	}
	k.logger.Debug("Kitchen ticket posted", fields...)
	return nil
}

// TicketEmbed renders a receipt for the kitchen.
func TicketEmbed(r order.Receipt) *discordgo.MessageEmbed {
	lines := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		lines = append(lines, Escape(it.Describe()))
	}

	method, color := "Pickup", colorPickup
	if r.DeliveryMethod == order.DeliveryDelivery {
		method, color = "Delivery", colorDelivery
	}

	name := r.CustomerName
	if name == "" {
		name = "Not provided"
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("New %s order for %s", method, Escape(name)),
		Description: FormatList(lines, true),
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Phone", Value: order.FormatPhone(r.CustomerPhone), Inline: true},
			{Name: "Total", Value: FormatBold(fmt.Sprintf("$%.2f", r.Totals.Total)), Inline: true},
			{Name: "Ready", Value: sink.ReadyAt(r).Format("3:04 PM"), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Order " + r.OrderID,
		},
		Timestamp: r.FinalizedAt.Format(time.RFC3339),
	}

	if r.DeliveryMethod == order.DeliveryDelivery {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Address",
			Value: FormatQuote(Escape(r.Address)),
		})
	}
	if r.PaymentMethod != order.PaymentUnset {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Payment",
			Value:  string(r.PaymentMethod),
			Inline: true,
		})
	}
	return embed
}
