package domain

import (
	"errors"
	"fmt"
	"strings"

	inventorydomain "github.com/smallbiznis/stockledger/internal/inventory/domain"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSlack Channel = "slack"
)

type Kind string

const (
	KindSingle Kind = "single"
	KindBatch  Kind = "batch"
)

const (
	TemplateSingle = "low_stock_single"
	TemplateBatch  = "low_stock_batch"
)

// ErrDeliveryFailed wraps every channel error of one alert.
var ErrDeliveryFailed = errors.New("delivery_failed")

// AlertLine is the flattened, display ready view of one low-stock item.
type AlertLine struct {
	SKU              string
	Name             string
	Quantity         int
	ReorderThreshold int
	Location         string
	Supplier         string
}

type Alert struct {
	Kind    Kind
	Subject string
	Items   []AlertLine
}

func NewAlertLine(item inventorydomain.Item) AlertLine {
	return AlertLine{
		SKU:              item.SKU,
		Name:             item.Name,
		Quantity:         item.Quantity,
		ReorderThreshold: item.ReorderThreshold,
		Location:         valueOr(item.Location, "N/A"),
		Supplier:         valueOr(item.SupplierName, "N/A"),
	}
}

func SingleAlert(item inventorydomain.Item) Alert {
	return Alert{
		Kind:    KindSingle,
		Subject: "Low Stock Alert: " + item.Name,
		Items:   []AlertLine{NewAlertLine(item)},
	}
}

func BatchAlert(items []inventorydomain.Item) Alert {
	lines := make([]AlertLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, NewAlertLine(item))
	}
	return Alert{
		Kind:    KindBatch,
		Subject: fmt.Sprintf("Daily Low Stock Report - %d items need attention", len(items)),
		Items:   lines,
	}
}

// Text renders the alert as plain text for chat channels.
func (a Alert) Text() string {
	var b strings.Builder
	b.WriteString(a.Subject)
	for _, line := range a.Items {
		fmt.Fprintf(&b, "\n- %s (%s): %d left, threshold %d, location %s, supplier %s",
			line.Name, line.SKU, line.Quantity, line.ReorderThreshold, line.Location, line.Supplier)
	}
	return b.String()
}

func valueOr(value *string, fallback string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return fallback
	}
	return *value
}
