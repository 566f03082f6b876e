package domain

import (
	"strings"
	"testing"

	inventorydomain "github.com/smallbiznis/stockledger/internal/inventory/domain"
)

func TestSingleAlertSubjectAndDefaults(t *testing.T) {
	alert := SingleAlert(inventorydomain.Item{SKU: "HAM-1", Name: "Hammer", Quantity: 2, ReorderThreshold: 5})
	if alert.Subject != "Low Stock Alert: Hammer" {
		t.Fatalf("unexpected subject %q", alert.Subject)
	}
	if alert.Items[0].Location != "N/A" || alert.Items[0].Supplier != "N/A" {
		t.Fatalf("expected N/A placeholders, got %+v", alert.Items[0])
	}
}

func TestBatchAlertText(t *testing.T) {
	loc := "B2"
	alert := BatchAlert([]inventorydomain.Item{
		{SKU: "A", Name: "Alpha", Quantity: 1, ReorderThreshold: 3, Location: &loc},
		{SKU: "B", Name: "Beta"},
		{SKU: "C", Name: "Gamma"},
	})
	if alert.Subject != "Daily Low Stock Report - 3 items need attention" {
		t.Fatalf("unexpected subject %q", alert.Subject)
	}
	text := alert.Text()
	if strings.Count(text, "\n- ") != 3 {
		t.Fatalf("expected one line per item:\n%s", text)
	}
	if !strings.Contains(text, "Alpha (A): 1 left, threshold 3, location B2") {
		t.Fatalf("missing item line:\n%s", text)
	}
}
