package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	got, err := ParseOrderStatus(" shipped ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != OrderStatusShipped {
		t.Fatalf("expected SHIPPED, got %q", got)
	}
	if _, err := ParseOrderStatus("LOST"); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestOrderStatusCanCancel(t *testing.T) {
	cases := map[OrderStatus]bool{
		OrderStatusPending:    true,
		OrderStatusConfirmed:  true,
		OrderStatusProcessing: true,
		OrderStatusShipped:    false,
		OrderStatusDelivered:  false,
		OrderStatusCancelled:  false,
		OrderStatus("BOGUS"):  false,
	}
	for status, want := range cases {
		if got := status.CanCancel(); got != want {
			t.Fatalf("%s.CanCancel() = %v, want %v", status, got, want)
		}
	}
}

func TestOrderStatusIsTerminal(t *testing.T) {
	for _, status := range validOrderStatuses {
		want := status == OrderStatusDelivered || status == OrderStatusCancelled
		if got := status.IsTerminal(); got != want {
			t.Fatalf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestOutboxEventTypes(t *testing.T) {
	if _, err := ParseOutboxEventType("order.placed"); err != nil {
		t.Fatalf("order.placed should parse: %v", err)
	}
	if EventOrderStatusChanged.IsValid() != true {
		t.Fatal("status changed event should be valid")
	}
	if _, err := ParseOutboxAggregateType("vendor_order"); err == nil {
		t.Fatal("unknown aggregate should be rejected")
	}
}
