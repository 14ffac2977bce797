package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func TestMailGateway_PostsPayload(t *testing.T) {
	var got mailPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	channel, err := NewMailGatewayChannel(srv.URL, "alerts@vendwatch.local", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	sent, err := channel.Send(context.Background(), Message{
		To:      []string{"ops@acme.example"},
		Cc:      []string{"noc@acme.example"},
		Subject: "Repeated sale failures on VM-0042",
		Body:    "3 consecutive failed sales",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !sent {
		t.Fatalf("expected confirmed delivery")
	}
	if got.From != "alerts@vendwatch.local" {
		t.Fatalf("expected configured from address, got %q", got.From)
	}
	if !reflect.DeepEqual(got.To, []string{"ops@acme.example"}) {
		t.Fatalf("unexpected recipients %v", got.To)
	}
	if got.Subject != "Repeated sale failures on VM-0042" || got.Body != "3 consecutive failed sales" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestMailGateway_MessageFromOverridesDefault(t *testing.T) {
	var got mailPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	channel, err := NewMailGatewayChannel(srv.URL, "alerts@vendwatch.local", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	if _, err := channel.Send(context.Background(), Message{
		From: "reports@vendwatch.local",
		To:   []string{"ops@acme.example"},
	}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.From != "reports@vendwatch.local" {
		t.Fatalf("expected message from to win, got %q", got.From)
	}
}

func TestMailGateway_EmptyRecipientsRejectedBeforeNetwork(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	channel, err := NewMailGatewayChannel(srv.URL, "alerts@vendwatch.local", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	sent, err := channel.Send(context.Background(), Message{Subject: "x"})
	if err == nil || sent {
		t.Fatalf("expected rejection for empty recipient list")
	}
	if calls != 0 {
		t.Fatalf("expected no network call, got %d", calls)
	}
}

func TestMailGateway_GatewayErrorIsNotSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	channel, err := NewMailGatewayChannel(srv.URL, "alerts@vendwatch.local", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	sent, err := channel.Send(context.Background(), Message{To: []string{"ops@acme.example"}})
	if err == nil {
		t.Fatalf("expected error for gateway failure")
	}
	if sent {
		t.Fatalf("a gateway error must not report confirmed delivery")
	}
}

func TestSplitRecipients(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "a@x.example", want: []string{"a@x.example"}},
		{in: " a@x.example , b@x.example ", want: []string{"a@x.example", "b@x.example"}},
		{in: "a@x.example,,b@x.example,", want: []string{"a@x.example", "b@x.example"}},
	}
	for _, tc := range cases {
		if got := SplitRecipients(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("SplitRecipients(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestRenderer_BuiltinTemplates(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	body, err := r.Render(TemplateFailedSales, map[string]string{
		"MachineName": "Lobby A",
		"Serial":      "VM-0042",
		"PartnerName": "acme-vending",
		"Reason":      "3 consecutive failed sales",
		"FailureAt":   "2026-03-01 12:05 UTC",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Lobby A", "VM-0042", "acme-vending", "3 consecutive failed sales"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderer_BaselineDropRows(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	type row struct {
		Serial        string
		Name          string
		Baseline      float64
		Completed     int
		Failed        int
		VoidCompleted int
		VoidFailed    int
	}
	body, err := r.Render(TemplateBaselineDrop, map[string]any{
		"PartnerName": "acme-vending",
		"Hour":        "2026-03-01 12:00 UTC",
		"Rows": []row{
			{Serial: "VM-0001", Name: "Lobby A", Baseline: 10, Completed: 2},
			{Serial: "VM-0002", Name: "Lobby B", Baseline: 6.5, Completed: 1},
		},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(body, "VM-0001") || !strings.Contains(body, "VM-0002") {
		t.Fatalf("expected one line per machine:\n%s", body)
	}
	if !strings.Contains(body, "baseline=6.5") {
		t.Fatalf("expected formatted baseline value:\n%s", body)
	}
}

func TestRenderer_UnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	if _, err := r.Render("no_such_template", nil); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

func TestRenderer_RegisterOverridesBuiltin(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	if err := r.Register(TemplateOffline, "offline: {{.Serial}}"); err != nil {
		t.Fatalf("register: %v", err)
	}
	body, err := r.Render(TemplateOffline, map[string]string{"Serial": "VM-0042"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if body != "offline: VM-0042" {
		t.Fatalf("unexpected body %q", body)
	}
}
