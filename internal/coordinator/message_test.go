package coordinator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nao1215/phishguard/internal/model"
)

func TestParseMessageKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    MessageKind
		wantErr bool
	}{
		{in: "scan", want: MessageScan},
		{in: " SAVE_CREDENTIAL ", want: MessageSaveCredential},
		{in: "checkPhishing", want: MessageScan},
		{in: "detectPhishing", want: MessageScan},
		{in: "saveApiKey", want: MessageSaveCredential},
		{in: "save_api_key", want: MessageSaveCredential},
		{in: "close_tab", want: MessageCloseTab},
		{in: "reboot", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseMessageKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMessageKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMessageKind(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMessage_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want Message
	}{
		{
			name: "canonical fields",
			data: `{"id":"1","kind":"scan","tab_id":4,"url":"https://example.com","origin":"auto_navigate"}`,
			want: Message{ID: "1", Kind: MessageScan, TabID: 4, URL: "https://example.com", Origin: model.OriginAutoNavigate},
		},
		{
			name: "extension action and apikey",
			data: `{"action":"saveApiKey","apikey":"secret"}`,
			want: Message{Kind: MessageSaveCredential, APIKey: "secret"},
		},
		{
			name: "unknown kind is kept",
			data: `{"kind":"reboot"}`,
			want: Message{Kind: MessageKind("reboot")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got Message
			if err := json.Unmarshal([]byte(tt.data), &got); err != nil {
				t.Fatalf("Unmarshal() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHandle(t *testing.T) {
	t.Parallel()

	t.Run("scan returns the result", func(t *testing.T) {
		t.Parallel()

		fake := newFakeClassifier()
		fake.verdicts[evilURL] = true
		c := newTestCoordinator(t, fake, "k", Options{RequireAPIKey: true})

		resp := c.Handle(context.Background(), Message{ID: "m1", Kind: MessageScan, TabID: 1, URL: evilURL})
		if !resp.OK || resp.ID != "m1" {
			t.Fatalf("response = %+v", resp)
		}
		if resp.Result == nil || !resp.Result.IsPhishing {
			t.Errorf("result = %+v", resp.Result)
		}
	})

	t.Run("scan failure carries kind and message", func(t *testing.T) {
		t.Parallel()

		c := newTestCoordinator(t, newFakeClassifier(), "", Options{RequireAPIKey: true})

		resp := c.Handle(context.Background(), Message{Kind: MessageScan, TabID: 1, URL: safeURL})
		if resp.OK {
			t.Fatal("expected failure")
		}
		if resp.ErrorKind != model.KindMissingCredential || resp.Error != "API key missing." {
			t.Errorf("response = %+v", resp)
		}
		if resp.Result == nil || resp.Result.StatusText() != "API key missing." {
			t.Errorf("result = %+v", resp.Result)
		}
	})

	t.Run("save credential then status", func(t *testing.T) {
		t.Parallel()

		fake := newFakeClassifier()
		c := newTestCoordinator(t, fake, "", Options{RequireAPIKey: true})
		ctx := context.Background()

		if resp := c.Handle(ctx, Message{Kind: MessageSaveCredential, APIKey: "abc"}); !resp.OK {
			t.Fatalf("save response = %+v", resp)
		}
		if resp := c.Handle(ctx, Message{Kind: MessageScan, TabID: 2, URL: safeURL}); !resp.OK {
			t.Fatalf("scan response = %+v", resp)
		}

		resp := c.Handle(ctx, Message{Kind: MessageGetStatus, TabID: 2})
		if !resp.OK || resp.Status == nil {
			t.Fatalf("status response = %+v", resp)
		}
		if resp.Status.URL != safeURL || resp.Status.Last == nil || resp.Status.Last.StatusText() != model.StatusSafe {
			t.Errorf("status = %+v", resp.Status)
		}
	})

	t.Run("navigate and close tab", func(t *testing.T) {
		t.Parallel()

		c := newTestCoordinator(t, newFakeClassifier(), "k", Options{})
		ctx := context.Background()

		if resp := c.Handle(ctx, Message{Kind: MessageNavigate, TabID: 3, URL: safeURL}); !resp.OK {
			t.Fatalf("navigate response = %+v", resp)
		}
		if got := c.Status(3).URL; got != safeURL {
			t.Errorf("url = %q", got)
		}
		if resp := c.Handle(ctx, Message{Kind: MessageCloseTab, TabID: 3}); !resp.OK {
			t.Fatalf("close response = %+v", resp)
		}
		if got := c.Status(3).URL; got != "" {
			t.Errorf("url after close = %q", got)
		}
	})

	t.Run("rejections", func(t *testing.T) {
		t.Parallel()

		c := newTestCoordinator(t, newFakeClassifier(), "k", Options{})
		ctx := context.Background()

		for _, msg := range []Message{
			{Kind: MessageKind("reboot")},
			{Kind: MessageSaveCredential, APIKey: " "},
			{Kind: MessageGetStatus},
			{Kind: MessageCloseTab, TabID: -1},
			{Kind: MessageNavigate},
		} {
			resp := c.Handle(ctx, msg)
			if resp.OK || resp.ErrorKind != model.KindInvalidInput {
				t.Errorf("Handle(%+v) = %+v, want invalid input", msg, resp)
			}
		}
	})
}
