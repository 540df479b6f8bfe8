package notify

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestTwilioClient_SendSMS_PostsForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("パス = %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "token" {
			t.Errorf("BasicAuth = %q/%q (%v)", user, pass, ok)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("To") != "+15550001111" {
			t.Errorf("To = %q", r.PostForm.Get("To"))
		}
		if r.PostForm.Get("From") != "+15559998888" {
			t.Errorf("From = %q", r.PostForm.Get("From"))
		}
		if r.PostForm.Get("Body") != "hello" {
			t.Errorf("Body = %q", r.PostForm.Get("Body"))
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM1"}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewTwilioClient(TwilioConfig{AccountSID: "AC123", AuthToken: "token", FromNumber: "+15559998888"},
		server.Client(), 0, newTestLogger(&buf))
	c.endpoint = server.URL

	if err := c.SendSMS(context.Background(), "+15550001111", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTwilioClient_SendSMS_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewTwilioClient(TwilioConfig{AccountSID: "AC123", AuthToken: "token", FromNumber: "+1"},
		server.Client(), 0, newTestLogger(&buf))
	c.endpoint = server.URL

	if err := c.SendSMS(context.Background(), "bad", "hello"); err == nil {
		t.Fatal("expected error for 400 response, got nil")
	}
	if !bytes.Contains(buf.Bytes(), []byte("Twilio APIがエラーステータスを返しました")) {
		t.Errorf("エラーログが出力されていない: %s", buf.String())
	}
}

func TestTwilioClient_SendSMS_Paced(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	var buf bytes.Buffer
	interval := 50 * time.Millisecond
	c := NewTwilioClient(TwilioConfig{AccountSID: "AC", AuthToken: "t", FromNumber: "+1"},
		server.Client(), interval, newTestLogger(&buf))
	c.endpoint = server.URL

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := c.SendSMS(context.Background(), "+2", "x"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*interval {
		t.Errorf("3通の送信が %v で完了した（最低 %v の間隔が必要）", elapsed, 2*interval)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("呼び出し回数 = %d, want 3", calls)
	}
}

func TestTwilioClient_SendSMS_CanceledWhileWaiting(t *testing.T) {
	var buf bytes.Buffer
	c := NewTwilioClient(TwilioConfig{AccountSID: "AC", AuthToken: "t", FromNumber: "+1"},
		http.DefaultClient, time.Hour, newTestLogger(&buf))
	c.endpoint = "https://invalid.example"
	// 最初のトークンを消費しておく
	c.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c.SendSMS(ctx, "+2", "x"); err == nil {
		t.Fatal("expected error when context expires during pacing")
	}
}

func TestTwilioConfig_Configured(t *testing.T) {
	if (TwilioConfig{AccountSID: "a", AuthToken: "b"}).Configured() {
		t.Error("送信元番号なしでConfigured() = true")
	}
	if !(TwilioConfig{AccountSID: "a", AuthToken: "b", FromNumber: "c"}).Configured() {
		t.Error("全項目設定済みでConfigured() = false")
	}
}
