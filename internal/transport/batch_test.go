package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"voiceloop/internal/audio"
	"voiceloop/internal/domain"
)

type recordedUpload struct {
	path        string
	field       string
	filename    string
	contentType string
	data        []byte
}

func TestBatchChannelUploadsRecording(t *testing.T) {
	t.Parallel()

	uploads := make(chan recordedUpload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		reader, err := r.MultipartReader()
		if err != nil {
			t.Errorf("expected multipart body: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		part, err := reader.NextPart()
		if err != nil {
			t.Errorf("missing form part: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(part)
		uploads <- recordedUpload{
			path:        r.URL.Path,
			field:       part.FormName(),
			filename:    part.FileName(),
			contentType: part.Header.Get("Content-Type"),
			data:        data,
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"transcription": "hello world",
			"audio_base64":  "QUJD",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, nil)
	channel := NewBatchFactory(client, 16000, 1).NewChannel()

	if err := channel.Open(context.Background(), "sess-42"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := channel.Submit([]float32{0.5, -0.25}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	result, err := channel.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	upload := <-uploads
	if upload.path != "/agent/chat/sess-42" {
		t.Fatalf("unexpected path: %s", upload.path)
	}
	if upload.field != "file" {
		t.Fatalf("unexpected form field: %s", upload.field)
	}
	if upload.filename != "recording.wav" {
		t.Fatalf("unexpected filename: %s", upload.filename)
	}
	if upload.contentType != "audio/wav" {
		t.Fatalf("unexpected part content type: %s", upload.contentType)
	}

	wantWAV, err := audio.EncodeWAV(audio.EncodePCM16([]float32{0.5, -0.25}), 16000, 1)
	if err != nil {
		t.Fatalf("failed to build expected WAV: %v", err)
	}
	if !bytes.Equal(upload.data, wantWAV) {
		t.Fatalf("uploaded WAV does not match encoded recording")
	}

	if result.Transcription != "hello world" {
		t.Fatalf("unexpected transcription: %q", result.Transcription)
	}
	if result.AudioBase64 != "QUJD" {
		t.Fatalf("unexpected audio payload: %q", result.AudioBase64)
	}
	if !result.Replied {
		t.Fatalf("expected replied result")
	}
}

func TestBatchChannelAcceptsLegacyTextField(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "legacy reply"})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, nil)
	channel := NewBatchFactory(client, 16000, 1).NewChannel()

	if err := channel.Open(context.Background(), "s1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := channel.Submit([]float32{0.1}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	result, err := channel.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if result.Transcription != "legacy reply" {
		t.Fatalf("legacy text field not honored: %q", result.Transcription)
	}
}

func TestBatchChannelServerErrorIsTransportFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pipeline exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, nil)
	channel := NewBatchFactory(client, 16000, 1).NewChannel()

	if err := channel.Open(context.Background(), "s1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := channel.Submit([]float32{0.1}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	result, err := channel.Finalize(context.Background())
	if !errors.Is(err, domain.ErrTransportFailed) {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if !result.Empty() {
		t.Fatalf("failed turn must not carry a result")
	}
}

func TestBatchChannelEmptyRecordingSkipsUpload(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, nil)
	channel := NewBatchFactory(client, 16000, 1).NewChannel()

	if err := channel.Open(context.Background(), "s1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	result, err := channel.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if result.Replied || !result.Empty() {
		t.Fatalf("empty recording should resolve to an empty result")
	}
	if hits.Load() != 0 {
		t.Fatalf("empty recording must not touch the network")
	}
}

func TestBatchChannelAbortDiscardsBuffer(t *testing.T) {
	t.Parallel()

	client := NewClient("http://127.0.0.1:0", time.Second, nil)
	channel := NewBatchFactory(client, 16000, 1).NewChannel()

	if err := channel.Open(context.Background(), "s1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := channel.Submit([]float32{0.1}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	channel.Abort()

	if err := channel.Submit([]float32{0.2}); err == nil {
		t.Fatalf("submit after abort should fail")
	}
	if _, err := channel.Finalize(context.Background()); err == nil {
		t.Fatalf("finalize after abort should fail")
	}
}

func TestClientQueryText(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/llm/query" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("unexpected content type: %s", got)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("undecodable query payload: %v", err)
		}
		if payload["text"] != "ping" {
			t.Errorf("unexpected query text: %q", payload["text"])
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"transcription": "pong"})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, nil)
	result, err := client.QueryText(context.Background(), "ping")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if result.Transcription != "pong" || !result.Replied {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestClientQueryTextNetworkFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, time.Second, nil)
	if _, err := client.QueryText(context.Background(), "ping"); !errors.Is(err, domain.ErrTransportFailed) {
		t.Fatalf("expected transport failure, got %v", err)
	}
}
