package recognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// DeepgramConfig configures the Deepgram live transcription backend.
type DeepgramConfig struct {
	APIKey         string
	Model          string
	Language       string
	EndpointingMs  int
	UtteranceEndMs int
	BaseURL        string
	SampleRate     int
}

// DeepgramBackend is a Backend streaming PCM16 audio to Deepgram over a
// websocket. Deepgram's finalized segments are incremental, so the backend
// folds them into cumulative snapshots before emitting.
type DeepgramBackend struct {
	url    string
	apiKey string
	log    *slog.Logger

	mu   sync.Mutex
	sess *dgSession
}

type dgSession struct {
	ctx      context.Context
	cancel   context.CancelFunc
	emit     func(Signal)
	sendQ    chan []byte
	closeReq chan struct{}
	stopping bool
}

// NewDeepgramBackend returns a backend for cfg.
func NewDeepgramBackend(cfg DeepgramConfig, log *slog.Logger) *DeepgramBackend {
	if log == nil {
		log = slog.Default()
	}
	q := url.Values{}
	q.Set("model", orDefault(cfg.Model, "nova-2"))
	q.Set("language", orDefault(cfg.Language, "en-US"))
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("vad_events", "true")
	q.Set("endpointing", fmt.Sprintf("%d", nzd(cfg.EndpointingMs, 300)))
	q.Set("utterance_end_ms", fmt.Sprintf("%d", nzd(cfg.UtteranceEndMs, 1500)))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", nzd(cfg.SampleRate, 16000)))
	q.Set("channels", "1")
	base := orDefault(cfg.BaseURL, "wss://api.deepgram.com/v1/listen")
	return &DeepgramBackend{
		url:    base + "?" + q.Encode(),
		apiKey: cfg.APIKey,
		log:    log.With("component", "deepgram"),
	}
}

// Start dials asynchronously; SessionStarted or Error+SessionEnded follow.
func (d *DeepgramBackend) Start(ctx context.Context, emit func(Signal)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sess != nil {
		if d.sess.stopping {
			return ErrInvalidState
		}
		return ErrAlreadyStarted
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &dgSession{
		ctx:      sctx,
		cancel:   cancel,
		emit:     emit,
		sendQ:    make(chan []byte, 32),
		closeReq: make(chan struct{}),
	}
	d.sess = s
	go d.run(s)
	return nil
}

// Stop asks Deepgram to flush and close the stream.
func (d *DeepgramBackend) Stop() error {
	d.mu.Lock()
	s := d.sess
	if s == nil {
		d.mu.Unlock()
		return ErrInvalidState
	}
	if s.stopping {
		d.mu.Unlock()
		return nil
	}
	s.stopping = true
	d.mu.Unlock()

	close(s.closeReq)
	// Give the provider a moment to deliver trailing finals, then tear down.
	time.AfterFunc(2*time.Second, s.cancel)
	return nil
}

// Send enqueues PCM16LE audio for the open session, dropping it when no
// session is open or the queue is congested.
func (d *DeepgramBackend) Send(pcm []byte) bool {
	d.mu.Lock()
	s := d.sess
	d.mu.Unlock()
	if s == nil || s.stopping {
		metricDrops.Inc()
		return false
	}
	select {
	case s.sendQ <- pcm:
		metricAudioBytes.Add(float64(len(pcm)))
		return true
	default:
		metricDrops.Inc()
		return false
	}
}

func (d *DeepgramBackend) run(s *dgSession) {
	err := d.pump(s)
	s.cancel()

	d.mu.Lock()
	stopping := s.stopping
	if d.sess == s {
		d.sess = nil
	}
	d.mu.Unlock()

	if err != nil && !stopping {
		d.log.Warn("session failed", "error", err)
		s.emit(Signal{Kind: Error, Err: err})
	}
	s.emit(Signal{Kind: SessionEnded})
}

func (d *DeepgramBackend) pump(s *dgSession) error {
	hdr := make(http.Header)
	if d.apiKey != "" {
		hdr.Set("Authorization", "Token "+d.apiKey)
	}
	dctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	start := time.Now()
	ws, resp, err := websocket.Dial(dctx, d.url, &websocket.DialOptions{HTTPHeader: hdr})
	cancel()
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("deepgram dial: status %d: %w", resp.StatusCode, ErrPermissionDenied)
		}
		return fmt.Errorf("deepgram dial: %v: %w", err, ErrNetwork)
	}
	defer ws.Close(websocket.StatusNormalClosure, "bye")
	metricConnectMS.Observe(float64(time.Since(start).Milliseconds()))
	d.log.Debug("connected", "ms", time.Since(start).Milliseconds())
	s.emit(Signal{Kind: SessionStarted})

	go d.writeLoop(s, ws)

	var snap snapshotter
	for {
		_, data, err := ws.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return classifyClose(err)
		}
		if len(data) == 0 {
			continue
		}
		var m dgMessage
		if err := json.Unmarshal(data, &m); err != nil {
			d.log.Debug("unparseable frame", "error", err)
			continue
		}
		for _, sig := range snap.handle(m) {
			s.emit(sig)
		}
	}
}

func (d *DeepgramBackend) writeLoop(s *dgSession, ws *websocket.Conn) {
	closeReq := s.closeReq
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-closeReq:
			closeReq = nil
			wctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
			err := ws.Write(wctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
			cancel()
			if err != nil {
				d.log.Debug("close stream write failed", "error", err)
				s.cancel()
				return
			}
		case b := <-s.sendQ:
			if len(b) == 0 || closeReq == nil {
				continue
			}
			wctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
			err := ws.Write(wctx, websocket.MessageBinary, b)
			cancel()
			if err != nil {
				d.log.Debug("write failed", "error", err)
				return
			}
		}
	}
}

// classifyClose maps a websocket read failure onto the recognition errors.
// Deepgram closes with NET-0001 when it received no audio in time.
func classifyClose(err error) error {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		switch {
		case ce.Code == websocket.StatusNormalClosure:
			return nil
		case strings.Contains(ce.Reason, "NET-0001"):
			return fmt.Errorf("deepgram: %s: %w", ce.Reason, ErrNoSpeech)
		case ce.Code == websocket.StatusPolicyViolation:
			return fmt.Errorf("deepgram: %s: %w", ce.Reason, ErrPermissionDenied)
		}
	}
	return fmt.Errorf("deepgram read: %v: %w", err, ErrNetwork)
}

type dgMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func (m dgMessage) transcript() string {
	if len(m.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(m.Channel.Alternatives[0].Transcript)
}

// snapshotter turns Deepgram's results into snapshots that are cumulative
// within one segment. speech_final and UtteranceEnd close the segment with a
// FinalText; the next segment starts empty.
type snapshotter struct {
	finals  []string
	interim string
}

func (s *snapshotter) text() string {
	parts := make([]string, 0, len(s.finals)+1)
	parts = append(parts, s.finals...)
	if s.interim != "" {
		parts = append(parts, s.interim)
	}
	return strings.Join(parts, " ")
}

func (s *snapshotter) reset() {
	s.finals = nil
	s.interim = ""
}

func (s *snapshotter) handle(m dgMessage) []Signal {
	switch strings.ToLower(m.Type) {
	case "speechstarted":
		return []Signal{{Kind: SpeechDetected}}
	case "error":
		msg := orDefault(m.Description, orDefault(m.Message, "provider_error"))
		return []Signal{{Kind: Error, Err: fmt.Errorf("deepgram: %s: %w", msg, ErrNetwork)}}
	case "utteranceend":
		text := s.text()
		s.reset()
		if text == "" {
			return nil
		}
		return []Signal{{Kind: FinalText, Text: text}}
	case "results":
		t := m.transcript()
		if !m.IsFinal {
			if t == "" {
				return nil
			}
			s.interim = t
			return []Signal{{Kind: InterimText, Text: s.text()}}
		}
		if t != "" {
			s.finals = append(s.finals, t)
		}
		s.interim = ""
		text := s.text()
		if text == "" {
			return nil
		}
		if m.SpeechFinal {
			s.reset()
			return []Signal{{Kind: FinalText, Text: text}}
		}
		return []Signal{{Kind: InterimText, Text: text}}
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func nzd(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
